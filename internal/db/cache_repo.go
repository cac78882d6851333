package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"pathsynch/internal/types"
)

// CacheRepository provides data access for the content_cache table. TTL
// evaluation is the caller's concern: rows live until overwritten or swept,
// and readers decide freshness from cached_at (lazy expiry).
type CacheRepository struct {
	db DBTX
}

// NewCacheRepository creates a new CacheRepository backed by the given
// database connection (pool or transaction).
func NewCacheRepository(db DBTX) *CacheRepository {
	return &CacheRepository{db: db}
}

// Get retrieves a cache entry by key. Returns (nil, nil) on a miss so the
// caller can distinguish absence from a real lookup failure.
func (r *CacheRepository) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	var entry types.CacheEntry
	err := r.db.QueryRow(ctx,
		`SELECT cache_key, data_type, payload, cached_at, hit_count
		 FROM content_cache
		 WHERE cache_key = $1`,
		key,
	).Scan(
		&entry.Key,
		&entry.DataType,
		&entry.Payload,
		&entry.CachedAt,
		&entry.HitCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve cache entry", err)
	}
	return &entry, nil
}

// Upsert writes a cache entry, last-writer-wins. Overwriting resets
// cached_at and the hit count: the entry is brand new content, and hit
// counts measure the life of one cached payload, not the key.
func (r *CacheRepository) Upsert(ctx context.Context, entry *types.CacheEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO content_cache (cache_key, data_type, payload, cached_at, hit_count)
		 VALUES ($1, $2, $3, COALESCE($4, NOW()), 0)
		 ON CONFLICT (cache_key) DO UPDATE SET
		   data_type = EXCLUDED.data_type,
		   payload = EXCLUDED.payload,
		   cached_at = EXCLUDED.cached_at,
		   hit_count = 0`,
		entry.Key,
		string(entry.DataType),
		entry.Payload,
		nilIfZeroTime(entry.CachedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write cache entry", err)
	}
	return nil
}

// IncrementHit bumps the hit counter for a key. Fired asynchronously after
// cache hits; a missing row (entry swept between read and increment) is not
// an error.
func (r *CacheRepository) IncrementHit(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE content_cache SET hit_count = hit_count + 1 WHERE cache_key = $1`,
		key,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment cache hit count", err)
	}
	return nil
}

// DeleteOlderThan removes up to limit entries of one data type cached before
// the cutoff. Returns the number of rows removed. The maintenance sweep
// calls this per data type with that type's TTL cutoff, looping until a
// short batch comes back.
func (r *CacheRepository) DeleteOlderThan(ctx context.Context, dataType types.CacheDataType, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM content_cache
		 WHERE cache_key IN (
		   SELECT cache_key FROM content_cache
		   WHERE data_type = $1 AND cached_at < $2
		   LIMIT $3
		 )`,
		string(dataType),
		cutoff,
		limit,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sweep cache entries", err)
	}
	return tag.RowsAffected(), nil
}
