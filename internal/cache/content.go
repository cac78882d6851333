package cache

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"pathsynch/internal/types"
)

// hitCountTimeout bounds the detached goroutine that bumps hit counters.
const hitCountTimeout = 5 * time.Second

// defaultSweepBatch matches the repository's bounded-delete default.
const defaultSweepBatch = 500

// ttls maps each data type to its freshness window. Types not listed here
// fall back to the metrics window.
var ttls = map[types.CacheDataType]time.Duration{
	types.CacheCompetitors:  24 * time.Hour,
	types.CacheDemographics: 168 * time.Hour,
	types.CacheTrends:       24 * time.Hour,
	types.CacheMetrics:      24 * time.Hour,
	types.CacheLogo:         168 * time.Hour,
}

// sweepOrder lists every data type the expiry sweep visits.
var sweepOrder = []types.CacheDataType{
	types.CacheCompetitors,
	types.CacheDemographics,
	types.CacheTrends,
	types.CacheMetrics,
	types.CacheNarrative,
	types.CacheLogo,
}

// TTLFor returns the freshness window for a data type.
func TTLFor(dataType types.CacheDataType) time.Duration {
	if ttl, ok := ttls[dataType]; ok {
		return ttl
	}
	return ttls[types.CacheMetrics]
}

// Store is the slice of the cache repository the content cache needs.
type Store interface {
	Get(ctx context.Context, key string) (*types.CacheEntry, error)
	Upsert(ctx context.Context, entry *types.CacheEntry) error
	IncrementHit(ctx context.Context, key string) error
	DeleteOlderThan(ctx context.Context, dataType types.CacheDataType, cutoff time.Time, limit int) (int64, error)
}

// FetchFunc produces a fresh payload on a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// FetchOption adjusts one GetOrFetch call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	bypassRead bool
}

// WithBypass skips the cache read but still writes the fetched result. Used
// by refresh paths that must serve live data while keeping the cache warm.
func WithBypass(bypass bool) FetchOption {
	return func(o *fetchOptions) { o.bypassRead = bypass }
}

// ContentCache is the read-through memoization layer over external lookups.
// It never fails a caller on its own account: read errors surface as misses
// and write errors are logged and dropped.
type ContentCache struct {
	store  Store
	codec  *codec
	logger *slog.Logger
	now    func() time.Time

	// hits tracks in-flight async hit-count increments so shutdown and
	// tests can drain them.
	hits sync.WaitGroup
}

// NewContentCache builds the cache. If logger is nil, slog.Default() is used.
func NewContentCache(store Store, logger *slog.Logger) *ContentCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentCache{
		store:  store,
		codec:  newCodec(),
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the cached payload for a lookup, or ok=false when the entry is
// absent, expired, or unreadable. Expired entries are left in place for the
// sweep. A hit bumps the entry's hit counter on a detached goroutine that
// can never fail the read.
func (c *ContentCache) Get(ctx context.Context, dataType types.CacheDataType, params map[string]string) ([]byte, bool) {
	return c.get(ctx, Key(dataType, params), dataType)
}

// Put stores a payload unconditionally: last writer wins, cached_at and the
// hit counter reset. Failures are logged and dropped.
func (c *ContentCache) Put(ctx context.Context, dataType types.CacheDataType, params map[string]string, payload []byte) {
	c.put(ctx, Key(dataType, params), dataType, payload)
}

// GetOrFetch is the read-through path: return the cached payload if fresh,
// otherwise fetch, store, and return the fresh one. The bool reports whether
// the payload came from the cache. Fetch results that are empty or JSON null
// are returned to the caller but never cached, so a provider hiccup cannot
// pin a negative result for a full TTL window.
func (c *ContentCache) GetOrFetch(
	ctx context.Context,
	dataType types.CacheDataType,
	params map[string]string,
	fetch FetchFunc,
	opts ...FetchOption,
) ([]byte, bool, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	key := Key(dataType, params)
	if !o.bypassRead {
		if payload, ok := c.get(ctx, key, dataType); ok {
			return payload, true, nil
		}
	}

	payload, err := fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	if isNegative(payload) {
		return payload, false, nil
	}

	c.put(ctx, key, dataType, payload)
	return payload, false, nil
}

// DeleteExpired removes entries past their type TTL in bounded batches and
// returns the total removed. Each batch is its own statement, so the sweep
// never holds a long transaction over a hot table.
func (c *ContentCache) DeleteExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}

	var total int64
	for _, dataType := range sweepOrder {
		cutoff := c.now().Add(-TTLFor(dataType))
		for {
			deleted, err := c.store.DeleteOlderThan(ctx, dataType, cutoff, batchSize)
			if err != nil {
				return total, err
			}
			total += deleted
			if deleted < int64(batchSize) {
				break
			}
		}
	}
	return total, nil
}

// Drain blocks until pending hit-count increments finish. Called on shutdown.
func (c *ContentCache) Drain() {
	c.hits.Wait()
}

func (c *ContentCache) get(ctx context.Context, key string, dataType types.CacheDataType) ([]byte, bool) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "cache read failed, treating as miss",
			"cache_key", key,
			"error", err,
		)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	if c.now().Sub(entry.CachedAt) > TTLFor(dataType) {
		return nil, false
	}

	payload, err := c.codec.decompress(entry.Payload)
	if err != nil {
		c.logger.WarnContext(ctx, "cache entry unreadable, treating as miss",
			"cache_key", key,
			"error", err,
		)
		return nil, false
	}

	c.hits.Add(1)
	go func() {
		defer c.hits.Done()
		hitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hitCountTimeout)
		defer cancel()
		if err := c.store.IncrementHit(hitCtx, key); err != nil {
			c.logger.WarnContext(hitCtx, "hit count increment failed",
				"cache_key", key,
				"error", err,
			)
		}
	}()

	return payload, true
}

func (c *ContentCache) put(ctx context.Context, key string, dataType types.CacheDataType, payload []byte) {
	entry := &types.CacheEntry{
		Key:      key,
		DataType: dataType,
		Payload:  c.codec.compress(payload),
		CachedAt: c.now(),
	}
	if err := c.store.Upsert(ctx, entry); err != nil {
		c.logger.WarnContext(ctx, "cache write failed",
			"cache_key", key,
			"data_type", string(dataType),
			"error", err,
		)
	}
}

// isNegative reports whether a fetch result carries no cacheable content.
func isNegative(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
