package db

import (
	"context"

	"pathsynch/internal/types"
)

// AnalyticsRepository provides the read-only aggregation queries behind the
// admin analytics endpoint. These queries span multiple tables and serve a
// reporting need, so they are intentionally separated from the standard
// per-entity repositories.
type AnalyticsRepository struct {
	db DBTX
}

// NewAnalyticsRepository creates a new AnalyticsRepository backed by the
// given database connection (pool or transaction).
func NewAnalyticsRepository(db DBTX) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// UserCounts returns the total user count and a per-plan breakdown. The
// plan column is JSONB with a legacy shape in old rows, so grouping happens
// in Go after normalizing each row through scanPlan rather than in SQL.
func (r *AnalyticsRepository) UserCounts(ctx context.Context) (int, map[types.PlanTier]int, error) {
	rows, err := r.db.Query(ctx, `SELECT plan FROM users`)
	if err != nil {
		return 0, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query user plans", err)
	}
	defer rows.Close()

	total := 0
	byPlan := make(map[types.PlanTier]int, len(types.PlanOrder))
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return 0, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user plan", err)
		}
		byPlan[scanPlan(raw)]++
		total++
	}
	if err := rows.Err(); err != nil {
		return 0, nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user plans", err)
	}

	return total, byPlan, nil
}

// PitchCounts returns the all-time pitch count and the count for the
// current calendar month, in one round trip via a filtered aggregate.
func (r *AnalyticsRepository) PitchCounts(ctx context.Context) (int, int, error) {
	var total, thisMonth int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE created_at >= date_trunc('month', NOW()))
		 FROM pitches`,
	).Scan(&total, &thisMonth)
	if err != nil {
		return 0, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count pitches", err)
	}
	return total, thisMonth, nil
}

// JobCounts returns the number of bulk jobs per status.
func (r *AnalyticsRepository) JobCounts(ctx context.Context) (map[types.JobStatus]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM bulk_jobs GROUP BY status`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count jobs by status", err)
	}
	defer rows.Close()

	result := make(map[types.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job status count", err)
		}
		result[types.JobStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating job status counts", err)
	}

	return result, nil
}

// NarrativeCount returns the all-time narrative count.
func (r *AnalyticsRepository) NarrativeCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM narratives`).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count narratives", err)
	}
	return count, nil
}

// CacheStats returns the live cache entry count and the total accumulated
// hit count across entries.
func (r *AnalyticsRepository) CacheStats(ctx context.Context) (int, int, error) {
	var entries, hits int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM content_cache`,
	).Scan(&entries, &hits)
	if err != nil {
		return 0, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to read cache stats", err)
	}
	return entries, hits, nil
}
