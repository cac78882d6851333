// Package maintenance implements the scheduled housekeeping sweeps: expired
// cache entries, abandoned bulk jobs, and dead sessions. Every sweep accepts
// a `now` parameter for deterministic testing and manual backfill.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pathsynch/internal/config"
	"pathsynch/internal/types"
)

// CacheSweeper is the slice of the content cache the sweep needs.
type CacheSweeper interface {
	DeleteExpired(ctx context.Context, batchSize int) (int64, error)
}

// JobReaper declares stuck processing jobs failed.
type JobReaper interface {
	AbandonStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionSweeper removes sessions past their expiry.
type SessionSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Counter receives sweep telemetry. Satisfied by the CloudWatch collector.
type Counter interface {
	CountN(metricName string, value float64, dimensions map[string]string)
}

// Result summarizes one maintenance run.
type Result struct {
	CacheEntriesSwept int64 `json:"cache_entries_swept"`
	JobsAbandoned     int64 `json:"jobs_abandoned"`
	SessionsDeleted   int64 `json:"sessions_deleted"`
}

// Service runs the three sweeps. Each sweep is independent: a failure in
// one is reported but does not stop the others.
type Service struct {
	cache    CacheSweeper
	jobs     JobReaper
	sessions SessionSweeper
	metrics  Counter

	cacheBatchSize    int
	staleJobThreshold time.Duration
	logger            *slog.Logger
}

// ServiceConfig wires a maintenance Service. Metrics may be nil.
type ServiceConfig struct {
	Cache    CacheSweeper
	Jobs     JobReaper
	Sessions SessionSweeper
	Metrics  Counter

	Tuning config.MaintenanceConfig
	Logger *slog.Logger
}

// NewService creates a maintenance Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.Tuning.CacheSweepBatchSize
	if batch <= 0 {
		batch = 500
	}
	threshold := cfg.Tuning.StaleJobThreshold
	if threshold <= 0 {
		threshold = 15 * time.Minute
	}
	return &Service{
		cache:             cfg.Cache,
		jobs:              cfg.Jobs,
		sessions:          cfg.Sessions,
		metrics:           cfg.Metrics,
		cacheBatchSize:    batch,
		staleJobThreshold: threshold,
		logger:            logger,
	}
}

// Run executes all sweeps. The returned Result reflects whatever completed;
// the error aggregates any sweep failures.
func (s *Service) Run(ctx context.Context, now time.Time) (Result, error) {
	var result Result
	var errs []error

	swept, err := s.SweepCache(ctx)
	result.CacheEntriesSwept = swept
	if err != nil {
		errs = append(errs, fmt.Errorf("cache sweep: %w", err))
	}

	abandoned, err := s.ReapStaleJobs(ctx, now)
	result.JobsAbandoned = abandoned
	if err != nil {
		errs = append(errs, fmt.Errorf("stale job reap: %w", err))
	}

	deleted, err := s.SweepSessions(ctx, now)
	result.SessionsDeleted = deleted
	if err != nil {
		errs = append(errs, fmt.Errorf("session sweep: %w", err))
	}

	if len(errs) > 0 {
		return result, fmt.Errorf("maintenance run had %d failure(s): %v", len(errs), errs)
	}
	return result, nil
}

// SweepCache deletes cache entries past their per-type TTL in bounded
// batches and returns the count removed.
func (s *Service) SweepCache(ctx context.Context) (int64, error) {
	swept, err := s.cache.DeleteExpired(ctx, s.cacheBatchSize)
	if err != nil {
		return swept, err
	}
	if swept > 0 {
		s.logger.InfoContext(ctx, "expired cache entries swept", "count", swept)
	}
	s.count(types.MetricCacheSwept, swept)
	return swept, nil
}

// ReapStaleJobs declares every processing job untouched past the staleness
// threshold failed. Covers jobs whose queue messages died in the DLQ and
// will never be redelivered.
func (s *Service) ReapStaleJobs(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.staleJobThreshold)
	abandoned, err := s.jobs.AbandonStale(ctx, cutoff)
	if err != nil {
		return abandoned, err
	}
	if abandoned > 0 {
		s.logger.WarnContext(ctx, "stale bulk jobs abandoned",
			"count", abandoned,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
	s.count(types.MetricBulkJobAbandoned, abandoned)
	return abandoned, nil
}

// SweepSessions deletes sessions whose expiry has passed. Expired sessions
// are already unreadable; this reclaims the storage.
func (s *Service) SweepSessions(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return deleted, err
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "expired sessions deleted", "count", deleted)
	}
	return deleted, nil
}

func (s *Service) count(metric string, value int64) {
	if s.metrics == nil || value == 0 {
		return
	}
	s.metrics.CountN(metric, float64(value), nil)
}
