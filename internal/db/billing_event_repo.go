package db

import (
	"context"
	"time"

	"pathsynch/internal/types"
)

// BillingEventRepository is the processed-event ledger that makes webhook
// handling idempotent under duplicate delivery. Event ids are recorded
// before processing; a second delivery of the same id short-circuits.
type BillingEventRepository struct {
	db DBTX
}

// NewBillingEventRepository creates a new BillingEventRepository backed by
// the given database connection (pool or transaction).
func NewBillingEventRepository(db DBTX) *BillingEventRepository {
	return &BillingEventRepository{db: db}
}

// MarkProcessed records an event id, returning true if this is the first
// time the id was seen. ON CONFLICT DO NOTHING makes the insert-if-absent
// atomic: exactly one delivery of a given id observes true.
func (r *BillingEventRepository) MarkProcessed(ctx context.Context, eventID string, eventType string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO billing_events (id, type, processed_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (id) DO NOTHING`,
		eventID,
		eventType,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record billing event", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteOlderThan prunes ledger entries processed before the cutoff. The
// ledger only needs to cover the payment platform's retry horizon; the
// maintenance sweep keeps it from growing without bound.
func (r *BillingEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM billing_events WHERE processed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune billing events", err)
	}
	return tag.RowsAffected(), nil
}
