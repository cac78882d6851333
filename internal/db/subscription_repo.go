package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pathsynch/internal/types"
)

// SubscriptionRepository manages the local projection of payment-platform
// subscriptions. The external subscription id is the primary key; rows are
// written only by the billing event processor.
//
// Upsert is a merge: fields the incoming event carries overwrite, fields it
// omits (nil periods, empty price id) preserve the stored values. That makes
// replayed and out-of-order webhook deliveries converge on the same row.
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a new SubscriptionRepository backed by
// the given database connection (pool or transaction).
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `s.id, s.user_id, s.plan, s.status, s.price_id,
	s.current_period_start, s.current_period_end, s.cancel_at_period_end,
	s.created_at, s.updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	var priceID *string
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Plan,
		&s.Status,
		&priceID,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if priceID != nil {
		s.PriceID = *priceID
	}
	return &s, nil
}

// Upsert inserts or merge-updates a subscription keyed by its external id.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *types.Subscription) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (
			id, user_id, plan, status, price_id,
			current_period_start, current_period_end, cancel_at_period_end,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			price_id = COALESCE(EXCLUDED.price_id, subscriptions.price_id),
			current_period_start = COALESCE(EXCLUDED.current_period_start, subscriptions.current_period_start),
			current_period_end = COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end),
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = NOW()`,
		sub.ID,
		sub.UserID,
		string(sub.Plan),
		string(sub.Status),
		nilIfEmpty(sub.PriceID),
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}
	return nil
}

// GetByID retrieves a subscription by its external id. Returns (nil, nil)
// when no such subscription is stored.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions s WHERE s.id = $1`,
		id,
	)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}
	return sub, nil
}

// GetByUserID retrieves the most recently updated subscription for a user.
// Returns (nil, nil) when the user has none; the billing page renders the
// free-tier state in that case.
func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions s
		 WHERE s.user_id = $1
		 ORDER BY s.updated_at DESC
		 LIMIT 1`,
		userID,
	)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription for user", err)
	}
	return sub, nil
}

// MarkCanceled transitions a subscription to canceled. Idempotent: marking
// an already-canceled subscription is a no-op, not an error, so duplicate
// deletion webhooks converge.
func (r *SubscriptionRepository) MarkCanceled(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1, cancel_at_period_end = false, updated_at = NOW()
		 WHERE id = $2`,
		string(types.SubStatusCanceled),
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to cancel subscription", err)
	}
	return nil
}
