package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pathsynch/internal/types"
)

// UsageRepository provides data access for the usage_records table. Records
// are keyed by "{userId}_{YYYY-MM}"; a new month means a new key, so months
// roll over by key construction with no reset job.
type UsageRepository struct {
	db DBTX
}

// NewUsageRepository creates a new UsageRepository backed by the given
// database connection (pool or transaction).
func NewUsageRepository(db DBTX) *UsageRepository {
	return &UsageRepository{db: db}
}

// usageColumn maps a usage type to its counter column. The map doubles as a
// whitelist: Increment interpolates the column name into SQL, so only names
// listed here may ever reach a query.
func usageColumn(t types.UsageType) (string, bool) {
	switch t {
	case types.UsagePitches:
		return "pitches_generated", true
	case types.UsageBulkUploads:
		return "bulk_uploads_this_month", true
	case types.UsageNarratives:
		return "narratives_generated", true
	case types.UsageRegenerations:
		return "ai_regenerations", true
	case types.UsageMarketReports:
		return "market_reports_this_month", true
	default:
		return "", false
	}
}

// Get retrieves the usage record for a user in the month containing the
// given instant. A missing row is not an error: it means the user has no
// usage yet this period, so a zero-valued record is returned.
func (r *UsageRepository) Get(ctx context.Context, userID string, at time.Time) (*types.UsageRecord, error) {
	key := types.PeriodKeyFor(userID, at)

	var rec types.UsageRecord
	err := r.db.QueryRow(ctx,
		`SELECT period_key, user_id, period,
		        pitches_generated, bulk_uploads_this_month, narratives_generated,
		        ai_regenerations, market_reports_this_month, updated_at
		 FROM usage_records
		 WHERE period_key = $1`,
		key,
	).Scan(
		&rec.PeriodKey,
		&rec.UserID,
		&rec.Period,
		&rec.PitchesGenerated,
		&rec.BulkUploadsThisMonth,
		&rec.NarrativesGenerated,
		&rec.AIRegenerations,
		&rec.MarketReportsMonth,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &types.UsageRecord{
				PeriodKey: key,
				UserID:    userID,
				Period:    types.PeriodFor(at),
			}, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve usage record", err)
	}
	return &rec, nil
}

// Increment adds n to one usage counter for the current period, lazily
// creating the record on first use. The counter update is atomic
// (SET x = x + n), so concurrent increments never lose counts.
//
// Unknown usage types are rejected rather than silently dropped; the gate
// should have caught them long before a write is attempted.
func (r *UsageRepository) Increment(ctx context.Context, userID string, t types.UsageType, n int, at time.Time) error {
	col, ok := usageColumn(t)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnknownUsage,
			fmt.Sprintf("unknown usage type %q", t), nil)
	}
	if n <= 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO usage_records (period_key, user_id, period, %[1]s, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (period_key) DO UPDATE SET
		   %[1]s = usage_records.%[1]s + EXCLUDED.%[1]s,
		   updated_at = NOW()`,
		col,
	)

	_, err := r.db.Exec(ctx, query,
		types.PeriodKeyFor(userID, at),
		userID,
		types.PeriodFor(at),
		n,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment usage counter", err)
	}
	return nil
}
