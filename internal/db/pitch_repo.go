package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"pathsynch/internal/types"
)

// PitchRepository provides data access for the pitches table.
type PitchRepository struct {
	db DBTX
}

// NewPitchRepository creates a new PitchRepository backed by the given
// database connection (pool or transaction).
func NewPitchRepository(db DBTX) *PitchRepository {
	return &PitchRepository{db: db}
}

const pitchColumns = `p.id, p.user_id, p.job_id, p.business_name, p.html, p.profile, p.created_at`

func scanPitch(row pgx.Row) (*types.Pitch, error) {
	var p types.Pitch
	var jobID *string
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&jobID,
		&p.BusinessName,
		&p.HTML,
		&p.Profile,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if jobID != nil {
		p.JobID = *jobID
	}
	return &p, nil
}

// Create inserts a new pitch. JobID is empty for single-pitch generation and
// set to the originating bulk job otherwise.
func (r *PitchRepository) Create(ctx context.Context, pitch *types.Pitch) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO pitches (id, user_id, job_id, business_name, html, profile, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		pitch.ID,
		pitch.UserID,
		nilIfEmpty(pitch.JobID),
		pitch.BusinessName,
		pitch.HTML,
		pitch.Profile,
		nilIfZeroTime(pitch.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create pitch", err)
	}
	return nil
}

// GetByID retrieves a pitch by id without owner scoping. The handler
// compares the owner and returns a permission error for cross-user access.
func (r *PitchRepository) GetByID(ctx context.Context, id string) (*types.Pitch, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+pitchColumns+` FROM pitches p WHERE p.id = $1`,
		id,
	)

	pitch, err := scanPitch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPitch, "pitch not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve pitch", err)
	}
	return pitch, nil
}

// ListPitchesParams defines filtering and pagination for pitch listings.
type ListPitchesParams struct {
	JobID  string `json:"job_id"`
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

// ListByUser retrieves a user's pitches ordered by created_at DESC with
// cursor-based pagination, optionally filtered to one bulk job.
func (r *PitchRepository) ListByUser(ctx context.Context, userID string, params ListPitchesParams) ([]*types.Pitch, types.PageInfo, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	conditions := []string{"p.user_id = $1"}
	args := []any{userID}
	argIdx := 2

	if params.JobID != "" {
		conditions = append(conditions, fmt.Sprintf("p.job_id = $%d", argIdx))
		args = append(args, params.JobID)
		argIdx++
	}

	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationQueryParam,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("p.created_at < $%d", argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT %s FROM pitches p WHERE %s ORDER BY p.created_at DESC LIMIT $%d`,
		pitchColumns,
		strings.Join(conditions, " AND "),
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list pitches", err)
	}
	defer rows.Close()

	var results []*types.Pitch
	for rows.Next() {
		pitch, scanErr := scanPitch(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan pitch row", scanErr)
		}
		results = append(results, pitch)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating pitch rows", err)
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].CreatedAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}

// ListByJob retrieves every pitch produced by one bulk job, in creation
// order. Feeds the ZIP download; the result is bounded by the per-job row
// limit so no pagination is needed.
func (r *PitchRepository) ListByJob(ctx context.Context, jobID string) ([]*types.Pitch, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+pitchColumns+`
		 FROM pitches p
		 WHERE p.job_id = $1
		 ORDER BY p.created_at ASC`,
		jobID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pitches for job", err)
	}
	defer rows.Close()

	var results []*types.Pitch
	for rows.Next() {
		pitch, scanErr := scanPitch(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan pitch row", scanErr)
		}
		results = append(results, pitch)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating pitch rows", err)
	}

	return results, nil
}

// Delete removes a pitch permanently. The handler verifies ownership before
// calling.
func (r *PitchRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM pitches WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete pitch", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPitch, "pitch not found", nil)
	}
	return nil
}
