package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"pathsynch/internal/types"
)

// BulkJobRepository provides data access for the bulk_jobs table and owns
// the job state machine transitions:
//
//	pending -> processing -> {completed | failed}
//
// plus the direct pending -> failed edge taken at creation when validation
// leaves zero processable rows. Every transition is a conditional UPDATE
// guarded on the current status, so concurrent workers and the maintenance
// reaper can never double-apply a transition.
type BulkJobRepository struct {
	db DBTX
}

// NewBulkJobRepository creates a new BulkJobRepository backed by the given
// database connection (pool or transaction).
func NewBulkJobRepository(db DBTX) *BulkJobRepository {
	return &BulkJobRepository{db: db}
}

// jobColumns defines the standard set of columns selected for job queries.
const jobColumns = `j.id, j.user_id, j.status,
	j.total_rows, j.valid_rows, j.processed_rows, j.success_count, j.failed_count,
	j.pitch_ids, j.errors, j.rows,
	j.created_at, j.started_at, j.completed_at, j.updated_at`

// scanBulkJob scans a single job row into a types.BulkJob struct.
// The columns must match the order defined in jobColumns.
func scanBulkJob(row pgx.Row) (*types.BulkJob, error) {
	var job types.BulkJob
	var (
		pitchIDs []string
		rowErrs  types.RowErrorList
		rowsList types.BulkRowList
	)
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Status,
		&job.TotalRows,
		&job.ValidRows,
		&job.ProcessedRows,
		&job.SuccessCount,
		&job.FailedCount,
		&pitchIDs,
		&rowErrs,
		&rowsList,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.PitchIDs = pitchIDs
	job.Errors = []types.RowError(rowErrs)
	job.Rows = []types.BulkRow(rowsList)
	return &job, nil
}

// Create inserts a new job. The caller sets the full initial state: a job
// with valid rows arrives as pending, a job whose every row failed
// validation arrives as failed with completed_at already set.
func (r *BulkJobRepository) Create(ctx context.Context, job *types.BulkJob) error {
	pitchIDs := job.PitchIDs
	if pitchIDs == nil {
		pitchIDs = []string{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO bulk_jobs (
			id, user_id, status,
			total_rows, valid_rows, processed_rows, success_count, failed_count,
			pitch_ids, errors, rows,
			created_at, started_at, completed_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11,
			COALESCE($12, NOW()), $13, $14, NOW()
		)`,
		job.ID,
		job.UserID,
		string(job.Status),
		job.TotalRows,
		job.ValidRows,
		job.ProcessedRows,
		job.SuccessCount,
		job.FailedCount,
		pitchIDs,
		types.RowErrorList(job.Errors),
		types.BulkRowList(job.Rows),
		nilIfZeroTime(job.CreatedAt),
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create bulk job", err)
	}
	return nil
}

// GetByID retrieves a job by id without owner scoping. The handler compares
// the owner and returns a permission error for cross-user access; the worker
// has no owner at all.
func (r *BulkJobRepository) GetByID(ctx context.Context, id string) (*types.BulkJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM bulk_jobs j WHERE j.id = $1`,
		id,
	)

	job, err := scanBulkJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve bulk job", err)
	}
	return job, nil
}

// Claim atomically transitions a pending job to processing and returns it.
//
// When the job exists but is not pending, Claim returns (job, false, nil)
// with the job's current state; the worker decides from there -- terminal
// jobs are acknowledged (duplicate delivery), a fresh processing job goes
// back to the queue, a stale one gets abandoned.
func (r *BulkJobRepository) Claim(ctx context.Context, id string) (*types.BulkJob, bool, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE bulk_jobs j SET
			status = $2,
			started_at = COALESCE(j.started_at, NOW()),
			updated_at = NOW()
		 WHERE j.id = $1 AND j.status = $3
		 RETURNING `+jobColumns,
		id,
		string(types.JobProcessing),
		string(types.JobPending),
	)

	job, err := scanBulkJob(row)
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim bulk job", err)
	}

	// Not pending. Fetch the current state so the caller can decide.
	job, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, false, getErr
	}
	return job, false, nil
}

// UpdateProgress persists the cumulative counters after each processed row.
// Guarded on status = processing: zero rows affected means the reaper
// declared the job abandoned mid-flight, and the worker should stop.
func (r *BulkJobRepository) UpdateProgress(
	ctx context.Context,
	id string,
	processed, success, failed int,
	pitchIDs []string,
	rowErrors []types.RowError,
) error {
	if pitchIDs == nil {
		pitchIDs = []string{}
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE bulk_jobs SET
			processed_rows = $2,
			success_count = $3,
			failed_count = $4,
			pitch_ids = $5,
			errors = $6,
			updated_at = NOW()
		 WHERE id = $1 AND status = $7`,
		id,
		processed,
		success,
		failed,
		pitchIDs,
		types.RowErrorList(rowErrors),
		string(types.JobProcessing),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update job progress", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictJobState, "job is no longer processing", nil)
	}
	return nil
}

// Finish transitions a processing job to its terminal status. The final
// counters were already persisted by the last UpdateProgress call; this
// only flips the status and stamps completed_at.
func (r *BulkJobRepository) Finish(ctx context.Context, id string, status types.JobStatus) error {
	if !status.Terminal() {
		return types.NewAppError(types.ErrCodeConflictJobState,
			fmt.Sprintf("cannot finish job with non-terminal status %q", status), nil)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE bulk_jobs SET
			status = $2,
			completed_at = NOW(),
			updated_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id,
		string(status),
		string(types.JobProcessing),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish bulk job", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictJobState, "job is no longer processing", nil)
	}
	return nil
}

// interruptedError is appended to a job's error list when it is declared
// abandoned. Row 0 marks a job-level rather than row-level failure.
var interruptedError = types.RowError{Row: 0, Error: "processing interrupted"}

// Abandon declares one stuck job failed. The staleness check rides inside
// the UPDATE (updated_at < cutoff) so a worker heartbeat between the
// caller's read and this write wins the race. Partial counters are
// preserved; an "processing interrupted" entry is appended to the errors.
// Returns true if this call performed the transition.
func (r *BulkJobRepository) Abandon(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	entry, err := json.Marshal([]types.RowError{interruptedError})
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode abandon marker", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE bulk_jobs SET
			status = $2,
			completed_at = NOW(),
			updated_at = NOW(),
			errors = errors || $3::jsonb
		 WHERE id = $1 AND status = $4 AND updated_at < $5`,
		id,
		string(types.JobFailed),
		entry,
		string(types.JobProcessing),
		cutoff,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to abandon bulk job", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AbandonStale declares every processing job untouched since the cutoff
// failed. The maintenance sweep runs this for jobs whose queue messages
// died in the DLQ and will never be redelivered. Returns the number of jobs
// transitioned.
func (r *BulkJobRepository) AbandonStale(ctx context.Context, cutoff time.Time) (int64, error) {
	entry, err := json.Marshal([]types.RowError{interruptedError})
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode abandon marker", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE bulk_jobs SET
			status = $1,
			completed_at = NOW(),
			updated_at = NOW(),
			errors = errors || $2::jsonb
		 WHERE status = $3 AND updated_at < $4`,
		string(types.JobFailed),
		entry,
		string(types.JobProcessing),
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to abandon stale jobs", err)
	}
	return tag.RowsAffected(), nil
}

// ListJobsParams defines pagination parameters for a user's job listing.
type ListJobsParams struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

// ListByUser retrieves a user's jobs ordered by created_at DESC with
// cursor-based pagination, newest first.
func (r *BulkJobRepository) ListByUser(ctx context.Context, userID string, params ListJobsParams) ([]*types.BulkJob, types.PageInfo, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	conditions := []string{"j.user_id = $1"}
	args := []any{userID}
	argIdx := 2

	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationQueryParam,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("j.created_at < $%d", argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT %s FROM bulk_jobs j WHERE %s ORDER BY j.created_at DESC LIMIT $%d`,
		jobColumns,
		strings.Join(conditions, " AND "),
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list bulk jobs", err)
	}
	defer rows.Close()

	var results []*types.BulkJob
	for rows.Next() {
		job, scanErr := scanBulkJob(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan bulk job row", scanErr)
		}
		results = append(results, job)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating bulk job rows", err)
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].CreatedAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}
