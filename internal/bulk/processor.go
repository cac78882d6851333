package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pathsynch/internal/pitch"
	"pathsynch/internal/types"
)

// DefaultStaleThreshold is how long a processing job may go without a
// progress write before a redelivered message declares it abandoned.
const DefaultStaleThreshold = 15 * time.Minute

// ErrRetryLater tells the worker to return the message to the queue: the
// job is mid-flight elsewhere and its heartbeat is still fresh.
var ErrRetryLater = errors.New("bulk: job in progress, retry later")

// JobStore is the slice of the job repository the processor needs.
type JobStore interface {
	Claim(ctx context.Context, id string) (*types.BulkJob, bool, error)
	UpdateProgress(ctx context.Context, id string, processed, success, failed int, pitchIDs []string, rowErrors []types.RowError) error
	Finish(ctx context.Context, id string, status types.JobStatus) error
	Abandon(ctx context.Context, id string, cutoff time.Time) (bool, error)
}

// PitchStore persists generated pitch documents.
type PitchStore interface {
	Create(ctx context.Context, p *types.Pitch) error
}

// UsageRecorder books generated-pitch counts against the owner's month.
type UsageRecorder interface {
	Increment(ctx context.Context, userID string, t types.UsageType, n int, at time.Time) error
}

// RenderFunc turns one validated profile into a pitch document.
type RenderFunc func(profile types.BusinessProfile) (string, error)

// Processor drives one claimed bulk job through its rows sequentially,
// persisting cumulative progress after every row.
type Processor struct {
	jobs           JobStore
	pitches        PitchStore
	usage          UsageRecorder
	render         RenderFunc
	staleThreshold time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// ProcessorConfig wires a Processor. Render defaults to the plain HTML
// renderer; StaleThreshold defaults to DefaultStaleThreshold.
type ProcessorConfig struct {
	Jobs           JobStore
	Pitches        PitchStore
	Usage          UsageRecorder
	Render         RenderFunc
	StaleThreshold time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	render := cfg.Render
	if render == nil {
		render = func(profile types.BusinessProfile) (string, error) {
			return pitch.RenderHTML(profile, pitch.RenderOptions{})
		}
	}
	threshold := cfg.StaleThreshold
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		jobs:           cfg.Jobs,
		pitches:        cfg.Pitches,
		usage:          cfg.Usage,
		render:         render,
		staleThreshold: threshold,
		now:            now,
		logger:         logger,
	}
}

// Process handles one queue message. A nil return acknowledges the message;
// ErrRetryLater returns it to the queue; any other error is a processing
// fault the worker reports as a batch item failure.
func (p *Processor) Process(ctx context.Context, msg types.BulkJobMessage) error {
	job, claimed, err := p.jobs.Claim(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if !claimed {
		return p.handleUnclaimed(ctx, job)
	}

	p.logger.InfoContext(ctx, "bulk job claimed",
		"job_id", job.ID,
		"user_id", job.UserID,
		"trace_id", msg.TraceID,
		"valid_rows", len(job.Rows),
	)
	return p.run(ctx, job)
}

// handleUnclaimed decides what to do with a message whose job was not in
// pending state: terminal jobs are duplicate deliveries and ACK, fresh
// processing jobs go back to the queue, stale ones get abandoned.
func (p *Processor) handleUnclaimed(ctx context.Context, job *types.BulkJob) error {
	if job.Status.Terminal() {
		p.logger.InfoContext(ctx, "duplicate delivery for finished job, acknowledging",
			"job_id", job.ID,
			"status", string(job.Status),
		)
		return nil
	}

	cutoff := p.now().Add(-p.staleThreshold)
	if job.UpdatedAt.After(cutoff) {
		return ErrRetryLater
	}

	abandoned, err := p.jobs.Abandon(ctx, job.ID, cutoff)
	if err != nil {
		return err
	}
	if !abandoned {
		// A heartbeat landed between our read and the abandon write.
		return ErrRetryLater
	}
	p.logger.WarnContext(ctx, "stale bulk job abandoned",
		"job_id", job.ID,
		"processed_rows", job.ProcessedRows,
	)
	return nil
}

// run executes the row loop for a freshly claimed job.
func (p *Processor) run(ctx context.Context, job *types.BulkJob) error {
	processed := job.ProcessedRows
	success := job.SuccessCount
	failed := job.FailedCount
	pitchIDs := append([]string(nil), job.PitchIDs...)
	rowErrors := append([]types.RowError(nil), job.Errors...)

	for _, row := range job.Rows {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bulk: job %s interrupted: %w", job.ID, err)
		}

		pitchID, rowErr := p.processRow(ctx, job, row)
		processed++
		if rowErr != nil {
			failed++
			rowErrors = append(rowErrors, types.RowError{Row: row.Row, Error: rowErr.Error()})
		} else {
			success++
			pitchIDs = append(pitchIDs, pitchID)
		}

		if err := p.jobs.UpdateProgress(ctx, job.ID, processed, success, failed, pitchIDs, rowErrors); err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictJobState {
				// The reaper declared this job abandoned mid-flight.
				p.logger.WarnContext(ctx, "job no longer processing, stopping row loop",
					"job_id", job.ID,
					"processed_rows", processed,
				)
				return nil
			}
			return err
		}
	}

	status := types.JobFailed
	if success > 0 {
		status = types.JobCompleted
	}
	if err := p.jobs.Finish(ctx, job.ID, status); err != nil {
		return err
	}

	if success > job.SuccessCount {
		generated := success - job.SuccessCount
		if err := p.usage.Increment(ctx, job.UserID, types.UsagePitches, generated, p.now()); err != nil {
			p.logger.WarnContext(ctx, "usage increment failed after bulk job",
				"job_id", job.ID,
				"user_id", job.UserID,
				"pitches", generated,
				"error", err,
			)
		}
	}

	p.logger.InfoContext(ctx, "bulk job finished",
		"job_id", job.ID,
		"status", string(status),
		"success_count", success,
		"failed_count", failed,
	)
	return nil
}

// processRow renders and persists one pitch. The returned error is recorded
// on the job; it never aborts the loop.
func (p *Processor) processRow(ctx context.Context, job *types.BulkJob, row types.BulkRow) (string, error) {
	html, err := p.render(row.Profile)
	if err != nil {
		return "", fmt.Errorf("rendering pitch: %w", err)
	}

	doc := &types.Pitch{
		ID:           uuid.NewString(),
		UserID:       job.UserID,
		JobID:        job.ID,
		BusinessName: row.Profile.BusinessName,
		HTML:         html,
		Profile:      row.Profile,
		CreatedAt:    p.now(),
	}
	if err := p.pitches.Create(ctx, doc); err != nil {
		return "", fmt.Errorf("storing pitch: %w", err)
	}
	return doc.ID, nil
}
