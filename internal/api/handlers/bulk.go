package handlers

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pathsynch/internal/billing"
	"pathsynch/internal/bulk"
	"pathsynch/internal/core"
	"pathsynch/internal/db"
	"pathsynch/internal/pitch"
	"pathsynch/internal/types"
)

// maxUploadBytes caps bulk CSV uploads at 5MB.
const maxUploadBytes = 5 << 20

// --- Service Interfaces ---

// BulkJobStore is the slice of the bulk job repository the handlers need.
type BulkJobStore interface {
	Create(ctx context.Context, job *types.BulkJob) error
	GetByID(ctx context.Context, id string) (*types.BulkJob, error)
	ListByUser(ctx context.Context, userID string, params db.ListJobsParams) ([]*types.BulkJob, types.PageInfo, error)
}

// JobPitchLister loads a job's generated pitches for the ZIP download.
type JobPitchLister interface {
	ListByJob(ctx context.Context, jobID string) ([]*types.Pitch, error)
}

// JobEnqueuer hands a created job to the worker queue.
type JobEnqueuer interface {
	Dispatch(ctx context.Context, msg types.BulkJobMessage) error
}

// --- Handler ---

// BulkHandler serves CSV template download, bulk upload, job polling, and
// result download.
type BulkHandler struct {
	jobs    BulkJobStore
	pitches JobPitchLister
	queue   JobEnqueuer
	gate    billing.UsageGate
	plans   billing.PlanRegistry
	logger  *slog.Logger
}

// NewBulkHandler creates a BulkHandler.
func NewBulkHandler(jobs BulkJobStore, pitches JobPitchLister, queue JobEnqueuer, gate billing.UsageGate, plans billing.PlanRegistry, l *slog.Logger) *BulkHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BulkHandler{jobs: jobs, pitches: pitches, queue: queue, gate: gate, plans: plans, logger: l}
}

// RegisterRoutes mounts the bulk endpoints.
func (h *BulkHandler) RegisterRoutes(r chi.Router) {
	r.Get("/bulk/template", h.Template)
	r.Post("/bulk/upload", h.Upload)
	r.Get("/bulk/jobs", h.ListJobs)
	r.Get("/bulk/jobs/{id}", h.GetJob)
	r.Get("/bulk/jobs/{id}/download", h.Download)
}

// Template handles GET /v1/bulk/template. Serves the CSV template with the
// exact header the upload endpoint requires.
func (h *BulkHandler) Template(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="pathsynch-bulk-template.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, bulk.TemplateCSV)
}

// Upload handles POST /v1/bulk/upload. The CSV arrives either as a
// multipart "file" part or as the raw request body. Validation happens
// inline; row processing is the worker's job.
//
// Admission order matters: the feature grant and the per-request row cap
// are checked before the monthly quota, and nothing is persisted until the
// request has fully cleared the gate.
func (h *BulkHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	body, err := uploadBody(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := bulk.Parse(body)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	decision, err := h.gate.Admit(r.Context(), billing.GateRequest{
		UserID:    userID,
		Feature:   types.FeatureBulkUpload,
		UsageType: types.UsageBulkUploads,
		Rows:      result.TotalRows,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	now := time.Now().UTC()
	job := &types.BulkJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    types.JobPending,
		TotalRows: result.TotalRows,
		ValidRows: len(result.Valid),
		Errors:    result.Errors,
		Rows:      result.Valid,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// A fully invalid upload still produces a job record so the user can
	// inspect the row errors, but it never reaches the queue.
	if len(result.Valid) == 0 {
		job.Status = types.JobFailed
		job.CompletedAt = &now
	}

	if err := h.jobs.Create(r.Context(), job); err != nil {
		core.Error(w, r, err)
		return
	}
	h.gate.Record(r.Context(), userID, types.UsageBulkUploads, 1)

	if len(result.Valid) > 0 {
		msg := types.BulkJobMessage{
			JobID:    job.ID,
			UserID:   userID,
			TraceID:  types.GetRequestID(r.Context()),
			Priority: h.plans.HasFeature(decision.Plan, types.FeaturePriorityQueue),
		}
		if err := h.queue.Dispatch(r.Context(), msg); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	h.logger.InfoContext(r.Context(), "bulk upload accepted",
		"job_id", job.ID,
		"user_id", userID,
		"total_rows", job.TotalRows,
		"valid_rows", job.ValidRows,
		"status", job.Status,
	)
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Success: true, Data: job})
}

// ListJobs handles GET /v1/bulk/jobs.
func (h *BulkHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	jobs, page, err := h.jobs.ListByUser(r.Context(), userID, db.ListJobsParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, types.ListResponse[*types.BulkJob]{Items: jobs, PageInfo: page})
}

// GetJob handles GET /v1/bulk/jobs/{id}.
func (h *BulkHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.ownedJob(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, job)
}

// Download handles GET /v1/bulk/jobs/{id}/download. Streams a ZIP of the
// job's generated pitch documents.
func (h *BulkHandler) Download(w http.ResponseWriter, r *http.Request) {
	job, err := h.ownedJob(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	pitches, err := h.pitches.ListByJob(r.Context(), job.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if len(pitches) == 0 {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundPitch, "No pitches have been generated for this job yet", nil))
		return
	}

	entries := make([]pitch.ZipEntry, 0, len(pitches))
	for _, p := range pitches {
		entries = append(entries, pitch.ZipEntry{
			BusinessName: p.BusinessName,
			PitchID:      p.ID,
			HTML:         p.HTML,
		})
	}
	archive, err := pitch.BuildZip(entries)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="pitches-`+job.ID+`.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// ownedJob loads the {id} job and enforces ownership.
func (h *BulkHandler) ownedJob(r *http.Request) (*types.BulkJob, error) {
	userID, err := actorID(r)
	if err != nil {
		return nil, err
	}
	job, err := h.jobs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(job.UserID, userID); err != nil {
		return nil, err
	}
	return job, nil
}

// uploadBody extracts the CSV reader from a multipart "file" part or the
// raw request body, capped at maxUploadBytes either way.
func uploadBody(w http.ResponseWriter, r *http.Request) (io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationFailed,
				"could not parse multipart upload; send the CSV as the \"file\" part", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationMissingField,
				"multipart upload must include a \"file\" part", err)
		}
		return file, nil
	}
	return http.MaxBytesReader(w, r.Body, maxUploadBytes), nil
}
