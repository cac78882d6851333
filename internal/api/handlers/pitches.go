package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pathsynch/internal/billing"
	"pathsynch/internal/core"
	"pathsynch/internal/db"
	"pathsynch/internal/pitch"
	"pathsynch/internal/types"
)

// --- Service Interfaces ---

// PitchStore is the slice of the pitch repository the handler needs.
type PitchStore interface {
	Create(ctx context.Context, p *types.Pitch) error
	GetByID(ctx context.Context, id string) (*types.Pitch, error)
	ListByUser(ctx context.Context, userID string, params db.ListPitchesParams) ([]*types.Pitch, types.PageInfo, error)
	Delete(ctx context.Context, id string) error
}

// --- Request/Response Models ---

// CreatePitchRequest is the body for POST /v1/pitches. The profile fields
// are inlined so the request reads flat on the wire.
type CreatePitchRequest struct {
	types.BusinessProfile
	Palette     string `json:"palette,omitempty"`
	Font        string `json:"font,omitempty"`
	NarrativeID string `json:"narrativeId,omitempty" validate:"omitempty,uuid4"`
}

// PitchResponse is a pitch without its HTML body; the body is fetched
// separately via the /html endpoint.
type PitchResponse struct {
	*types.Pitch
	HTMLBytes int `json:"html_bytes"`
}

// --- Handler ---

// PitchHandler serves single-pitch generation and retrieval.
type PitchHandler struct {
	pitches    PitchStore
	narratives NarrativeStore
	gate       billing.UsageGate
	validator  *core.Validator
	logger     *slog.Logger
}

// NewPitchHandler creates a PitchHandler. narratives may be nil when the
// deployment has no AI features; narrativeId requests then 404.
func NewPitchHandler(pitches PitchStore, narratives NarrativeStore, gate billing.UsageGate, v *core.Validator, l *slog.Logger) *PitchHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PitchHandler{pitches: pitches, narratives: narratives, gate: gate, validator: v, logger: l}
}

// RegisterRoutes mounts the pitch endpoints.
func (h *PitchHandler) RegisterRoutes(r chi.Router) {
	r.Post("/pitches", h.Create)
	r.Get("/pitches", h.List)
	r.Get("/pitches/{id}", h.Get)
	r.Get("/pitches/{id}/html", h.GetHTML)
	r.Delete("/pitches/{id}", h.Delete)
}

// Create handles POST /v1/pitches. Admission runs before any rendering;
// usage is recorded only after the pitch is persisted.
func (h *PitchHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreatePitchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.gate.Admit(r.Context(), billing.GateRequest{
		UserID:    userID,
		Feature:   types.FeaturePitchGeneration,
		UsageType: types.UsagePitches,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	opts := pitch.RenderOptions{Palette: req.Palette, Font: req.Font}
	if req.NarrativeID != "" {
		narrative, err := h.lookupNarrative(r.Context(), req.NarrativeID, userID)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		opts.Narrative = narrative.Content
	}

	html, err := pitch.RenderHTML(req.BusinessProfile, opts)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	p := &types.Pitch{
		ID:           uuid.NewString(),
		UserID:       userID,
		BusinessName: req.BusinessName,
		HTML:         html,
		Profile:      req.BusinessProfile,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.pitches.Create(r.Context(), p); err != nil {
		core.Error(w, r, err)
		return
	}
	h.gate.Record(r.Context(), userID, types.UsagePitches, 1)

	h.logger.InfoContext(r.Context(), "pitch generated",
		"pitch_id", p.ID,
		"user_id", userID,
		"html_bytes", len(html),
	)
	core.Created(w, r, PitchResponse{Pitch: p, HTMLBytes: len(html)})
}

// List handles GET /v1/pitches.
func (h *PitchHandler) List(w http.ResponseWriter, r *http.Request) {
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
	params := db.ListPitchesParams{
		JobID:  r.URL.Query().Get("job_id"),
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}
	pitches, page, err := h.pitches.ListByUser(r.Context(), userID, params)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	items := make([]PitchResponse, 0, len(pitches))
	for _, p := range pitches {
		items = append(items, PitchResponse{Pitch: p, HTMLBytes: len(p.HTML)})
	}
	core.OK(w, r, types.ListResponse[PitchResponse]{Items: items, PageInfo: page})
}

// Get handles GET /v1/pitches/{id}.
func (h *PitchHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.ownedPitch(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, PitchResponse{Pitch: p, HTMLBytes: len(p.HTML)})
}

// GetHTML handles GET /v1/pitches/{id}/html. Returns the raw document
// rather than the JSON envelope so the browser renders it directly.
func (h *PitchHandler) GetHTML(w http.ResponseWriter, r *http.Request) {
	p, err := h.ownedPitch(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(p.HTML))
}

// Delete handles DELETE /v1/pitches/{id}.
func (h *PitchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := h.ownedPitch(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.pitches.Delete(r.Context(), p.ID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.OKMessage(w, r, nil, "pitch deleted")
}

// ownedPitch loads the {id} pitch and enforces ownership.
func (h *PitchHandler) ownedPitch(r *http.Request) (*types.Pitch, error) {
	userID, err := actorID(r)
	if err != nil {
		return nil, err
	}
	p, err := h.pitches.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(p.UserID, userID); err != nil {
		return nil, err
	}
	return p, nil
}

// lookupNarrative resolves an optional narrativeId for pitch rendering.
func (h *PitchHandler) lookupNarrative(ctx context.Context, id, userID string) (*types.Narrative, error) {
	if h.narratives == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundNarrative, "Narrative not found", nil)
	}
	n, err := h.narratives.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(n.UserID, userID); err != nil {
		return nil, err
	}
	return n, nil
}
