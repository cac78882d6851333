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

// NarrativeStore is the slice of the narrative repository the handlers
// need. Deck storage lives on the same repository because decks cascade
// with their narrative.
type NarrativeStore interface {
	Create(ctx context.Context, n *types.Narrative) error
	GetByID(ctx context.Context, id string) (*types.Narrative, error)
	UpdateContent(ctx context.Context, n *types.Narrative) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, params db.ListNarrativesParams) ([]*types.Narrative, types.PageInfo, error)
	CreateDeck(ctx context.Context, d *types.SlideDeck) error
	ListDecksByNarrative(ctx context.Context, narrativeID string) ([]*types.SlideDeck, error)
}

// NarrativeWriter produces narrative content, consulting the read-through
// cache unless asked to regenerate.
type NarrativeWriter interface {
	Generate(ctx context.Context, inputs types.NarrativeInputs, regenerate bool) (*types.Narrative, error)
}

// --- Request/Response Models ---

// CreateNarrativeRequest is the body for POST /v1/narratives.
type CreateNarrativeRequest struct {
	types.NarrativeInputs
}

// CreateDeckRequest is the body for POST /v1/narratives/{id}/deck.
type CreateDeckRequest struct {
	Theme string `json:"theme,omitempty" validate:"omitempty,oneof=default dark minimal"`
}

// --- Handler ---

// NarrativeHandler serves AI narrative generation, regeneration, and slide
// deck export.
type NarrativeHandler struct {
	narratives NarrativeStore
	writer     NarrativeWriter
	gate       billing.UsageGate
	validator  *core.Validator
	logger     *slog.Logger
}

// NewNarrativeHandler creates a NarrativeHandler.
func NewNarrativeHandler(narratives NarrativeStore, writer NarrativeWriter, gate billing.UsageGate, v *core.Validator, l *slog.Logger) *NarrativeHandler {
	if l == nil {
		l = slog.Default()
	}
	return &NarrativeHandler{narratives: narratives, writer: writer, gate: gate, validator: v, logger: l}
}

// RegisterRoutes mounts the narrative and deck endpoints.
func (h *NarrativeHandler) RegisterRoutes(r chi.Router) {
	r.Post("/narratives", h.Create)
	r.Get("/narratives", h.List)
	r.Get("/narratives/{id}", h.Get)
	r.Post("/narratives/{id}/regenerate", h.Regenerate)
	r.Delete("/narratives/{id}", h.Delete)
	r.Post("/narratives/{id}/deck", h.CreateDeck)
	r.Get("/narratives/{id}/deck", h.GetDeck)
}

// Create handles POST /v1/narratives. Generation goes through the content
// cache; identical inputs within the freshness window cost no tokens.
func (h *NarrativeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateNarrativeRequest
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
		Feature:   types.FeatureNarrativeAI,
		UsageType: types.UsageNarratives,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	n, err := h.writer.Generate(r.Context(), req.NarrativeInputs, false)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	n.ID = uuid.NewString()
	n.UserID = userID
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	if err := h.narratives.Create(r.Context(), n); err != nil {
		core.Error(w, r, err)
		return
	}
	h.gate.Record(r.Context(), userID, types.UsageNarratives, 1)

	h.logger.InfoContext(r.Context(), "narrative generated",
		"narrative_id", n.ID,
		"user_id", userID,
		"status", n.Status,
		"from_cache", n.FromCache,
		"tokens_used", n.TokensUsed,
	)
	core.Created(w, r, n)
}

// Regenerate handles POST /v1/narratives/{id}/regenerate. The cache read
// is bypassed so the user gets fresh copy, but the result is written back
// for subsequent identical requests.
func (h *NarrativeHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	existing, err := h.ownedNarrative(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	userID := existing.UserID

	if _, err := h.gate.Admit(r.Context(), billing.GateRequest{
		UserID:    userID,
		Feature:   types.FeatureAIRegeneration,
		UsageType: types.UsageRegenerations,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	fresh, err := h.writer.Generate(r.Context(), existing.Inputs, true)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	existing.Content = fresh.Content
	existing.Status = fresh.Status
	existing.Issues = fresh.Issues
	existing.TokensUsed = fresh.TokensUsed
	existing.CostCents = fresh.CostCents
	existing.Model = fresh.Model
	existing.FromCache = false
	existing.UpdatedAt = time.Now().UTC()
	if err := h.narratives.UpdateContent(r.Context(), existing); err != nil {
		core.Error(w, r, err)
		return
	}
	h.gate.Record(r.Context(), userID, types.UsageRegenerations, 1)

	h.logger.InfoContext(r.Context(), "narrative regenerated",
		"narrative_id", existing.ID,
		"user_id", userID,
		"status", existing.Status,
		"tokens_used", existing.TokensUsed,
	)
	core.OK(w, r, existing)
}

// List handles GET /v1/narratives.
func (h *NarrativeHandler) List(w http.ResponseWriter, r *http.Request) {
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
	narratives, page, err := h.narratives.ListByUser(r.Context(), userID, db.ListNarrativesParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, types.ListResponse[*types.Narrative]{Items: narratives, PageInfo: page})
}

// Get handles GET /v1/narratives/{id}.
func (h *NarrativeHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.ownedNarrative(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, n)
}

// Delete handles DELETE /v1/narratives/{id}. Slide decks built from the
// narrative go with it.
func (h *NarrativeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	n, err := h.ownedNarrative(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.narratives.Delete(r.Context(), n.ID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.OKMessage(w, r, nil, "narrative deleted")
}

// CreateDeck handles POST /v1/narratives/{id}/deck. Deck building is pure
// assembly from stored data, so only the feature is gated; no usage
// counter applies.
func (h *NarrativeHandler) CreateDeck(w http.ResponseWriter, r *http.Request) {
	n, err := h.ownedNarrative(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// The body is optional; an absent one means the default theme.
	var req CreateDeckRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	if _, err := h.gate.Admit(r.Context(), billing.GateRequest{
		UserID:  n.UserID,
		Feature: types.FeatureSlideDeckExport,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	profile := types.BusinessProfile{
		BusinessName: n.Inputs.BusinessName,
		Segment:      n.Inputs.Segment,
		City:         n.Inputs.City,
		State:        n.Inputs.State,
	}
	theme := req.Theme
	if theme == "" {
		theme = "default"
	}
	deck := &types.SlideDeck{
		ID:          uuid.NewString(),
		NarrativeID: n.ID,
		UserID:      n.UserID,
		Theme:       theme,
		Slides:      pitch.BuildDeck(profile, n, theme),
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.narratives.CreateDeck(r.Context(), deck); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "slide deck created",
		"deck_id", deck.ID,
		"narrative_id", n.ID,
		"user_id", n.UserID,
	)
	core.Created(w, r, deck)
}

// GetDeck handles GET /v1/narratives/{id}/deck. Returns the most recent
// deck built from the narrative.
func (h *NarrativeHandler) GetDeck(w http.ResponseWriter, r *http.Request) {
	n, err := h.ownedNarrative(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	decks, err := h.narratives.ListDecksByNarrative(r.Context(), n.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if len(decks) == 0 {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundDeck, "No deck exists for this narrative", nil))
		return
	}
	core.OK(w, r, decks[0])
}

// ownedNarrative loads the {id} narrative and enforces ownership.
func (h *NarrativeHandler) ownedNarrative(r *http.Request) (*types.Narrative, error) {
	userID, err := actorID(r)
	if err != nil {
		return nil, err
	}
	n, err := h.narratives.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(n.UserID, userID); err != nil {
		return nil, err
	}
	return n, nil
}
