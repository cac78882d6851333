package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"pathsynch/internal/core"
	"pathsynch/internal/db"
	"pathsynch/internal/types"
)

// --- Service Interfaces ---

// AnalyticsStore is the slice of the analytics repository the admin
// handlers need. Each method is one independent aggregate query.
type AnalyticsStore interface {
	UserCounts(ctx context.Context) (total int, byPlan map[types.PlanTier]int, err error)
	PitchCounts(ctx context.Context) (total int, thisMonth int, err error)
	JobCounts(ctx context.Context) (map[types.JobStatus]int, error)
	NarrativeCount(ctx context.Context) (int, error)
	CacheStats(ctx context.Context) (entries int, hits int, err error)
}

// AdminUserStore is the slice of the user repository the admin handlers
// need.
type AdminUserStore interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
	List(ctx context.Context, params db.ListUsersParams) ([]*types.User, types.PageInfo, error)
	SetPlan(ctx context.Context, userID string, plan types.PlanTier) error
}

// --- Request/Response Models ---

// UpdatePlanRequest is the body for PATCH /v1/admin/users/{id}/plan.
type UpdatePlanRequest struct {
	Plan string `json:"plan" validate:"required,oneof=starter growth scale enterprise"`
}

// --- Handler ---

// AdminHandler serves platform analytics and manual user administration.
// Every route runs behind the admin-key middleware.
type AdminHandler struct {
	analytics AnalyticsStore
	users     AdminUserStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(analytics AnalyticsStore, users AdminUserStore, v *core.Validator, l *slog.Logger) *AdminHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AdminHandler{analytics: analytics, users: users, validator: v, logger: l}
}

// RegisterRoutes mounts the admin endpoints under the given router, which
// the caller wraps with core.RequireAdmin.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/admin/analytics", h.Analytics)
	r.Get("/admin/users", h.ListUsers)
	r.Patch("/admin/users/{id}/plan", h.UpdatePlan)
}

// Analytics handles GET /v1/admin/analytics. The aggregates are
// independent, so they fan out concurrently; one failing query fails the
// whole report rather than serving a partial picture.
func (h *AdminHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	var report types.PlatformAnalytics

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		total, byPlan, err := h.analytics.UserCounts(ctx)
		report.UsersTotal, report.UsersByPlan = total, byPlan
		return err
	})
	g.Go(func() error {
		total, thisMonth, err := h.analytics.PitchCounts(ctx)
		report.PitchesTotal, report.PitchesThisMo = total, thisMonth
		return err
	})
	g.Go(func() error {
		byStatus, err := h.analytics.JobCounts(ctx)
		report.JobsByStatus = byStatus
		return err
	})
	g.Go(func() error {
		total, err := h.analytics.NarrativeCount(ctx)
		report.NarrativesTotal = total
		return err
	})
	g.Go(func() error {
		entries, hits, err := h.analytics.CacheStats(ctx)
		report.CacheEntries, report.CacheHitsTotal = entries, hits
		return err
	})
	if err := g.Wait(); err != nil {
		core.Error(w, r, err)
		return
	}

	report.GeneratedAt = time.Now().UTC()
	core.OK(w, r, report)
}

// ListUsers handles GET /v1/admin/users?plan=&limit=&cursor=.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	params := db.ListUsersParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}
	if raw := r.URL.Query().Get("plan"); raw != "" {
		plan := types.PlanTier(raw)
		if types.NormalizePlanTier(raw) != plan {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPlan,
				"unknown plan tier", nil))
			return
		}
		params.Plan = plan
	}

	users, page, err := h.users.List(r.Context(), params)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, types.ListResponse[*types.User]{Items: users, PageInfo: page})
}

// UpdatePlan handles PATCH /v1/admin/users/{id}/plan. Manual override for
// support cases; it does not touch the payment platform, so the next
// subscription webhook may reverse it.
func (h *AdminHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req UpdatePlanRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	userID := chi.URLParam(r, "id")
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	plan := types.PlanTier(req.Plan)
	if err := h.users.SetPlan(r.Context(), user.ID, plan); err != nil {
		core.Error(w, r, err)
		return
	}
	user.Plan = plan

	h.logger.InfoContext(r.Context(), "admin plan override",
		"user_id", user.ID,
		"plan", plan,
	)
	core.OK(w, r, user)
}
