package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pathsynch/internal/billing"
	"pathsynch/internal/core"
	"pathsynch/internal/external"
	"pathsynch/internal/types"
)

// --- Service Interfaces ---

// SubscriptionStore is the read slice of the subscription repository the
// billing handlers need. Writes happen exclusively through the webhook
// event processor.
type SubscriptionStore interface {
	GetByUserID(ctx context.Context, userID string) (*types.Subscription, error)
}

// --- Request/Response Models ---

// CheckoutRequest is the body for POST /v1/billing/checkout.
type CheckoutRequest struct {
	Plan       string `json:"plan" validate:"required,oneof=growth scale enterprise"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

// PortalRequest is the body for POST /v1/billing/portal.
type PortalRequest struct {
	ReturnURL string `json:"returnUrl" validate:"required,url"`
}

// CheckoutResponse carries the hosted checkout URL.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// PortalResponse carries the self-serve billing portal URL.
type PortalResponse struct {
	PortalURL string `json:"portal_url"`
}

// SubscriptionResponse pairs the local subscription projection with the
// plan's limits. A nil subscription means the free starter tier.
type SubscriptionResponse struct {
	Subscription *types.Subscription `json:"subscription"`
	Plan         types.PlanTier      `json:"plan"`
	Limits       types.PlanLimits    `json:"limits"`
}

// --- Handler ---

// BillingHandler serves usage snapshots, the subscription projection, and
// payment-platform session creation.
type BillingHandler struct {
	subscriptions SubscriptionStore
	provider      external.BillingProvider
	gate          billing.UsageGate
	plans         billing.PlanRegistry
	validator     *core.Validator
	logger        *slog.Logger
}

// NewBillingHandler creates a BillingHandler.
func NewBillingHandler(
	subscriptions SubscriptionStore,
	provider external.BillingProvider,
	gate billing.UsageGate,
	plans billing.PlanRegistry,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		subscriptions: subscriptions,
		provider:      provider,
		gate:          gate,
		plans:         plans,
		validator:     v,
		logger:        l,
	}
}

// RegisterRoutes mounts the usage and billing endpoints.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/usage", h.Usage)
	r.Get("/billing/subscription", h.Subscription)
	r.Post("/billing/checkout", h.Checkout)
	r.Post("/billing/portal", h.Portal)
}

// Usage handles GET /v1/usage. Returns the current period's counters
// beside the plan limits, with -1 marking unlimited.
func (h *BillingHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	snapshot, err := h.gate.Snapshot(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, snapshot)
}

// Subscription handles GET /v1/billing/subscription. Users without a paid
// subscription get the starter-tier projection.
func (h *BillingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	sub, err := h.subscriptions.GetByUserID(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	plan := types.PlanStarter
	if sub != nil {
		plan = sub.Plan
	}
	core.OK(w, r, SubscriptionResponse{
		Subscription: sub,
		Plan:         plan,
		Limits:       h.plans.Limits(plan),
	})
}

// Checkout handles POST /v1/billing/checkout. Creates a hosted checkout
// session for upgrading to a paid plan; the plan change itself lands
// asynchronously via webhook once payment completes.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	checkoutURL, sessionID, err := h.provider.CreateCheckoutSession(
		r.Context(), userID, types.PlanTier(req.Plan), req.SuccessURL, req.CancelURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		"user_id", userID,
		"plan", req.Plan,
		"session_id", sessionID,
	)
	core.OK(w, r, CheckoutResponse{CheckoutURL: checkoutURL, SessionID: sessionID})
}

// Portal handles POST /v1/billing/portal.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req PortalRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	portalURL, err := h.provider.CreatePortalSession(r.Context(), userID, req.ReturnURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, PortalResponse{PortalURL: portalURL})
}
