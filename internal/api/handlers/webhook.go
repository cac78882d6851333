package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pathsynch/internal/core"
	"pathsynch/internal/external"
	"pathsynch/internal/types"
)

// maxWebhookBytes caps webhook payloads at 64KB. Stripe events are small;
// anything bigger is not one of ours.
const maxWebhookBytes = 64 << 10

// --- Service Interfaces ---

// WebhookProcessor applies a verified billing event to local state.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte) error
}

// --- Handler ---

// WebhookHandler receives payment-platform webhooks. The route is public;
// authenticity comes from signature verification, which runs before the
// payload is even parsed.
type WebhookHandler struct {
	processor WebhookProcessor
	verifier  external.WebhookVerifier
	secret    string
	logger    *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. secret is the webhook
// endpoint's signing secret.
func NewWebhookHandler(processor WebhookProcessor, verifier external.WebhookVerifier, secret string, l *slog.Logger) *WebhookHandler {
	if l == nil {
		l = slog.Default()
	}
	return &WebhookHandler{processor: processor, verifier: verifier, secret: secret, logger: l}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Receive)
}

// Receive handles POST /v1/webhooks/stripe. Responds 200 {received: true}
// once the event has been durably applied; any signature or processing
// failure returns an error status so the platform retries delivery.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationFailed,
			"could not read webhook payload", err))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"Stripe-Signature header is required", nil))
		return
	}
	if err := h.verifier.Verify(payload, signature, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature rejected", "error", err)
		core.Error(w, r, err)
		return
	}

	if err := h.processor.Process(r.Context(), payload); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}
