package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"pathsynch/internal/types"
)

// Event types the processor consumes. Everything else is acknowledged and
// dropped so the payment platform never retries what we will never handle.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventSubCreated        = "customer.subscription.created"
	EventSubUpdated        = "customer.subscription.updated"
	EventSubDeleted        = "customer.subscription.deleted"
	EventInvoicePaid       = "invoice.paid"
	EventPaymentSucceeded  = "invoice.payment_succeeded"
	EventPaymentFailed     = "invoice.payment_failed"
)

// EventUserStore is the slice of the user repository the processor writes
// through.
type EventUserStore interface {
	GetByStripeCustomerID(ctx context.Context, customerID string) (*types.User, error)
	SetStripeCustomerID(ctx context.Context, userID string, customerID string) error
	ApplyBillingState(ctx context.Context, userID string, plan types.PlanTier, status types.SubscriptionStatus, subscriptionID string, periodStart, periodEnd *time.Time) error
	UpdateSubscriptionStatus(ctx context.Context, userID string, status types.SubscriptionStatus) error
}

// EventSubscriptionStore persists the local subscription projection.
type EventSubscriptionStore interface {
	Upsert(ctx context.Context, sub *types.Subscription) error
	MarkCanceled(ctx context.Context, id string) error
}

// EventLedger records processed event ids for duplicate suppression.
type EventLedger interface {
	MarkProcessed(ctx context.Context, eventID string, eventType string) (bool, error)
}

// EventProcessor turns verified payment-platform events into local state:
// the subscriptions table and the billing projection on users. Signature
// verification happens in the HTTP handler before payloads reach here.
type EventProcessor struct {
	users       EventUserStore
	subs        EventSubscriptionStore
	ledger      EventLedger
	priceToPlan map[string]types.PlanTier
	logger      *slog.Logger
}

// NewEventProcessor builds the processor. priceToPlan maps platform price ids
// onto tiers; if logger is nil, slog.Default() is used.
func NewEventProcessor(
	users EventUserStore,
	subs EventSubscriptionStore,
	ledger EventLedger,
	priceToPlan map[string]types.PlanTier,
	logger *slog.Logger,
) *EventProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventProcessor{
		users:       users,
		subs:        subs,
		ledger:      ledger,
		priceToPlan: priceToPlan,
		logger:      logger,
	}
}

// Minimal event envelope. We decode only the fields we act on instead of
// dragging the platform SDK's full event model through the processor.
type webhookEvent struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Created int64            `json:"created"`
	Data    webhookEventData `json:"data"`
}

type webhookEventData struct {
	Object json.RawMessage `json:"object"`
}

type checkoutSessionObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type invoiceObject struct {
	Customer            string            `json:"customer"`
	Subscription        string            `json:"subscription"`
	Metadata            map[string]string `json:"metadata"`
	SubscriptionDetails *struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

// Process handles one verified event payload. The ledger is written before
// any projection, so a duplicate delivery -- platform retry or double send --
// is acknowledged without running the handlers twice. Returned errors are
// either invalid-payload or a ledger write failure; projection failures are
// logged and swallowed because the event is already marked and a retry would
// short-circuit anyway.
func (p *EventProcessor) Process(ctx context.Context, payload []byte) error {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return types.NewAppError(types.ErrCodeWebhookPayload, "invalid event payload", err)
	}
	if event.ID == "" || event.Type == "" {
		return types.NewAppError(types.ErrCodeWebhookPayload, "event missing id or type", nil)
	}

	first, err := p.ledger.MarkProcessed(ctx, event.ID, event.Type)
	if err != nil {
		return err
	}
	if !first {
		p.logger.InfoContext(ctx, "skipping replayed billing event",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return nil
	}

	if err := p.route(ctx, &event); err != nil {
		p.logger.ErrorContext(ctx, "billing event projection failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"event_created", time.Unix(event.Created, 0).UTC(),
			"error", err,
		)
	}
	return nil
}

func (p *EventProcessor) route(ctx context.Context, event *webhookEvent) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, event)
	case EventSubCreated, EventSubUpdated:
		return p.handleSubscriptionChanged(ctx, event)
	case EventSubDeleted:
		return p.handleSubscriptionDeleted(ctx, event)
	case EventInvoicePaid, EventPaymentSucceeded:
		return p.handleInvoicePaid(ctx, event)
	case EventPaymentFailed:
		return p.handlePaymentFailed(ctx, event)
	default:
		p.logger.InfoContext(ctx, "ignoring unhandled billing event type",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return nil
	}
}

// handleCheckoutCompleted links the platform customer id to the user who
// started the checkout. The plan projection itself arrives on the
// subscription.created event that follows; we only project here when the
// checkout metadata names a tier we recognize, so a missing or mangled
// metadata value can never downgrade a paying user.
func (p *EventProcessor) handleCheckoutCompleted(ctx context.Context, event *webhookEvent) error {
	var session checkoutSessionObject
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return types.NewAppError(types.ErrCodeWebhookPayload, "invalid checkout session object", err)
	}

	userID := session.Metadata["userId"]
	if userID == "" {
		userID = session.ClientReferenceID
	}
	if userID == "" {
		p.logger.WarnContext(ctx, "checkout session carries no user reference, dropping",
			"event_id", event.ID,
			"session_id", session.ID,
		)
		return nil
	}

	if session.Customer != "" {
		if err := p.users.SetStripeCustomerID(ctx, userID, session.Customer); err != nil {
			return err
		}
	}

	raw := session.Metadata["plan"]
	if raw == "" {
		return nil
	}
	plan := types.NormalizePlanTier(raw)
	if string(plan) != raw {
		p.logger.WarnContext(ctx, "checkout metadata names unknown plan, deferring to subscription event",
			"event_id", event.ID,
			"plan", raw,
		)
		return nil
	}
	return p.users.ApplyBillingState(ctx, userID, plan, types.SubStatusActive, session.Subscription, nil, nil)
}

// handleSubscriptionChanged upserts the subscription projection and mirrors
// plan, status and period onto the user row.
func (p *EventProcessor) handleSubscriptionChanged(ctx context.Context, event *webhookEvent) error {
	var sub subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return types.NewAppError(types.ErrCodeWebhookPayload, "invalid subscription object", err)
	}

	userID, err := p.resolveUserID(ctx, sub.Metadata, sub.Customer)
	if err != nil {
		return err
	}
	if userID == "" {
		p.logger.WarnContext(ctx, "subscription event matches no local user, dropping",
			"event_id", event.ID,
			"customer_id", sub.Customer,
			"subscription_id", sub.ID,
		)
		return nil
	}

	priceID := ""
	if len(sub.Items.Data) > 0 {
		priceID = sub.Items.Data[0].Price.ID
	}
	plan, ok := p.priceToPlan[priceID]
	if !ok {
		// Unknown price ids land on the cheapest paid tier rather than
		// dropping the event; the log line is the operator's cue to fix the
		// price mapping.
		p.logger.WarnContext(ctx, "subscription price id not in plan mapping, defaulting to growth",
			"event_id", event.ID,
			"price_id", priceID,
		)
		plan = types.PlanGrowth
	}

	status := mapSubscriptionStatus(sub.Status)
	periodStart := unixTime(sub.CurrentPeriodStart)
	periodEnd := unixTime(sub.CurrentPeriodEnd)

	if err := p.subs.Upsert(ctx, &types.Subscription{
		ID:                 sub.ID,
		UserID:             userID,
		Plan:               plan,
		Status:             status,
		PriceID:            priceID,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}); err != nil {
		return err
	}

	return p.users.ApplyBillingState(ctx, userID, plan, status, sub.ID, periodStart, periodEnd)
}

// handleSubscriptionDeleted cancels the local projection and downgrades the
// user to the free tier.
func (p *EventProcessor) handleSubscriptionDeleted(ctx context.Context, event *webhookEvent) error {
	var sub subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return types.NewAppError(types.ErrCodeWebhookPayload, "invalid subscription object", err)
	}

	userID, err := p.resolveUserID(ctx, sub.Metadata, sub.Customer)
	if err != nil {
		return err
	}
	if userID == "" {
		p.logger.WarnContext(ctx, "subscription deletion matches no local user, dropping",
			"event_id", event.ID,
			"customer_id", sub.Customer,
			"subscription_id", sub.ID,
		)
		return nil
	}

	if err := p.subs.MarkCanceled(ctx, sub.ID); err != nil {
		return err
	}
	return p.users.ApplyBillingState(ctx, userID, types.PlanStarter, types.SubStatusCanceled, sub.ID, nil, nil)
}

// handleInvoicePaid confirms the period's payment landed. The plan is left
// alone; only the status flips to active.
func (p *EventProcessor) handleInvoicePaid(ctx context.Context, event *webhookEvent) error {
	userID, err := p.resolveInvoiceUser(ctx, event)
	if err != nil || userID == "" {
		return err
	}
	return p.users.UpdateSubscriptionStatus(ctx, userID, types.SubStatusActive)
}

// handlePaymentFailed marks the user past due. Access continues until the
// platform gives up and sends the subscription deletion.
func (p *EventProcessor) handlePaymentFailed(ctx context.Context, event *webhookEvent) error {
	userID, err := p.resolveInvoiceUser(ctx, event)
	if err != nil || userID == "" {
		return err
	}
	return p.users.UpdateSubscriptionStatus(ctx, userID, types.SubStatusPastDue)
}

func (p *EventProcessor) resolveInvoiceUser(ctx context.Context, event *webhookEvent) (string, error) {
	var invoice invoiceObject
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return "", types.NewAppError(types.ErrCodeWebhookPayload, "invalid invoice object", err)
	}

	meta := invoice.Metadata
	if invoice.SubscriptionDetails != nil && invoice.SubscriptionDetails.Metadata["userId"] != "" {
		meta = invoice.SubscriptionDetails.Metadata
	}
	userID, err := p.resolveUserID(ctx, meta, invoice.Customer)
	if err != nil {
		return "", err
	}
	if userID == "" {
		p.logger.WarnContext(ctx, "invoice event matches no local user, dropping",
			"event_id", event.ID,
			"customer_id", invoice.Customer,
		)
	}
	return userID, nil
}

// resolveUserID finds the local user an event belongs to: the userId metadata
// stamped at checkout wins, then the stored customer id mapping. Returns ""
// without error when neither resolves; the caller logs and drops the event.
func (p *EventProcessor) resolveUserID(ctx context.Context, metadata map[string]string, customerID string) (string, error) {
	if id := metadata["userId"]; id != "" {
		return id, nil
	}
	if customerID == "" {
		return "", nil
	}
	user, err := p.users.GetByStripeCustomerID(ctx, customerID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			return "", nil
		}
		return "", err
	}
	return user.ID, nil
}

func mapSubscriptionStatus(s string) types.SubscriptionStatus {
	switch s {
	case "active":
		return types.SubStatusActive
	case "trialing":
		return types.SubStatusTrialing
	case "past_due":
		return types.SubStatusPastDue
	case "canceled", "cancelled":
		return types.SubStatusCanceled
	case "incomplete", "incomplete_expired":
		return types.SubStatusIncomplete
	case "unpaid":
		return types.SubStatusUnpaid
	default:
		return types.SubscriptionStatus(s)
	}
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
