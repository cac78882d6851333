package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathsynch/internal/billing"
	"pathsynch/internal/core"
	"pathsynch/internal/types"
)

// =============================================================================
// Mock Subscription Store and Billing Provider
// =============================================================================

type mockSubscriptionStore struct {
	getByUserIDFn func(ctx context.Context, userID string) (*types.Subscription, error)
}

func (m *mockSubscriptionStore) GetByUserID(ctx context.Context, userID string) (*types.Subscription, error) {
	if m.getByUserIDFn != nil {
		return m.getByUserIDFn(ctx, userID)
	}
	return nil, nil
}

type mockBillingProvider struct {
	checkoutFn func(ctx context.Context, userID string, plan types.PlanTier, successURL, cancelURL string) (string, string, error)
	portalFn   func(ctx context.Context, userID string, returnURL string) (string, error)

	checkoutPlan types.PlanTier
}

func (m *mockBillingProvider) EnsureCustomer(_ context.Context, _ string, _ string) (string, error) {
	return "cus_test", nil
}

func (m *mockBillingProvider) CreateCheckoutSession(ctx context.Context, userID string, plan types.PlanTier, successURL, cancelURL string) (string, string, error) {
	m.checkoutPlan = plan
	if m.checkoutFn != nil {
		return m.checkoutFn(ctx, userID, plan, successURL, cancelURL)
	}
	return "https://checkout.stripe.com/c/pay_123", "cs_test_123", nil
}

func (m *mockBillingProvider) CreatePortalSession(ctx context.Context, userID string, returnURL string) (string, error) {
	if m.portalFn != nil {
		return m.portalFn(ctx, userID, returnURL)
	}
	return "https://billing.stripe.com/p/session_123", nil
}

type billingFixture struct {
	handler       *BillingHandler
	subscriptions *mockSubscriptionStore
	provider      *mockBillingProvider
	gate          *mockGate
}

func newTestBillingHandler() *billingFixture {
	subs := &mockSubscriptionStore{}
	provider := &mockBillingProvider{}
	gate := &mockGate{}
	h := NewBillingHandler(subs, provider, gate, billing.NewStaticPlanRegistry(), core.NewValidator(slog.Default()), nil)
	return &billingFixture{handler: h, subscriptions: subs, provider: provider, gate: gate}
}

// =============================================================================
// Tests
// =============================================================================

func TestBillingHandler_Usage(t *testing.T) {
	f := newTestBillingHandler()
	f.gate.snapshotFn = func(_ context.Context, userID string) (*types.UsageSnapshot, error) {
		assert.Equal(t, testUserID, userID)
		return &types.UsageSnapshot{Plan: types.PlanGrowth}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	req = req.WithContext(userContext(testUserID))
	w := httptest.NewRecorder()

	f.handler.Usage(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	data := resp.Data.(map[string]any)
	assert.Equal(t, "growth", data["plan"])
}

func TestBillingHandler_Subscription_NoneMeansStarter(t *testing.T) {
	f := newTestBillingHandler()

	req := httptest.NewRequest(http.MethodGet, "/v1/billing/subscription", nil)
	req = req.WithContext(userContext(testUserID))
	w := httptest.NewRecorder()

	f.handler.Subscription(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	data := resp.Data.(map[string]any)
	assert.Equal(t, "starter", data["plan"])
	assert.Nil(t, data["subscription"])

	limits := data["limits"].(map[string]any)
	assert.Equal(t, float64(10), limits["pitchesPerMonth"])
}

func TestBillingHandler_Subscription_ActivePaid(t *testing.T) {
	f := newTestBillingHandler()
	periodEnd := time.Now().UTC().Add(20 * 24 * time.Hour)
	f.subscriptions.getByUserIDFn = func(_ context.Context, userID string) (*types.Subscription, error) {
		return &types.Subscription{
			ID:               "sub_1",
			UserID:           userID,
			Plan:             types.PlanScale,
			Status:           types.SubStatusActive,
			CurrentPeriodEnd: &periodEnd,
		}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/billing/subscription", nil)
	req = req.WithContext(userContext(testUserID))
	w := httptest.NewRecorder()

	f.handler.Subscription(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	data := resp.Data.(map[string]any)
	assert.Equal(t, "scale", data["plan"])

	limits := data["limits"].(map[string]any)
	assert.Equal(t, float64(200), limits["pitchesPerMonth"])
}

func TestBillingHandler_Checkout(t *testing.T) {
	f := newTestBillingHandler()

	body := `{"plan":"scale","successUrl":"https://app.pathsynch.io/billing/success","cancelUrl":"https://app.pathsynch.io/billing"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/checkout", bytes.NewBufferString(body))
	req = req.WithContext(userContext(testUserID))
	w := httptest.NewRecorder()

	f.handler.Checkout(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.PlanScale, f.provider.checkoutPlan)

	resp := decodeEnvelope(t, w.Body.Bytes())
	data := resp.Data.(map[string]any)
	assert.Equal(t, "https://checkout.stripe.com/c/pay_123", data["checkout_url"])
}

func TestBillingHandler_Checkout_StarterRejected(t *testing.T) {
	f := newTestBillingHandler()

	// Starter is the free tier; there is nothing to check out.
	body := `{"plan":"starter","successUrl":"https://app.pathsynch.io/ok","cancelUrl":"https://app.pathsynch.io/no"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/checkout", bytes.NewBufferString(body))
	req = req.WithContext(userContext(testUserID))
	w := httptest.NewRecorder()

	f.handler.Checkout(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBillingHandler_Checkout_UpstreamFailure(t *testing.T) {
	f := newTestBillingHandler()
	f.provider.checkoutFn = func(context.Context, string, types.PlanTier, string, string) (string, string, error) {
		return "", "", types.NewAppError(types.ErrCodeUpstreamStripe, "payment platform unavailable", nil)
	}

	body := `{"plan":"growth","successUrl":"https://app.pathsynch.io/ok","cancelUrl":"https://app.pathsynch.io/no"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/checkout", bytes.NewBufferString(body))
	req = req.WithContext(userContext(testUserID))
	w := httptest.NewRecorder()

	f.handler.Checkout(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBillingHandler_Portal(t *testing.T) {
	f := newTestBillingHandler()

	body := `{"returnUrl":"https://app.pathsynch.io/settings"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/portal", bytes.NewBufferString(body))
	req = req.WithContext(userContext(testUserID))
	w := httptest.NewRecorder()

	f.handler.Portal(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	data := resp.Data.(map[string]any)
	assert.Equal(t, "https://billing.stripe.com/p/session_123", data["portal_url"])
}

func TestBillingHandler_Portal_MissingReturnURL(t *testing.T) {
	f := newTestBillingHandler()

	req := httptest.NewRequest(http.MethodPost, "/v1/billing/portal", bytes.NewBufferString(`{}`))
	req = req.WithContext(userContext(testUserID))
	w := httptest.NewRecorder()

	f.handler.Portal(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
