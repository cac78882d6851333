package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"pathsynch/internal/billing"
	"pathsynch/internal/core"
	"pathsynch/internal/types"
)

// =============================================================================
// Shared Test Helpers
// =============================================================================

const testUserID = "user-1111"

func userContext(userID string) context.Context {
	return types.WithActor(context.Background(), types.Actor{
		ID:   userID,
		Type: types.ActorTypeUser,
		Plan: types.PlanGrowth,
	})
}

// withURLParam creates a chi context with URL parameters.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeEnvelope unmarshals the standard response envelope.
func decodeEnvelope(t *testing.T, body []byte) core.APIResponse {
	t.Helper()
	var resp core.APIResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

// =============================================================================
// Mock Usage Gate
// =============================================================================

type recordedUsage struct {
	UserID string
	Type   types.UsageType
	N      int
}

type mockGate struct {
	admitFn    func(ctx context.Context, req billing.GateRequest) (*types.GateDecision, error)
	snapshotFn func(ctx context.Context, userID string) (*types.UsageSnapshot, error)

	admitted []billing.GateRequest
	recorded []recordedUsage
}

func (m *mockGate) Admit(ctx context.Context, req billing.GateRequest) (*types.GateDecision, error) {
	m.admitted = append(m.admitted, req)
	if m.admitFn != nil {
		return m.admitFn(ctx, req)
	}
	return &types.GateDecision{UserID: req.UserID, Plan: types.PlanGrowth}, nil
}

func (m *mockGate) Record(_ context.Context, userID string, t types.UsageType, n int) {
	m.recorded = append(m.recorded, recordedUsage{UserID: userID, Type: t, N: n})
}

func (m *mockGate) Snapshot(ctx context.Context, userID string) (*types.UsageSnapshot, error) {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx, userID)
	}
	return &types.UsageSnapshot{Plan: types.PlanGrowth}, nil
}
