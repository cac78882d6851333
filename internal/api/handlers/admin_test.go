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

	"pathsynch/internal/core"
	"pathsynch/internal/db"
	"pathsynch/internal/types"
)

// =============================================================================
// Mock Analytics and Admin User Stores
// =============================================================================

type mockAnalyticsStore struct {
	userCountsFn func(ctx context.Context) (int, map[types.PlanTier]int, error)
	cacheStatsFn func(ctx context.Context) (int, int, error)
}

func (m *mockAnalyticsStore) UserCounts(ctx context.Context) (int, map[types.PlanTier]int, error) {
	if m.userCountsFn != nil {
		return m.userCountsFn(ctx)
	}
	return 42, map[types.PlanTier]int{types.PlanStarter: 30, types.PlanGrowth: 12}, nil
}

func (m *mockAnalyticsStore) PitchCounts(context.Context) (int, int, error) {
	return 310, 57, nil
}

func (m *mockAnalyticsStore) JobCounts(context.Context) (map[types.JobStatus]int, error) {
	return map[types.JobStatus]int{types.JobCompleted: 18, types.JobFailed: 2}, nil
}

func (m *mockAnalyticsStore) NarrativeCount(context.Context) (int, error) {
	return 74, nil
}

func (m *mockAnalyticsStore) CacheStats(ctx context.Context) (int, int, error) {
	if m.cacheStatsFn != nil {
		return m.cacheStatsFn(ctx)
	}
	return 120, 960, nil
}

type mockAdminUserStore struct {
	getByIDFn func(ctx context.Context, id string) (*types.User, error)
	listFn    func(ctx context.Context, params db.ListUsersParams) ([]*types.User, types.PageInfo, error)
	setPlanFn func(ctx context.Context, userID string, plan types.PlanTier) error

	setPlanUser string
	setPlanTier types.PlanTier
}

func (m *mockAdminUserStore) GetByID(ctx context.Context, id string) (*types.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &types.User{ID: id, Email: "owner@bluebird.coffee", Plan: types.PlanStarter}, nil
}

func (m *mockAdminUserStore) List(ctx context.Context, params db.ListUsersParams) ([]*types.User, types.PageInfo, error) {
	if m.listFn != nil {
		return m.listFn(ctx, params)
	}
	return nil, types.PageInfo{}, nil
}

func (m *mockAdminUserStore) SetPlan(ctx context.Context, userID string, plan types.PlanTier) error {
	m.setPlanUser = userID
	m.setPlanTier = plan
	if m.setPlanFn != nil {
		return m.setPlanFn(ctx, userID, plan)
	}
	return nil
}

func newTestAdminHandler() (*AdminHandler, *mockAnalyticsStore, *mockAdminUserStore) {
	analytics := &mockAnalyticsStore{}
	users := &mockAdminUserStore{}
	h := NewAdminHandler(analytics, users, core.NewValidator(slog.Default()), nil)
	return h, analytics, users
}

// =============================================================================
// Tests
// =============================================================================

func TestAdminHandler_Analytics(t *testing.T) {
	h, _, _ := newTestAdminHandler()

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/analytics", nil)
	w := httptest.NewRecorder()

	h.Analytics(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeEnvelope(t, w.Body.Bytes())
	require.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(42), data["users_total"])
	assert.Equal(t, float64(310), data["pitches_total"])
	assert.Equal(t, float64(57), data["pitches_this_month"])
	assert.Equal(t, float64(74), data["narratives_total"])
	assert.Equal(t, float64(120), data["cache_entries"])
	assert.Equal(t, float64(960), data["cache_hits_total"])

	byPlan := data["users_by_plan"].(map[string]any)
	assert.Equal(t, float64(30), byPlan["starter"])

	generatedAt, err := time.Parse(time.RFC3339, data["generated_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), generatedAt, time.Minute)
}

func TestAdminHandler_Analytics_OneQueryFailureFailsTheReport(t *testing.T) {
	h, analytics, _ := newTestAdminHandler()
	analytics.cacheStatsFn = func(context.Context) (int, int, error) {
		return 0, 0, types.NewAppError(types.ErrCodeInternalDB, "cache stats query failed", nil)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/analytics", nil)
	w := httptest.NewRecorder()

	h.Analytics(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	assert.False(t, resp.Success)
}

func TestAdminHandler_ListUsers_PlanFilter(t *testing.T) {
	h, _, users := newTestAdminHandler()
	users.listFn = func(_ context.Context, params db.ListUsersParams) ([]*types.User, types.PageInfo, error) {
		assert.Equal(t, types.PlanGrowth, params.Plan)
		assert.Equal(t, 10, params.Limit)
		return []*types.User{{ID: "u1", Plan: types.PlanGrowth}}, types.PageInfo{}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/users?plan=growth&limit=10", nil)
	w := httptest.NewRecorder()

	h.ListUsers(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminHandler_ListUsers_UnknownPlanRejected(t *testing.T) {
	h, _, _ := newTestAdminHandler()

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/users?plan=platinum", nil)
	w := httptest.NewRecorder()

	h.ListUsers(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, string(types.ErrCodeValidationInvalidPlan), resp.Error)
}

func TestAdminHandler_UpdatePlan(t *testing.T) {
	h, _, users := newTestAdminHandler()

	req := httptest.NewRequest(http.MethodPatch, "/v1/admin/users/u1/plan", bytes.NewBufferString(`{"plan":"scale"}`))
	req = withURLParam(req, "id", "u1")
	w := httptest.NewRecorder()

	h.UpdatePlan(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", users.setPlanUser)
	assert.Equal(t, types.PlanScale, users.setPlanTier)

	resp := decodeEnvelope(t, w.Body.Bytes())
	data := resp.Data.(map[string]any)
	assert.Equal(t, "scale", data["plan"])
}

func TestAdminHandler_UpdatePlan_UnknownPlan(t *testing.T) {
	h, _, users := newTestAdminHandler()

	req := httptest.NewRequest(http.MethodPatch, "/v1/admin/users/u1/plan", bytes.NewBufferString(`{"plan":"platinum"}`))
	req = withURLParam(req, "id", "u1")
	w := httptest.NewRecorder()

	h.UpdatePlan(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, users.setPlanUser)
}

func TestAdminHandler_UpdatePlan_UserNotFound(t *testing.T) {
	h, _, users := newTestAdminHandler()
	users.getByIDFn = func(_ context.Context, id string) (*types.User, error) {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}

	req := httptest.NewRequest(http.MethodPatch, "/v1/admin/users/missing/plan", bytes.NewBufferString(`{"plan":"scale"}`))
	req = withURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.UpdatePlan(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
