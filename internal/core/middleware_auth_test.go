package core

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"pathsynch/internal/config"
	"pathsynch/internal/types"
)

func okHandler(sawActor *types.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := types.GetActor(r.Context()); ok && sawActor != nil {
			*sawActor = actor
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareResolvesActor(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &MockAuthenticator{
		Actor: &types.Actor{ID: "user_1", Type: types.ActorTypeUser, Plan: types.PlanGrowth},
	}

	var seen types.Actor
	handler := s.AuthMiddleware(okHandler(&seen))

	r := newTestRequest(http.MethodGet, "/v1/pitches", "")
	r.Header.Set("Authorization", "Bearer tok_abc")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if seen.ID != "user_1" || seen.Plan != types.PlanGrowth {
		t.Errorf("actor in context = %+v", seen)
	}
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &MockAuthenticator{}

	handler := s.AuthMiddleware(okHandler(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newTestRequest(http.MethodGet, "/v1/pitches", ""))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Error != "auth_token_missing" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &MockAuthenticator{}

	for _, header := range []string{"tok_abc", "Basic dXNlcjpwYXNz", "Bearer "} {
		handler := s.AuthMiddleware(okHandler(nil))
		r := newTestRequest(http.MethodGet, "/v1/pitches", "")
		r.Header.Set("Authorization", header)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rec.Code)
		}
	}
}

func TestAuthMiddlewareInvalidToken(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &MockAuthenticator{
		Err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid authentication token", nil),
	}

	handler := s.AuthMiddleware(okHandler(nil))
	r := newTestRequest(http.MethodGet, "/v1/pitches", "")
	r.Header.Set("Authorization", "Bearer tok_bad")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Error != "auth_token_invalid" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestAuthMiddlewarePublicPaths(t *testing.T) {
	s := newTestServer(t)
	auth := &MockAuthenticator{}
	s.Authenticator = auth

	for _, path := range []string{"/health", "/health/ready", "/v1/auth/signup", "/v1/auth/login", "/v1/webhooks/stripe"} {
		handler := s.AuthMiddleware(okHandler(nil))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newTestRequest(http.MethodPost, path, ""))

		if rec.Code != http.StatusOK {
			t.Errorf("path %s: status = %d, want 200 (public)", path, rec.Code)
		}
	}
	if len(auth.Calls) != 0 {
		t.Errorf("authenticator called for public paths: %v", auth.Calls)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer tok_123", "tok_123"},
		{"bearer tok_123", "tok_123"}, // scheme is case-insensitive
		{"Bearer   tok_123  ", "tok_123"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := extractBearerToken(tc.header); got != tc.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestRequireAdminWithValidKey(t *testing.T) {
	s := newTestServer(t)
	s.Config.Security.AdminAPIKey = config.SecretString("admin-key-123")

	var seen types.Actor
	handler := s.RequireAdmin(okHandler(&seen))

	r := newTestRequest(http.MethodGet, "/v1/admin/analytics", "")
	r.Header.Set("X-Admin-Key", "admin-key-123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if seen.Type != types.ActorTypeAdmin {
		t.Errorf("actor type = %q, want admin", seen.Type)
	}
}

func TestRequireAdminRejectsBadKey(t *testing.T) {
	s := newTestServer(t)
	s.Config.Security.AdminAPIKey = config.SecretString("admin-key-123")

	handler := s.RequireAdmin(okHandler(nil))

	r := newTestRequest(http.MethodGet, "/v1/admin/analytics", "")
	r.Header.Set("X-Admin-Key", "wrong-key")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Error != "permission_admin_key" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestRequireAdminRejectsRegularUser(t *testing.T) {
	s := newTestServer(t)
	s.Config.Security.AdminAPIKey = config.SecretString("admin-key-123")

	handler := s.RequireAdmin(okHandler(nil))

	r := newTestRequest(http.MethodGet, "/v1/admin/analytics", "")
	ctx := types.WithActor(r.Context(), types.Actor{ID: "user_1", Type: types.ActorTypeUser})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r.WithContext(ctx))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRequireAdminUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	s.Config.Security.AdminAPIKey = config.SecretString("admin-key-123")

	handler := s.RequireAdmin(okHandler(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newTestRequest(http.MethodGet, "/v1/admin/analytics", ""))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireUser(t *testing.T) {
	s := newTestServer(t)

	handler := s.RequireUser(okHandler(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newTestRequest(http.MethodGet, "/v1/pitches", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated: status = %d, want 401", rec.Code)
	}

	r := newTestRequest(http.MethodGet, "/v1/pitches", "")
	ctx := types.WithActor(r.Context(), types.Actor{ID: "user_1", Type: types.ActorTypeUser})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r.WithContext(ctx))
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated: status = %d, want 200", rec.Code)
	}
}
