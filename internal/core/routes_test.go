package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"pathsynch/internal/types"
)

func TestMountRoutesFullChain(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &MockAuthenticator{
		Actor: &types.Actor{ID: "user_1", Type: types.ActorTypeUser, Plan: types.PlanStarter},
	}
	metrics := &MockMetrics{}
	s.Metrics = metrics

	s.V1RouteRegistrars = append(s.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/pitches", func(w http.ResponseWriter, r *http.Request) {
			actor, _ := types.GetActor(r.Context())
			OK(w, r, map[string]string{"actor": actor.ID})
		})
	})
	s.MountRoutes()

	r := httptest.NewRequest(http.MethodGet, "/v1/pitches", nil)
	r.Header.Set("Authorization", "Bearer tok_abc")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// RequestID middleware ran.
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header missing")
	}
	// Security headers set.
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	// Metrics recorded.
	if len(metrics.Recorded()) != 1 {
		t.Errorf("metrics calls = %d, want 1", len(metrics.Recorded()))
	}
	// Actor reached the handler.
	resp := decodeEnvelope(t, rec)
	if data := resp.Data.(map[string]any); data["actor"] != "user_1" {
		t.Errorf("data = %v", resp.Data)
	}
}

func TestMountRoutesUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &MockAuthenticator{}

	s.V1RouteRegistrars = append(s.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/pitches", func(w http.ResponseWriter, r *http.Request) {
			OK(w, r, nil)
		})
	})
	s.MountRoutes()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pitches", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMountRoutesHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &MockAuthenticator{} // resolves nothing
	s.MountRoutes()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMountRoutesReadinessIsPublic(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &MockAuthenticator{} // resolves nothing
	s.MountRoutes()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	// The load balancer probes without credentials; an instance must never
	// look unready just because the request carries no token.
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestRequestIDPropagatesIncoming(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := types.GetRequestID(r.Context()); got != "req_incoming" {
			t.Errorf("request id in context = %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set("X-Request-Id", "req_incoming")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Header().Get("X-Request-Id") != "req_incoming" {
		t.Error("incoming request id must be echoed back")
	}
}

func TestRequestIDGenerated(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	id := rec.Header().Get("X-Request-Id")
	if len(id) != 32 {
		t.Errorf("generated id = %q, want 32 hex chars", id)
	}
}

func TestContextTimeoutMiddleware(t *testing.T) {
	handler := ContextTimeoutMiddleware(defaultRequestTimeout)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); !ok {
				t.Error("request context must carry a deadline")
			}
			w.WriteHeader(http.StatusOK)
		}),
	)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}

func TestServerShutdownHooks(t *testing.T) {
	s := newTestServer(t)

	var order []string
	s.OnShutdown(func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	s.OnShutdown(func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("hook order = %v", order)
	}
}

func TestNewServerNilChecks(t *testing.T) {
	if _, err := NewServer(nil, testLogger()); err == nil {
		t.Error("nil config must fail")
	}
}
