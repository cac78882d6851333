package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// stubProbe is a configurable HealthProbe for tests.
type stubProbe struct {
	name  string
	err   error
	delay time.Duration
	panic bool
}

func (p *stubProbe) Name() string { return p.name }

func (p *stubProbe) Check(ctx context.Context) error {
	if p.panic {
		panic("probe exploded")
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

func TestHealthLiveness(t *testing.T) {
	s := newTestServer(t)
	// Liveness ignores probes entirely: a failing dependency must not cause
	// the load balancer to restart the process.
	s.HealthProbes = []HealthProbe{
		&stubProbe{name: "database", err: errors.New("connection refused")},
	}

	rec := httptest.NewRecorder()
	s.HandleHealth(rec, newTestRequest(http.MethodGet, "/health", ""))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); !resp.Success {
		t.Error("success must be true")
	}
}

func TestReadyNoProbes(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.HandleReady(rec, newTestRequest(http.MethodGet, "/health/ready", ""))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); !resp.Success {
		t.Error("success must be true")
	}
}

func TestReadyAllHealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		&stubProbe{name: "database"},
		&stubProbe{name: "queue"},
	}

	rec := httptest.NewRecorder()
	s.HandleReady(rec, newTestRequest(http.MethodGet, "/health/ready", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decodeEnvelope(t, rec)
	data := resp.Data.(map[string]any)
	if data["status"] != "healthy" {
		t.Errorf("status = %v", data["status"])
	}
	components := data["components"].(map[string]any)
	if len(components) != 2 {
		t.Errorf("components = %v", components)
	}
}

func TestReadyOneUnhealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		&stubProbe{name: "database"},
		&stubProbe{name: "queue", err: errors.New("connection refused")},
	}

	rec := httptest.NewRecorder()
	s.HandleReady(rec, newTestRequest(http.MethodGet, "/health/ready", ""))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	resp := decodeEnvelope(t, rec)
	if resp.Success {
		t.Error("success must be false")
	}
	components := resp.Details["components"].(map[string]any)
	queue := components["queue"].(map[string]any)
	if queue["status"] != "unhealthy" {
		t.Errorf("queue status = %v", queue["status"])
	}
}

func TestReadyProbePanicIsUnhealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		&stubProbe{name: "database", panic: true},
	}

	rec := httptest.NewRecorder()
	s.HandleReady(rec, newTestRequest(http.MethodGet, "/health/ready", ""))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestReadySlowProbeTimesOut(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		&stubProbe{name: "database"},
		&stubProbe{name: "queue", delay: 5 * time.Second},
	}

	start := time.Now()
	rec := httptest.NewRecorder()
	s.HandleReady(rec, newTestRequest(http.MethodGet, "/health/ready", ""))
	elapsed := time.Since(start)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if elapsed > 3*time.Second {
		t.Errorf("health check took %v, must respect the 2s deadline", elapsed)
	}
}
