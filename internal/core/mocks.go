package core

import (
	"context"
	"sync"
	"time"

	"pathsynch/internal/types"
)

// --- MockAuthenticator ---

// MockAuthenticator implements Authenticator for tests. It returns a
// predefined Actor or error and records every token it sees.
//
// Usage:
//
//	mock := &MockAuthenticator{
//	    Actor: &types.Actor{ID: "user_test123", Type: types.ActorTypeUser, Plan: types.PlanStarter},
//	}
//
// To simulate a failure:
//
//	mock := &MockAuthenticator{
//	    Err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", nil),
//	}
type MockAuthenticator struct {
	// Actor is returned on successful resolution. If nil and Err is also
	// nil, ResolveToken returns (nil, nil).
	Actor *types.Actor

	// Err, when set, is returned and Actor is ignored.
	Err error

	// ResolveTokenFunc overrides the default behavior when set, letting
	// tests vary by token value.
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	mu sync.Mutex

	// Calls records every token passed to ResolveToken.
	Calls []string
}

// ResolveToken implements Authenticator.
func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Actor, nil
}

// --- MockMetrics ---

// MockMetrics implements MetricsCollector for tests, recording every call.
type MockMetrics struct {
	mu sync.Mutex

	// Requests records every RecordRequest invocation.
	Requests []MetricRequestCall
}

// MetricRequestCall records the arguments of a single RecordRequest call.
type MetricRequestCall struct {
	Method   string
	Endpoint string
	Status   string
	Duration time.Duration
}

// RecordRequest implements MetricsCollector.
func (m *MockMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, MetricRequestCall{
		Method:   method,
		Endpoint: endpoint,
		Status:   status,
		Duration: duration,
	})
}

// Recorded returns a copy of the recorded calls, safe for assertions while
// the server may still be handling requests.
func (m *MockMetrics) Recorded() []MetricRequestCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MetricRequestCall, len(m.Requests))
	copy(out, m.Requests)
	return out
}

// Compile-time interface assertions.
var (
	_ Authenticator    = (*MockAuthenticator)(nil)
	_ MetricsCollector = (*MockMetrics)(nil)
)
