package core

import (
	"context"
	"time"

	"pathsynch/internal/types"
)

// Authenticator decouples the HTTP layer from the auth mechanism (session
// token lookups against the database), allowing easy mocking in tests.
type Authenticator interface {
	// ResolveToken resolves an opaque session token to its Actor.
	//
	// Implementations look the token digest up in storage, check expiry,
	// and populate the Actor with the user's current plan so downstream
	// gating never re-reads it.
	//
	// Errors use distinct codes:
	//   - ErrCodeAuthTokenInvalid for malformed, unknown, or revoked tokens.
	//   - ErrCodeAuthTokenInvalid with expiry message for expired tokens.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// MetricsCollector records API telemetry. The CloudWatch implementation
// lives in internal/metrics; tests use the mock in this package.
type MetricsCollector interface {
	// RecordRequest records one request's latency and count under the
	// MetricAPILatency metric with endpoint/status dimensions.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}
