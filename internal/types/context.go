package types

import (
	"context"
)

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

// Actor represents the authenticated entity performing an operation.
type Actor struct {
	ID     string
	Type   ActorType
	Email  string
	Plan   PlanTier
	Source string // Origin of the request (e.g., "dashboard", "bulk_worker").
}

// Context Keys
type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
	gateKey      contextKey = "gate_decision"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithGateDecision stores the plan-gate admit decision in the context so that
// downstream handlers can reuse the resolved plan/limits/usage snapshot
// without re-reading them.
func WithGateDecision(ctx context.Context, d GateDecision) context.Context {
	return context.WithValue(ctx, gateKey, d)
}

// GetGateDecision retrieves the plan-gate decision from the context.
func GetGateDecision(ctx context.Context) (GateDecision, bool) {
	d, ok := ctx.Value(gateKey).(GateDecision)
	return d, ok
}
