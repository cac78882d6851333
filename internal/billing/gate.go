package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pathsynch/internal/types"
)

// UserLookup is the slice of the user repository the gate needs.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// UsageStore is the slice of the usage repository the gate needs.
type UsageStore interface {
	Get(ctx context.Context, userID string, at time.Time) (*types.UsageRecord, error)
	Increment(ctx context.Context, userID string, t types.UsageType, n int, at time.Time) error
}

// GateRequest describes one admission check. Feature, UsageType and Rows are
// each optional; a zero value skips that dimension. Requested defaults to 1
// when a UsageType is set.
type GateRequest struct {
	UserID    string
	Feature   types.Feature
	UsageType types.UsageType
	Requested int
	Rows      int
}

// UsageGate admits or rejects plan-governed operations and records usage
// after they succeed. Admission and recording are deliberately split: an
// operation is only counted once it has actually happened.
type UsageGate interface {
	// Admit runs the full admission sequence: identity, feature grant,
	// per-request row cap, monthly quota. The returned decision carries the
	// caller's plan, limits and current usage for downstream handlers.
	Admit(ctx context.Context, req GateRequest) (*types.GateDecision, error)

	// Record adds n to a usage counter after the gated operation succeeds.
	// Failures are logged and swallowed; a metering hiccup must not fail
	// work that already happened.
	Record(ctx context.Context, userID string, t types.UsageType, n int)

	// Snapshot returns the caller's current counters beside their limits and
	// remaining capacity for the usage endpoint.
	Snapshot(ctx context.Context, userID string) (*types.UsageSnapshot, error)
}

type usageGateImpl struct {
	users  UserLookup
	usage  UsageStore
	plans  PlanRegistry
	logger *slog.Logger
	now    func() time.Time
}

// Compile-time interface assertion.
var _ UsageGate = (*usageGateImpl)(nil)

// NewGate builds the gate. If logger is nil, slog.Default() is used.
func NewGate(users UserLookup, usage UsageStore, plans PlanRegistry, logger *slog.Logger) *usageGateImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &usageGateImpl{
		users:  users,
		usage:  usage,
		plans:  plans,
		logger: logger,
		now:    time.Now,
	}
}

func (g *usageGateImpl) Admit(ctx context.Context, req GateRequest) (*types.GateDecision, error) {
	if req.UserID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil)
	}

	user, err := g.users.GetByID(ctx, req.UserID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			return nil, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", err)
		}
		return nil, err
	}

	plan := user.Plan
	limits := g.plans.Limits(plan)

	if req.Feature != "" && !g.plans.HasFeature(plan, req.Feature) {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodePermissionPlanFeature,
			fmt.Sprintf("the %s plan does not include %s", plan, req.Feature),
			nil,
			map[string]any{
				"plan":          string(plan),
				"feature":       string(req.Feature),
				"suggestedPlan": string(g.plans.FindPlanWithFeature(req.Feature)),
			},
		)
	}

	if req.Rows > 0 {
		if limit := limits.BulkUploadRows; limit != Unlimited && req.Rows > limit {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationRowLimit,
				"Row limit exceeded",
				nil,
				map[string]any{
					"limit":     limit,
					"submitted": req.Rows,
				},
			)
		}
	}

	decision := &types.GateDecision{
		UserID: user.ID,
		Plan:   plan,
		Limits: limits,
	}

	if req.UsageType == "" {
		return decision, nil
	}

	limit, known := limits.LimitFor(req.UsageType)
	if !known {
		// Fail closed: admitting an unmetered operation would bypass billing
		// entirely, which is worse than rejecting a legitimate request.
		g.logger.ErrorContext(ctx, "plan gate asked about unknown usage type",
			"usage_type", string(req.UsageType),
			"user_id", req.UserID,
		)
		return nil, types.NewAppError(types.ErrCodeInternalUnknownUsage,
			fmt.Sprintf("unknown usage type %q", req.UsageType), nil)
	}

	usage, err := g.usage.Get(ctx, req.UserID, g.now())
	if err != nil {
		return nil, err
	}
	decision.Usage = *usage

	requested := req.Requested
	if requested <= 0 {
		requested = 1
	}
	current := usage.Counter(req.UsageType)
	if limit != Unlimited && current+requested > limit {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeLimitUsageExceeded,
			fmt.Sprintf("monthly %s limit reached on the %s plan", req.UsageType, plan),
			nil,
			map[string]any{
				"limit":         limit,
				"current":       current,
				"plan":          string(plan),
				"suggestedPlan": string(g.plans.FindPlanWithLimit(req.UsageType, current+requested)),
			},
		)
	}

	return decision, nil
}

func (g *usageGateImpl) Record(ctx context.Context, userID string, t types.UsageType, n int) {
	if err := g.usage.Increment(ctx, userID, t, n, g.now()); err != nil {
		g.logger.ErrorContext(ctx, "failed to record usage",
			"user_id", userID,
			"usage_type", string(t),
			"count", n,
			"error", err,
		)
	}
}

// meteredTypes lists every monthly counter in snapshot order.
var meteredTypes = []types.UsageType{
	types.UsagePitches,
	types.UsageBulkUploads,
	types.UsageNarratives,
	types.UsageRegenerations,
	types.UsageMarketReports,
}

func (g *usageGateImpl) Snapshot(ctx context.Context, userID string) (*types.UsageSnapshot, error) {
	if userID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil)
	}

	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := g.usage.Get(ctx, userID, g.now())
	if err != nil {
		return nil, err
	}

	limits := g.plans.Limits(user.Plan)
	counters := make(map[types.UsageType]int, len(meteredTypes))
	remaining := make(map[types.UsageType]int, len(meteredTypes))
	for _, t := range meteredTypes {
		current := usage.Counter(t)
		counters[t] = current
		limit, _ := limits.LimitFor(t)
		if limit == Unlimited {
			remaining[t] = Unlimited
			continue
		}
		left := limit - current
		if left < 0 {
			left = 0
		}
		remaining[t] = left
	}

	return &types.UsageSnapshot{
		Plan:      user.Plan,
		Period:    usage.Period,
		Counters:  counters,
		Limits:    limits,
		Remaining: remaining,
		Status:    user.SubscriptionStatus,
	}, nil
}
