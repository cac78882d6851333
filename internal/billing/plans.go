// Package billing holds the plan registry, the usage gate that admits or
// rejects plan-governed operations, and the payment-event processor that
// projects subscription state onto users.
package billing

import "pathsynch/internal/types"

// Unlimited marks a limit with no cap. Enforcement must short-circuit on it
// before any numeric comparison.
const Unlimited = -1

// PlanRegistry answers every "what does this plan allow" question. It is the
// single authority on limits and feature grants; nothing else in the codebase
// hardcodes a plan number.
type PlanRegistry interface {
	// Limits returns the limit record for a tier. Unknown tiers get the
	// starter limits.
	Limits(tier types.PlanTier) types.PlanLimits

	// HasFeature reports whether a tier includes a feature. Grants are
	// cumulative: every tier includes the features of the tiers below it.
	HasFeature(tier types.PlanTier, feature types.Feature) bool

	// IsWithinLimits reports whether current usage of the given type still
	// has room under the tier's limit. Unknown usage types are never within
	// limits; the gate turns that into an explicit rejection rather than a
	// silent admit.
	IsWithinLimits(tier types.PlanTier, t types.UsageType, current int) bool

	// FindPlanWithLimit returns the cheapest tier whose limit satisfies the
	// requested quantity, scanning tiers in ascending price order. When no
	// finite tier is big enough the answer is enterprise.
	FindPlanWithLimit(t types.UsageType, requested int) types.PlanTier

	// FindPlanWithFeature returns the cheapest tier that includes the
	// feature, or enterprise when no tier grants it.
	FindPlanWithFeature(feature types.Feature) types.PlanTier

	// Tier maps an arbitrary plan name onto a known tier; unknown names map
	// to starter.
	Tier(name string) types.PlanTier
}

// planDefaults is the limit table. Monthly counters reset at period
// rollover; bulkUploadRows is a per-request cap, not a monthly one.
var planDefaults = map[types.PlanTier]types.PlanLimits{
	types.PlanStarter: {
		PitchesPerMonth:         10,
		BulkUploadsPerMonth:     1,
		BulkUploadRows:          5,
		NarrativesPerMonth:      2,
		AIRegenerationsPerMonth: 2,
		MarketReportsPerMonth:   3,
		MonthlyPriceCents:       0,
	},
	types.PlanGrowth: {
		PitchesPerMonth:         50,
		BulkUploadsPerMonth:     5,
		BulkUploadRows:          50,
		NarrativesPerMonth:      10,
		AIRegenerationsPerMonth: 10,
		MarketReportsPerMonth:   15,
		MonthlyPriceCents:       4900,
	},
	types.PlanScale: {
		PitchesPerMonth:         200,
		BulkUploadsPerMonth:     20,
		BulkUploadRows:          250,
		NarrativesPerMonth:      50,
		AIRegenerationsPerMonth: 50,
		MarketReportsPerMonth:   60,
		MonthlyPriceCents:       14900,
	},
	types.PlanEnterprise: {
		PitchesPerMonth:         Unlimited,
		BulkUploadsPerMonth:     Unlimited,
		BulkUploadRows:          Unlimited,
		NarrativesPerMonth:      Unlimited,
		AIRegenerationsPerMonth: Unlimited,
		MarketReportsPerMonth:   Unlimited,
		MonthlyPriceCents:       49900,
	},
}

// featureGrants lists the features each tier ADDS. The effective feature set
// of a tier is the union of grants from starter up to that tier.
var featureGrants = map[types.PlanTier][]types.Feature{
	types.PlanStarter: {
		types.FeaturePitchGeneration,
		types.FeatureBulkUpload,
		types.FeatureMarketReports,
	},
	types.PlanGrowth: {
		types.FeatureNarrativeAI,
		types.FeatureAIRegeneration,
		types.FeatureLogoDiscovery,
	},
	types.PlanScale: {
		types.FeatureSlideDeckExport,
		types.FeatureTrendAnalysis,
		types.FeatureSECInsights,
	},
	types.PlanEnterprise: {
		types.FeaturePriorityQueue,
	},
}

type staticPlanRegistry struct {
	limits   map[types.PlanTier]types.PlanLimits
	features map[types.PlanTier]map[types.Feature]bool
}

// NewStaticPlanRegistry builds the registry from the compiled-in tables.
// The defaults are copied so callers can never mutate them.
func NewStaticPlanRegistry() PlanRegistry {
	limits := make(map[types.PlanTier]types.PlanLimits, len(planDefaults))
	for tier, l := range planDefaults {
		limits[tier] = l
	}

	features := make(map[types.PlanTier]map[types.Feature]bool, len(types.PlanOrder))
	cumulative := make(map[types.Feature]bool)
	for _, tier := range types.PlanOrder {
		for _, f := range featureGrants[tier] {
			cumulative[f] = true
		}
		set := make(map[types.Feature]bool, len(cumulative))
		for f := range cumulative {
			set[f] = true
		}
		features[tier] = set
	}

	return &staticPlanRegistry{limits: limits, features: features}
}

func (r *staticPlanRegistry) Limits(tier types.PlanTier) types.PlanLimits {
	if l, ok := r.limits[tier]; ok {
		return l
	}
	return r.limits[types.PlanStarter]
}

func (r *staticPlanRegistry) HasFeature(tier types.PlanTier, feature types.Feature) bool {
	set, ok := r.features[tier]
	if !ok {
		set = r.features[types.PlanStarter]
	}
	return set[feature]
}

func (r *staticPlanRegistry) IsWithinLimits(tier types.PlanTier, t types.UsageType, current int) bool {
	limit, ok := r.Limits(tier).LimitFor(t)
	if !ok {
		return false
	}
	if limit == Unlimited {
		return true
	}
	return current < limit
}

func (r *staticPlanRegistry) FindPlanWithLimit(t types.UsageType, requested int) types.PlanTier {
	for _, tier := range types.PlanOrder {
		limit, ok := r.Limits(tier).LimitFor(t)
		if !ok {
			continue
		}
		if limit == Unlimited || limit >= requested {
			return tier
		}
	}
	return types.PlanEnterprise
}

func (r *staticPlanRegistry) FindPlanWithFeature(feature types.Feature) types.PlanTier {
	for _, tier := range types.PlanOrder {
		if r.HasFeature(tier, feature) {
			return tier
		}
	}
	return types.PlanEnterprise
}

func (r *staticPlanRegistry) Tier(name string) types.PlanTier {
	return types.NormalizePlanTier(name)
}
