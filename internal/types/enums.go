package types

// PlanTier identifies the subscription plan for a user.
// Tiers form a strict ascending order: starter < growth < scale < enterprise.
type PlanTier string

const (
	PlanStarter    PlanTier = "starter"
	PlanGrowth     PlanTier = "growth"
	PlanScale      PlanTier = "scale"
	PlanEnterprise PlanTier = "enterprise"
)

// PlanOrder lists the tiers in ascending price order. Upgrade suggestions
// scan this slice front to back and recommend the first tier that satisfies
// the requested quantity.
var PlanOrder = []PlanTier{PlanStarter, PlanGrowth, PlanScale, PlanEnterprise}

// NormalizePlanTier maps an arbitrary plan name onto a known tier.
// Unknown or empty names map to the lowest tier rather than erroring.
func NormalizePlanTier(name string) PlanTier {
	switch PlanTier(name) {
	case PlanStarter, PlanGrowth, PlanScale, PlanEnterprise:
		return PlanTier(name)
	default:
		return PlanStarter
	}
}

// SubscriptionStatus represents the state of a billing subscription.
type SubscriptionStatus string

const (
	SubStatusActive     SubscriptionStatus = "active"
	SubStatusTrialing   SubscriptionStatus = "trialing"
	SubStatusPastDue    SubscriptionStatus = "past_due"
	SubStatusCanceled   SubscriptionStatus = "canceled"
	SubStatusIncomplete SubscriptionStatus = "incomplete"
	SubStatusUnpaid     SubscriptionStatus = "unpaid"
)

// JobStatus represents the lifecycle state of a bulk generation job.
// Valid transitions: pending -> processing -> {completed | failed}, plus the
// direct pending -> failed edge when validation leaves zero processable rows.
// Terminal states are reached exactly once.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a terminal job state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// UsageType identifies a monthly-metered usage counter.
// The names double as UsageRecord column identifiers and as the dimension
// keys of plan limits, so they must stay in sync with PlanLimits.
type UsageType string

const (
	UsagePitches       UsageType = "pitchesGenerated"
	UsageBulkUploads   UsageType = "bulkUploadsThisMonth"
	UsageNarratives    UsageType = "narrativesGenerated"
	UsageRegenerations UsageType = "aiRegenerations"
	UsageMarketReports UsageType = "marketReportsThisMonth"
)

// Feature identifies a plan-gated capability.
type Feature string

const (
	FeaturePitchGeneration Feature = "pitch_generation"
	FeatureBulkUpload      Feature = "bulk_upload"
	FeatureNarrativeAI     Feature = "narrative_ai"
	FeatureAIRegeneration  Feature = "ai_regeneration"
	FeatureSlideDeckExport Feature = "slide_deck_export"
	FeatureMarketReports   Feature = "market_reports"
	FeatureLogoDiscovery   Feature = "logo_discovery"
	FeatureTrendAnalysis   Feature = "trend_analysis"
	FeatureSECInsights     Feature = "sec_insights"
	FeaturePriorityQueue   Feature = "priority_queue"
)

// CacheDataType names a category of cacheable external lookup. Each type
// carries its own freshness window; see cache.TTLFor.
type CacheDataType string

const (
	CacheCompetitors  CacheDataType = "competitors"
	CacheDemographics CacheDataType = "demographics"
	CacheTrends       CacheDataType = "trends"
	CacheMetrics      CacheDataType = "metrics"
	CacheNarrative    CacheDataType = "narrative"
	CacheLogo         CacheDataType = "logo"
)

// NarrativeStatus reflects the outcome of content validation on generated
// narratives. needs_review narratives are served but flagged for the user.
type NarrativeStatus string

const (
	NarrativeReady       NarrativeStatus = "ready"
	NarrativeNeedsReview NarrativeStatus = "needs_review"
)
