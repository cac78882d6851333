package types

import (
	"time"
)

// User represents an account holder: the small-business owner who generates
// pitches. Users are never hard-deleted within this platform.
type User struct {
	ID           string `json:"id" db:"id"`
	Email        string `json:"email" db:"email"`
	BusinessName string `json:"business_name" db:"business_name"`
	PasswordHash string `json:"-" db:"password_hash"`

	// Billing projection. Plan is always a normalized PlanTier in memory;
	// legacy rows that stored {"tier": "..."} objects are decoded at the
	// repository boundary (see db.scanPlan).
	Plan                 PlanTier           `json:"plan" db:"plan"`
	SubscriptionStatus   SubscriptionStatus `json:"subscription_status,omitempty" db:"subscription_status"`
	StripeCustomerID     string             `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"-" db:"stripe_subscription_id"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty" db:"current_period_end"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// Session is one issued API token. Only the SHA-256 digest of the raw token
// is stored; the plaintext is returned to the client exactly once at
// issuance and cannot be recovered afterwards.
type Session struct {
	TokenDigest string     `json:"-" db:"token_digest"`
	UserID      string     `json:"user_id" db:"user_id"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
}

// Subscription is the local projection of a payment-platform subscription.
// The external subscription id is the primary key; one subscription maps to
// exactly one user at a time. Written only by the billing event processor.
type Subscription struct {
	ID                 string             `json:"id" db:"id"`
	UserID             string             `json:"user_id" db:"user_id"`
	Plan               PlanTier           `json:"plan" db:"plan"`
	Status             SubscriptionStatus `json:"status" db:"status"`
	PriceID            string             `json:"price_id,omitempty" db:"price_id"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty" db:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// UsageRecord holds the monthly usage counters for one user and period.
// The primary key is "{userId}_{YYYY-MM}"; a new month means a new key, so
// counters reset implicitly at period rollover with no reset job.
type UsageRecord struct {
	PeriodKey string `json:"period_key" db:"period_key"`
	UserID    string `json:"user_id" db:"user_id"`
	Period    string `json:"period" db:"period"` // YYYY-MM

	PitchesGenerated     int `json:"pitchesGenerated" db:"pitches_generated"`
	BulkUploadsThisMonth int `json:"bulkUploadsThisMonth" db:"bulk_uploads_this_month"`
	NarrativesGenerated  int `json:"narrativesGenerated" db:"narratives_generated"`
	AIRegenerations      int `json:"aiRegenerations" db:"ai_regenerations"`
	MarketReportsMonth   int `json:"marketReportsThisMonth" db:"market_reports_this_month"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Counter returns the stored value for the given usage type. Unknown types
// return zero; callers route through the gate, which rejects unknown types
// before ever reading a counter.
func (u *UsageRecord) Counter(t UsageType) int {
	switch t {
	case UsagePitches:
		return u.PitchesGenerated
	case UsageBulkUploads:
		return u.BulkUploadsThisMonth
	case UsageNarratives:
		return u.NarrativesGenerated
	case UsageRegenerations:
		return u.AIRegenerations
	case UsageMarketReports:
		return u.MarketReportsMonth
	default:
		return 0
	}
}

// PeriodKeyFor builds the composite usage key for a user at a point in time.
func PeriodKeyFor(userID string, at time.Time) string {
	return userID + "_" + at.UTC().Format("2006-01")
}

// PeriodFor returns the YYYY-MM period identifier for a point in time.
func PeriodFor(at time.Time) string {
	return at.UTC().Format("2006-01")
}

// CacheEntry is one memoized external-lookup result. An entry is valid iff
// now - CachedAt <= ttl[DataType]; expired entries are treated as absent by
// readers and removed lazily by the maintenance sweep.
type CacheEntry struct {
	Key      string        `json:"key" db:"cache_key"`
	DataType CacheDataType `json:"data_type" db:"data_type"`
	Payload  []byte        `json:"payload" db:"payload"`
	CachedAt time.Time     `json:"cached_at" db:"cached_at"`
	HitCount int           `json:"hit_count" db:"hit_count"`
}

// BusinessProfile is one row of pitch input: the structured description of a
// prospect business. It arrives either as a single-pitch request body or as
// one CSV row of a bulk upload.
type BusinessProfile struct {
	BusinessName  string  `json:"businessName" validate:"required,max=200"`
	Segment       string  `json:"segment" validate:"required,max=100"`
	SubIndustry   string  `json:"subIndustry,omitempty" validate:"max=100"`
	State         string  `json:"state" validate:"required,max=50"`
	City          string  `json:"city" validate:"required,max=100"`
	OwnerName     string  `json:"ownerName" validate:"required,max=120"`
	Email         string  `json:"email" validate:"required,email"`
	Phone         string  `json:"phone,omitempty"`
	CustomMessage string  `json:"customMessage,omitempty" validate:"max=2000"`
	WebsiteURL    string  `json:"websiteUrl,omitempty" validate:"omitempty,url"`
	GoogleRating  float64 `json:"googleRating,omitempty"`
	NumReviews    int     `json:"numReviews,omitempty"`
}

// BulkRow pairs a validated BusinessProfile with its original 1-based data
// row number so per-row errors can reference the uploaded CSV line.
type BulkRow struct {
	Row     int             `json:"row"`
	Profile BusinessProfile `json:"profile"`
}

// RowError records one validation or processing failure for a bulk row.
// Field is empty for processing failures.
type RowError struct {
	Row   int    `json:"row"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

// BulkJob tracks one bulk pitch-generation batch. Progress fields are
// updated once per processed row so pollers observe partial progress;
// processedRows only ever grows.
type BulkJob struct {
	ID     string    `json:"id" db:"id"`
	UserID string    `json:"user_id" db:"user_id"`
	Status JobStatus `json:"status" db:"status"`

	TotalRows     int        `json:"total_rows" db:"total_rows"`
	ValidRows     int        `json:"valid_rows" db:"valid_rows"`
	ProcessedRows int        `json:"processed_rows" db:"processed_rows"`
	SuccessCount  int        `json:"success_count" db:"success_count"`
	FailedCount   int        `json:"failed_count" db:"failed_count"`
	PitchIDs      []string   `json:"pitch_ids" db:"pitch_ids"`
	Errors        []RowError `json:"errors" db:"errors"`

	// Rows holds the validated rows awaiting processing. It is persisted at
	// creation so the worker can drive the job from its id alone.
	Rows []BulkRow `json:"-" db:"rows"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Pitch is one generated sales pitch document.
type Pitch struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	JobID        string          `json:"job_id,omitempty" db:"job_id"`
	BusinessName string          `json:"business_name" db:"business_name"`
	HTML         string          `json:"-" db:"html"`
	Profile      BusinessProfile `json:"profile" db:"profile"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// NarrativeInputs are the creative parameters for AI narrative generation.
type NarrativeInputs struct {
	BusinessName string   `json:"businessName" validate:"required,max=200"`
	Segment      string   `json:"segment" validate:"required,max=100"`
	City         string   `json:"city,omitempty" validate:"max=100"`
	State        string   `json:"state,omitempty" validate:"max=50"`
	Tone         string   `json:"tone,omitempty" validate:"omitempty,oneof=professional friendly bold playful"`
	Goals        []string `json:"goals,omitempty" validate:"max=5,dive,max=200"`
	Audience     string   `json:"audience,omitempty" validate:"max=200"`
}

// Narrative is an AI-generated pitch narrative with validation outcome and
// token/cost accounting. Deleting a narrative cascades to its slide decks.
type Narrative struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	Inputs     NarrativeInputs `json:"inputs" db:"inputs"`
	Content    string          `json:"content" db:"content"`
	Status     NarrativeStatus `json:"status" db:"status"`
	Issues     []string        `json:"issues,omitempty" db:"issues"`
	TokensUsed int             `json:"tokens_used" db:"tokens_used"`
	CostCents  int             `json:"cost_cents" db:"cost_cents"`
	Model      string          `json:"model" db:"model"`
	FromCache  bool            `json:"from_cache" db:"-"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Slide is one slide of a generated deck.
type Slide struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
	Notes   string   `json:"notes,omitempty"`
}

// SlideDeck is the structured slide-deck artifact built from a narrative.
// Binary presentation encoding is an external concern; the deck itself is
// the JSON structure.
type SlideDeck struct {
	ID          string    `json:"id" db:"id"`
	NarrativeID string    `json:"narrative_id" db:"narrative_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Theme       string    `json:"theme" db:"theme"`
	Slides      []Slide   `json:"slides" db:"slides"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// BillingEvent is one processed payment-platform event, recorded to make
// webhook handling idempotent under duplicate delivery.
type BillingEvent struct {
	ID          string    `json:"id" db:"id"`
	Type        string    `json:"type" db:"type"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}

// PlanLimits is the fixed limit record for one tier. -1 means unlimited for
// any numeric field and short-circuits every comparison.
type PlanLimits struct {
	PitchesPerMonth         int `json:"pitchesPerMonth"`
	BulkUploadsPerMonth     int `json:"bulkUploadsPerMonth"`
	BulkUploadRows          int `json:"bulkUploadRows"`
	NarrativesPerMonth      int `json:"narrativesPerMonth"`
	AIRegenerationsPerMonth int `json:"aiRegenerationsPerMonth"`
	MarketReportsPerMonth   int `json:"marketReportsPerMonth"`
	MonthlyPriceCents       int `json:"monthlyPriceCents"`
}

// LimitFor returns the numeric limit for a usage dimension, and false when
// the dimension is not a recognized usage type.
func (l PlanLimits) LimitFor(t UsageType) (int, bool) {
	switch t {
	case UsagePitches:
		return l.PitchesPerMonth, true
	case UsageBulkUploads:
		return l.BulkUploadsPerMonth, true
	case UsageNarratives:
		return l.NarrativesPerMonth, true
	case UsageRegenerations:
		return l.AIRegenerationsPerMonth, true
	case UsageMarketReports:
		return l.MarketReportsPerMonth, true
	default:
		return 0, false
	}
}

// GateDecision is the resolved admit decision attached to the request
// context after the plan gate runs.
type GateDecision struct {
	UserID string      `json:"user_id"`
	Plan   PlanTier    `json:"plan"`
	Limits PlanLimits  `json:"limits"`
	Usage  UsageRecord `json:"usage"`
}

// UsageSnapshot is the /v1/usage response payload: counters beside their
// limits with remaining capacity (-1 = unlimited).
type UsageSnapshot struct {
	Plan      PlanTier           `json:"plan"`
	Period    string             `json:"period"`
	Counters  map[UsageType]int  `json:"counters"`
	Limits    PlanLimits         `json:"limits"`
	Remaining map[UsageType]int  `json:"remaining"`
	Status    SubscriptionStatus `json:"subscription_status,omitempty"`
}

// BulkJobMessage is the SQS payload that hands a created job to the worker.
type BulkJobMessage struct {
	JobID    string `json:"job_id"`
	UserID   string `json:"user_id"`
	TraceID  string `json:"trace_id"`
	Priority bool   `json:"priority,omitempty"`
}

// PlatformAnalytics is the admin analytics aggregate.
type PlatformAnalytics struct {
	UsersTotal      int               `json:"users_total"`
	UsersByPlan     map[PlanTier]int  `json:"users_by_plan"`
	PitchesTotal    int               `json:"pitches_total"`
	PitchesThisMo   int               `json:"pitches_this_month"`
	JobsByStatus    map[JobStatus]int `json:"jobs_by_status"`
	NarrativesTotal int               `json:"narratives_total"`
	CacheEntries    int               `json:"cache_entries"`
	CacheHitsTotal  int               `json:"cache_hits_total"`
	GeneratedAt     time.Time         `json:"generated_at"`
}
