// Package config defines the global configuration structure for the PathSynch
// pitch platform. Configuration is loaded once at process initialization
// (Lambda cold start or local boot) and is immutable thereafter. It follows
// 12-Factor App principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"pathsynch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the PathSynch platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"pathsynch-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server      ServerConfig
	Database    DatabaseConfig
	AWS         AWSConfig
	Billing     BillingConfig
	AI          AIConfig
	Places      PlacesConfig
	SEC         SECConfig
	Logo        LogoConfig
	Auth        AuthConfig
	Security    SecurityConfig
	Metrics     MetricsConfig
	Maintenance MaintenanceConfig
	Feature     FeatureConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for billing redirects (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"` // e.g., https://api.pathsynch.io
	DashboardURL   string `envconfig:"DASHBOARD_URL" validate:"required,url"`    // e.g., https://app.pathsynch.io
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	BulkJobQueue string `envconfig:"SQS_BULK_JOBS" validate:"required,url"`
	DlqURL       string `envconfig:"SQS_DLQ"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe payment integration credentials and the price
// identifiers for each paid tier. The starter tier is free and has no price.
type BillingConfig struct {
	StripeSecretKey      SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret  SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	StripePublishableKey string       `envconfig:"STRIPE_PUBLISHABLE_KEY" validate:"required"`

	PriceGrowth     string `envconfig:"STRIPE_PRICE_GROWTH" validate:"required"`
	PriceScale      string `envconfig:"STRIPE_PRICE_SCALE" validate:"required"`
	PriceEnterprise string `envconfig:"STRIPE_PRICE_ENTERPRISE" validate:"required"`
}

// PriceToPlan returns the configured price id -> plan tier mapping used by
// the billing event processor. Unknown price ids fall back to growth at the
// call site, never here.
func (b BillingConfig) PriceToPlan() map[string]types.PlanTier {
	return map[string]types.PlanTier{
		b.PriceGrowth:     types.PlanGrowth,
		b.PriceScale:      types.PlanScale,
		b.PriceEnterprise: types.PlanEnterprise,
	}
}

// AIConfig holds the text generation provider credentials and model tuning.
type AIConfig struct {
	APIKey    SecretString  `envconfig:"AI_API_KEY" validate:"required"`
	BaseURL   string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	Model     string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	MaxTokens int           `envconfig:"AI_MAX_TOKENS" default:"1200"`
	Timeout   time.Duration `envconfig:"AI_TIMEOUT" default:"45s"`

	// CostPerThousandTokensCents prices narrative generation for the
	// per-narrative cost accounting shown to users.
	CostPerThousandTokensCents int `envconfig:"AI_COST_PER_1K_TOKENS_CENTS" default:"2"`
}

// PlacesConfig holds the business/places data provider settings used for
// competitor and demographic lookups.
type PlacesConfig struct {
	APIKey  SecretString  `envconfig:"PLACES_API_KEY" validate:"required"`
	BaseURL string        `envconfig:"PLACES_BASE_URL" default:"https://places.googleapis.com/v1"`
	Timeout time.Duration `envconfig:"PLACES_TIMEOUT" default:"10s"`
}

// SECConfig holds EDGAR full-text search settings for public-company
// filings lookups. The SEC requires a descriptive User-Agent.
type SECConfig struct {
	BaseURL   string        `envconfig:"SEC_BASE_URL" default:"https://data.sec.gov"`
	UserAgent string        `envconfig:"SEC_USER_AGENT" default:"PathSynch research@pathsynch.io"`
	Timeout   time.Duration `envconfig:"SEC_TIMEOUT" default:"15s"`
}

// LogoConfig holds the logo discovery provider settings.
type LogoConfig struct {
	BaseURL string        `envconfig:"LOGO_BASE_URL" default:"https://img.logo.dev"`
	APIKey  SecretString  `envconfig:"LOGO_API_KEY"`
	Timeout time.Duration `envconfig:"LOGO_TIMEOUT" default:"8s"`
}

// AuthConfig holds session token lifetime settings. Tokens are opaque random
// values stored as digests; there is no signing key to configure.
type AuthConfig struct {
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"`
}

// SecurityConfig holds security-related configuration including admin access
// and CORS settings.
type SecurityConfig struct {
	AdminAPIKey        SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// MetricsConfig holds telemetry emission settings.
type MetricsConfig struct {
	Namespace     string `envconfig:"METRIC_NAMESPACE" default:"PathSynch"`
	EnableMetrics bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// MaintenanceConfig holds tuning for the cache sweeper and the stale job
// reaper. StaleJobThreshold is how long a job may sit in processing without
// progress before it is declared abandoned.
type MaintenanceConfig struct {
	CacheSweepBatchSize int           `envconfig:"CACHE_SWEEP_BATCH_SIZE" default:"500"`
	StaleJobThreshold   time.Duration `envconfig:"STALE_JOB_THRESHOLD" default:"15m"`
	Schedule            string        `envconfig:"MAINTENANCE_SCHEDULE" default:"*/15 * * * *"`
}

// FeatureConfig holds emergency kill switches for system capabilities.
type FeatureConfig struct {
	EnableAI         bool `envconfig:"FEATURE_ENABLE_AI" default:"true"`
	EnableBulk       bool `envconfig:"FEATURE_ENABLE_BULK" default:"true"`
	EnableMarketData bool `envconfig:"FEATURE_ENABLE_MARKET_DATA" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
