package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult holds the outcome of a validation check. It provides
// both a boolean pass/fail signal and a human-readable message suitable
// for display in the bootstrap CLI.
type ValidationResult struct {
	// Valid is true if the input passed all validation checks.
	Valid bool

	// Message is a human-readable description of the result.
	// On success, it describes what was validated (e.g., "Stripe account verified: Acme Corp").
	// On failure, it describes why validation failed.
	Message string
}

// HTTPClient is the interface used by validators that make outbound HTTP calls.
// It enables injecting mock HTTP transports for testing without making real
// network calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector abstracts the database connection logic for testing.
// In production, the real implementation uses pgx.Connect. Tests inject
// a mock that simulates connection success/failure.
type DatabaseConnector interface {
	// Connect attempts to establish a connection to the database at the
	// given DSN. It returns an error if the connection fails.
	// The implementation MUST close the connection before returning.
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector is the production implementation of DatabaseConnector.
// It uses pgx.Connect to make a real TCP connection to the database.
type PgxConnector struct{}

// Connect establishes a connection to the database using pgx and immediately
// closes it. The purpose is to verify that the DSN is reachable and the
// credentials are valid, not to maintain an open connection.
func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator encapsulates the dependencies needed by input validation functions.
// It is constructed during bootstrap initialization and threaded through
// the validation phases.
type Validator struct {
	httpClient HTTPClient
	dbConn     DatabaseConnector

	// aiBaseURL overrides the text-generation API base for probes.
	// Empty means the public default.
	aiBaseURL string
}

// NewValidator creates a Validator with production dependencies: a real
// HTTP client with a 10-second timeout and a real pgx connector.
func NewValidator() *Validator {
	return &Validator{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		dbConn: &PgxConnector{},
	}
}

// NewValidatorWithDeps creates a Validator with injected dependencies
// for testing.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector) *Validator {
	return &Validator{
		httpClient: httpClient,
		dbConn:     dbConn,
	}
}

// validateTimeout is the per-probe timeout for active validation calls.
// This is separate from the HTTP client timeout to serve as an outer bound
// that also covers DNS resolution, TLS handshake, etc.
const validateTimeout = 15 * time.Second

// bootstrapUserAgent identifies the CLI's probe requests to providers.
const bootstrapUserAgent = "PathSynch-Bootstrap/1.0"

// ---------------------------------------------------------------------------
// ValidateDatabaseURL
// ---------------------------------------------------------------------------

// ValidateDatabaseURL validates a PostgreSQL connection string.
//
// Validation steps:
//  1. Parse the URL and verify a postgres:// or postgresql:// scheme.
//  2. Attempt an actual connection using pgx to verify the credentials
//     and network reachability.
//
// The connection is immediately closed after verification. This function
// does not maintain a persistent connection.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "database URL must not be empty"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid URL format: %v", err),
		}
	}

	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme),
		}
	}

	// Attempt a real connection to verify credentials and reachability.
	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("connection failed: %v", err),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s)", parsed.Hostname()),
	}
}

// ---------------------------------------------------------------------------
// ValidateStripeKey
// ---------------------------------------------------------------------------

// stripeKeyRegex validates the format of a Stripe secret key.
// Format: sk_(test|live)_ followed by 24+ alphanumeric characters.
var stripeKeyRegex = regexp.MustCompile(`^sk_(test|live)_[0-9a-zA-Z]{24,}$`)

// ValidateStripeKey validates a Stripe secret key by:
//  1. Checking the key format matches sk_(test|live)_[a-zA-Z0-9]{24+}.
//  2. Making a lightweight GET request to https://api.stripe.com/v1/account
//     to verify the key is functional.
//
// The /v1/account endpoint returns the connected account details and is the
// lightest-weight endpoint that verifies key validity without side effects.
func (v *Validator) ValidateStripeKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "Stripe secret key must not be empty"}
	}

	if !stripeKeyRegex.MatchString(key) {
		return ValidationResult{
			Valid:   false,
			Message: "Stripe secret key must match format sk_(test|live)_[alphanumeric 24+ chars]",
		}
	}

	// Active probe: GET /v1/account
	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, "https://api.stripe.com/v1/account", nil)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	// Stripe uses Bearer authentication for API keys.
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", bootstrapUserAgent)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Stripe API probe failed: %v", err),
		}
	}
	defer resp.Body.Close()

	// Read and discard the body to allow connection reuse.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusUnauthorized {
		return ValidationResult{
			Valid:   false,
			Message: "Stripe API returned 401 Unauthorized: key is invalid or revoked",
		}
	}

	if resp.StatusCode != http.StatusOK {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Stripe API returned HTTP %d: %s", resp.StatusCode, truncateBody(body, 200)),
		}
	}

	// Extract the account display name for user feedback.
	var account struct {
		ID              string `json:"id"`
		BusinessProfile struct {
			Name string `json:"name"`
		} `json:"business_profile"`
	}
	displayInfo := ""
	if err := json.Unmarshal(body, &account); err == nil {
		if account.BusinessProfile.Name != "" {
			displayInfo = fmt.Sprintf(" (account: %s, name: %s)", account.ID, account.BusinessProfile.Name)
		} else if account.ID != "" {
			displayInfo = fmt.Sprintf(" (account: %s)", account.ID)
		}
	}

	// Detect test vs live mode from the key prefix.
	mode := "test"
	if strings.HasPrefix(key, "sk_live_") {
		mode = "live"
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("Stripe key verified [%s mode]%s", mode, displayInfo),
	}
}

// ---------------------------------------------------------------------------
// ValidateAIKey
// ---------------------------------------------------------------------------

// defaultAIProbeBase is the chat-completions API base used for key probes.
const defaultAIProbeBase = "https://api.openai.com/v1"

// ValidateAIKey validates a text-generation API key by listing the available
// models. The /models endpoint is cheap, read-only, and rejects bad keys
// with 401 without consuming any generation quota.
func (v *Validator) ValidateAIKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "AI API key must not be empty"}
	}

	if len(key) < 20 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("AI API key must be at least 20 characters (got %d)", len(key)),
		}
	}

	base := v.aiBaseURL
	if base == "" {
		base = defaultAIProbeBase
	}

	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, strings.TrimSuffix(base, "/")+"/models", nil)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", bootstrapUserAgent)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("AI API probe failed: %v", err),
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusUnauthorized {
		return ValidationResult{
			Valid:   false,
			Message: "AI API returned 401 Unauthorized: key is invalid or revoked",
		}
	}

	if resp.StatusCode != http.StatusOK {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("AI API returned HTTP %d: %s", resp.StatusCode, truncateBody(body, 200)),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: "AI API key verified (models endpoint accessible)",
	}
}

// ---------------------------------------------------------------------------
// ValidatePlacesKey
// ---------------------------------------------------------------------------

// ValidatePlacesKey validates a places data provider API key using a length
// check only. The provider bills per request, so an active probe during
// bootstrap would consume quota for no benefit; the key is exercised by the
// first competitor search instead.
func (v *Validator) ValidatePlacesKey(_ context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "Places API key must not be empty"}
	}

	if len(key) <= 20 {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Places API key must be longer than 20 characters (got %d)", len(key)),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("Places API key accepted (length: %d chars)", len(key)),
	}
}

// ---------------------------------------------------------------------------
// ValidateRegex
// ---------------------------------------------------------------------------

// ValidateRegex is a generic validator that checks whether the input matches
// the given regular expression pattern. It is used as a fallback for inputs
// that cannot be actively probed, such as Stripe price ids and webhook
// signing secrets.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s must not be empty", fieldName),
		}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("invalid regex pattern %q: %v", pattern, err),
		}
	}

	if !re.MatchString(input) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s does not match expected format (pattern: %s)", fieldName, pattern),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("%s format validated", fieldName),
	}
}

// ---------------------------------------------------------------------------
// ValidateSECUserAgent
// ---------------------------------------------------------------------------

// secUserAgentRegex requires a contact email somewhere in the declared
// user agent, which EDGAR's fair-access policy mandates.
var secUserAgentRegex = regexp.MustCompile(`\S+@\S+\.\S+`)

// ValidateSECUserAgent validates the declared EDGAR User-Agent string.
// The SEC requires requests to identify the organization and include a
// contact email address.
func (v *Validator) ValidateSECUserAgent(_ context.Context, ua string) ValidationResult {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return ValidationResult{Valid: false, Message: "SEC User-Agent must not be empty"}
	}

	if !secUserAgentRegex.MatchString(ua) {
		return ValidationResult{
			Valid:   false,
			Message: "SEC User-Agent must include a contact email address (EDGAR fair-access policy)",
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: "SEC User-Agent accepted",
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// truncateBody returns the first n bytes of body as a string, appending
// "..." if truncation occurred. This is used for including partial API
// response bodies in error messages without overwhelming the user.
func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
