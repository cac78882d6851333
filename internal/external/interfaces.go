package external

import (
	"context"

	"pathsynch/internal/types"
)

// ---------------------------------------------------------------------------
// Text Generation (AI provider)
// ---------------------------------------------------------------------------

// Completion is the result of one text generation call.
type Completion struct {
	Content    string
	TokensUsed int
	Model      string
}

// TextGenerator abstracts the AI text generation provider. Implementations
// translate between prompt strings and the vendor's completion API.
type TextGenerator interface {
	// Generate produces narrative text for the given prompt. The provider's
	// model and token ceiling come from configuration, not the call site.
	Generate(ctx context.Context, prompt string) (*Completion, error)
}

// ---------------------------------------------------------------------------
// Places / Market Data
// ---------------------------------------------------------------------------

// Competitor is one nearby business returned from a competitor search.
type Competitor struct {
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Rating   float64 `json:"rating"`
	Reviews  int     `json:"reviews"`
	Category string  `json:"category"`
}

// Demographics summarizes the population profile of a city.
type Demographics struct {
	City           string  `json:"city"`
	State          string  `json:"state"`
	Population     int     `json:"population"`
	MedianIncome   int     `json:"median_income"`
	MedianAge      float64 `json:"median_age"`
	Households     int     `json:"households"`
	Establishments int     `json:"establishments"`
}

// TrendKeyword is one search-interest data point for a market segment.
type TrendKeyword struct {
	Term   string  `json:"term"`
	Score  float64 `json:"score"`
	Change float64 `json:"change"`
}

// TrendReport aggregates interest trends for a market segment.
type TrendReport struct {
	Segment  string         `json:"segment"`
	Keywords []TrendKeyword `json:"keywords"`
}

// PlacesProvider abstracts the business/places data vendor used for
// competitor, demographic, and trend lookups.
type PlacesProvider interface {
	SearchCompetitors(ctx context.Context, city, state, segment string) ([]Competitor, error)
	Demographics(ctx context.Context, city, state string) (*Demographics, error)
	Trends(ctx context.Context, segment string) (*TrendReport, error)
}

// ---------------------------------------------------------------------------
// SEC Filings Data
// ---------------------------------------------------------------------------

// CompanyFacts is the financial summary for one public company.
type CompanyFacts struct {
	CIK        string         `json:"cik"`
	EntityName string         `json:"entityName"`
	Facts      map[string]any `json:"facts"`
}

// SECProvider abstracts the regulator's data API. TickerTable doubles as the
// cache.SymbolSource feeding the ticker -> CIK lookup cache.
type SECProvider interface {
	TickerTable(ctx context.Context) (map[string]string, error)
	CompanyFacts(ctx context.Context, cik string) (*CompanyFacts, error)
}

// ---------------------------------------------------------------------------
// Logo Discovery
// ---------------------------------------------------------------------------

// LogoResult is the outcome of a logo probe: the URL that answered and the
// content type it served.
type LogoResult struct {
	Domain      string `json:"domain"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Source      string `json:"source"` // "provider" or "favicon"
}

// LogoProvider abstracts logo discovery for a business web domain.
type LogoProvider interface {
	Discover(ctx context.Context, domain string) (*LogoResult, error)
}

// ---------------------------------------------------------------------------
// Billing (Stripe)
// ---------------------------------------------------------------------------

// BillingProvider abstracts the payment platform. Implementations translate
// between domain types and vendor-specific APIs; subscription state itself is
// projected locally by the billing event processor, so there is no read path
// here.
type BillingProvider interface {
	// EnsureCustomer retrieves or creates a payment-platform customer for
	// the user, returning the external customer id.
	EnsureCustomer(ctx context.Context, userID string, email string) (string, error)

	// CreateCheckoutSession generates a hosted checkout URL for upgrading to
	// the given plan. userID rides in metadata for webhook correlation.
	CreateCheckoutSession(ctx context.Context, userID string, plan types.PlanTier, successURL, cancelURL string) (checkoutURL string, sessionID string, err error)

	// CreatePortalSession generates a self-serve billing portal URL.
	CreatePortalSession(ctx context.Context, userID string, returnURL string) (portalURL string, err error)
}

// WebhookVerifier validates an inbound webhook payload against its signature
// header before any processing happens.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}
