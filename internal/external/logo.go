package external

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pathsynch/internal/config"
	"pathsynch/internal/types"
)

// logoAPIBase is the default logo provider base URL.
const logoAPIBase = "https://img.logo.dev"

// Logo results come from one of two probe paths.
const (
	logoSourceProvider = "provider"
	logoSourceFavicon  = "favicon"
)

// LogoClientConfig holds the configuration for creating a LogoClient.
type LogoClientConfig struct {
	BaseURL string // Override for testing; defaults to logoAPIBase
	APIKey  string // Optional provider token; appended as a query param
	Logger  *slog.Logger
}

// LogoClientConfigFromApp maps the application logo config onto the client
// config.
func LogoClientConfigFromApp(cfg config.LogoConfig, logger *slog.Logger) LogoClientConfig {
	return LogoClientConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey.Unmask(),
		Logger:  logger,
	}
}

// LogoClient implements LogoProvider by probing the logo provider for the
// domain and falling back to the site's own favicon when the provider has
// nothing. Probes are HEAD-then-GET cheap checks, not image downloads.
type LogoClient struct {
	base        *BaseClient
	baseURL     string
	apiKey      string
	faviconBase string // override for tests; "" means https://<domain>
	logger      *slog.Logger
}

// NewLogoClient creates a new LogoClient. Logo probes are best-effort
// decoration, so there is a single retry and a short backoff.
func NewLogoClient(httpClient *http.Client, cfg LogoClientConfig) *LogoClient {
	base := NewBaseClient(
		httpClient,
		"logo",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    250 * time.Millisecond,
			MaxWait:    1 * time.Second,
		},
		"PathSynch/1.0",
	)

	return NewLogoClientWithBase(base, cfg)
}

// NewLogoClientWithBase creates a LogoClient with a pre-configured
// BaseClient.
func NewLogoClientWithBase(base *BaseClient, cfg LogoClientConfig) *LogoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = logoAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LogoClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// Discover probes the provider for a logo belonging to domain, falling back
// to the site favicon. Returns not-found only when both probes miss.
func (c *LogoClient) Discover(ctx context.Context, domain string) (*LogoResult, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"a domain is required for logo discovery",
			nil,
		)
	}

	providerURL := c.baseURL + "/" + domain
	if c.apiKey != "" {
		providerURL += "?token=" + url.QueryEscape(c.apiKey)
	}

	if result, ok := c.probe(ctx, providerURL, domain, logoSourceProvider); ok {
		return result, nil
	}

	faviconBase := c.faviconBase
	if faviconBase == "" {
		faviconBase = "https://" + domain
	}

	if result, ok := c.probe(ctx, faviconBase+"/favicon.ico", domain, logoSourceFavicon); ok {
		return result, nil
	}

	return nil, types.NewAppError(
		types.ErrCodeUpstreamLogo,
		"no logo found for "+domain,
		nil,
	)
}

// probe issues a GET against candidate and reports whether it served an
// image. Failures are logged and treated as a miss; the fallback decides
// whether the whole discovery fails.
func (c *LogoClient) probe(ctx context.Context, candidate, domain, source string) (*LogoResult, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return nil, false
	}

	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "logo probe failed",
			"domain", domain,
			"source", source,
			"error", err,
		)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, false
	}

	return &LogoResult{
		Domain:      domain,
		URL:         candidate,
		ContentType: contentType,
		Source:      source,
	}, true
}

// normalizeDomain strips scheme, path, and port from a user-supplied website
// value, leaving the bare host.
func normalizeDomain(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}

	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			raw = u.Host
		}
	}

	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[:i]
	}

	return strings.TrimPrefix(raw, "www.")
}

// Compile-time interface compliance check.
var _ LogoProvider = (*LogoClient)(nil)
