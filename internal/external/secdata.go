package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pathsynch/internal/config"
	"pathsynch/internal/types"
)

// secAPIBase is the default EDGAR data API base URL.
const secAPIBase = "https://data.sec.gov"

// SECClientConfig holds the configuration for creating a SECClient. The SEC
// rejects requests without a descriptive User-Agent identifying the caller.
type SECClientConfig struct {
	BaseURL   string // Override for testing; defaults to secAPIBase
	UserAgent string
	Logger    *slog.Logger
}

// SECClientConfigFromApp maps the application SEC config onto the client
// config.
func SECClientConfigFromApp(cfg config.SECConfig, logger *slog.Logger) SECClientConfig {
	return SECClientConfig{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	}
}

// tickerTableEntry is one row of the company_tickers.json download. The file
// is a JSON object keyed by arbitrary index strings, not an array.
type tickerTableEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// companyFactsResponse is the subset of the companyfacts payload we act on.
type companyFactsResponse struct {
	CIK        int64                      `json:"cik"`
	EntityName string                     `json:"entityName"`
	Facts      map[string]json.RawMessage `json:"facts"`
}

// SECClient implements SECProvider against the EDGAR data API. TickerTable
// downloads are large (~1MB) and slow, so callers should front this with
// cache.SymbolCache rather than hitting it per request.
type SECClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewSECClient creates a new SECClient. EDGAR throttles aggressively, so the
// retry policy backs off harder than the other clients.
func NewSECClient(httpClient *http.Client, cfg SECClientConfig) *SECClient {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "PathSynch research@pathsynch.io"
	}

	// EDGAR's fair-access policy caps clients at 10 req/s; 110ms spacing
	// stays just under it.
	base := NewBaseClient(
		httpClient,
		"sec",
		RetryPolicy{
			MaxRetries: 3,
			MinWait:    2 * time.Second,
			MaxWait:    20 * time.Second,
		},
		userAgent,
		WithMinInterval(110*time.Millisecond),
	)

	return NewSECClientWithBase(base, cfg)
}

// NewSECClientWithBase creates a SECClient with a pre-configured BaseClient.
func NewSECClientWithBase(base *BaseClient, cfg SECClientConfig) *SECClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = secAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SECClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// TickerTable downloads the full ticker registry and returns an uppercase
// ticker -> zero-padded 10-digit CIK map.
func (c *SECClient) TickerTable(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/files/company_tickers.json", nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create ticker table request",
			err,
		)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("TickerTable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "TickerTable")
	}

	var entries map[string]tickerTableEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode ticker table response",
			err,
		)
	}

	table := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Ticker == "" {
			continue
		}
		table[strings.ToUpper(e.Ticker)] = fmt.Sprintf("%010d", e.CIK)
	}

	c.logger.InfoContext(ctx, "ticker table refreshed", "tickers", len(table))

	return table, nil
}

// CompanyFacts fetches the financial facts document for a zero-padded CIK.
func (c *SECClient) CompanyFacts(ctx context.Context, cik string) (*CompanyFacts, error) {
	if len(cik) != 10 {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"company facts require a 10-digit CIK",
			nil,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/xbrl/companyfacts/CIK"+cik+".json", nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create company facts request",
			err,
		)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("CompanyFacts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundTicker,
			"no filings found for CIK "+cik,
			nil,
		)
	}
	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "CompanyFacts")
	}

	var factsResp companyFactsResponse
	if err := json.NewDecoder(resp.Body).Decode(&factsResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode company facts response",
			err,
		)
	}

	facts := make(map[string]any, len(factsResp.Facts))
	for taxonomy, raw := range factsResp.Facts {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		facts[taxonomy] = v
	}

	return &CompanyFacts{
		CIK:        fmt.Sprintf("%010d", factsResp.CIK),
		EntityName: factsResp.EntityName,
		Facts:      facts,
	}, nil
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an appropriate AppError.
func (c *SECClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("SEC API error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	return types.NewAppError(
		types.ErrCodeUpstreamSEC,
		fmt.Sprintf("SEC API error (%d): %s", resp.StatusCode, operation),
		fmt.Errorf("sec %s returned %d: %s", operation, resp.StatusCode, bodyStr),
	)
}

// wrapError converts errors from BaseClient.Do into SEC-specific errors,
// preserving codes from AppErrors raised by the transport layer.
func (c *SECClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("sec %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamSEC,
		fmt.Sprintf("sec %s failed", operation),
		err,
	)
}

// Compile-time interface compliance checks. SECClient also backs the symbol
// lookup cache as its refresh source.
var _ SECProvider = (*SECClient)(nil)
