package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pathsynch/internal/config"
	"pathsynch/internal/types"
)

// placesAPIBase is the default market data API base URL.
const placesAPIBase = "https://places.googleapis.com/v1"

// competitorSearchLimit caps how many nearby businesses a single competitor
// search returns.
const competitorSearchLimit = 10

// PlacesClientConfig holds the configuration for creating a PlacesClient.
type PlacesClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to placesAPIBase
	Logger  *slog.Logger
}

// PlacesClientConfigFromApp maps the application places config onto the
// client config.
func PlacesClientConfigFromApp(cfg config.PlacesConfig, logger *slog.Logger) PlacesClientConfig {
	return PlacesClientConfig{
		APIKey:  cfg.APIKey.Unmask(),
		BaseURL: cfg.BaseURL,
		Logger:  logger,
	}
}

// textSearchRequest is the request envelope for the places text search
// endpoint.
type textSearchRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"maxResultCount"`
}

// textSearchResponse is the subset of the text search response we act on.
type textSearchResponse struct {
	Places []struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string  `json:"formattedAddress"`
		Rating           float64 `json:"rating"`
		UserRatingCount  int     `json:"userRatingCount"`
		PrimaryTypeName  struct {
			Text string `json:"text"`
		} `json:"primaryTypeDisplayName"`
	} `json:"places"`
}

// demographicsResponse mirrors the area demographics endpoint payload.
type demographicsResponse struct {
	City           string  `json:"city"`
	State          string  `json:"state"`
	Population     int     `json:"population"`
	MedianIncome   int     `json:"medianIncome"`
	MedianAge      float64 `json:"medianAge"`
	Households     int     `json:"households"`
	Establishments int     `json:"establishments"`
}

// trendsResponse mirrors the segment trends endpoint payload.
type trendsResponse struct {
	Segment  string `json:"segment"`
	Keywords []struct {
		Term   string  `json:"term"`
		Score  float64 `json:"score"`
		Change float64 `json:"change"`
	} `json:"keywords"`
}

// PlacesClient implements PlacesProvider against the configured market data
// API: text search for competitor discovery plus area demographics and
// segment trend endpoints. All calls route through BaseClient.
type PlacesClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewPlacesClient creates a new PlacesClient with sensible retry defaults.
func NewPlacesClient(httpClient *http.Client, cfg PlacesClientConfig) *PlacesClient {
	base := NewBaseClient(
		httpClient,
		"places",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"PathSynch/1.0",
	)

	return NewPlacesClientWithBase(base, cfg)
}

// NewPlacesClientWithBase creates a PlacesClient with a pre-configured
// BaseClient, for tests that need to control retry behavior.
func NewPlacesClientWithBase(base *BaseClient, cfg PlacesClientConfig) *PlacesClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = placesAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PlacesClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// SearchCompetitors finds businesses matching the segment in the given
// city/state via the text search endpoint.
func (c *PlacesClient) SearchCompetitors(ctx context.Context, city, state, segment string) ([]Competitor, error) {
	query := fmt.Sprintf("%s in %s, %s", segment, city, state)

	reqBody := textSearchRequest{
		TextQuery:      query,
		MaxResultCount: competitorSearchLimit,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to serialize competitor search request",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/places:searchText", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create competitor search request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask",
		"places.displayName,places.formattedAddress,places.rating,places.userRatingCount,places.primaryTypeDisplayName")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("SearchCompetitors", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "SearchCompetitors")
	}

	var searchResp textSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode competitor search response",
			err,
		)
	}

	competitors := make([]Competitor, 0, len(searchResp.Places))
	for _, p := range searchResp.Places {
		if p.DisplayName.Text == "" {
			continue
		}
		competitors = append(competitors, Competitor{
			Name:     p.DisplayName.Text,
			Address:  p.FormattedAddress,
			Rating:   p.Rating,
			Reviews:  p.UserRatingCount,
			Category: p.PrimaryTypeName.Text,
		})
	}

	c.logger.InfoContext(ctx, "competitor search complete",
		"query", query,
		"results", len(competitors),
	)

	return competitors, nil
}

// Demographics fetches area-level demographic figures for a city/state pair.
func (c *PlacesClient) Demographics(ctx context.Context, city, state string) (*Demographics, error) {
	q := url.Values{}
	q.Set("city", city)
	q.Set("state", state)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/areas/demographics?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create demographics request",
			err,
		)
	}

	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("Demographics", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "Demographics")
	}

	var demoResp demographicsResponse
	if err := json.NewDecoder(resp.Body).Decode(&demoResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode demographics response",
			err,
		)
	}

	return &Demographics{
		City:           demoResp.City,
		State:          demoResp.State,
		Population:     demoResp.Population,
		MedianIncome:   demoResp.MedianIncome,
		MedianAge:      demoResp.MedianAge,
		Households:     demoResp.Households,
		Establishments: demoResp.Establishments,
	}, nil
}

// Trends fetches keyword trend scores for a business segment.
func (c *PlacesClient) Trends(ctx context.Context, segment string) (*TrendReport, error) {
	q := url.Values{}
	q.Set("segment", segment)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/segments/trends?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create trends request",
			err,
		)
	}

	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("Trends", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "Trends")
	}

	var trendsResp trendsResponse
	if err := json.NewDecoder(resp.Body).Decode(&trendsResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode trends response",
			err,
		)
	}

	report := &TrendReport{
		Segment:  trendsResp.Segment,
		Keywords: make([]TrendKeyword, 0, len(trendsResp.Keywords)),
	}
	for _, k := range trendsResp.Keywords {
		report.Keywords = append(report.Keywords, TrendKeyword{
			Term:   k.Term,
			Score:  k.Score,
			Change: k.Change,
		})
	}

	return report, nil
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an appropriate AppError.
func (c *PlacesClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("places API error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	return types.NewAppError(
		types.ErrCodeUpstreamPlaces,
		fmt.Sprintf("places API error (%d): %s", resp.StatusCode, operation),
		fmt.Errorf("places %s returned %d: %s", operation, resp.StatusCode, bodyStr),
	)
}

// wrapError converts errors from BaseClient.Do into places-specific errors,
// preserving codes from AppErrors raised by the transport layer.
func (c *PlacesClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("places %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamPlaces,
		fmt.Sprintf("places %s failed", operation),
		err,
	)
}

// Compile-time interface compliance check.
var _ PlacesProvider = (*PlacesClient)(nil)
