package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"pathsynch/internal/billing"
	"pathsynch/internal/cache"
	"pathsynch/internal/core"
	"pathsynch/internal/external"
	"pathsynch/internal/types"
)

// --- Service Interfaces ---

// SymbolResolver resolves stock tickers to SEC CIK numbers.
type SymbolResolver interface {
	CIK(ctx context.Context, ticker string) (string, error)
}

// --- Request/Response Models ---

// CompetitorsResponse is the payload for GET /v1/market/competitors.
type CompetitorsResponse struct {
	Competitors []external.Competitor `json:"competitors"`
	FromCache   bool                  `json:"from_cache"`
}

// DemographicsResponse is the payload for GET /v1/market/demographics.
type DemographicsResponse struct {
	Demographics *external.Demographics `json:"demographics"`
	FromCache    bool                   `json:"from_cache"`
}

// TrendsResponse is the payload for GET /v1/market/trends.
type TrendsResponse struct {
	Trends    *external.TrendReport `json:"trends"`
	FromCache bool                  `json:"from_cache"`
}

// FilingsResponse is the payload for GET /v1/market/filings.
type FilingsResponse struct {
	Facts     *external.CompanyFacts `json:"facts"`
	FromCache bool                   `json:"from_cache"`
}

// LogoResponse is the payload for GET /v1/market/logo.
type LogoResponse struct {
	Logo      *external.LogoResult `json:"logo"`
	FromCache bool                 `json:"from_cache"`
}

// --- Handler ---

// MarketHandler serves external market intelligence behind the content
// cache: competitors, demographics, trends, SEC filings, and logos.
type MarketHandler struct {
	places  external.PlacesProvider
	sec     external.SECProvider
	logos   external.LogoProvider
	symbols SymbolResolver
	cache   *cache.ContentCache
	gate    billing.UsageGate
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(
	places external.PlacesProvider,
	sec external.SECProvider,
	logos external.LogoProvider,
	symbols SymbolResolver,
	contentCache *cache.ContentCache,
	gate billing.UsageGate,
	l *slog.Logger,
) *MarketHandler {
	if l == nil {
		l = slog.Default()
	}
	return &MarketHandler{
		places:  places,
		sec:     sec,
		logos:   logos,
		symbols: symbols,
		cache:   contentCache,
		gate:    gate,
		logger:  l,
	}
}

// RegisterRoutes mounts the market data endpoints.
func (h *MarketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/market/competitors", h.Competitors)
	r.Get("/market/demographics", h.Demographics)
	r.Get("/market/trends", h.Trends)
	r.Get("/market/filings", h.Filings)
	r.Get("/market/logo", h.Logo)
}

// Competitors handles GET /v1/market/competitors?city=&state=&segment=.
func (h *MarketHandler) Competitors(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	city, state, segment := queryParam(r, "city"), queryParam(r, "state"), queryParam(r, "segment")
	if err := requireParams(map[string]string{"city": city, "state": state, "segment": segment}); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.gate.Admit(r.Context(), billing.GateRequest{
		UserID:    userID,
		Feature:   types.FeatureMarketReports,
		UsageType: types.UsageMarketReports,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	params := map[string]string{"city": city, "state": state, "segment": segment}
	payload, fromCache, err := h.cache.GetOrFetch(r.Context(), types.CacheCompetitors, params, func(ctx context.Context) ([]byte, error) {
		competitors, err := h.places.SearchCompetitors(ctx, city, state, segment)
		if err != nil {
			return nil, err
		}
		return json.Marshal(competitors)
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var competitors []external.Competitor
	if err := json.Unmarshal(payload, &competitors); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt cached payload", err))
		return
	}
	if !fromCache {
		h.gate.Record(r.Context(), userID, types.UsageMarketReports, 1)
	}
	core.OK(w, r, CompetitorsResponse{Competitors: competitors, FromCache: fromCache})
}

// Demographics handles GET /v1/market/demographics?city=&state=.
func (h *MarketHandler) Demographics(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	city, state := queryParam(r, "city"), queryParam(r, "state")
	if err := requireParams(map[string]string{"city": city, "state": state}); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.gate.Admit(r.Context(), billing.GateRequest{
		UserID:    userID,
		Feature:   types.FeatureMarketReports,
		UsageType: types.UsageMarketReports,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	params := map[string]string{"city": city, "state": state}
	payload, fromCache, err := h.cache.GetOrFetch(r.Context(), types.CacheDemographics, params, func(ctx context.Context) ([]byte, error) {
		demographics, err := h.places.Demographics(ctx, city, state)
		if err != nil {
			return nil, err
		}
		return json.Marshal(demographics)
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var demographics external.Demographics
	if err := json.Unmarshal(payload, &demographics); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt cached payload", err))
		return
	}
	if !fromCache {
		h.gate.Record(r.Context(), userID, types.UsageMarketReports, 1)
	}
	core.OK(w, r, DemographicsResponse{Demographics: &demographics, FromCache: fromCache})
}

// Trends handles GET /v1/market/trends?segment=.
func (h *MarketHandler) Trends(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	segment := queryParam(r, "segment")
	if err := requireParams(map[string]string{"segment": segment}); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.gate.Admit(r.Context(), billing.GateRequest{
		UserID:    userID,
		Feature:   types.FeatureTrendAnalysis,
		UsageType: types.UsageMarketReports,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	params := map[string]string{"segment": segment}
	payload, fromCache, err := h.cache.GetOrFetch(r.Context(), types.CacheTrends, params, func(ctx context.Context) ([]byte, error) {
		trends, err := h.places.Trends(ctx, segment)
		if err != nil {
			return nil, err
		}
		return json.Marshal(trends)
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var trends external.TrendReport
	if err := json.Unmarshal(payload, &trends); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt cached payload", err))
		return
	}
	if !fromCache {
		h.gate.Record(r.Context(), userID, types.UsageMarketReports, 1)
	}
	core.OK(w, r, TrendsResponse{Trends: &trends, FromCache: fromCache})
}

// Filings handles GET /v1/market/filings?ticker=. The ticker resolves to a
// CIK through the in-process symbol cache; company facts are cached as the
// metrics data type.
func (h *MarketHandler) Filings(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	ticker := queryParam(r, "ticker")
	if err := requireParams(map[string]string{"ticker": ticker}); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.gate.Admit(r.Context(), billing.GateRequest{
		UserID:    userID,
		Feature:   types.FeatureSECInsights,
		UsageType: types.UsageMarketReports,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	cik, err := h.symbols.CIK(r.Context(), ticker)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	params := map[string]string{"cik": cik}
	payload, fromCache, err := h.cache.GetOrFetch(r.Context(), types.CacheMetrics, params, func(ctx context.Context) ([]byte, error) {
		facts, err := h.sec.CompanyFacts(ctx, cik)
		if err != nil {
			return nil, err
		}
		return json.Marshal(facts)
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var facts external.CompanyFacts
	if err := json.Unmarshal(payload, &facts); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt cached payload", err))
		return
	}
	if !fromCache {
		h.gate.Record(r.Context(), userID, types.UsageMarketReports, 1)
	}
	core.OK(w, r, FilingsResponse{Facts: &facts, FromCache: fromCache})
}

// Logo handles GET /v1/market/logo?domain=&bypassCache=. Logo lookups are
// feature-gated but not metered.
func (h *MarketHandler) Logo(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	domain := queryParam(r, "domain")
	if err := requireParams(map[string]string{"domain": domain}); err != nil {
		core.Error(w, r, err)
		return
	}
	bypass := strings.EqualFold(r.URL.Query().Get("bypassCache"), "true")

	if _, err := h.gate.Admit(r.Context(), billing.GateRequest{
		UserID:  userID,
		Feature: types.FeatureLogoDiscovery,
	}); err != nil {
		core.Error(w, r, err)
		return
	}

	params := map[string]string{"domain": domain}
	payload, fromCache, err := h.cache.GetOrFetch(r.Context(), types.CacheLogo, params, func(ctx context.Context) ([]byte, error) {
		logo, err := h.logos.Discover(ctx, domain)
		if err != nil {
			return nil, err
		}
		return json.Marshal(logo)
	}, cache.WithBypass(bypass))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var logo external.LogoResult
	if err := json.Unmarshal(payload, &logo); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt cached payload", err))
		return
	}
	core.OK(w, r, LogoResponse{Logo: &logo, FromCache: fromCache})
}

// queryParam returns a trimmed query string value.
func queryParam(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

// requireParams rejects the request when any named parameter is empty.
func requireParams(params map[string]string) error {
	var missing []string
	for name, value := range params {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return types.NewAppErrorWithDetails(types.ErrCodeValidationQueryParam,
		"missing required query parameters", nil,
		map[string]any{"missing": missing})
}
