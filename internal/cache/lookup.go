package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"pathsynch/internal/types"
)

// Defaults for the symbol cache. The full regulator table holds roughly ten
// thousand tickers; the cache is sized to hold all of them plus negative
// entries without eviction pressure.
const (
	DefaultSymbolCacheSize = 16384
	DefaultSymbolTTL       = 24 * time.Hour
)

// SymbolSource loads the complete ticker-to-CIK table from the regulator.
type SymbolSource interface {
	TickerTable(ctx context.Context) (map[string]string, error)
}

// SymbolCache resolves ticker symbols to CIK identifiers. It is a
// constructed, injected object: entries live in an expirable LRU and the
// table is lazily loaded on the first miss, so a cold process serves its
// first lookup from one upstream download and everything after from memory.
// Unknown tickers are cached as negative entries to stop repeat misses from
// re-downloading the table.
type SymbolCache struct {
	source SymbolSource
	lru    *expirable.LRU[string, string]
	logger *slog.Logger

	// mu serializes table loads; concurrent misses wait for one download.
	mu sync.Mutex
}

// NewSymbolCache builds the cache. size and ttl fall back to the defaults
// when non-positive; if logger is nil, slog.Default() is used.
func NewSymbolCache(source SymbolSource, size int, ttl time.Duration, logger *slog.Logger) *SymbolCache {
	if size <= 0 {
		size = DefaultSymbolCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultSymbolTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SymbolCache{
		source: source,
		lru:    expirable.NewLRU[string, string](size, nil, ttl),
		logger: logger,
	}
}

// CIK resolves a ticker to its CIK identifier.
func (s *SymbolCache) CIK(ctx context.Context, ticker string) (string, error) {
	key := normalizeTicker(ticker)
	if key == "" {
		return "", types.NewAppError(types.ErrCodeValidationQueryParam, "ticker is required", nil)
	}

	if cik, ok := s.lru.Get(key); ok {
		return s.unwrap(key, cik)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have loaded the table while we waited on the lock.
	if cik, ok := s.lru.Get(key); ok {
		return s.unwrap(key, cik)
	}

	table, err := s.source.TickerTable(ctx)
	if err != nil {
		return "", err
	}
	for t, cik := range table {
		s.lru.Add(normalizeTicker(t), cik)
	}
	s.logger.InfoContext(ctx, "symbol table loaded", "tickers", len(table))

	if cik, ok := s.lru.Get(key); ok {
		return s.unwrap(key, cik)
	}

	// Negative entry: the table is authoritative, so the ticker stays
	// unknown until the entry expires and the table reloads.
	s.lru.Add(key, "")
	return "", types.NewAppError(types.ErrCodeNotFoundTicker,
		fmt.Sprintf("ticker %q not found", key), nil)
}

func (s *SymbolCache) unwrap(key, cik string) (string, error) {
	if cik == "" {
		return "", types.NewAppError(types.ErrCodeNotFoundTicker,
			fmt.Sprintf("ticker %q not found", key), nil)
	}
	return cik, nil
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
