// Package bulkdata implements the KRX stock/ETF/valuation fetchers
// from spec.md §4.E: for each trading-date candidate, consult the
// cache; on a miss, call the bulk portal; on an empty response, try
// the next candidate date. Grounded on app/services/krx_bulk.py and
// wired against internal/sharedcache + internal/tradingdate.
package bulkdata

import (
	"context"
	"encoding/json"
	"fmt"

	"time"

	"github.com/sawpanic/marketgov/internal/sharedcache"
	"github.com/sawpanic/marketgov/internal/telemetry"
	"github.com/sawpanic/marketgov/internal/tradingdate"
)

const bulkTTL = 5 * time.Minute

// Provider is the minimal bulk-portal contract the fetchers need.
type Provider interface {
	Fetch(ctx context.Context, resource string, params map[string]string) (json.RawMessage, error)
}

// Fetchers bundles the shared dependencies for all three bulk-data
// operations.
type Fetchers struct {
	provider Provider
	cache    *sharedcache.Cache
	resolver *tradingdate.Resolver
}

// New builds a Fetchers against one bulk-portal provider, cache, and
// date resolver.
func New(provider Provider, cache *sharedcache.Cache, resolver *tradingdate.Resolver) *Fetchers {
	return &Fetchers{provider: provider, cache: cache, resolver: resolver}
}

// rawRow is one KRX bulk-portal record, decoded loosely since the
// portal's schema uses string-typed numeric fields throughout.
type rawRow map[string]string

// fetchWithDateFallback implements the per-date cache-then-fetch loop
// common to every bulk resource: consult cache.get(key(date)); on
// miss, call the provider; on a non-empty response, normalise and
// cache it; on empty, advance to the next candidate date.
func fetchWithDateFallback[T any](
	ctx context.Context,
	f *Fetchers,
	resource string,
	explicit *string,
	cacheKey func(date string) string,
	fetchRaw func(ctx context.Context, date string) ([]rawRow, error),
	normalise func([]rawRow) []T,
) ([]T, error) {
	candidates := f.resolver.Candidates(ctx, explicit)

	for _, date := range candidates {
		key := cacheKey(date)

		if cached, ok := sharedcache.GetJSON[[]T](ctx, f.cache, key); ok {
			return cached, nil
		}

		rows, err := fetchRaw(ctx, date)
		if err != nil {
			telemetry.For("bulkdata").Warn().Err(err).Str("resource", resource).Str("date", date).Msg("bulk fetch failed, trying next candidate date")
			continue
		}
		if len(rows) == 0 {
			telemetry.For("bulkdata").Debug().Str("resource", resource).Str("date", date).Msg("empty bulk response, trying next candidate date")
			continue
		}

		normalised := normalise(rows)
		if err := sharedcache.SetJSON(ctx, f.cache, key, normalised, bulkTTL); err != nil {
			telemetry.For("bulkdata").Warn().Err(err).Str("resource", resource).Msg("failed to cache bulk result")
		}
		return normalised, nil
	}

	return nil, nil
}

func decodeRows(raw json.RawMessage) ([]rawRow, error) {
	var envelope struct {
		OutBlock1 []rawRow `json:"OutBlock_1"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	return envelope.OutBlock1, nil
}
