// Package coingecko implements screen.MarketCapSource: a single
// public, credential-free ranking-source snapshot the crypto pipeline
// layers its own 10-minute freshness window over (spec.md §4.H step
// 4). Grounded on the uniform HTTPClient wrapper every other provider
// in internal/providers uses.
package coingecko

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/providers"
	"github.com/sawpanic/marketgov/internal/ratelimit"
)

const defaultTimeout = 10 * time.Second

// Adapter fetches a KRW-market-code -> market-cap map from
// CoinGecko's public markets endpoint.
type Adapter struct {
	http *providers.HTTPClient
}

// New builds a market-cap ranking adapter.
func New(baseURL string, limiter *ratelimit.Registry) *Adapter {
	return &Adapter{http: providers.NewHTTPClient("coingecko", baseURL, defaultTimeout, limiter)}
}

type coinMarket struct {
	Symbol     string  `json:"symbol"`
	MarketCap  float64 `json:"market_cap"`
}

// Snapshot implements screen.MarketCapSource, keyed by upbit-style
// "KRW-<SYMBOL>" market codes so the crypto pipeline can look results
// up directly by the same code it screens with.
func (a *Adapter) Snapshot(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.http.BaseURL+
		"/api/v3/coins/markets?vs_currency=krw&order=market_cap_desc&per_page=250&page=1", nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamUnavailable, "coingecko", "failed to build request", err)
	}
	req.Header.Set("accept", "application/json")

	raw, err := a.http.DoJSON(ctx, "GET /api/v3/coins/markets", req)
	if err != nil {
		return nil, err
	}

	var coins []coinMarket
	if err := json.Unmarshal(raw, &coins); err != nil {
		return nil, errs.New(errs.KindSchemaMismatch, "coingecko", "markets response decode failed", err)
	}

	snapshot := make(map[string]float64, len(coins))
	for _, c := range coins {
		snapshot["KRW-"+upperSymbol(c.Symbol)] = c.MarketCap
	}
	return snapshot, nil
}

func upperSymbol(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}
