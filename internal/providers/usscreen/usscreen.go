// Package usscreen implements the US equity screener adapter (spec.md
// §4.F "US screener"): translates filter parameters into the
// upstream's query DSL, no credentials. Grounded on
// app/services/us_screener.py.
package usscreen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/providers"
	"github.com/sawpanic/marketgov/internal/ratelimit"
)

const defaultTimeout = 10 * time.Second

// Adapter implements providers.Adapter against the US screener query API.
type Adapter struct {
	http *providers.HTTPClient
}

// New builds a US-screener adapter.
func New(baseURL string, limiter *ratelimit.Registry) *Adapter {
	return &Adapter{http: providers.NewHTTPClient("usscreen", baseURL, defaultTimeout, limiter)}
}

// Fetch issues one screener query. resource selects the ranking type
// ("gainers", "losers", "most_active", "market_cap"); params carry the
// screener's filter DSL fields verbatim (already translated by the
// caller from the generic filter set).
func (a *Adapter) Fetch(ctx context.Context, resource string, params map[string]string) (json.RawMessage, error) {
	q := url.Values{"scrIds": {resource}}
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.http.BaseURL+"/v1/finance/screener?"+q.Encode(), nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamUnavailable, "usscreen", "failed to build request", err)
	}
	req.Header.Set("accept", "application/json")

	return a.http.DoJSON(ctx, resource, req)
}

// InvalidateCredentials is a no-op: the screener is unauthenticated.
func (a *Adapter) InvalidateCredentials() {}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// DailyCloses fetches the trailing daily closing-price series for
// symbol from the same chart endpoint the upstream screener's site
// uses, oldest-first. Satisfies screen.PriceHistoryProvider so the US
// pipeline's RSI/ADX enrichment can reuse this adapter directly.
func (a *Adapter) DailyCloses(ctx context.Context, symbol string) ([]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.http.BaseURL+
		"/v8/finance/chart/"+url.PathEscape(symbol)+"?range=3mo&interval=1d", nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamUnavailable, "usscreen", "failed to build request", err)
	}
	req.Header.Set("accept", "application/json")

	raw, err := a.http.DoJSON(ctx, "GET /v8/finance/chart", req)
	if err != nil {
		return nil, err
	}

	var decoded chartResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errs.New(errs.KindSchemaMismatch, "usscreen", "chart response decode failed", err)
	}
	if len(decoded.Chart.Result) == 0 || len(decoded.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, errs.New(errs.KindSchemaMismatch, "usscreen", "chart response had no quote series", nil)
	}

	closes := decoded.Chart.Result[0].Indicators.Quote[0].Close
	out := make([]float64, 0, len(closes))
	for _, c := range closes {
		if c > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}
