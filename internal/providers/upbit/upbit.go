// Package upbit implements the crypto-exchange REST adapter (spec.md
// §4.F "Crypto exchange REST"): ticker lists, market metadata, and
// current prices, all public endpoints with no credentials. Grounded
// on the teacher's KrakenProvider in
// src/infrastructure/providers/kraken.go.
package upbit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"context"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/providers"
	"github.com/sawpanic/marketgov/internal/ratelimit"
)

const defaultTimeout = 5 * time.Second

// Adapter implements providers.Adapter against Upbit's public REST API.
type Adapter struct {
	http *providers.HTTPClient
}

// New builds a crypto-exchange adapter.
func New(baseURL string, limiter *ratelimit.Registry) *Adapter {
	return &Adapter{http: providers.NewHTTPClient("upbit", baseURL, defaultTimeout, limiter)}
}

// Fetch dispatches to one of the supported resources: "markets" (all
// KRW-quoted market metadata, including trading-warning flags),
// "ticker" (current price + 24h change for a comma-joined list of
// market codes), or "candles" (the last 30 daily candles for one
// market).
func (a *Adapter) Fetch(ctx context.Context, resource string, params map[string]string) (json.RawMessage, error) {
	switch resource {
	case "markets":
		return a.fetch(ctx, "/v1/market/all?isDetails=true", "GET /v1/market/all")
	case "ticker":
		markets := params["markets"]
		return a.fetch(ctx, "/v1/ticker?markets="+markets, "GET /v1/ticker")
	case "candles":
		market := params["market"]
		return a.fetch(ctx, "/v1/candles/days?market="+market+"&count=30", "GET /v1/candles/days")
	default:
		return nil, errs.New(errs.KindValidation, "upbit", fmt.Sprintf("unknown resource %q", resource), nil)
	}
}

func (a *Adapter) fetch(ctx context.Context, path, endpointKey string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.http.BaseURL+path, nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamUnavailable, "upbit", "failed to build request", err)
	}
	req.Header.Set("accept", "application/json")
	return a.http.DoJSON(ctx, endpointKey, req)
}

// InvalidateCredentials is a no-op: Upbit's public endpoints carry no
// credentials to invalidate.
func (a *Adapter) InvalidateCredentials() {}

// Market is the normalised record for one Upbit trading pair.
type Market struct {
	MarketCode string `json:"market"`
	KoreanName string `json:"korean_name"`
	EnglishName string `json:"english_name"`
	Warning    string `json:"market_warning"`
}

// IsFlaggedWarning reports whether a market's exchange-supplied
// warning flag should exclude it under spec.md §4.H's warning filter
// (`warning ∈ {CAUTION, WARNING, true, Y, 1}`).
func IsFlaggedWarning(warning string) bool {
	switch strings.ToUpper(strings.TrimSpace(warning)) {
	case "CAUTION", "WARNING", "TRUE", "Y", "1":
		return true
	default:
		return false
	}
}

// Ticker is the normalised record for one market's current price/change.
type Ticker struct {
	MarketCode    string  `json:"market"`
	TradePrice    float64 `json:"trade_price"`
	ChangeRate24h float64 `json:"signed_change_rate"`
	AccTradeValue float64 `json:"acc_trade_price_24h"`
}

// DailyCloses fetches the most recent daily closing-price series for
// market, oldest-first, for use by the RSI/ADX kernel. Satisfies
// screen.PriceHistoryProvider.
func (a *Adapter) DailyCloses(ctx context.Context, market string) ([]float64, error) {
	raw, err := a.Fetch(ctx, "candles", map[string]string{"market": market})
	if err != nil {
		return nil, err
	}
	var decoded []struct {
		TradePrice float64 `json:"trade_price"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errs.New(errs.KindSchemaMismatch, "upbit", "candles response decode failed", err)
	}
	closes := make([]float64, 0, len(decoded))
	for i := len(decoded) - 1; i >= 0; i-- {
		closes = append(closes, decoded[i].TradePrice)
	}
	return closes, nil
}
