package screen

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/sawpanic/marketgov/internal/indicator"
	"github.com/sawpanic/marketgov/internal/providers/upbit"
	"github.com/sawpanic/marketgov/internal/sharedcache"
	"github.com/sawpanic/marketgov/internal/telemetry"
)

const (
	marketCapFreshWindow = 10 * time.Minute
	marketCapDurableTTL  = 24 * time.Hour
	marketCapCacheKey    = "coingecko:market_cap_snapshot"
)

// marketCapEnvelope is the cached payload, durable well past the
// 10-minute freshness window so a snapshot-source outage can still
// fall back to the last known-good map.
type marketCapEnvelope struct {
	Data      map[string]float64 `json:"data"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// CryptoExchangeProvider is the subset of the upbit adapter the crypto
// pipeline needs: market metadata (with warning flags) and 24h
// ticker data for the universe.
type CryptoExchangeProvider interface {
	Fetch(ctx context.Context, resource string, params map[string]string) (json.RawMessage, error)
}

// MarketCapSource fetches a base-currency -> market-cap map from an
// external ranking service (CoinGecko in production).
type MarketCapSource interface {
	Snapshot(ctx context.Context) (map[string]float64, error)
}

// CryptoPipeline screens the KRW crypto universe.
type CryptoPipeline struct {
	exchange      CryptoExchangeProvider
	prices        PriceHistoryProvider
	marketCaps    MarketCapSource
	cache         *sharedcache.Cache
	topByVolume   int
	dropThreshold float64
	marketPanic   float64
}

// CryptoConfig carries the environment-contract knobs from spec.md §6.
type CryptoConfig struct {
	TopByVolume   int
	DropThreshold float64
	MarketPanic   float64
}

// NewCryptoPipeline builds a crypto screening pipeline.
func NewCryptoPipeline(exchange CryptoExchangeProvider, prices PriceHistoryProvider, marketCaps MarketCapSource, cache *sharedcache.Cache, cfg CryptoConfig) *CryptoPipeline {
	return &CryptoPipeline{
		exchange: exchange, prices: prices, marketCaps: marketCaps, cache: cache,
		topByVolume: cfg.TopByVolume, dropThreshold: cfg.DropThreshold, marketPanic: cfg.MarketPanic,
	}
}

type upbitMarket struct {
	Market  string `json:"market"`
	Warning string `json:"market_warning"`
}

type upbitTicker struct {
	Market           string  `json:"market"`
	ChangeRate       float64 `json:"signed_change_rate"`
	AccTradePrice24h float64 `json:"acc_trade_price_24h"`
}

// Screen runs the crypto pipeline per spec.md §4.H.
func (p *CryptoPipeline) Screen(ctx context.Context, f Filters) (Result, error) {
	resolved, warnings, err := validateAndResolve(f, true, false)
	if err != nil {
		return Result{}, err
	}

	marketsRaw, err := p.exchange.Fetch(ctx, "markets", nil)
	if err != nil {
		return Result{}, &ErrorResult{Source: "upbit", Message: "market metadata fetch failed: " + err.Error()}
	}
	var markets []upbitMarket
	if err := json.Unmarshal(marketsRaw, &markets); err != nil {
		return Result{}, &ErrorResult{Source: "upbit", Message: "market metadata decode failed: " + err.Error()}
	}

	warningFlags := make(map[string]string, len(markets))
	for _, m := range markets {
		warningFlags[m.Market] = m.Warning
	}

	tickersRaw, err := p.exchange.Fetch(ctx, "ticker", map[string]string{"markets": joinMarkets(markets)})
	if err != nil {
		return Result{}, &ErrorResult{Source: "upbit", Message: "ticker fetch failed: " + err.Error()}
	}
	var tickers []upbitTicker
	if err := json.Unmarshal(tickersRaw, &tickers); err != nil {
		return Result{}, &ErrorResult{Source: "upbit", Message: "ticker decode failed: " + err.Error()}
	}

	totalMarkets := len(tickers)

	sort.SliceStable(tickers, func(i, j int) bool {
		return tickers[i].AccTradePrice24h > tickers[j].AccTradePrice24h
	})
	topByVolume := p.topByVolume
	if topByVolume > len(tickers) {
		topByVolume = len(tickers)
	}
	tickers = tickers[:topByVolume]

	btcChange := 0.0
	btcFound := false
	for _, t := range tickers {
		if t.Market == "KRW-BTC" {
			btcChange = t.ChangeRate
			btcFound = true
			break
		}
	}
	if !btcFound {
		warnings = append(warnings, "BTC 24h change unavailable, substituting 0 for crash filter")
	}

	filteredByCrash := 0
	filteredByWarning := 0
	var rows []Row
	for _, t := range tickers {
		if t.ChangeRate <= p.dropThreshold && btcChange > p.marketPanic {
			filteredByCrash++
			continue
		}
		if upbit.IsFlaggedWarning(warningFlags[t.Market]) {
			filteredByWarning++
			continue
		}
		changeRate := t.ChangeRate
		tradeAmount := t.AccTradePrice24h
		rows = append(rows, Row{
			"code": t.Market, "change_rate": &changeRate, "trade_amount": &tradeAmount,
		})
	}

	rsiMeta := p.enrichRSI(ctx, rows)
	if msg, ok := rsiTimeoutWarning(rsiMeta); ok {
		warnings = append(warnings, msg)
	}

	snapshot, cached, age, snapErr := p.marketCapSnapshot(ctx)
	if snapErr != nil {
		warnings = append(warnings, "market-cap snapshot unavailable, market_cap fields set to null")
	} else if cached && age >= marketCapFreshWindow {
		warnings = append(warnings, "using stale market-cap snapshot")
	}
	for _, r := range rows {
		code, _ := r["code"].(string)
		if marketCap, ok := snapshot[code]; ok {
			marketCapCopy := marketCap
			r["market_cap"] = &marketCapCopy
		} else {
			r["market_cap"] = (*float64)(nil)
		}
	}

	for _, r := range rows {
		rsi, _ := r["rsi"].(*float64)
		r["rsi_bucket"] = rsiBucket(rsi)
	}

	if resolved.SortBy == "rsi" {
		sortRowsByRSIBucket(rows, func(r Row) int { return r["rsi_bucket"].(int) }, rowFloatKey("trade_amount"))
	} else {
		sortByField(rows, resolved.SortBy, resolved.SortOrder)
	}

	totalCount := len(rows)
	if resolved.Limit < len(rows) {
		rows = rows[:resolved.Limit]
	}

	cachedFlag := cached
	ageSeconds := int(age.Seconds())
	enrichedCount := rsiMeta.Succeeded

	return Result{
		Results:        rows,
		TotalCount:     totalCount,
		ReturnedCount:  len(rows),
		FiltersApplied: resolved,
		Market:         "crypto",
		Meta: Meta{
			RSIEnrichment:       rsiMeta,
			TotalMarkets:        intPtr(totalMarkets),
			TopByVolume:         intPtr(topByVolume),
			FilteredByWarning:   intPtr(filteredByWarning),
			FilteredByCrash:     intPtr(filteredByCrash),
			RSIEnriched:         intPtr(enrichedCount),
			FinalCount:          intPtr(len(rows)),
			CoingeckoCached:     &cachedFlag,
			CoingeckoAgeSeconds: &ageSeconds,
		},
		Timestamp: time.Now(),
		Warnings:  warnings,
	}, nil
}

func (p *CryptoPipeline) enrichRSI(ctx context.Context, rows []Row) RSIEnrichmentMeta {
	return Enrich(ctx, len(rows), func(ctx context.Context, i int) EnrichmentStatus {
		code, _ := rows[i]["code"].(string)
		closes, err := p.prices.DailyCloses(ctx, code)
		if err != nil {
			return classifyEnrichError(err)
		}
		rows[i]["rsi"] = indicator.RSI14(closes)
		return StatusSuccess
	})
}

// marketCapSnapshot returns the 10-minute-TTL market-cap map. A cached
// entry younger than the freshness window is served without calling
// the snapshot source; an older or absent entry triggers a refresh,
// falling back to the stale cached value (with a warning) if the
// refresh fails, per spec.md §4.H step 4.
func (p *CryptoPipeline) marketCapSnapshot(ctx context.Context) (map[string]float64, bool, time.Duration, error) {
	cached, hasCached := sharedcache.GetJSON[marketCapEnvelope](ctx, p.cache, marketCapCacheKey)

	if hasCached && time.Since(cached.FetchedAt) < marketCapFreshWindow {
		return cached.Data, true, time.Since(cached.FetchedAt), nil
	}

	fresh, err := p.marketCaps.Snapshot(ctx)
	if err == nil {
		envelope := marketCapEnvelope{Data: fresh, FetchedAt: time.Now()}
		if setErr := sharedcache.SetJSON(ctx, p.cache, marketCapCacheKey, envelope, marketCapDurableTTL); setErr != nil {
			telemetry.For("screen").Warn().Err(setErr).Msg("failed to cache market-cap snapshot")
		}
		return fresh, false, 0, nil
	}

	if hasCached {
		telemetry.For("screen").Warn().Err(err).Msg("market-cap snapshot refresh failed, using stale cache")
		return cached.Data, true, time.Since(cached.FetchedAt), nil
	}

	return nil, false, 0, err
}

func joinMarkets(markets []upbitMarket) string {
	s := ""
	for i, m := range markets {
		if i > 0 {
			s += ","
		}
		s += m.Market
	}
	return s
}

func intPtr(v int) *int { return &v }
