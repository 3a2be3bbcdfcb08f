package screen

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/indicator"
)

// USScreenerProvider is the subset of providers.Adapter the US
// pipeline needs: a single query-DSL fetch against the screener.
type USScreenerProvider interface {
	Fetch(ctx context.Context, resource string, params map[string]string) (json.RawMessage, error)
}

// USPipeline screens the US equity universe via the upstream
// screener's query DSL.
type USPipeline struct {
	screener USScreenerProvider
	prices   PriceHistoryProvider
}

// NewUSPipeline builds a US screening pipeline.
func NewUSPipeline(screener USScreenerProvider, prices PriceHistoryProvider) *USPipeline {
	return &USPipeline{screener: screener, prices: prices}
}

// usQueryResource translates the generic sort_by into the upstream
// screener's named ranking resource, per spec.md §4.F's "US screener"
// contract and §4.H's "translate filters into the upstream screener's
// query DSL".
func usQueryResource(f Filters) string {
	if f.SortBy == "change_rate" && f.SortOrder == "desc" {
		return "gainers"
	}
	if f.SortBy == "change_rate" && f.SortOrder == "asc" {
		return "losers"
	}
	if f.SortBy == "volume" {
		return "most_active"
	}
	return "market_cap"
}

type usScreenerRow struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	ChangeRate float64 `json:"change_pct"`
	Volume     float64 `json:"volume"`
	MarketCap  float64 `json:"market_cap"`
}

// Screen runs the US pipeline per spec.md §4.H.
func (p *USPipeline) Screen(ctx context.Context, f Filters) (Result, error) {
	resolved, warnings, err := validateAndResolve(f, false, false)
	if err != nil {
		return Result{}, err
	}

	resource := usQueryResource(f)
	raw, err := p.screener.Fetch(ctx, resource, map[string]string{"count": fmt.Sprintf("%d", enrichmentSubsetSize(resolved.Limit))})
	if err != nil {
		return Result{}, &ErrorResult{Source: "kis", Message: "screener query failed: " + err.Error()}
	}

	var decoded []usScreenerRow
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, errs.New(errs.KindSchemaMismatch, "usscreen", "response decode failed", err)
	}

	var rows []Row
	for _, d := range decoded {
		if d.Price <= 0 {
			continue // drop rows without a usable price, per spec.md §4.H
		}
		changeRate := d.ChangeRate
		volume := d.Volume
		marketCap := d.MarketCap
		rows = append(rows, Row{
			"code": d.Symbol, "close": &d.Price, "change_rate": &changeRate,
			"volume": &volume, "market_cap": &marketCap,
		})
	}

	if len(rows) == 0 {
		return Result{}, &ErrorResult{Source: "kis", Message: fmt.Sprintf("no results for resource %q", resource)}
	}

	totalCount := len(rows)
	rows = filterRows(rows, resolved)
	sortByField(rows, resolved.SortBy, resolved.SortOrder)

	subsetSize := enrichmentSubsetSize(resolved.Limit)
	if subsetSize > len(rows) {
		subsetSize = len(rows)
	}
	subset := rows[:subsetSize]

	var rsiMeta RSIEnrichmentMeta
	if resolved.MaxRSI != nil {
		rsiMeta = Enrich(ctx, len(subset), func(ctx context.Context, i int) EnrichmentStatus {
			code, _ := subset[i]["code"].(string)
			closes, err := p.prices.DailyCloses(ctx, code)
			if err != nil {
				return classifyEnrichError(err)
			}
			subset[i]["rsi"] = indicator.RSI14(closes)
			return StatusSuccess
		})
		if msg, ok := rsiTimeoutWarning(rsiMeta); ok {
			warnings = append(warnings, msg)
		}
		subset = applyMaxRSI(subset, *resolved.MaxRSI)
	}

	if len(subset) > resolved.Limit {
		subset = subset[:resolved.Limit]
	}

	return Result{
		Results:        subset,
		TotalCount:     totalCount,
		ReturnedCount:  len(subset),
		FiltersApplied: resolved,
		Market:         "us",
		Meta:           Meta{RSIEnrichment: rsiMeta},
		Timestamp:      time.Now(),
		Warnings:       warnings,
	}, nil
}
