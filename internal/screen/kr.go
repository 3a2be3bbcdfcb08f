package screen

import (
	"context"
	"time"

	"github.com/sawpanic/marketgov/internal/bulkdata"
	"github.com/sawpanic/marketgov/internal/indicator"
	"github.com/sawpanic/marketgov/internal/telemetry"
)

// PriceHistoryProvider supplies a per-symbol closing-price series for
// RSI enrichment. kis.Adapter and upbit.Adapter each implement it via
// DailyCloses/Closes.
type PriceHistoryProvider interface {
	DailyCloses(ctx context.Context, code string) ([]float64, error)
}

// KRPipeline screens the KOSPI/KOSDAQ/KR-combined universe.
type KRPipeline struct {
	bulk   *bulkdata.Fetchers
	prices PriceHistoryProvider
}

// NewKRPipeline builds a KR screening pipeline.
func NewKRPipeline(bulk *bulkdata.Fetchers, prices PriceHistoryProvider) *KRPipeline {
	return &KRPipeline{bulk: bulk, prices: prices}
}

func krMarketIDs(market string) []string {
	switch market {
	case "kospi":
		return []string{"STK"}
	case "kosdaq":
		return []string{"KSQ"}
	default:
		return []string{"STK", "KSQ"}
	}
}

// Screen runs the KR pipeline per spec.md §4.H.
func (p *KRPipeline) Screen(ctx context.Context, f Filters) (Result, error) {
	resolved, warnings, err := validateAndResolve(f, false, true)
	if err != nil {
		return Result{}, err
	}

	isETF := f.AssetType != nil && *f.AssetType == "etf"

	var rows []Row
	if isETF {
		etfs, err := p.bulk.ETFAll(ctx, nil, nil)
		if err != nil {
			warnings = append(warnings, "failed to fetch ETF universe: "+err.Error())
		}
		for _, e := range etfs {
			labels := ClassifyETF(e.Name)
			if f.Category != nil && !containsString(labels, *f.Category) {
				continue
			}
			rows = append(rows, Row{
				"code": e.Code, "name": e.Name, "close": e.Close,
				"change_rate": e.ChangeRate, "volume": e.Volume,
				"market_cap": e.MarketCapEok, "categories": labels,
			})
		}
	} else {
		for _, marketID := range krMarketIDs(f.Market) {
			stocks, err := p.bulk.StockAll(ctx, marketID, nil)
			if err != nil {
				warnings = append(warnings, "failed to fetch stock universe for "+marketID+": "+err.Error())
				continue
			}
			for _, s := range stocks {
				rows = append(rows, Row{
					"code": s.Code, "name": s.Name, "close": s.Close,
					"change_rate": s.ChangeRate, "volume": s.Volume,
					"trade_value": s.TradeValue, "market_cap": s.MarketCapEok,
				})
			}
		}

		valuations, valErr := p.bulk.ValuationAll(ctx, valuationMarketID(f.Market), nil)
		if valErr != nil {
			telemetry.For("screen").Warn().Err(valErr).Msg("valuation attach failed, continuing without PER/PBR/dividend fields")
			warnings = append(warnings, "valuation data unavailable, PER/PBR/dividend filters skipped for affected rows")
		} else {
			for _, r := range rows {
				code, _ := r["code"].(string)
				if v, ok := valuations[code]; ok {
					r["per"] = v.PER
					r["pbr"] = v.PBR
					r["dividend_yield"] = v.DividendYield
				}
			}
		}
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
		rsiMeta = p.enrichRSI(ctx, subset)
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
		Market:         f.Market,
		Meta:           Meta{RSIEnrichment: rsiMeta},
		Timestamp:      time.Now(),
		Warnings:       warnings,
	}, nil
}

func valuationMarketID(market string) string {
	switch market {
	case "kospi":
		return "STK"
	case "kosdaq":
		return "KSQ"
	default:
		return "ALL"
	}
}

func (p *KRPipeline) enrichRSI(ctx context.Context, rows []Row) RSIEnrichmentMeta {
	return Enrich(ctx, len(rows), func(ctx context.Context, i int) EnrichmentStatus {
		code, _ := rows[i]["code"].(string)
		closes, err := p.prices.DailyCloses(ctx, code)
		if err != nil {
			return classifyEnrichError(err)
		}
		rsi := indicator.RSI14(closes)
		rows[i]["rsi"] = rsi
		return StatusSuccess
	})
}

func applyMaxRSI(rows []Row, maxRSI float64) []Row {
	out := rows[:0:0]
	for _, r := range rows {
		rsi, ok := r["rsi"].(*float64)
		if !ok || rsi == nil {
			continue
		}
		if *rsi <= maxRSI {
			out = append(out, r)
		}
	}
	return out
}

func containsString(xs []string, target string) bool {
	for _, x := range xs {
		if x == target {
			return true
		}
	}
	return false
}
