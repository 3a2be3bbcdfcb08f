// Package recommend implements the recommender described in spec.md
// §4.I: it consumes screener output and current holdings, filters by
// strategy, excludes already-held symbols on request, sizes each
// selected position equally against a budget, and stops at
// max_positions. Grounded on the teacher's factor/scoring packages
// (factors/) for the composite-score ranking and on
// analysis_tool_handlers.py's recommend_stocks_impl for the parameter
// surface.
package recommend

import (
	"context"
	"sort"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/indicator"
	"github.com/sawpanic/marketgov/internal/screen"
)

// maxOHLCVCalls is the hard ceiling on per-invocation OHLCV fetches,
// per spec.md §4.I / §5 ("Recommender's OHLCV cap (≤30) is a hard
// ceiling, not a pause").
const maxOHLCVCalls = 30

// Position is a currently-held symbol, used only to drive the
// exclude-already-held filter.
type Position struct {
	Symbol string
}

// OHLCVBars carries the price/volume series Evaluate needs to produce
// a composite score for one symbol.
type OHLCVBars struct {
	Closes        []float64
	Highs         []float64
	Lows          []float64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	TodayVolume   *float64
	Avg20dVolume  *float64
}

// OHLCVProvider supplies the bars the composite-score ranking needs.
// Implementations wrap the same provider adapters screen.Pipeline
// implementations use for RSI enrichment.
type OHLCVProvider interface {
	OHLCV(ctx context.Context, symbol string) (OHLCVBars, error)
}

// Candidate is one symbol pulled from a screener result, carrying the
// fields the strategy predicates need.
type Candidate struct {
	Symbol        string  `json:"symbol"`
	Market        string  `json:"market"`
	Close         *float64 `json:"close,omitempty"`
	ChangeRate    *float64 `json:"change_rate,omitempty"`
	Volume        *float64 `json:"volume,omitempty"`
	PER           *float64 `json:"per,omitempty"`
	PBR           *float64 `json:"pbr,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"`
	RSI           *float64 `json:"rsi,omitempty"`
	CompositeScore *float64 `json:"composite_score,omitempty"`

	strategyScore float64
}

// Allocation is one recommended position: a candidate plus its sized
// budget share.
type Allocation struct {
	Candidate
	AllocatedAmount float64 `json:"allocated_amount"`
}

// RecommendResult is the full recommender response.
type RecommendResult struct {
	Allocations   []Allocation `json:"allocations"`
	Strategy      string       `json:"strategy"`
	Budget        float64      `json:"budget"`
	CandidateCount int         `json:"candidate_count"`
	Warnings      []string     `json:"warnings,omitempty"`
}

var validStrategies = map[string]bool{"balanced": true, "growth": true, "value": true, "income": true}

// Recommend filters, scores, and sizes a recommendation set per
// spec.md §4.I.
func Recommend(ctx context.Context, results []screen.Result, holdings []Position, strategy string, budget float64, maxPositions int, excludeHeld bool, prices OHLCVProvider) (RecommendResult, error) {
	if !validStrategies[strategy] {
		return RecommendResult{}, errs.New(errs.KindValidation, "recommend", "strategy must be one of balanced, growth, value, income", nil)
	}
	if budget <= 0 {
		return RecommendResult{}, errs.New(errs.KindValidation, "recommend", "budget must be positive", nil)
	}
	if maxPositions <= 0 {
		return RecommendResult{}, errs.New(errs.KindValidation, "recommend", "max_positions must be positive", nil)
	}

	held := make(map[string]bool, len(holdings))
	for _, h := range holdings {
		held[h.Symbol] = true
	}

	var candidates []Candidate
	for _, result := range results {
		for _, row := range result.Results {
			symbol, _ := row["code"].(string)
			if symbol == "" {
				continue
			}
			if excludeHeld && held[symbol] {
				continue
			}
			candidates = append(candidates, Candidate{
				Symbol:        symbol,
				Market:        result.Market,
				Close:         rowFloat(row, "close"),
				ChangeRate:    rowFloat(row, "change_rate"),
				Volume:        rowFloat(row, "volume"),
				PER:           rowFloat(row, "per"),
				PBR:           rowFloat(row, "pbr"),
				DividendYield: rowFloat(row, "dividend_yield"),
				RSI:           rowFloat(row, "rsi"),
			})
		}
	}

	var warnings []string
	if prices != nil {
		warnings = append(warnings, enrichCompositeScores(ctx, candidates, prices)...)
	}

	scoreByStrategy(strategy, candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].strategyScore > candidates[j].strategyScore
	})

	selected := candidates
	if len(selected) > maxPositions {
		selected = selected[:maxPositions]
	}

	allocations := make([]Allocation, 0, len(selected))
	if len(selected) > 0 {
		share := budget / float64(len(selected))
		for _, c := range selected {
			allocations = append(allocations, Allocation{Candidate: c, AllocatedAmount: share})
		}
	}

	return RecommendResult{
		Allocations:    allocations,
		Strategy:       strategy,
		Budget:         budget,
		CandidateCount: len(candidates),
		Warnings:       warnings,
	}, nil
}

// enrichCompositeScores fetches OHLCV for up to maxOHLCVCalls
// candidates (highest-volume first, matching the screener's own
// pre-enrichment ordering bias), attaches a composite score (read by
// the balanced strategy), and replaces RSI with the value computed from
// the fetched bars when one is available.
func enrichCompositeScores(ctx context.Context, candidates []Candidate, prices OHLCVProvider) []string {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va := candidates[order[a]].Volume
		vb := candidates[order[b]].Volume
		if va == nil {
			return false
		}
		if vb == nil {
			return true
		}
		return *va > *vb
	})

	calls := len(order)
	if calls > maxOHLCVCalls {
		calls = maxOHLCVCalls
	}

	var warnings []string
	if len(order) > maxOHLCVCalls {
		warnings = append(warnings, "composite-score enrichment capped at 30 OHLCV calls; remaining candidates scored without it")
	}

	for _, idx := range order[:calls] {
		bars, err := prices.OHLCV(ctx, candidates[idx].Symbol)
		if err != nil {
			continue
		}
		result := indicator.Evaluate(bars.Closes, bars.Highs, bars.Lows, bars.Open, bars.High, bars.Low, bars.Close, bars.TodayVolume, bars.Avg20dVolume)
		score := result.Score
		candidates[idx].CompositeScore = &score
		if result.RSI != nil {
			candidates[idx].RSI = result.RSI
		}
	}
	return warnings
}

func rowFloat(row screen.Row, key string) *float64 {
	v, ok := row[key].(*float64)
	if !ok {
		return nil
	}
	return v
}
