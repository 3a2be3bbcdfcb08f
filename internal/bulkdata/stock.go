package bulkdata

import (
	"context"
	"fmt"
)

// Stock is one normalised daily record from the stock-master bulk list.
type Stock struct {
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Close        *float64 `json:"close"`
	ChangeRate   *float64 `json:"change_rate"`
	Volume       *float64 `json:"volume"`
	TradeValue   *float64 `json:"trade_value"`
	MarketCapEok *float64 `json:"market_cap"`
}

// StockAll fetches the full stock master list for market ("STK" for
// KOSPI, "KSQ" for KOSDAQ) on the first usable trading-date candidate.
func (f *Fetchers) StockAll(ctx context.Context, market string, explicit *string) ([]Stock, error) {
	cacheKey := func(date string) string {
		return fmt.Sprintf("krx:stock:all:%s:%s", market, date)
	}
	fetchRaw := func(ctx context.Context, date string) ([]rawRow, error) {
		raw, err := f.provider.Fetch(ctx, "stock_all", map[string]string{"market": market, "date": date})
		if err != nil {
			return nil, err
		}
		return decodeRows(raw)
	}
	normalise := func(rows []rawRow) []Stock {
		out := make([]Stock, 0, len(rows))
		for _, r := range rows {
			out = append(out, Stock{
				Code:         r["ISU_SRT_CD"],
				Name:         r["ISU_ABBRV"],
				Close:        parseNumber(r["TDD_CLSPRC"]),
				ChangeRate:   signedChangeRate(r["FLUC_RT"], r["FLUC_TP_CD"]),
				Volume:       parseNumber(r["ACC_TRDVOL"]),
				TradeValue:   parseNumber(r["ACC_TRDVAL"]),
				MarketCapEok: marketCapEok(r["MKTCAP"]),
			})
		}
		return out
	}

	result, err := fetchWithDateFallback(ctx, f, "stock_all", explicit, cacheKey, fetchRaw, normalise)
	if err != nil {
		return nil, err
	}
	return result, nil
}
