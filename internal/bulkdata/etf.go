package bulkdata

import (
	"context"
	"fmt"
)

// ETF is one normalised daily record from the ETF-master bulk list.
// Category is assigned later by the screening pipeline's keyword
// classifier (spec.md §4.H step 1), not by this fetcher.
type ETF struct {
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Close        *float64 `json:"close"`
	ChangeRate   *float64 `json:"change_rate"`
	Volume       *float64 `json:"volume"`
	MarketCapEok *float64 `json:"market_cap"`
	IdxClsCd     string   `json:"idx_cls_cd"`
}

// ETFAll fetches the full ETF master list, optionally restricted by
// classification code, on the first usable trading-date candidate.
func (f *Fetchers) ETFAll(ctx context.Context, idxClsCd *string, explicit *string) ([]ETF, error) {
	cacheKey := func(date string) string {
		if idxClsCd != nil && *idxClsCd != "" {
			return fmt.Sprintf("krx:etf:all:%s:%s", *idxClsCd, date)
		}
		return fmt.Sprintf("krx:etf:all:%s", date)
	}
	fetchRaw := func(ctx context.Context, date string) ([]rawRow, error) {
		params := map[string]string{"date": date}
		if idxClsCd != nil && *idxClsCd != "" {
			params["idx_cls_cd"] = *idxClsCd
		}
		raw, err := f.provider.Fetch(ctx, "etf_all", params)
		if err != nil {
			return nil, err
		}
		return decodeRows(raw)
	}
	normalise := func(rows []rawRow) []ETF {
		out := make([]ETF, 0, len(rows))
		for _, r := range rows {
			out = append(out, ETF{
				Code:         r["ISU_SRT_CD"],
				Name:         r["ISU_ABBRV"],
				Close:        parseNumber(r["TDD_CLSPRC"]),
				ChangeRate:   signedChangeRate(r["FLUC_RT"], r["FLUC_TP_CD"]),
				Volume:       parseNumber(r["ACC_TRDVOL"]),
				MarketCapEok: marketCapEok(r["MKTCAP"]),
				IdxClsCd:     r["IDX_CLS_CD"],
			})
		}
		return out
	}

	return fetchWithDateFallback(ctx, f, "etf_all", explicit, cacheKey, fetchRaw, normalise)
}
