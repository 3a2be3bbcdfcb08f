// Package krx implements the bourse bulk portal adapter (spec.md §4.F
// "Bourse bulk portal"): stock/ETF/valuation master lists for one
// trading date, no credentials, cooperating with the trading-date
// resolver by accepting an explicit date parameter. Grounded on
// app/services/krx_bulk.py.
package krx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/providers"
	"github.com/sawpanic/marketgov/internal/ratelimit"
)

const defaultTimeout = 15 * time.Second

// Adapter implements providers.Adapter against the bulk portal.
type Adapter struct {
	http *providers.HTTPClient
}

// New builds a bulk-portal adapter.
func New(baseURL string, limiter *ratelimit.Registry) *Adapter {
	return &Adapter{http: providers.NewHTTPClient("krx", baseURL, defaultTimeout, limiter)}
}

// Fetch dispatches to "stock_all" (params: market, date), "etf_all"
// (params: date, optional idx_cls_cd), or "valuation_all" (params:
// market, date).
func (a *Adapter) Fetch(ctx context.Context, resource string, params map[string]string) (json.RawMessage, error) {
	var form url.Values
	var endpointKey string

	switch resource {
	case "stock_all":
		form = url.Values{"mktId": {params["market"]}, "trdDd": {params["date"]}, "share": {"1"}}
		endpointKey = "stock_all"
	case "etf_all":
		form = url.Values{"trdDd": {params["date"]}}
		if idx := params["idx_cls_cd"]; idx != "" {
			form.Set("idxClsCd", idx)
		}
		endpointKey = "etf_all"
	case "valuation_all":
		form = url.Values{"mktId": {params["market"]}, "trdDd": {params["date"]}}
		endpointKey = "valuation_all"
	default:
		return nil, errs.New(errs.KindValidation, "krx", fmt.Sprintf("unknown resource %q", resource), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.http.BaseURL+"/comm/bldAttendant/getJsonData.cmd", nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamUnavailable, "krx", "failed to build request", err)
	}
	req.URL.RawQuery = form.Encode()
	req.Header.Set("accept", "application/json")

	return a.http.DoJSON(ctx, endpointKey, req)
}

// InvalidateCredentials is a no-op: the bulk portal is unauthenticated.
func (a *Adapter) InvalidateCredentials() {}
