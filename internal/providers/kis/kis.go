// Package kis implements the broker REST adapter (spec.md §4.F "Broker
// REST"): volume/market-cap/fluctuation/foreign-buying rankings, all
// behind OAuth bearer credentials managed by internal/token. Grounded
// on app/services/kis_client.py and the teacher's provider shape in
// src/infrastructure/providers/kraken.go.
package kis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/providers"
	"github.com/sawpanic/marketgov/internal/ratelimit"
	"github.com/sawpanic/marketgov/internal/telemetry"
	"github.com/sawpanic/marketgov/internal/token"
)

const defaultTimeout = 10 * time.Second

// TokenManager is the subset of *token.Manager that the adapter needs.
type TokenManager interface {
	Get(ctx context.Context) (string, bool)
	Clear(ctx context.Context)
	Refresh(ctx context.Context, fetch token.Fetcher) (string, error)
}

// Adapter implements providers.Adapter against the broker REST API.
type Adapter struct {
	http      *providers.HTTPClient
	tokens    TokenManager
	appKey    string
	appSecret string
}

// New builds a broker adapter. appKey/appSecret are sent on every data
// request and used by the adapter's own OAuth exchange (oauthExchange),
// which tokens.Refresh invokes when no valid bearer token is cached.
func New(baseURL, appKey, appSecret string, tokens TokenManager, limiter *ratelimit.Registry) *Adapter {
	return &Adapter{
		http:      providers.NewHTTPClient("kis", baseURL, defaultTimeout, limiter),
		tokens:    tokens,
		appKey:    appKey,
		appSecret: appSecret,
	}
}

// resourcePaths maps the ranking resources this adapter exposes to
// their broker-REST endpoint + transaction id (the "tr_id" header the
// broker API requires per endpoint).
var resourcePaths = map[string]struct {
	path string
	trID string
}{
	"volume_rank":        {"/uapi/domestic-stock/v1/ranking/volume-rank", "FHPST01710000"},
	"market_cap_rank":     {"/uapi/domestic-stock/v1/ranking/market-cap", "FHPST01740000"},
	"fluctuation_rank":    {"/uapi/domestic-stock/v1/ranking/fluctuation", "FHPST01700000"},
	"foreign_buying_rank": {"/uapi/domestic-stock/v1/ranking/foreign-buying", "FHPST01730000"},
	"working_date":        {"/uapi/domestic-stock/v1/quotations/chk-holiday", "CTCA0903R"},
	"daily_price":         {"/uapi/domestic-stock/v1/quotations/inquire-daily-price", "FHKST01010400"},
}

// Fetch issues one broker-REST call for resource, attaching a bearer
// token and retrying once after invalidating it on a 401-equivalent,
// per spec.md §4.F step 2.
func (a *Adapter) Fetch(ctx context.Context, resource string, params map[string]string) (json.RawMessage, error) {
	spec, ok := resourcePaths[resource]
	if !ok {
		return nil, errs.New(errs.KindValidation, "kis", fmt.Sprintf("unknown resource %q", resource), nil)
	}

	raw, err := a.fetchOnce(ctx, resource, spec.path, spec.trID, params)
	if err == nil {
		return raw, nil
	}

	var classified *errs.Classified
	if asClassified(err, &classified) && classified.Kind == errs.KindUpstreamAuth {
		telemetry.For("kis").Warn().Str("resource", resource).Msg("token rejected by broker, invalidating and retrying once")
		a.InvalidateCredentials()
		return a.fetchOnce(ctx, resource, spec.path, spec.trID, params)
	}

	return nil, err
}

func (a *Adapter) fetchOnce(ctx context.Context, resource, path, trID string, params map[string]string) (json.RawMessage, error) {
	accessToken, err := a.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	url := a.http.BaseURL + path + "?" + encodeQuery(params)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamUnavailable, "kis", "failed to build request", err)
	}
	httpReq.Header.Set("authorization", "Bearer "+accessToken)
	httpReq.Header.Set("appkey", a.appKey)
	httpReq.Header.Set("appsecret", a.appSecret)
	httpReq.Header.Set("tr_id", trID)

	return a.http.DoJSON(ctx, resource, httpReq)
}

func (a *Adapter) bearerToken(ctx context.Context) (string, error) {
	if tok, ok := a.tokens.Get(ctx); ok {
		return tok, nil
	}
	return a.tokens.Refresh(ctx, a.oauthExchange)
}

// oauthExchange performs the actual broker token issuance call. It is
// deliberately not rate-limited against the same bucket as data
// endpoints (token issuance has its own broker-side quota).
func (a *Adapter) oauthExchange(ctx context.Context) (string, int, error) {
	body := fmt.Sprintf(`{"grant_type":"client_credentials","appkey":%q,"appsecret":%q}`, a.appKey, a.appSecret)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.http.BaseURL+"/oauth2/tokenP", strings.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	httpReq.Header.Set("content-type", "application/json")

	raw, err := a.http.DoJSON(ctx, "oauth2/tokenP", httpReq)
	if err != nil {
		return "", 0, err
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", 0, errs.New(errs.KindSchemaMismatch, "kis", "oauth response decode failed", err)
	}
	return decoded.AccessToken, decoded.ExpiresIn, nil
}

// InvalidateCredentials clears the cached bearer token.
func (a *Adapter) InvalidateCredentials() {
	a.tokens.Clear(context.Background())
}

// LatestWorkingDate satisfies tradingdate.BrokerDateSource: the broker
// self-reports its most recent trading day via the holiday-check
// endpoint's max_work_dt field.
func (a *Adapter) LatestWorkingDate(ctx context.Context) (string, bool, error) {
	raw, err := a.Fetch(ctx, "working_date", nil)
	if err != nil {
		return "", false, err
	}
	var decoded struct {
		Output []struct {
			MaxWorkDt string `json:"max_work_dt"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", false, errs.New(errs.KindSchemaMismatch, "kis", "working-date response decode failed", err)
	}
	if len(decoded.Output) == 0 || decoded.Output[0].MaxWorkDt == "" {
		return "", false, nil
	}
	return decoded.Output[0].MaxWorkDt, true, nil
}

// DailyCloses fetches the most recent daily closing-price series for
// code, oldest-first, for use by the RSI/ADX kernel. At most 30 bars
// are requested; the kernel itself tolerates shorter series by
// returning nil indicators.
func (a *Adapter) DailyCloses(ctx context.Context, code string) ([]float64, error) {
	raw, err := a.Fetch(ctx, "daily_price", map[string]string{"fid_input_iscd": code, "fid_period_div_code": "D", "fid_org_adj_prc": "1"})
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Output []struct {
			ClosePrice string `json:"stck_clpr"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errs.New(errs.KindSchemaMismatch, "kis", "daily price response decode failed", err)
	}

	closes := make([]float64, 0, len(decoded.Output))
	for i := len(decoded.Output) - 1; i >= 0; i-- {
		var v float64
		if _, err := fmt.Sscanf(decoded.Output[i].ClosePrice, "%f", &v); err == nil {
			closes = append(closes, v)
		}
	}
	return closes, nil
}

func encodeQuery(params map[string]string) string {
	var b strings.Builder
	first := true
	for k, v := range params {
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}

func asClassified(err error, target **errs.Classified) bool {
	c, ok := err.(*errs.Classified)
	if ok {
		*target = c
	}
	return ok
}
