// Package scrape implements the web-scraped Korean-finance pages
// adapter (spec.md §4.F "Web-scraped Korean-finance pages"): news,
// company profile, financial statements, investor trends, analyst
// opinions, short-interest, and sector peers — each a distinct page
// parsed into a normalised record. Grounded on naver_finance.py.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/providers"
	"github.com/sawpanic/marketgov/internal/ratelimit"
)

const defaultTimeout = 10 * time.Second

// pagePaths maps each resource this adapter serves to its page path,
// parameterised by stock code.
var pagePaths = map[string]string{
	"news":            "/item/news.naver?code=%s",
	"profile":         "/item/main.naver?code=%s",
	"financials":      "/item/main.naver?code=%s#financeHighlight",
	"investor_trends": "/item/frgn.naver?code=%s",
	"opinions":        "/item/coinfo.naver?code=%s&target=analysis",
	"short_interest":  "/item/short_interest.naver?code=%s",
	"peers":           "/item/compare.naver?code=%s",
}

// Adapter implements providers.Adapter against the scraped pages.
// Fetch returns the raw page body wrapped as a JSON string; the typed
// per-resource methods in parse.go parse the HTML. Requests go through
// the shared HTTPClient (rate governance, circuit breaker) and are not
// retried.
type Adapter struct {
	http *providers.HTTPClient
}

// New builds a scraped-page adapter.
func New(baseURL string, limiter *ratelimit.Registry) *Adapter {
	return &Adapter{http: providers.NewHTTPClient("scrape", baseURL, defaultTimeout, limiter)}
}

// Fetch retrieves the raw page body for resource and stock code
// (params["code"]), wrapped as a JSON string so it satisfies the
// uniform Adapter contract; callers run their own HTML parse over the
// decoded string.
func (a *Adapter) Fetch(ctx context.Context, resource string, params map[string]string) (json.RawMessage, error) {
	pathTemplate, ok := pagePaths[resource]
	if !ok {
		return nil, errs.New(errs.KindValidation, "scrape", fmt.Sprintf("unknown resource %q", resource), nil)
	}
	code := params["code"]
	if code == "" {
		return nil, errs.New(errs.KindValidation, "scrape", "missing required param \"code\"", nil)
	}

	path := fmt.Sprintf(pathTemplate, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.http.BaseURL+path, nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamUnavailable, "scrape", "failed to build request", err)
	}
	req.Header.Set("user-agent", "Mozilla/5.0 (compatible; marketgov/1.0)")

	raw, err := a.http.DoJSON(ctx, resource, req)
	if err != nil {
		// The scraped pages respond with HTML, not JSON; DoJSON's
		// json.RawMessage wrapping is pass-through bytes, so errors
		// here are transport/status errors only, never decode errors.
		return nil, err
	}
	encoded, marshalErr := json.Marshal(string(raw))
	if marshalErr != nil {
		return nil, errs.New(errs.KindSchemaMismatch, "scrape", "failed to encode page body", marshalErr)
	}
	return encoded, nil
}

// InvalidateCredentials is a no-op: scraped pages carry no credentials.
func (a *Adapter) InvalidateCredentials() {}
