// Package dart implements the regulatory-filings portal adapter
// mentioned in spec.md §1's provider list and detailed in
// SPEC_FULL.md's supplemented-features section: company filing
// lookups and single-filing document retrieval, keyed by an API key
// rather than the broker's OAuth flow. Grounded on
// app/services/disclosures/dart.py.
package dart

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

const defaultTimeout = 10 * time.Second

// Adapter implements providers.Adapter against the disclosures portal.
type Adapter struct {
	http   *providers.HTTPClient
	apiKey string
}

// New builds a disclosures adapter, keyed by a static API key (unlike
// the broker, this portal has no refresh/expiry lifecycle).
func New(baseURL, apiKey string, limiter *ratelimit.Registry) *Adapter {
	return &Adapter{
		http:   providers.NewHTTPClient("dart", baseURL, defaultTimeout, limiter),
		apiKey: apiKey,
	}
}

// Fetch dispatches to "filing_list" (params: corp_code, bgn_de, end_de)
// or "filing_document" (params: rcept_no).
func (a *Adapter) Fetch(ctx context.Context, resource string, params map[string]string) (json.RawMessage, error) {
	q := url.Values{"crtfc_key": {a.apiKey}}

	var path string
	switch resource {
	case "filing_list":
		path = "/api/list.json"
		q.Set("corp_code", params["corp_code"])
		q.Set("bgn_de", params["bgn_de"])
		q.Set("end_de", params["end_de"])
	case "filing_document":
		path = "/api/document.xml"
		q.Set("rcept_no", params["rcept_no"])
	default:
		return nil, errs.New(errs.KindValidation, "dart", fmt.Sprintf("unknown resource %q", resource), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.http.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamUnavailable, "dart", "failed to build request", err)
	}

	return a.http.DoJSON(ctx, resource, req)
}

// InvalidateCredentials is a no-op: the API key is static
// configuration, not a refreshable bearer token, so there's nothing to
// clear — a rejected key means the deployment's configuration is
// wrong, not that a refresh will fix it.
func (a *Adapter) InvalidateCredentials() {}
