package kis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/ratelimit"
	"github.com/sawpanic/marketgov/internal/token"
)

// fakeTokens is a bare in-memory stand-in for *token.Manager, good
// enough to drive bearerToken's get-or-refresh path without a Redis
// dependency.
type fakeTokens struct {
	cached string
}

func (f *fakeTokens) Get(ctx context.Context) (string, bool) {
	if f.cached == "" {
		return "", false
	}
	return f.cached, true
}

func (f *fakeTokens) Clear(ctx context.Context) { f.cached = "" }

func (f *fakeTokens) Refresh(ctx context.Context, fetch token.Fetcher) (string, error) {
	tok, _, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	f.cached = tok
	return tok, nil
}

func TestFetch_ExchangesTokenOnFirstCall(t *testing.T) {
	var sawAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/oauth2/tokenP":
			w.Write([]byte(`{"access_token":"tok-123","expires_in":3600}`))
		default:
			sawAuth = r.Header.Get("authorization")
			w.Write([]byte(`{"output":[]}`))
		}
	}))
	defer server.Close()

	tokens := &fakeTokens{}
	a := New(server.URL, "key", "secret", tokens, ratelimit.NewRegistry())
	_, err := a.Fetch(context.Background(), "volume_rank", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", sawAuth)
}

func TestDailyCloses_ParsesOldestFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/oauth2/tokenP":
			w.Write([]byte(`{"access_token":"tok-123","expires_in":3600}`))
		default:
			w.Write([]byte(`{"output":[{"stck_clpr":"30000"},{"stck_clpr":"29500"}]}`))
		}
	}))
	defer server.Close()

	a := New(server.URL, "key", "secret", &fakeTokens{}, ratelimit.NewRegistry())
	closes, err := a.DailyCloses(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, []float64{29500, 30000}, closes)
}

func TestFetch_UnknownResourceReturnsValidationError(t *testing.T) {
	a := New("http://example.invalid", "key", "secret", &fakeTokens{cached: "tok"}, ratelimit.NewRegistry())
	_, err := a.Fetch(context.Background(), "nonsense", nil)
	assert.Error(t, err)
	var classified *errs.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, errs.KindValidation, classified.Kind)
}
