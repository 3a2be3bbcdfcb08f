package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketgov/internal/errs"
	"github.com/sawpanic/marketgov/internal/ratelimit"
)

func TestDoJSON_DecodesSuccessfulBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	h := NewHTTPClient("testprovider", server.URL, time.Second, ratelimit.NewRegistry())
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	body, err := h.DoJSON(context.Background(), "endpoint", req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestDoJSON_UnauthorizedIsClassifiedAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	h := NewHTTPClient("testprovider", server.URL, time.Second, ratelimit.NewRegistry())
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = h.DoJSON(context.Background(), "endpoint", req)
	assert.Error(t, err)
	var classified *errs.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, errs.KindUpstreamAuth, classified.Kind)
}

func TestDoJSON_BurstLimiterRespectsCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	h := NewHTTPClient("testprovider", server.URL, time.Second, ratelimit.NewRegistry())

	// Exhaust the burst bucket, then fire one more request against an
	// already-cancelled context: it must fail fast on the burst wait
	// rather than hang or silently skip the limiter.
	for i := 0; i < burstLimit; i++ {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		_, err = h.DoJSON(context.Background(), "endpoint", req)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	_, err = h.DoJSON(ctx, "endpoint", req)
	assert.Error(t, err)
}
