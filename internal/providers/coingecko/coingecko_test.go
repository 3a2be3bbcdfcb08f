package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketgov/internal/ratelimit"
)

func TestSnapshot_KeysByUpbitStyleMarketCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"symbol":"btc","market_cap":1000000000},{"symbol":"eth","market_cap":500000000}]`))
	}))
	defer server.Close()

	a := New(server.URL, ratelimit.NewRegistry())
	snapshot, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000000000.0, snapshot["KRW-BTC"])
	assert.Equal(t, 500000000.0, snapshot["KRW-ETH"])
}

func TestUpperSymbol(t *testing.T) {
	assert.Equal(t, "BTC", upperSymbol("btc"))
	assert.Equal(t, "USDT", upperSymbol("USDT"))
}
