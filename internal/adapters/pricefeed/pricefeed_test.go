package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFeedReadsUSDQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3012.45}}`))
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL + "/api/v3/")
	price, err := feed.USDPrice(context.Background(), "eth")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3012.45").Equal(price))
}

func TestHTTPFeedCachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ethereum":{"usd":2000}}`))
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	feed := &HTTPFeed{BaseURL: server.URL, CacheTTL: time.Minute, Now: func() time.Time { return now }}

	for i := 0; i < 3; i++ {
		_, err := feed.USDPrice(context.Background(), "ETH")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(2 * time.Minute)
	_, err := feed.USDPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPFeedNegativeTTLDisablesCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ethereum":{"usd":"2000.5"}}`))
	}))
	defer server.Close()

	feed := &HTTPFeed{BaseURL: server.URL, CacheTTL: -1}
	for i := 0; i < 2; i++ {
		price, err := feed.USDPrice(context.Background(), "ETH")
		require.NoError(t, err)
		assert.Equal(t, "2000.5", price.String())
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPFeedErrors(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, message: "status 500"},
		{name: "missing quote", status: http.StatusOK, body: `{"ethereum":{}}`, message: "missing usd quote"},
		{name: "zero quote", status: http.StatusOK, body: `{"ethereum":{"usd":0}}`, message: "non-positive"},
		{name: "malformed", status: http.StatusOK, body: `not json`, message: "decode price response"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewHTTPFeed(server.URL).USDPrice(context.Background(), "ETH")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestHTTPFeedRejectsUnknownCurrency(t *testing.T) {
	_, err := NewHTTPFeed("http://127.0.0.1:1").USDPrice(context.Background(), "DOGE")
	require.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestStaticFeed(t *testing.T) {
	feed, err := NewStatic(map[string]string{"eth": " 2500.00 "})
	require.NoError(t, err)

	price, err := feed.USDPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2500).Equal(price))

	_, err = feed.USDPrice(context.Background(), "BTC")
	require.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestNewStaticRejectsBadPrices(t *testing.T) {
	_, err := NewStatic(map[string]string{"ETH": "abc"})
	require.Error(t, err)

	_, err = NewStatic(map[string]string{"ETH": "-1"})
	require.Error(t, err)
}
