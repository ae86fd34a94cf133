package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bnema/ha-billing/internal/ports"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL  = "https://api.coingecko.com/api/v3"
	DefaultCacheTTL = time.Minute

	maxResponseBytes = 1 << 16
)

var ErrUnknownCurrency = errors.New("unknown currency")

var defaultCoinIDs = map[string]string{
	"ETH": "ethereum",
}

var _ ports.PriceFeed = (*HTTPFeed)(nil)

// HTTPFeed reads spot prices from a CoinGecko-compatible simple/price endpoint.
type HTTPFeed struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	CacheTTL       time.Duration
	Now            func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrice
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

func NewHTTPFeed(baseURL string) *HTTPFeed {
	return &HTTPFeed{BaseURL: baseURL}
}

func (f *HTTPFeed) USDPrice(ctx context.Context, currency string) (decimal.Decimal, error) {
	symbol := strings.ToUpper(strings.TrimSpace(currency))
	coinID, ok := defaultCoinIDs[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}

	if price, ok := f.cached(symbol); ok {
		return price, nil
	}

	price, err := f.fetch(ctx, coinID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	f.mu.Lock()
	if f.cache == nil {
		f.cache = make(map[string]cachedPrice)
	}
	f.cache[symbol] = cachedPrice{price: price, fetchedAt: f.now()}
	f.mu.Unlock()
	return price, nil
}

func (f *HTTPFeed) fetch(ctx context.Context, coinID string) (decimal.Decimal, error) {
	endpoint, err := f.buildURL(coinID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	requestCtx, cancel := f.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("create price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("request price: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decimal.Decimal{}, fmt.Errorf("request price: status %d", resp.StatusCode)
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode price response: %w", err)
	}

	price, ok := payload[coinID]["usd"]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("price response missing usd quote for %s", coinID)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("price response returned non-positive quote %s", price)
	}
	return price, nil
}

func (f *HTTPFeed) cached(symbol string) (decimal.Decimal, bool) {
	ttl := f.CacheTTL
	if ttl < 0 {
		return decimal.Decimal{}, false
	}
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[symbol]
	if !ok || f.now().Sub(entry.fetchedAt) > ttl {
		return decimal.Decimal{}, false
	}
	return entry.price, true
}

func (f *HTTPFeed) buildURL(coinID string) (string, error) {
	base := strings.TrimSpace(f.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(base, "/") + "/simple/price")
	if err != nil {
		return "", fmt.Errorf("parse price feed url: %w", err)
	}

	query := parsed.Query()
	query.Set("ids", coinID)
	query.Set("vs_currencies", "usd")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (f *HTTPFeed) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := f.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (f *HTTPFeed) httpClient() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

func (f *HTTPFeed) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}
