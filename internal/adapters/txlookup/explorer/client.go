package explorer

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

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/ports"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/time/rate"
)

const (
	maxResponseBytes = 1 << 20

	// Free explorer tiers allow five calls per second per key.
	DefaultRatePerSecond = 5
	DefaultMaxRetries    = 3
)

var ErrRateLimited = errors.New("explorer rate limit reached")

var _ ports.TransactionLookup = (*Client)(nil)

// Client queries etherscan-compatible explorers through their JSON-RPC proxy module.
// KeySource, when set, is asked for the API key on every lookup so a key changed
// in the stored payment config applies without rewiring. InitialBackoff overrides
// the first retry delay.
type Client struct {
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	APIKey         string
	KeySource      func(ctx context.Context) string
	RatePerSecond  float64
	MaxRetries     uint64
	InitialBackoff time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(apiKey string) *Client {
	return &Client{APIKey: apiKey}
}

type proxyResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcTransaction struct {
	Hash        string          `json:"hash"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
}

func (c *Client) TransactionStatus(ctx context.Context, chain domain.Chain, txHash string) (domain.TransactionStatus, error) {
	endpoint, err := c.buildURL(chain.ExplorerAPI, txHash, c.apiKey(ctx))
	if err != nil {
		return domain.TransactionStatus{}, err
	}

	limiter := c.limiterFor(endpoint)
	var status domain.TransactionStatus
	operation := func() error {
		if err := limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		result, err := c.fetch(ctx, endpoint)
		if err != nil {
			return err
		}
		status = result
		return nil
	}

	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		return domain.TransactionStatus{}, fmt.Errorf("query %s explorer: %w", chain.Name, err)
	}
	return status, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (domain.TransactionStatus, error) {
	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.TransactionStatus{}, backoff.Permanent(fmt.Errorf("create explorer request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.TransactionStatus{}, backoff.Permanent(err)
		}
		return domain.TransactionStatus{}, fmt.Errorf("request transaction: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.TransactionStatus{}, ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.TransactionStatus{}, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return domain.TransactionStatus{}, backoff.Permanent(fmt.Errorf("explorer returned status %d", resp.StatusCode))
	}

	var payload proxyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return domain.TransactionStatus{}, backoff.Permanent(fmt.Errorf("decode explorer response: %w", err))
	}
	return parseProxyResult(payload)
}

func parseProxyResult(payload proxyResponse) (domain.TransactionStatus, error) {
	if payload.Error != nil {
		return domain.TransactionStatus{}, backoff.Permanent(fmt.Errorf("explorer rpc error %d: %s", payload.Error.Code, payload.Error.Message))
	}

	raw := strings.TrimSpace(string(payload.Result))
	switch {
	case raw == "" || raw == "null":
		return domain.TransactionStatus{Found: false}, nil
	case strings.HasPrefix(raw, "\""):
		// Explorer-level failures come back as a plain string result.
		var message string
		if err := json.Unmarshal(payload.Result, &message); err != nil {
			return domain.TransactionStatus{}, backoff.Permanent(fmt.Errorf("decode explorer message: %w", err))
		}
		if strings.Contains(strings.ToLower(message), "rate limit") {
			return domain.TransactionStatus{}, fmt.Errorf("%w: %s", ErrRateLimited, message)
		}
		return domain.TransactionStatus{}, backoff.Permanent(fmt.Errorf("explorer error: %s", message))
	}

	var tx rpcTransaction
	if err := json.Unmarshal(payload.Result, &tx); err != nil {
		return domain.TransactionStatus{}, backoff.Permanent(fmt.Errorf("decode transaction: %w", err))
	}

	status := domain.TransactionStatus{Found: true}
	if tx.BlockNumber != nil {
		block := uint64(*tx.BlockNumber)
		status.BlockNumber = &block
	}
	return status, nil
}

func (c *Client) buildURL(base, txHash, apiKey string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse explorer url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("explorer url must be absolute: %q", base)
	}

	query := parsed.Query()
	query.Set("module", "proxy")
	query.Set("action", "eth_getTransactionByHash")
	query.Set("txhash", txHash)
	if apiKey != "" {
		query.Set("apikey", apiKey)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (c *Client) apiKey(ctx context.Context) string {
	if c.KeySource != nil {
		if key := c.KeySource(ctx); key != "" {
			return key
		}
	}
	return c.APIKey
}

func (c *Client) limiterFor(endpoint string) *rate.Limiter {
	host := endpoint
	if parsed, err := url.Parse(endpoint); err == nil {
		host = parsed.Host
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limiters == nil {
		c.limiters = make(map[string]*rate.Limiter)
	}
	limiter, ok := c.limiters[host]
	if !ok {
		perSecond := c.RatePerSecond
		if perSecond <= 0 {
			perSecond = DefaultRatePerSecond
		}
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		c.limiters[host] = limiter
	}
	return limiter
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	if c.InitialBackoff > 0 {
		policy.InitialInterval = c.InitialBackoff
	}
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0

	retries := c.MaxRetries
	if retries == 0 {
		retries = DefaultMaxRetries
	}
	return backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
