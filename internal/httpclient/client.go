// Package httpclient provides an HTTP client with retry, backoff, and rate
// limit handling shared by every LLM provider client in internal/llm.
//
// Features:
//   - Automatic retry with exponential backoff (cenkalti/backoff/v4)
//   - Rate limit header parsing (Anthropic, OpenAI, Perplexity)
//   - Smart retry based on status codes
package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryStrategy defines how to handle retries.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
	SmartRetry
)

// RateLimitInfo contains rate limit information from response headers.
type RateLimitInfo struct {
	RetryAfter            time.Duration
	ResetTime             int64
	RequestsRemaining     int
	InputTokensRemaining  int
	OutputTokensRemaining int
	TokensRemaining       int
}

// HeaderParser extracts rate limit info from response headers.
type HeaderParser func(http.Header) RateLimitInfo

// StrategyFunc determines the retry strategy for a status code.
type StrategyFunc func(int) RetryStrategy

// Client wraps http.Client with retry and backoff capabilities.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	headerParser HeaderParser
	strategyFunc StrategyFunc
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

func WithMaxRetries(n int) Option {
	return func(cl *Client) { cl.maxRetries = n }
}

func WithBaseDelay(d time.Duration) Option {
	return func(cl *Client) { cl.baseDelay = d }
}

func WithMaxDelay(d time.Duration) Option {
	return func(cl *Client) { cl.maxDelay = d }
}

func WithHeaderParser(p HeaderParser) Option {
	return func(cl *Client) { cl.headerParser = p }
}

func WithRetryStrategy(s StrategyFunc) Option {
	return func(cl *Client) { cl.strategyFunc = s }
}

// New creates a new Client with the given options. Defaults: base 1s,
// max 30s, 3 attempts (one try plus 2 retries).
func New(opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 120 * time.Second},
		maxRetries:   2,
		baseDelay:    1 * time.Second,
		maxDelay:     30 * time.Second,
		strategyFunc: DefaultStrategy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultStrategy maps HTTP status codes to a retry strategy.
func DefaultStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// backoffPolicy builds the exponential backoff schedule used for every
// retried request, bounded to c.maxRetries retries after the first try.
func (c *Client) backoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.MaxInterval = c.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	return backoff.WithMaxRetries(b, uint64(c.maxRetries))
}

// Do executes req with retry logic, honoring rate-limit headers when
// present and falling back to exponential backoff otherwise.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		_ = req.Body.Close()
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(bodyBytes)), nil
		}
	}

	policy := c.backoffPolicy()
	var lastResp *http.Response
	attempt := 0

	op := func() error {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, strategy, info, err := c.attemptRequest(req)
		lastResp = resp
		attempt++

		if strategy == NoRetry {
			return backoff.Permanent(err)
		}

		if delay := c.rateLimitDelay(strategy, info); delay > 0 {
			c.logRetry(strategy, delay, attempt, resp)
			time.Sleep(delay)
			return err
		}

		c.logRetry(strategy, 0, attempt, resp)
		return err
	}

	err := backoff.Retry(op, policy)
	if err != nil {
		statusCode := 0
		if lastResp != nil {
			statusCode = lastResp.StatusCode
		}
		return lastResp, &RetryableError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("request failed after %d attempts", attempt),
			Err:        err,
		}
	}
	return lastResp, nil
}

func (c *Client) attemptRequest(req *http.Request) (*http.Response, RetryStrategy, RateLimitInfo, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NoRetry, RateLimitInfo{}, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, NoRetry, RateLimitInfo{}, nil
	}

	var info RateLimitInfo
	if c.headerParser != nil {
		info = c.headerParser(resp.Header)
	}
	strategy := c.strategyFunc(resp.StatusCode)
	return resp, strategy, info, fmt.Errorf("http %d: %s", resp.StatusCode, extractErrorDetails(resp))
}

// rateLimitDelay returns an explicit delay for SmartRetry when the server
// told us how long to wait; zero lets the backoff policy's own interval apply.
func (c *Client) rateLimitDelay(strategy RetryStrategy, info RateLimitInfo) time.Duration {
	if strategy != SmartRetry {
		return 0
	}
	if info.RetryAfter > 0 {
		return min(info.RetryAfter, c.maxDelay)
	}
	if info.ResetTime > 0 {
		if d := time.Until(time.Unix(info.ResetTime, 0)); d > 0 {
			return min(d, c.maxDelay)
		}
	}
	return 0
}

func (c *Client) logRetry(strategy RetryStrategy, delay time.Duration, attempt int, resp *http.Response) {
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	switch strategy {
	case SmartRetry:
		slog.Info("rate limited, retrying", "status", statusCode, "delay", delay, "attempt", attempt)
	case ConservativeRetry:
		slog.Warn("server error, retrying", "status", statusCode, "attempt", attempt)
	}
}

func extractErrorDetails(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) == 0 {
		return ""
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
