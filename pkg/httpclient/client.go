// Package httpclient is the HTTP client used to talk to upstream providers.
//
// Every request passes through a circuit breaker, which is normally shared
// by all clients for the same host via a Manager. Transport errors and
// 429/502/503/504 responses are retried with exponential backoff. Response
// bodies are decompressed transparently and can be capped in size.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects requests.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrMaxRetries wraps the last failure once every attempt is used up.
	ErrMaxRetries = errors.New("max retries exceeded")
	// ErrResponseTooLarge is returned by a body read past MaxResponseSize.
	ErrResponseTooLarge = errors.New("response body exceeds maximum size limit")
)

// Defaults used by DefaultConfig.
const (
	DefaultTimeout            = 30 * time.Second
	DefaultRetryAttempts      = 3
	DefaultRetryDelay         = time.Second
	DefaultRetryMaxDelay      = 30 * time.Second
	DefaultBackoffMultiplier  = 2.0
	DefaultCircuitThreshold   = 5
	DefaultCircuitTimeout     = 30 * time.Second
	DefaultCircuitHalfOpenMax = 1
	DefaultMaxResponseSize    = 0
)

// Config holds the client settings.
type Config struct {
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts     int
	RetryDelay        time.Duration
	RetryMaxDelay     time.Duration
	BackoffMultiplier float64

	// Breaker settings, used when the client creates its own breaker.
	CircuitThreshold   int
	CircuitTimeout     time.Duration
	CircuitHalfOpenMax int

	// UserAgent is sent when the request has none.
	UserAgent string

	Logger *slog.Logger

	EnableDecompression bool

	// MaxResponseSize caps the decompressed body in bytes. Zero disables
	// the cap.
	MaxResponseSize int64

	// BaseClient performs the actual requests. Nil means a plain client
	// with Timeout.
	BaseClient *http.Client
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Timeout:             DefaultTimeout,
		RetryAttempts:       DefaultRetryAttempts,
		RetryDelay:          DefaultRetryDelay,
		RetryMaxDelay:       DefaultRetryMaxDelay,
		BackoffMultiplier:   DefaultBackoffMultiplier,
		CircuitThreshold:    DefaultCircuitThreshold,
		CircuitTimeout:      DefaultCircuitTimeout,
		CircuitHalfOpenMax:  DefaultCircuitHalfOpenMax,
		Logger:              slog.Default(),
		EnableDecompression: true,
		MaxResponseSize:     DefaultMaxResponseSize,
	}
}

// Client sends requests through a circuit breaker with retries.
type Client struct {
	config  Config
	client  *http.Client
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// New creates a client with a breaker of its own.
func New(cfg Config) *Client {
	return NewWithBreaker(cfg, nil)
}

// NewWithDefaults creates a client with DefaultConfig.
func NewWithDefaults() *Client {
	return New(DefaultConfig())
}

// NewWithBreaker creates a client that records outcomes on breaker. A nil
// breaker is replaced by a new one built from cfg.
func NewWithBreaker(cfg Config, breaker *CircuitBreaker) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = DefaultRetryMaxDelay
	}
	cfg.RetryAttempts = max(cfg.RetryAttempts, 0)
	if breaker == nil {
		breaker = NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitTimeout, cfg.CircuitHalfOpenMax)
	}

	base := cfg.BaseClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		config:  cfg,
		client:  base,
		breaker: breaker,
		logger:  cfg.Logger,
	}
}

// Do sends req, retrying retryable failures. Non-retryable error statuses
// are returned as responses for the caller to inspect.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	c.prepare(req)

	logger := c.logger.With(slog.String("method", req.Method), slog.String("url", redactURL(req)))
	wait := newBackoff(c.config)

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := wait.next()
			logger.Debug("retrying request", slog.Int("attempt", attempt), slog.Duration("delay", delay))
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			if err := rewindBody(req); err != nil {
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, req, logger.With(slog.Int("attempt", attempt)))
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", ErrMaxRetries, lastErr)
}

// attempt sends req once. Any returned error is retryable.
func (c *Client) attempt(ctx context.Context, req *http.Request, logger *slog.Logger) (*http.Response, error) {
	if !c.breaker.Allow() {
		logger.Warn("circuit breaker open, skipping request", slog.String("state", c.breaker.State().String()))
		return nil, ErrCircuitOpen
	}

	start := time.Now()
	resp, err := c.client.Do(req.WithContext(ctx))
	elapsed := time.Since(start)

	switch {
	case err != nil:
		// Cancellation is the caller's doing and says nothing about the upstream.
		if ctx.Err() == nil {
			c.breaker.RecordFailure()
			logger.Warn("request failed", slog.Duration("duration", elapsed), slog.String("error", err.Error()))
		}
		return nil, err
	case isRetryableStatus(resp.StatusCode):
		c.breaker.RecordFailure()
		_ = resp.Body.Close()
		logger.Warn("retryable status code", slog.Int("status", resp.StatusCode), slog.Duration("duration", elapsed))
		return nil, fmt.Errorf("retryable status code: %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		c.breaker.RecordFailure()
	default:
		c.breaker.RecordSuccess()
	}

	logger.Debug("request completed",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed),
		slog.Int64("content_length", resp.ContentLength),
	)

	if c.config.EnableDecompression {
		resp.Body = c.decompress(resp)
	}
	if c.config.MaxResponseSize > 0 {
		// After decompression, so a small compressed body cannot expand
		// past the cap.
		resp.Body = newLimitedReader(resp.Body, c.config.MaxResponseSize)
	}
	return resp, nil
}

func (c *Client) prepare(req *http.Request) {
	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.EnableDecompression && req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
}

// Get sends a GET request for url.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(req)
}

// CircuitState returns the state of the client's breaker.
func (c *Client) CircuitState() CircuitState {
	return c.breaker.State()
}

// StandardClient returns an *http.Client whose transport is c, for
// libraries that expect the standard type.
func (c *Client) StandardClient() *http.Client {
	return &http.Client{
		Transport: roundTripperFunc(c.Do),
		Timeout:   c.config.Timeout,
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// backoff yields exponentially growing retry delays up to a maximum.
type backoff struct {
	delay  time.Duration
	max    time.Duration
	factor float64
}

func newBackoff(cfg Config) *backoff {
	return &backoff{delay: cfg.RetryDelay, max: cfg.RetryMaxDelay, factor: cfg.BackoffMultiplier}
}

func (b *backoff) next() time.Duration {
	d := b.delay
	b.delay = min(time.Duration(float64(b.delay)*b.factor), b.max)
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func rewindBody(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewinding request body: %w", err)
	}
	req.Body = body
	return nil
}

// redactURL drops the query string, which carries provider credentials.
func redactURL(req *http.Request) string {
	return req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
