package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"stock-sentiment-predictor/internal/logger"
)

// Client represents an HTTP client with common configuration and utilities
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	limiter    *rate.Limiter
	useLogging bool
}

func (c *Client) logDebug(ctx context.Context, msg string, args ...any) {
	if c.useLogging {
		logger.Debug(ctx, msg, args...)
	}
}

func (c *Client) logWarn(ctx context.Context, msg string, args ...any) {
	if c.useLogging {
		logger.Warn(ctx, msg, args...)
	}
}

func (c *Client) logError(ctx context.Context, msg string, args ...any) {
	if c.useLogging {
		logger.Error(ctx, msg, args...)
	}
}

// ClientOption configures the API client
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL sets the base URL for all requests
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHeader sets a default header for all requests
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHeaders sets several default headers at once
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithHTTPClient swaps the underlying transport client (oauth2, tests)
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogging enables logging for the API client
func WithLogging(enabled bool) ClientOption {
	return func(c *Client) {
		c.useLogging = enabled
	}
}

// NewClient creates a new API client with the given options
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// StatusError is returned for any response with status >= 400.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// StatusCode extracts the HTTP status from err, 0 when err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Request represents an HTTP request configuration
type Request struct {
	Method  string
	URL     string
	Body    any
	Headers map[string]string
	ctx     context.Context
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// NewRequest creates a new request
func NewRequest(method, url string) *Request {
	return &Request{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
		ctx:     context.Background(),
	}
}

// WithContext sets the context for the request
func (r *Request) WithContext(ctx context.Context) *Request {
	r.ctx = ctx
	return r
}

// WithBody sets the request body (will be JSON encoded)
func (r *Request) WithBody(body any) *Request {
	r.Body = body
	return r
}

// WithHeader sets a request-specific header
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// Do executes the HTTP request
func (c *Client) Do(req *Request) (*Response, error) {
	url := req.URL
	if c.baseURL != "" {
		url = c.baseURL + req.URL
	}

	var bodyReader io.Reader
	if req.Body != nil {
		jsonBody, err := json.Marshal(req.Body)
		if err != nil {
			c.logError(req.ctx, "Failed to marshal request body", "error", err)
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(req.ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(req.ctx, req.Method, url, bodyReader)
	if err != nil {
		c.logError(req.ctx, "Failed to create HTTP request", "error", err)
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for key, value := range c.headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	c.logDebug(req.ctx, "HTTP Request", "method", req.Method, "url", url)

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logError(req.ctx, "HTTP request failed", "method", req.Method, "url", url, "error", err)
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.logError(req.ctx, "Failed to read response body", "error", err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logDebug(req.ctx, "HTTP Response",
		"method", req.Method,
		"url", url,
		"status", httpResp.StatusCode,
		"duration", time.Since(startTime),
		"bodySize", len(body))

	if httpResp.StatusCode >= 400 {
		c.logWarn(req.ctx, "HTTP error response",
			"method", req.Method,
			"url", url,
			"status", httpResp.StatusCode)
		return nil, &StatusError{Code: httpResp.StatusCode, Body: string(body)}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Headers:    httpResp.Header,
	}, nil
}

// GET performs a GET request
func (c *Client) GET(ctx context.Context, url string, headers ...map[string]string) (*Response, error) {
	req := NewRequest(http.MethodGet, url).WithContext(ctx)
	if len(headers) > 0 {
		for key, value := range headers[0] {
			req.WithHeader(key, value)
		}
	}
	return c.Do(req)
}

// POST performs a POST request
func (c *Client) POST(ctx context.Context, url string, body any, headers ...map[string]string) (*Response, error) {
	req := NewRequest(http.MethodPost, url).
		WithContext(ctx).
		WithBody(body)
	if len(headers) > 0 {
		for key, value := range headers[0] {
			req.WithHeader(key, value)
		}
	}
	return c.Do(req)
}

// ParseJSON parses the response body as JSON into the given struct
func (r *Response) ParseJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// String returns the response body as a string
func (r *Response) String() string {
	return string(r.Body)
}

// BrowserHeaders returns common browser headers to mimic a real browser request
func BrowserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
	}
}

// YahooFinanceHeaders returns headers for Yahoo Finance API
func YahooFinanceHeaders() map[string]string {
	h := BrowserHeaders()
	h["Accept"] = "application/json"
	h["Referer"] = "https://finance.yahoo.com/"
	return h
}

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Second,
		MaxWait:     5 * time.Second,
	}
}

// DoWithRetry executes a request with exponential backoff. Client errors other
// than 429 are returned immediately.
func (c *Client) DoWithRetry(req *Request, config *RetryConfig) (*Response, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = config.InitialWait
	eb.MaxInterval = config.MaxWait
	eb.MaxElapsedTime = 0

	retries := uint64(max(config.MaxAttempts-1, 0))
	b := backoff.WithContext(backoff.WithMaxRetries(eb, retries), req.ctx)

	attempt := 0
	var resp *Response
	op := func() error {
		attempt++
		c.logDebug(req.ctx, "Request attempt", "attempt", attempt, "maxAttempts", config.MaxAttempts)

		r, err := c.Do(req)
		if err == nil {
			resp = r
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logWarn(req.ctx, "Request failed, retrying", "attempt", attempt, "error", err, "waitTime", wait)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		c.logError(req.ctx, "All retry attempts failed", "attempts", attempt, "error", err)
		return nil, fmt.Errorf("request failed after %d attempt(s): %w", attempt, err)
	}
	return resp, nil
}
