package tangguh

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is a resilient HTTP client that layers retries, circuit breaking and
// rate limiting around the standard net/http client. It owns one circuit
// breaker and one rate limiter per target host and aggregates usage
// statistics. Safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	timeout           time.Duration
	maxRetries        int
	retryBaseDelay    time.Duration
	maxRetryDelay     time.Duration
	backoffMultiplier float64
	jitter            float64
	backoffStrategy   BackoffStrategy
	retryPolicy       RetryPolicy

	breakerConfig CircuitBreakerConfig

	rateWindow       time.Duration
	rateCeiling      int
	maxRateLimitWait time.Duration

	authToken  string
	apiKey     string
	authHeader string
	userAgent  string

	clock        Clock
	logger       Logger
	metrics      *MetricsCollector
	requestIDGen func() string

	guards *guardRegistry
	stats  *statsTracker

	validationError error
}

// New constructs a Client for the given base URL using the provided functional
// options. A best effort validation is performed; call IsValid /
// ValidationError for errors.
func New(baseURL string, options ...Option) *Client {
	client := &Client{
		httpClient:        &http.Client{},
		timeout:           30 * time.Second,
		maxRetries:        3,
		retryBaseDelay:    time.Second,
		maxRetryDelay:     60 * time.Second,
		backoffMultiplier: 2.0,
		jitter:            0,
		backoffStrategy:   ExponentialJitter,
		breakerConfig:     CircuitBreakerConfig{},
		rateWindow:        time.Minute,
		maxRateLimitWait:  5 * time.Minute,
		authHeader:        "Authorization",
		userAgent:         "tangguh/" + Version,
		clock:             SystemClock,
		logger:            NopLogger{},
		requestIDGen:      uuid.NewString,
		stats:             &statsTracker{},
	}

	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || parsed.Host == "" {
		client.validationError = &ClientError{
			Type:    ErrorTypeValidation,
			Message: "invalid base URL: " + baseURL,
			Cause:   err,
		}
	}
	client.baseURL = parsed

	for _, option := range options {
		option(client)
	}

	if client.retryPolicy == nil {
		client.retryPolicy = NewDefaultRetryPolicyWithStrategy(
			client.maxRetries,
			client.retryBaseDelay,
			client.maxRetryDelay,
			client.backoffMultiplier,
			client.jitter,
			client.backoffStrategy,
		)
	}

	client.guards = newGuardRegistry(func() *targetGuard {
		return &targetGuard{
			breaker: NewCircuitBreaker(client.breakerConfig, client.clock),
			limiter: NewRateLimiter(client.rateWindow, client.rateCeiling, client.maxRateLimitWait, client.clock),
		}
	})

	if err := client.ValidateConfiguration(); err != nil && client.validationError == nil {
		client.validationError = err
	}

	return client
}

// Get performs a GET request against path with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &RequestSpec{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request with body marshaled to JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &RequestSpec{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request with body marshaled to JSON.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &RequestSpec{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request with body marshaled to JSON.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &RequestSpec{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &RequestSpec{Method: http.MethodDelete, Path: path})
}

// Do executes one logical call described by spec, applying admission control,
// retries and failure classification.
func (c *Client) Do(ctx context.Context, spec *RequestSpec) (*Response, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}

	exec, err := c.newExecutor(spec)
	if err != nil {
		return nil, err
	}
	return exec.run(ctx)
}

// healthCheckPaths are probed in order by HealthCheck.
var healthCheckPaths = []string{"/health", "/ping", "/status", "/"}

// healthCheckTimeout bounds each individual probe.
const healthCheckTimeout = 10 * time.Second

// HealthCheck issues lightweight probes against a small set of candidate
// paths, returning true on the first sub-400 response and false once the
// probe budget is exhausted.
func (c *Client) HealthCheck(ctx context.Context) bool {
	for _, path := range healthCheckPaths {
		resp, err := c.Do(ctx, &RequestSpec{
			Method:  http.MethodGet,
			Path:    path,
			Timeout: healthCheckTimeout,
		})
		if err == nil && resp.StatusCode < 400 {
			c.logger.Debug("health check passed", "path", path)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// Stats returns a snapshot of usage counters together with the base target's
// breaker and rate-limit state.
func (c *Client) Stats() ClientStats {
	requests, errors, last := c.stats.snapshot()

	stats := ClientStats{
		RequestCount:       requests,
		ErrorCount:         errors,
		LastRequestTime:    last,
		RateLimitRemaining: remainingUnknown,
	}
	if requests > 0 {
		stats.ErrorRate = float64(errors) / float64(requests)
	}

	if c.baseURL != nil && c.baseURL.Host != "" {
		guard := c.guards.guardFor(c.baseURL.Host)
		rl := guard.limiter.Snapshot()
		stats.CircuitState = guard.breaker.State()
		stats.CircuitFailures = guard.breaker.Failures()
		stats.RateLimitRemaining = rl.Remaining
		stats.RateLimitReset = rl.ResetAt
		stats.RequestsInWindow = rl.InWindow
	}

	return stats
}

// ResetStats zeroes the usage counters and returns every known breaker to the
// closed state.
func (c *Client) ResetStats() {
	c.stats.reset()
	c.guards.reset()
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// resolveURL joins path and query onto the base URL.
func (c *Client) resolveURL(spec *RequestSpec) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(spec.Path, "/")
	if len(spec.Query) > 0 {
		u.RawQuery = spec.Query.Encode()
	}
	return u.String()
}

// defaultHeaders returns the headers attached to every request. The auth
// token takes precedence over the API key when both are configured.
func (c *Client) defaultHeaders() http.Header {
	headers := http.Header{}
	headers.Set("User-Agent", c.userAgent)
	headers.Set("Accept", "application/json")
	headers.Set("Content-Type", "application/json")

	if c.authToken != "" {
		headers.Set(c.authHeader, "Bearer "+c.authToken)
	} else if c.apiKey != "" {
		headers.Set("X-API-Key", c.apiKey)
	}

	return headers
}

// endpointLabel renders host+path for metrics and logs.
func endpointLabel(host, path string) string {
	var builder strings.Builder
	builder.WriteString(host)
	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}
