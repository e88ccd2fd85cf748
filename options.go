package tangguh

import (
	"fmt"
	"net/http"
	"time"
)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of retry attempts after the first.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryBaseDelay sets the delay before the first retry.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = d
	}
}

// WithMaxRetryDelay caps the computed backoff delay.
func WithMaxRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.maxRetryDelay = d
	}
}

// WithBackoffMultiplier sets the exponential growth factor.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithBackoffStrategy selects the backoff algorithm.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = strategy
	}
}

// WithRetryPolicy replaces the default retry policy entirely.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithCircuitBreaker sets the circuit breaker configuration applied to each
// target guard.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breakerConfig = config
	}
}

// WithCircuitBreakerDisabled turns the breaker into a pass-through.
func WithCircuitBreakerDisabled() Option {
	return func(c *Client) {
		c.breakerConfig.Disabled = true
	}
}

// WithAuthToken attaches a bearer token to every request. Takes precedence
// over an API key.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithAPIKey attaches an X-API-Key header to every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithAuthHeader overrides the header name used for the bearer token.
func WithAuthHeader(name string) Option {
	return func(c *Client) {
		c.authHeader = name
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRateLimitWindow sets the trailing window width for local pacing.
func WithRateLimitWindow(d time.Duration) Option {
	return func(c *Client) {
		c.rateWindow = d
	}
}

// WithLocalRateCeiling sets the informational local ceiling on requests per
// window, surfaced via stats.
func WithLocalRateCeiling(n int) Option {
	return func(c *Client) {
		c.rateCeiling = n
	}
}

// WithMaxRateLimitWait caps how long a call will suspend for a
// server-advertised rate-limit reset before being rejected outright.
func WithMaxRateLimitWait(d time.Duration) Option {
	return func(c *Client) {
		c.maxRateLimitWait = d
	}
}

// WithHTTPClient sets a custom HTTP client for transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTransport sets a custom transport on the underlying HTTP client.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = transport
	}
}

// WithClock injects the time source used by all reliability components.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLogger sets the structured event sink.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		c.requestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, c.validateRetryConfig()...)
	errs = append(errs, c.validateRateLimitConfig()...)
	errs = append(errs, c.validateCircuitBreakerConfig()...)
	errs = append(errs, c.validateHTTPConfig()...)
	errs = append(errs, c.validateExtremeValues()...)

	if len(errs) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errs),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var errs []string

	if c.maxRetries < 0 {
		errs = append(errs, "maxRetries must be non-negative")
	}
	if c.retryBaseDelay <= 0 {
		errs = append(errs, "retryBaseDelay must be positive")
	}
	if c.maxRetryDelay < c.retryBaseDelay {
		errs = append(errs, "maxRetryDelay must be greater than or equal to retryBaseDelay")
	}
	if c.backoffMultiplier <= 0 {
		errs = append(errs, "backoffMultiplier must be positive")
	}
	if c.timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}

	return errs
}

func (c *Client) validateRateLimitConfig() []string {
	var errs []string

	if c.rateWindow <= 0 {
		errs = append(errs, "rate limit window must be positive")
	}
	if c.rateCeiling < 0 {
		errs = append(errs, "local rate ceiling must be non-negative")
	}
	if c.maxRateLimitWait < 0 {
		errs = append(errs, "maxRateLimitWait must be non-negative")
	}

	return errs
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var errs []string

	if c.breakerConfig.FailureThreshold < 0 {
		errs = append(errs, "circuitBreaker FailureThreshold must be non-negative")
	}
	if c.breakerConfig.Cooldown < 0 {
		errs = append(errs, "circuitBreaker Cooldown must be non-negative")
	}

	return errs
}

func (c *Client) validateHTTPConfig() []string {
	var errs []string

	if c.httpClient == nil {
		errs = append(errs, "HTTP client cannot be nil")
	}
	if c.clock == nil {
		errs = append(errs, "clock cannot be nil")
	}
	if c.logger == nil {
		errs = append(errs, "logger cannot be nil")
	}
	if c.requestIDGen == nil {
		errs = append(errs, "request ID generator cannot be nil")
	}

	return errs
}

func (c *Client) validateExtremeValues() []string {
	var errs []string

	if c.maxRetries > 100 {
		errs = append(errs, "maxRetries > 100 may cause excessive resource usage")
	}
	if c.retryBaseDelay > 10*time.Minute {
		errs = append(errs, "retryBaseDelay > 10m may cause very long delays")
	}
	if c.maxRetryDelay > time.Hour {
		errs = append(errs, "maxRetryDelay > 1h may cause extremely long delays")
	}
	if c.timeout > 10*time.Minute {
		errs = append(errs, "timeout > 10m may cause requests to hang for too long")
	}

	return errs
}
