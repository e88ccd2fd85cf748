package tangguh

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// RequestSpec describes one logical API call. It is immutable once constructed;
// the executor reads it but never mutates it, so a single spec may be reused
// across calls.
type RequestSpec struct {
	// Method is the HTTP method, e.g. http.MethodGet.
	Method string
	// Path is resolved relative to the client base URL.
	Path string
	// Body, when non-nil, is marshaled to JSON and sent as the request body.
	Body any
	// Query parameters appended to the URL.
	Query url.Values
	// Headers override or extend the client default headers.
	Headers http.Header
	// Timeout overrides the client per-attempt timeout when positive.
	Timeout time.Duration
}

// Response is the parsed result of a successful call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name used in logs and stats.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Defaults to 5.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe is admitted.
	// Defaults to 5 minutes.
	Cooldown time.Duration
	// Disabled turns the breaker into a pass-through.
	Disabled bool
}

// OutcomeKind tags the result of a single transport attempt.
type OutcomeKind int

const (
	// OutcomeSuccess is a 2xx/3xx response.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRetryable is a failure eligible for another attempt under policy.
	OutcomeRetryable
	// OutcomeFatal is a failure that must not be retried.
	OutcomeFatal
)

// AttemptOutcome is the classified result of one transport attempt. Produced
// once per attempt and never persisted beyond the retry loop.
type AttemptOutcome struct {
	Kind       OutcomeKind
	StatusCode int
	Headers    http.Header
	Body       []byte
	// ErrorType names the failure category for non-success outcomes.
	ErrorType string
	// Reason is the underlying transport error, nil for HTTP-level outcomes.
	Reason error
	// RetryAfter is a server-specified wait (from a 429 Retry-After header)
	// that overrides the computed backoff. Zero when absent.
	RetryAfter time.Duration
}

// Success reports whether the attempt completed usefully.
func (o *AttemptOutcome) Success() bool {
	return o.Kind == OutcomeSuccess
}

// RetryPolicy decides whether a failed attempt should be retried and how long
// to wait before the next attempt.
type RetryPolicy interface {
	// ShouldRetry returns the delay before the next attempt and whether a
	// retry should happen at all. attempt is zero-indexed.
	ShouldRetry(outcome *AttemptOutcome, attempt int) (time.Duration, bool)
}

// BackoffStrategy selects the algorithm used to compute retry delays.
type BackoffStrategy int

const (
	// ExponentialJitter grows delays exponentially with uniform jitter.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter implements AWS-style decorrelated jitter.
	DecorrelatedJitter
)

// Option represents a configuration option
type Option func(*Client)
