package tangguh

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	internalbackoff "github.com/adyatama/tangguh/internal/backoff"
)

// DefaultRetryPolicy retries retryable outcomes with exponential backoff while
// attempts remain, honoring a server-specified Retry-After wait over the
// computed delay. Fatal outcomes are never retried.
type DefaultRetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64
	strategy   internalbackoff.Strategy
}

// NewDefaultRetryPolicy creates a policy using exponential backoff.
func NewDefaultRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration, multiplier, jitter float64) *DefaultRetryPolicy {
	return NewDefaultRetryPolicyWithStrategy(maxRetries, baseDelay, maxDelay, multiplier, jitter, ExponentialJitter)
}

// NewDefaultRetryPolicyWithStrategy creates a policy with a specific backoff
// strategy.
func NewDefaultRetryPolicyWithStrategy(maxRetries int, baseDelay, maxDelay time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *DefaultRetryPolicy {
	policy := &DefaultRetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		multiplier: multiplier,
		jitter:     jitter,
	}

	switch strategy {
	case DecorrelatedJitter:
		policy.strategy = internalbackoff.DecorrelatedJitterStrategy{}
	default:
		policy.strategy = internalbackoff.ExponentialJitterStrategy{}
	}

	return policy
}

// ShouldRetry implements the RetryPolicy interface. attempt is zero-indexed;
// an outcome on the final permitted attempt is never retried and surfaces to
// the caller as a terminal error.
func (p *DefaultRetryPolicy) ShouldRetry(outcome *AttemptOutcome, attempt int) (time.Duration, bool) {
	if outcome == nil || outcome.Kind != OutcomeRetryable {
		return 0, false
	}
	if attempt >= p.maxRetries {
		return 0, false
	}

	if outcome.RetryAfter > 0 {
		return outcome.RetryAfter, true
	}
	return p.DelayFor(attempt), true
}

// DelayFor returns the computed backoff for the given zero-indexed attempt:
// min(baseDelay * multiplier^attempt, maxDelay), plus jitter when configured.
func (p *DefaultRetryPolicy) DelayFor(attempt int) time.Duration {
	return p.strategy.Calculate(attempt, p.baseDelay, p.maxDelay, p.multiplier, p.jitter)
}

// parseRetryAfter parses a Retry-After header value in either delay-seconds or
// HTTP-date format. Returns 0 when absent or unparseable. Waits are capped at
// one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
