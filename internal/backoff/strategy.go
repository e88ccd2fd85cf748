package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Calculate returns the delay for the given zero-indexed attempt.
	Calculate(attempt int, baseDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration
}

// ExponentialJitterStrategy grows delays as base * multiplier^attempt, capped
// at maxDelay, with optional uniform jitter on top.
type ExponentialJitterStrategy struct{}

// Calculate implements Strategy.
func (ExponentialJitterStrategy) Calculate(attempt int, baseDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Cap the exponent so the float math cannot overflow.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(baseDelay) * Pow(multiplier, attempt))
	if delay < 0 || delay > maxDelay {
		delay = maxDelay
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		amount := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+amount > maxDelay {
			delay = maxDelay
		} else {
			delay += amount
		}
	}
	return delay
}

// DecorrelatedJitterStrategy implements decorrelated jitter per the AWS
// architecture blog: each delay is drawn uniformly between the base delay and
// three times the previous upper bound, capped at maxDelay. Stateless
// approximation: random_between(base, min(cap, base * 3^attempt)).
type DecorrelatedJitterStrategy struct{}

// Calculate implements Strategy. multiplier and jitter are ignored; the
// strategy has its own growth factor.
func (DecorrelatedJitterStrategy) Calculate(attempt int, baseDelay, maxDelay time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return baseDelay
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(baseDelay)
	upper := base * Pow(3.0, attempt)
	if upper > float64(maxDelay) || upper < 0 {
		upper = float64(maxDelay)
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// Pow computes base^exponent by repeated multiplication, avoiding the
// math.Pow edge cases for the small integer exponents used here.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
