package tangguh

import (
	"sync/atomic"
	"time"
)

// CircuitBreaker guards one target endpoint with a three-state machine. It
// tracks consecutive failures and temporarily blocks all calls to a failing
// endpoint. Safe for concurrent use.
//
// Transitions:
//
//	Closed   --(consecutive failures >= threshold)--> Open
//	Open     --(cooldown elapsed, checked lazily)-->  HalfOpen
//	HalfOpen --(probe succeeds)-->                    Closed
//	HalfOpen --(probe fails)-->                       Open
//
// The Open->HalfOpen transition uses a compare-and-swap so exactly one caller
// performs it, but callers arriving while the state is already HalfOpen are
// all admitted. The single-probe guarantee is therefore best effort.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	clock  Clock

	state       int64
	failures    int64
	lastFailure int64 // unix nanos
}

// NewCircuitBreaker creates a circuit breaker, applying defaults for zero
// config fields. A nil clock falls back to SystemClock.
func NewCircuitBreaker(config CircuitBreakerConfig, clock Clock) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown == 0 {
		config.Cooldown = 5 * time.Minute
	}
	if clock == nil {
		clock = SystemClock
	}

	return &CircuitBreaker{
		config: config,
		clock:  clock,
		state:  int64(StateClosed),
	}
}

// Allow checks whether a call may proceed. While open it admits nothing until
// the cooldown has elapsed since the last failure, at which point the state
// moves to half-open and the probe is admitted.
func (cb *CircuitBreaker) Allow() bool {
	if cb.config.Disabled {
		return true
	}

	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		return true
	case StateOpen:
		now := cb.clock.Now().UnixNano()
		lastFailure := atomic.LoadInt64(&cb.lastFailure)
		if now-lastFailure >= int64(cb.config.Cooldown) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
				return true
			}
			// Another caller just performed the transition; it may already
			// be half-open, in which case we are admitted too.
			return CircuitState(atomic.LoadInt64(&cb.state)) == StateHalfOpen
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordFailure records a failed attempt. In the closed state it may open the
// circuit; in the half-open state the failed probe reopens it with the failure
// count retained and incremented.
func (cb *CircuitBreaker) RecordFailure() {
	if cb.config.Disabled {
		return
	}

	atomic.StoreInt64(&cb.lastFailure, cb.clock.Now().UnixNano())

	switch CircuitState(atomic.LoadInt64(&cb.state)) {
	case StateClosed:
		if atomic.AddInt64(&cb.failures, 1) >= int64(cb.config.FailureThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateOpen))
		}
	case StateOpen:
		// Only the lastFailure timestamp moves.
	case StateHalfOpen:
		atomic.AddInt64(&cb.failures, 1)
		atomic.StoreInt64(&cb.state, int64(StateOpen))
	}
}

// RecordSuccess records a successful attempt. A success while half-open closes
// the circuit and clears the failure count; a success while closed leaves the
// failure count untouched.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb.config.Disabled {
		return
	}

	if atomic.CompareAndSwapInt64(&cb.state, int64(StateHalfOpen), int64(StateClosed)) {
		atomic.StoreInt64(&cb.failures, 0)
	}
}

// Reset returns the breaker to the closed state with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	atomic.StoreInt64(&cb.state, int64(StateClosed))
	atomic.StoreInt64(&cb.failures, 0)
	atomic.StoreInt64(&cb.lastFailure, 0)
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}

// Failures returns the current consecutive-failure count.
func (cb *CircuitBreaker) Failures() int {
	return int(atomic.LoadInt64(&cb.failures))
}
