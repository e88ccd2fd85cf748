package tangguh

import (
	"sync"
	"time"
)

// ClientStats is a point-in-time snapshot of client usage.
type ClientStats struct {
	// RequestCount counts transport attempts, including retries.
	RequestCount uint64
	// ErrorCount counts logical calls that terminated with an error.
	ErrorCount uint64
	// ErrorRate is ErrorCount over max(RequestCount, 1).
	ErrorRate float64
	// LastRequestTime is when the most recent attempt was dispatched.
	LastRequestTime time.Time
	// CircuitState and CircuitFailures describe the base target's breaker.
	CircuitState    CircuitState
	CircuitFailures int
	// RateLimitRemaining is the server-advertised quota, -1 when unknown.
	RateLimitRemaining int
	// RateLimitReset is the server-advertised reset time, zero when unknown.
	RateLimitReset time.Time
	// RequestsInWindow is the local trailing-window request count.
	RequestsInWindow int
}

// statsTracker accumulates the counter portion of ClientStats. Breaker and
// limiter state is read from the owning components at snapshot time.
type statsTracker struct {
	mu           sync.Mutex
	requestCount uint64
	errorCount   uint64
	lastRequest  time.Time
}

func (s *statsTracker) recordAttempt(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCount++
	s.lastRequest = now
}

func (s *statsTracker) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
}

func (s *statsTracker) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCount = 0
	s.errorCount = 0
	s.lastRequest = time.Time{}
}

func (s *statsTracker) snapshot() (requests, errors uint64, last time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount, s.errorCount, s.lastRequest
}
