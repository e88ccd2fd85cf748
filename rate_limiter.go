package tangguh

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Rate-limit response headers recognized by UpdateFromResponse.
const (
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// remainingUnknown marks the server-advertised quota as not yet observed.
const remainingUnknown = -1

// Admission is the rate limiter's decision for a new call.
type Admission int

const (
	// AdmissionAllow lets the call proceed now.
	AdmissionAllow Admission = iota
	// AdmissionWait requires suspending until the advertised reset time.
	AdmissionWait
	// AdmissionReject blocks the call outright because the required wait
	// exceeds the configured cap.
	AdmissionReject
)

// RateLimiter tracks recent request timestamps in a trailing window together
// with server-advertised quota state, and decides whether a new call may
// proceed now, later, or not at all. Local pacing is advisory; server-reported
// state is authoritative because it reflects the true remote budget. Safe for
// concurrent use.
type RateLimiter struct {
	mu    sync.Mutex
	clock Clock

	window  time.Duration
	ceiling int // local window ceiling, informational; 0 = none
	maxWait time.Duration

	stamps    []time.Time
	remaining int
	resetAt   time.Time
}

// RateLimitSnapshot is a read-only view of the limiter state.
type RateLimitSnapshot struct {
	// Remaining is the server-advertised quota, -1 when unknown.
	Remaining int
	// ResetAt is the server-advertised reset time, zero when unknown.
	ResetAt time.Time
	// InWindow is the number of requests in the trailing local window.
	InWindow int
	// Saturated reports whether the local window exceeds the ceiling.
	Saturated bool
}

// NewRateLimiter creates a limiter with the given trailing window width, local
// ceiling (0 disables local accounting limits) and maximum tolerated wait for
// a server-advertised reset (0 means wait indefinitely). A nil clock falls
// back to SystemClock.
func NewRateLimiter(window time.Duration, ceiling int, maxWait time.Duration, clock Clock) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if clock == nil {
		clock = SystemClock
	}
	return &RateLimiter{
		clock:     clock,
		window:    window,
		ceiling:   ceiling,
		maxWait:   maxWait,
		remaining: remainingUnknown,
	}
}

// Admit decides whether a new call may proceed. When the server-advertised
// quota is exhausted and its reset lies in the future, the second return value
// carries the time the caller must wait until.
func (rl *RateLimiter) Admit() (Admission, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	rl.prune(now)

	if rl.remaining != remainingUnknown && rl.remaining <= 0 && rl.resetAt.After(now) {
		if rl.maxWait > 0 && rl.resetAt.Sub(now) > rl.maxWait {
			return AdmissionReject, rl.resetAt
		}
		return AdmissionWait, rl.resetAt
	}

	return AdmissionAllow, time.Time{}
}

// Record appends the current time to the trailing window. Called once per
// attempt, regardless of outcome.
func (rl *RateLimiter) Record() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	rl.prune(now)
	rl.stamps = append(rl.stamps, now)
}

// UpdateFromResponse refreshes the server-advertised quota from response
// headers. Absent or malformed headers leave prior values untouched, so a
// response without rate-limit headers does not erase known limits.
func (rl *RateLimiter) UpdateFromResponse(headers http.Header) {
	remaining, hasRemaining := parseIntHeader(headers, headerRateLimitRemaining)
	reset, hasReset := parseIntHeader(headers, headerRateLimitReset)

	if !hasRemaining && !hasReset {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if hasRemaining {
		rl.remaining = remaining
	}
	if hasReset {
		rl.resetAt = time.Unix(int64(reset), 0)
	}
}

// Snapshot returns the current limiter state for stats reporting.
func (rl *RateLimiter) Snapshot() RateLimitSnapshot {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.prune(rl.clock.Now())
	return RateLimitSnapshot{
		Remaining: rl.remaining,
		ResetAt:   rl.resetAt,
		InWindow:  len(rl.stamps),
		Saturated: rl.ceiling > 0 && len(rl.stamps) >= rl.ceiling,
	}
}

// prune drops timestamps older than the window width. Callers must hold mu.
func (rl *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rl.window)
	kept := rl.stamps[:0]
	for _, stamp := range rl.stamps {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	rl.stamps = kept
}

func parseIntHeader(headers http.Header, name string) (int, bool) {
	value := headers.Get(name)
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}
