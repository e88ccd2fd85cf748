package tangguh

import (
	"sync"
)

// targetGuard bundles the reliability state owned per target host: one circuit
// breaker and one rate limiter. Guards are passed explicitly into the request
// executor rather than accessed as ambient state, so independent clients never
// share counters.
type targetGuard struct {
	breaker *CircuitBreaker
	limiter *RateLimiter
}

// guardRegistry lazily creates and hands out the guard for each target host.
type guardRegistry struct {
	mu       sync.RWMutex
	guards   map[string]*targetGuard
	newGuard func() *targetGuard
}

func newGuardRegistry(factory func() *targetGuard) *guardRegistry {
	return &guardRegistry{
		guards:   make(map[string]*targetGuard),
		newGuard: factory,
	}
}

// guardFor returns the guard for the given host, creating it on first use.
func (r *guardRegistry) guardFor(host string) *targetGuard {
	r.mu.RLock()
	guard, ok := r.guards[host]
	r.mu.RUnlock()
	if ok {
		return guard
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if guard, ok = r.guards[host]; ok {
		return guard
	}
	guard = r.newGuard()
	r.guards[host] = guard
	return guard
}

// reset returns every known guard's breaker to the closed state.
func (r *guardRegistry) reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, guard := range r.guards {
		guard.breaker.Reset()
	}
}
