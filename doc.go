// Package tangguh provides a resilient outbound HTTP client built from
// composable reliability primitives:
//
//   - Retries with exponential backoff and optional jitter
//   - Sliding-window rate limiting that honors server-advertised quotas
//   - Circuit breaker (closed / open / half-open states) per target host
//   - Failure classification into retryable vs. fatal outcomes
//   - Prometheus metrics and pluggable structured logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Server-reported rate-limit state is authoritative over local pacing
//   - Deterministic tests via an injectable Clock
//
// Typical usage:
//
//	client := tangguh.New("https://api.example.com",
//	    tangguh.WithMaxRetries(3),
//	    tangguh.WithAuthToken(token),
//	    tangguh.WithCircuitBreaker(tangguh.CircuitBreakerConfig{FailureThreshold: 5}),
//	)
//	resp, err := client.Get(ctx, "/users", nil)
//
// Only 5xx responses, 429 responses and transport failures trigger retries;
// other 4xx responses and authentication failures surface immediately. Provide
// a Logger (e.g. WithLogger(NewZerologLogger(log))) for structured insight
// into the request lifecycle.
package tangguh
