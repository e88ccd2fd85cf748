package tangguh

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// reliability layers. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimitRemaining *prometheus.GaugeVec
	rateLimitWaits     *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_requests_total",
				Help: "Total number of HTTP attempts made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tangguh_request_duration_seconds",
				Help:    "Duration of logical calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tangguh_requests_in_flight",
				Help: "Number of logical calls currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tangguh_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"target"},
		),
		rateLimitRemaining: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tangguh_rate_limit_remaining",
				Help: "Server-advertised remaining rate-limit quota",
			},
			[]string{"target"},
		),
		rateLimitWaits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_rate_limit_waits_total",
				Help: "Total number of calls suspended waiting for a rate-limit reset",
			},
			[]string{"target"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type", "method", "endpoint"},
		),
	}
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordAttempt records one transport attempt.
func (mc *MetricsCollector) RecordAttempt(method, endpoint string, statusCode int) {
	mc.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode), endpoint).Inc()
}

// RecordCall records the duration of a completed logical call.
func (mc *MetricsCollector) RecordCall(method, endpoint string, statusCode int, duration time.Duration) {
	mc.requestDuration.WithLabelValues(method, strconv.Itoa(statusCode), endpoint).Observe(duration.Seconds())
}

// RecordRetry records a retry attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordCircuitBreakerState records the breaker state for a target.
func (mc *MetricsCollector) RecordCircuitBreakerState(target string, state CircuitState) {
	mc.circuitBreakerState.WithLabelValues(target).Set(float64(state))
}

// RecordRateLimitRemaining records the server-advertised remaining quota.
func (mc *MetricsCollector) RecordRateLimitRemaining(target string, remaining int) {
	mc.rateLimitRemaining.WithLabelValues(target).Set(float64(remaining))
}

// RecordRateLimitWait records a call suspended for a rate-limit reset.
func (mc *MetricsCollector) RecordRateLimitWait(target string) {
	mc.rateLimitWaits.WithLabelValues(target).Inc()
}

// RecordError records an error by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}
