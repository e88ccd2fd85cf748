package tangguh

import (
	"errors"
	"fmt"
	"time"
)

// Error type constants used in ClientError.Type.
const (
	ErrorTypeTransport      = "Transport"
	ErrorTypeTimeout        = "Timeout"
	ErrorTypeRateLimit      = "RateLimit"
	ErrorTypeAuthentication = "Authentication"
	ErrorTypeClient         = "Client"
	ErrorTypeServer         = "Server"
	ErrorTypeCircuitOpen    = "CircuitOpen"
	ErrorTypeCanceled       = "Canceled"
	ErrorTypeValidation     = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCircuitOpen is returned when the circuit breaker blocks a call.
	ErrCircuitOpen = errors.New("tangguh: circuit open")

	// ErrRateLimited is returned when a call is rejected due to rate limiting.
	ErrRateLimited = errors.New("tangguh: rate limited")

	// ErrAuthentication is returned for 401 responses.
	ErrAuthentication = errors.New("tangguh: authentication failed")

	// ErrCanceled is returned when the caller cancels an in-flight call.
	ErrCanceled = errors.New("tangguh: request canceled")
)

// ClientError is the structured error surfaced for every failed call. It
// carries enough context (kind, status code, underlying cause) for
// programmatic handling, not just display text.
type ClientError struct {
	Type       string
	Message    string
	StatusCode int
	Body       []byte
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
	// RetryAt carries the server-advertised reset time for rate-limit errors.
	RetryAt time.Time
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches either another *ClientError of the same type or one of the
// package sentinel errors, so errors.Is works for both styles.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrCircuitOpen:
		return e.Type == ErrorTypeCircuitOpen
	case ErrRateLimited:
		return e.Type == ErrorTypeRateLimit
	case ErrAuthentication:
		return e.Type == ErrorTypeAuthentication
	case ErrCanceled:
		return e.Type == ErrorTypeCanceled
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient determines if an error represents a transient failure that might
// succeed on a later call. Returns true for transport errors, timeouts, 5xx
// server responses, rate limiting and open circuits. Returns false for 4xx
// client errors (except 429), authentication failures and cancellations.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeTransport, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit, ErrorTypeCircuitOpen:
			return true
		case ErrorTypeClient:
			return clientErr.StatusCode == 429
		default:
			return false
		}
	}

	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited)
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
