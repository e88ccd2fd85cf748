package tangguh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// requestExecutor orchestrates one logical call: it consults the target's
// circuit breaker and rate limiter, dispatches the transport call, classifies
// the outcome, feeds results back into the guard and loops through the retry
// policy until success, a fatal error, or exhaustion. The guard is passed in
// explicitly so independent clients and tests never share state.
type requestExecutor struct {
	client    *Client
	spec      *RequestSpec
	guard     *targetGuard
	target    string
	url       string
	endpoint  string
	requestID string
	body      []byte
	start     time.Time
	attempts  int
}

func (c *Client) newExecutor(spec *RequestSpec) (*requestExecutor, error) {
	if spec == nil || spec.Method == "" {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "request spec requires a method"}
	}

	var body []byte
	if spec.Body != nil {
		marshaled, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, &ClientError{
				Type:    ErrorTypeValidation,
				Message: "request body is not JSON-marshalable",
				Cause:   err,
			}
		}
		body = marshaled
	}

	host := c.baseURL.Host
	path := "/" + strings.TrimLeft(spec.Path, "/")

	return &requestExecutor{
		client:    c,
		spec:      spec,
		guard:     c.guards.guardFor(host),
		target:    host,
		url:       c.resolveURL(spec),
		endpoint:  endpointLabel(host, path),
		requestID: c.requestIDGen(),
		body:      body,
		start:     c.clock.Now(),
	}, nil
}

// run drives the attempt loop and records call-level instrumentation.
func (e *requestExecutor) run(ctx context.Context) (*Response, error) {
	c := e.client

	if c.metrics != nil {
		c.metrics.RecordRequestStart(e.spec.Method, e.endpoint)
	}

	resp, err := e.loop(ctx)

	duration := c.clock.Now().Sub(e.start)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	} else {
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			statusCode = clientErr.StatusCode
		}
	}

	if c.metrics != nil {
		c.metrics.RecordRequestEnd(e.spec.Method, e.endpoint)
		c.metrics.RecordCall(e.spec.Method, e.endpoint, statusCode, duration)
	}

	if err != nil {
		c.logger.Warn("request failed",
			"requestID", e.requestID, "method", e.spec.Method, "endpoint", e.endpoint,
			"attempts", e.attempts, "duration", duration, "error", err.Error())
	} else {
		c.logger.Debug("request completed",
			"requestID", e.requestID, "method", e.spec.Method, "endpoint", e.endpoint,
			"status", statusCode, "attempts", e.attempts, "duration", duration)
	}

	return resp, err
}

func (e *requestExecutor) loop(ctx context.Context) (*Response, error) {
	c := e.client

	for attempt := 0; ; attempt++ {
		if err := e.checkAdmission(ctx, attempt); err != nil {
			return nil, e.fail(err)
		}

		outcome := e.dispatch(ctx, attempt)
		e.reportOutcome(outcome)

		switch outcome.Kind {
		case OutcomeSuccess:
			return &Response{
				StatusCode: outcome.StatusCode,
				Headers:    outcome.Headers,
				Body:       outcome.Body,
			}, nil
		case OutcomeFatal:
			return nil, e.fail(e.terminalError(outcome, attempt))
		}

		delay, retry := c.retryPolicy.ShouldRetry(outcome, attempt)
		if !retry {
			return nil, e.fail(e.terminalError(outcome, attempt))
		}

		c.logger.Debug("scheduling retry",
			"requestID", e.requestID, "attempt", attempt+1, "delay", delay, "endpoint", e.endpoint)

		if err := c.clock.Sleep(ctx, delay); err != nil {
			return nil, e.fail(e.newError(ErrorTypeCanceled, "request canceled during backoff", err, attempt))
		}
	}
}

// checkAdmission queries the circuit breaker and rate limiter before an
// attempt may dispatch. A blocked circuit fails the call immediately with no
// attempt consumed. A rate-limit wait suspends the call until the advertised
// reset, then re-checks the circuit since it may have changed meanwhile.
func (e *requestExecutor) checkAdmission(ctx context.Context, attempt int) *ClientError {
	c := e.client

	if !e.guard.breaker.Allow() {
		c.logger.Warn("circuit breaker open",
			"requestID", e.requestID, "endpoint", e.endpoint, "state", e.guard.breaker.State().String())
		return e.newError(ErrorTypeCircuitOpen, "circuit breaker is open", nil, attempt)
	}

	admission, until := e.guard.limiter.Admit()
	switch admission {
	case AdmissionReject:
		c.logger.Warn("rate limit exceeded",
			"requestID", e.requestID, "endpoint", e.endpoint, "resetAt", until)
		err := e.newError(ErrorTypeRateLimit, "rate limit exceeded", nil, attempt)
		err.RetryAt = until
		return err
	case AdmissionWait:
		wait := until.Sub(c.clock.Now())
		c.logger.Info("waiting for rate-limit reset",
			"requestID", e.requestID, "endpoint", e.endpoint, "wait", wait)
		if c.metrics != nil {
			c.metrics.RecordRateLimitWait(e.target)
		}
		if err := c.clock.Sleep(ctx, wait); err != nil {
			return e.newError(ErrorTypeCanceled, "request canceled while waiting for rate-limit reset", err, attempt)
		}
		if !e.guard.breaker.Allow() {
			return e.newError(ErrorTypeCircuitOpen, "circuit breaker is open", nil, attempt)
		}
	}

	return nil
}

// dispatch performs one transport attempt with the per-attempt timeout and
// maps transport-level failures to classified outcomes.
func (e *requestExecutor) dispatch(ctx context.Context, attempt int) *AttemptOutcome {
	c := e.client

	e.guard.limiter.Record()
	c.stats.recordAttempt(c.clock.Now())
	e.attempts++

	if attempt > 0 {
		c.logger.Info("retry attempt",
			"requestID", e.requestID, "attempt", attempt, "maxRetries", c.maxRetries, "endpoint", e.endpoint)
		if c.metrics != nil {
			c.metrics.RecordRetry(e.spec.Method, e.endpoint, attempt)
		}
	}

	timeout := c.timeout
	if e.spec.Timeout > 0 {
		timeout = e.spec.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := e.buildRequest(attemptCtx)
	if err != nil {
		return &AttemptOutcome{Kind: OutcomeFatal, ErrorType: ErrorTypeValidation, Reason: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Caller-initiated cancellation or call-level timeout, distinct
			// from a per-attempt timeout.
			return &AttemptOutcome{Kind: OutcomeFatal, ErrorType: ErrorTypeCanceled, Reason: ctx.Err()}
		}
		if isTimeoutError(err) {
			return &AttemptOutcome{Kind: OutcomeRetryable, ErrorType: ErrorTypeTimeout, Reason: err}
		}
		return &AttemptOutcome{Kind: OutcomeRetryable, ErrorType: ErrorTypeTransport, Reason: err}
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &AttemptOutcome{Kind: OutcomeRetryable, ErrorType: ErrorTypeTransport, Reason: readErr}
	}

	e.guard.limiter.UpdateFromResponse(resp.Header)

	return classify(resp.StatusCode, resp.Header, body)
}

func (e *requestExecutor) buildRequest(ctx context.Context) (*http.Request, error) {
	var reader io.Reader
	if e.body != nil {
		reader = bytes.NewReader(e.body)
	}

	req, err := http.NewRequestWithContext(ctx, e.spec.Method, e.url, reader)
	if err != nil {
		return nil, err
	}

	req.Header = e.client.defaultHeaders()
	for name, values := range e.spec.Headers {
		req.Header.Del(name)
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	return req, nil
}

// reportOutcome feeds the attempt result back into the breaker and records
// guard state metrics. Both fatal and retryable failures count against the
// breaker; cancellations do not, since they say nothing about the endpoint.
func (e *requestExecutor) reportOutcome(outcome *AttemptOutcome) {
	c := e.client

	if outcome.Success() {
		e.guard.breaker.RecordSuccess()
	} else if outcome.ErrorType != ErrorTypeCanceled {
		e.guard.breaker.RecordFailure()
	}

	if c.metrics != nil {
		c.metrics.RecordAttempt(e.spec.Method, e.endpoint, outcome.StatusCode)
		c.metrics.RecordCircuitBreakerState(e.target, e.guard.breaker.State())
		if snapshot := e.guard.limiter.Snapshot(); snapshot.Remaining != remainingUnknown {
			c.metrics.RecordRateLimitRemaining(e.target, snapshot.Remaining)
		}
	}
}

// classify maps a response to its attempt outcome by status code.
func classify(statusCode int, headers http.Header, body []byte) *AttemptOutcome {
	outcome := &AttemptOutcome{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       body,
	}

	switch {
	case statusCode < 400:
		outcome.Kind = OutcomeSuccess
	case statusCode == http.StatusUnauthorized:
		outcome.Kind = OutcomeFatal
		outcome.ErrorType = ErrorTypeAuthentication
	case statusCode == http.StatusTooManyRequests:
		outcome.Kind = OutcomeRetryable
		outcome.ErrorType = ErrorTypeRateLimit
		outcome.RetryAfter = parseRetryAfter(headers.Get("Retry-After"))
	case statusCode < 500:
		outcome.Kind = OutcomeFatal
		outcome.ErrorType = ErrorTypeClient
	default:
		outcome.Kind = OutcomeRetryable
		outcome.ErrorType = ErrorTypeServer
	}

	return outcome
}

// fail finalizes a caller-visible failure: the error counter moves exactly
// once per logical call.
func (e *requestExecutor) fail(err *ClientError) error {
	c := e.client
	c.stats.recordError()
	if c.metrics != nil {
		c.metrics.RecordError(err.Type, e.spec.Method, e.endpoint)
	}
	return err
}

func (e *requestExecutor) terminalError(outcome *AttemptOutcome, attempt int) *ClientError {
	var message string
	switch outcome.ErrorType {
	case ErrorTypeAuthentication:
		message = "authentication failed"
	case ErrorTypeClient:
		message = "client error"
	case ErrorTypeServer:
		message = "server error"
	case ErrorTypeRateLimit:
		message = "rate limit exceeded"
	case ErrorTypeTimeout:
		message = "request timed out"
	case ErrorTypeTransport:
		message = "network request failed"
	case ErrorTypeCanceled:
		message = "request canceled"
	default:
		message = "request failed"
	}

	err := e.newError(outcome.ErrorType, message, outcome.Reason, attempt)
	err.StatusCode = outcome.StatusCode
	err.Body = outcome.Body
	return err
}

func (e *requestExecutor) newError(errorType, message string, cause error, attempt int) *ClientError {
	c := e.client
	now := c.clock.Now()
	return &ClientError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		RequestID:  e.requestID,
		Method:     e.spec.Method,
		URL:        e.url,
		Endpoint:   e.endpoint,
		Attempt:    attempt + 1,
		MaxRetries: c.maxRetries,
		Timestamp:  now,
		Duration:   now.Sub(e.start),
	}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
