package tangguh

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testResponseBody       = `{"message":"ok"}`
	contentTypeJSON        = "application/json"
	expectedStatus200Msg   = "Expected status 200, got %d"
	failedWriteResponseMsg = "Failed to write response: %v"
)

func TestNew(t *testing.T) {
	client := New("https://api.example.com")

	if client == nil {
		t.Fatal("New() returned nil")
	}
	if !client.IsValid() {
		t.Fatalf("New() produced invalid client: %v", client.ValidationError())
	}

	// Default values
	if client.maxRetries != 3 {
		t.Errorf("Expected maxRetries=3, got %d", client.maxRetries)
	}
	if client.timeout != 30*time.Second {
		t.Errorf("Expected timeout=30s, got %v", client.timeout)
	}
	if client.retryBaseDelay != time.Second {
		t.Errorf("Expected retryBaseDelay=1s, got %v", client.retryBaseDelay)
	}
	if client.maxRetryDelay != 60*time.Second {
		t.Errorf("Expected maxRetryDelay=60s, got %v", client.maxRetryDelay)
	}
	if client.backoffMultiplier != 2.0 {
		t.Errorf("Expected backoffMultiplier=2.0, got %f", client.backoffMultiplier)
	}
	if client.rateWindow != time.Minute {
		t.Errorf("Expected rateWindow=60s, got %v", client.rateWindow)
	}
	if client.authHeader != "Authorization" {
		t.Errorf("Expected authHeader=Authorization, got %s", client.authHeader)
	}
}

func TestNewInvalidBaseURL(t *testing.T) {
	client := New("not a url")

	if client.IsValid() {
		t.Error("Expected invalid client for malformed base URL")
	}

	_, err := client.Get(context.Background(), "/x", nil)
	if err == nil {
		t.Error("Expected request on invalid client to fail")
	}
}

func TestNewTrimsTrailingSlash(t *testing.T) {
	client := New("https://api.example.com/v1/")

	if client.baseURL.Path != "/v1" {
		t.Errorf("Expected trailing slash trimmed, got %q", client.baseURL.Path)
	}
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected GET method, got %s", r.Method)
		}
		if r.URL.Path != "/users" {
			t.Errorf("Expected path /users, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("Expected page=2, got %s", r.URL.Query().Get("page"))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(testResponseBody)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	client := New(server.URL)
	resp, err := client.Get(context.Background(), "/users", url.Values{"page": {"2"}})

	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf(expectedStatus200Msg, resp.StatusCode)
	}
	if string(resp.Body) != testResponseBody {
		t.Errorf("Expected body %q, got %q", testResponseBody, string(resp.Body))
	}

	var parsed struct {
		Message string `json:"message"`
	}
	if err := resp.DecodeJSON(&parsed); err != nil {
		t.Fatalf("DecodeJSON() returned error: %v", err)
	}
	if parsed.Message != "ok" {
		t.Errorf("Expected message=ok, got %s", parsed.Message)
	}
}

func TestPostMarshalsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != contentTypeJSON {
			t.Errorf("Expected Content-Type %s, got %s", contentTypeJSON, r.Header.Get("Content-Type"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if body["name"] != "arif" {
			t.Errorf("Expected name=arif, got %s", body["name"])
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New(server.URL)
	resp, err := client.Post(context.Background(), "/users", map[string]string{"name": "arif"})

	if err != nil {
		t.Fatalf("Post() returned error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", resp.StatusCode)
	}
}

func TestVerbMethods(t *testing.T) {
	var lastMethod atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastMethod.Store(r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() (*Response, error)
		want string
	}{
		{"Put", func() (*Response, error) { return client.Put(ctx, "/r/1", map[string]int{"v": 1}) }, "PUT"},
		{"Patch", func() (*Response, error) { return client.Patch(ctx, "/r/1", map[string]int{"v": 2}) }, "PATCH"},
		{"Delete", func() (*Response, error) { return client.Delete(ctx, "/r/1") }, "DELETE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.call(); err != nil {
				t.Fatalf("%s() returned error: %v", tc.name, err)
			}
			if got := lastMethod.Load().(string); got != tc.want {
				t.Errorf("Expected method %s, got %s", tc.want, got)
			}
		})
	}
}

func TestAuthTokenHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected Authorization=Bearer secret, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, WithAuthToken("secret"))
	if _, err := client.Get(context.Background(), "/", nil); err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
}

func TestAPIKeyHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "key123" {
			t.Errorf("Expected X-API-Key=key123, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, WithAPIKey("key123"))
	if _, err := client.Get(context.Background(), "/", nil); err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
}

func TestAuthTokenTakesPrecedenceOverAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if got := r.Header.Get("X-API-Key"); got != "" {
			t.Errorf("Expected no API key header, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, WithAuthToken("tok"), WithAPIKey("key"))
	if _, err := client.Get(context.Background(), "/", nil); err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
}

func TestSpecHeaderOverrides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/plain" {
			t.Errorf("Expected Accept=text/plain, got %q", got)
		}
		if got := r.Header.Get("X-Extra"); got != "yes" {
			t.Errorf("Expected X-Extra=yes, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL)
	headers := http.Header{}
	headers.Set("Accept", "text/plain")
	headers.Set("X-Extra", "yes")

	_, err := client.Do(context.Background(), &RequestSpec{
		Method:  http.MethodGet,
		Path:    "/",
		Headers: headers,
	})
	if err != nil {
		t.Fatalf("Do() returned error: %v", err)
	}
}

func TestDoRejectsMissingMethod(t *testing.T) {
	client := New("https://api.example.com")

	_, err := client.Do(context.Background(), &RequestSpec{Path: "/x"})
	if err == nil {
		t.Fatal("Expected error for spec without method")
	}

	clientErr, ok := err.(*ClientError)
	if !ok {
		t.Fatalf("Expected *ClientError, got %T", err)
	}
	if clientErr.Type != ErrorTypeValidation {
		t.Errorf("Expected Validation error, got %s", clientErr.Type)
	}
}

func TestHealthCheckFirstPathSucceeds(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, WithMaxRetries(0))
	if !client.HealthCheck(context.Background()) {
		t.Error("Expected health check to pass")
	}
	if len(paths) != 1 || paths[0] != "/health" {
		t.Errorf("Expected single probe of /health, got %v", paths)
	}
}

func TestHealthCheckFallsThroughPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, WithMaxRetries(0))
	if !client.HealthCheck(context.Background()) {
		t.Error("Expected health check to pass via /status")
	}
}

func TestHealthCheckAllPathsFail(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, WithMaxRetries(0))
	if client.HealthCheck(context.Background()) {
		t.Error("Expected health check to fail")
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("Expected 4 probes, got %d", got)
	}
}

func TestStatsAndReset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	clock := newFakeClock()
	client := New(server.URL, WithClock(clock))

	if _, err := client.Get(context.Background(), "/a", nil); err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if _, err := client.Get(context.Background(), "/b", nil); err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}

	stats := client.Stats()
	if stats.RequestCount != 2 {
		t.Errorf("Expected RequestCount=2, got %d", stats.RequestCount)
	}
	if stats.ErrorCount != 0 {
		t.Errorf("Expected ErrorCount=0, got %d", stats.ErrorCount)
	}
	if stats.LastRequestTime.IsZero() {
		t.Error("Expected LastRequestTime to be set")
	}
	if stats.RequestsInWindow != 2 {
		t.Errorf("Expected RequestsInWindow=2, got %d", stats.RequestsInWindow)
	}
	if stats.CircuitState != StateClosed {
		t.Errorf("Expected CircuitState=Closed, got %v", stats.CircuitState)
	}
	if stats.RateLimitRemaining != remainingUnknown {
		t.Errorf("Expected unknown rate limit remaining, got %d", stats.RateLimitRemaining)
	}

	client.ResetStats()

	stats = client.Stats()
	if stats.RequestCount != 0 || stats.ErrorCount != 0 {
		t.Errorf("Expected counters reset, got %d/%d", stats.RequestCount, stats.ErrorCount)
	}
	if !stats.LastRequestTime.IsZero() {
		t.Error("Expected LastRequestTime cleared")
	}
}

func TestResetStatsClosesBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL,
		WithClock(newFakeClock()),
		WithMaxRetries(0),
		WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Hour}),
	)

	if _, err := client.Get(context.Background(), "/", nil); err == nil {
		t.Fatal("Expected error")
	}
	if client.Stats().CircuitState != StateOpen {
		t.Fatalf("Expected open circuit, got %v", client.Stats().CircuitState)
	}

	client.ResetStats()

	if client.Stats().CircuitState != StateClosed {
		t.Errorf("Expected breaker closed after reset, got %v", client.Stats().CircuitState)
	}
	if client.Stats().CircuitFailures != 0 {
		t.Errorf("Expected failures cleared, got %d", client.Stats().CircuitFailures)
	}
}

func TestErrorRate(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, WithClock(newFakeClock()), WithMaxRetries(0))

	if _, err := client.Get(context.Background(), "/", nil); err == nil {
		t.Fatal("Expected first call to fail")
	}
	if _, err := client.Get(context.Background(), "/", nil); err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}

	stats := client.Stats()
	if stats.RequestCount != 2 || stats.ErrorCount != 1 {
		t.Fatalf("Expected 2 requests / 1 error, got %d/%d", stats.RequestCount, stats.ErrorCount)
	}
	if stats.ErrorRate != 0.5 {
		t.Errorf("Expected ErrorRate=0.5, got %f", stats.ErrorRate)
	}
}

func TestEndpointLabel(t *testing.T) {
	cases := []struct {
		host string
		path string
		want string
	}{
		{"api.example.com", "/users", "api.example.com/users"},
		{"api.example.com", "/", "api.example.com/"},
		{"api.example.com", "", "api.example.com/"},
	}

	for _, tc := range cases {
		if got := endpointLabel(tc.host, tc.path); got != tc.want {
			t.Errorf("endpointLabel(%q, %q) = %q, want %q", tc.host, tc.path, got, tc.want)
		}
	}
}

func TestGuardRegistrySharesGuardPerHost(t *testing.T) {
	client := New("https://api.example.com")

	a := client.guards.guardFor("api.example.com")
	b := client.guards.guardFor("api.example.com")
	other := client.guards.guardFor("other.example.com")

	if a != b {
		t.Error("Expected the same guard for the same host")
	}
	if a == other {
		t.Error("Expected distinct guards for distinct hosts")
	}
}

func TestIndependentClientsDoNotShareState(t *testing.T) {
	first := New("https://api.example.com")
	second := New("https://api.example.com")

	first.guards.guardFor("api.example.com").breaker.RecordFailure()

	if second.guards.guardFor("api.example.com").breaker.Failures() != 0 {
		t.Error("Expected independent clients to own independent breaker state")
	}
}
