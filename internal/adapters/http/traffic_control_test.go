package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/docextract/internal/config"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestRouter(config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	}, &submitterFake{}, &readerFake{})

	req1 := httptest.NewRequest(http.MethodGet, "/v1/document-types", nil)
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/v1/document-types", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}

	res3 := httptest.NewRecorder()
	handler.ServeHTTP(res3, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res3.Code != http.StatusOK {
		t.Fatalf("healthz must bypass the rate limit, got %d", res3.Code)
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	limiter := newClientLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if ok, _ := limiter.reserve("10.0.0.1"); !ok {
		t.Fatalf("first request from client A must pass")
	}
	if ok, wait := limiter.reserve("10.0.0.1"); ok || wait <= 0 {
		t.Fatalf("second request from client A must wait, got ok=%v wait=%v", ok, wait)
	}
	if ok, _ := limiter.reserve("10.0.0.2"); !ok {
		t.Fatalf("client B has its own bucket")
	}

	now = now.Add(time.Second)
	if ok, _ := limiter.reserve("10.0.0.1"); !ok {
		t.Fatalf("client A must pass after refill")
	}

	now = now.Add(limiterIdleTTL + 2*time.Minute)
	limiter.reserve("10.0.0.3")
	if len(limiter.clients) != 1 {
		t.Fatalf("idle clients must be swept, have %d", len(limiter.clients))
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/document-types", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodGet, "/v1/document-types", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

func TestBackpressureDisabled(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := backpressureMiddleware(base, 0, 0)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected passthrough, got %d", res.Code)
	}
}
