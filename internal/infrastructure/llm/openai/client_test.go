package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/docextract/internal/infrastructure/llm"
)

func TestCompleteSendsDeterministicRequest(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" {\"value\": 42} "}}]}`))
	}))
	defer server.Close()

	out, err := New("sk-test", "", server.URL).Complete(context.Background(), "find the total")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != `{"value": 42}` {
		t.Fatalf("unexpected answer %q", out)
	}
	if payload["model"] != DefaultModel || payload["temperature"] != float64(0) {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestCompleteMapsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	_, err := New("sk-test", "gpt-4o-mini", server.URL).Complete(context.Background(), "x")
	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected StatusError 429, got %v", err)
	}
	if !llm.Classify(err).Retryable {
		t.Fatalf("429 must be retryable")
	}
}
