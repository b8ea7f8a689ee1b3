package bootstrap

import (
	"strings"
	"testing"

	"github.com/kirillkom/docextract/internal/config"
	"github.com/kirillkom/docextract/internal/infrastructure/llm"
	"github.com/kirillkom/docextract/internal/infrastructure/resilience"
)

func TestNewLLMProvider(t *testing.T) {
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	for _, name := range []string{"", "ollama", "openai", "anthropic"} {
		provider, err := newLLMProvider(config.Config{LLMProvider: name, LLMTimeoutSeconds: 5}, executor)
		if err != nil {
			t.Fatalf("newLLMProvider(%q) error = %v", name, err)
		}
		if _, ok := provider.(*llm.Resilient); !ok {
			t.Fatalf("newLLMProvider(%q) = %T, want *llm.Resilient", name, provider)
		}
	}

	_, err := newLLMProvider(config.Config{LLMProvider: "gemini"}, executor)
	if err == nil || !strings.Contains(err.Error(), "unknown llm provider") {
		t.Fatalf("newLLMProvider(gemini) error = %v", err)
	}
}

func TestNewPipelineLoadsEmbeddedConfigs(t *testing.T) {
	pipeline, err := NewPipeline(config.Config{WorkerConcurrency: 2}, nil)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	if pipeline.executor != nil {
		t.Fatalf("fallback disabled: no llm executor expected")
	}
	if _, err := pipeline.Catalog.Get("invoice"); err != nil {
		t.Fatalf("Catalog.Get(invoice) error = %v", err)
	}
}

func TestNewPipelineWithFallback(t *testing.T) {
	pipeline, err := NewPipeline(config.Config{
		LLMFallbackEnabled:     true,
		LLMProvider:            "ollama",
		LLMConfidenceThreshold: 0.5,
	}, nil)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	if pipeline.executor == nil {
		t.Fatalf("expected llm executor when fallback is enabled")
	}

	_, err = NewPipeline(config.Config{LLMFallbackEnabled: true, LLMProvider: "unknown"}, nil)
	if err == nil {
		t.Fatalf("NewPipeline() expected error for unknown provider")
	}
}

func TestBreakerStatesMergesExecutors(t *testing.T) {
	app := &App{executors: []*resilience.Executor{
		resilience.NewExecutor(resilience.DefaultConfig()),
		resilience.NewExecutor(resilience.DefaultConfig()),
	}}
	if states := app.BreakerStates(); len(states) != 0 {
		t.Fatalf("BreakerStates() = %v, want empty before any call", states)
	}
}
