package llm

import (
	"context"
	"time"

	"github.com/kirillkom/docextract/internal/core/ports"
	"github.com/kirillkom/docextract/internal/infrastructure/resilience"
)

// Resilient runs every completion through the retry and circuit-breaker executor, with a
// per-call timeout.
type Resilient struct {
	name     string
	provider ports.LLMProvider
	executor *resilience.Executor
	timeout  time.Duration
}

func NewResilient(name string, provider ports.LLMProvider, executor *resilience.Executor, timeout time.Duration) *Resilient {
	return &Resilient{name: name, provider: provider, executor: executor, timeout: timeout}
}

func (r *Resilient) Complete(ctx context.Context, prompt string) (string, error) {
	var answer string
	call := func(ctx context.Context) error {
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		out, err := r.provider.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		answer = out
		return nil
	}

	var err error
	if r.executor != nil {
		err = r.executor.Execute(ctx, r.name+".complete", call, Classify)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", asTemporary(r.name+" complete", err)
	}
	return answer, nil
}
