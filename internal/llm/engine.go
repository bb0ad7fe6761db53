// Package llm answers questions with a language model over a token-bounded
// excerpt of the member snapshot. Every failure mode is reported as an
// unavailable outcome so callers can fall back to exact lookup.
package llm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/resilience"
)

// UnknownReply is the sentinel the model is told to use when the records
// do not answer the question.
const UnknownReply = "UNKNOWN"

// Options configures an Engine.
type Options struct {
	// Provider is the LLM backend. Nil means no credential is configured and
	// the engine is unavailable.
	Provider Provider

	// Timeout bounds one answer including any retry. Default: 20s.
	Timeout time.Duration

	// FailureThreshold and ResetTimeout configure the circuit breaker.
	FailureThreshold int
	ResetTimeout     time.Duration

	// PresenceThreshold splits the field summary into reliable and sparse.
	PresenceThreshold float64

	// Retry overrides the default one-retry policy.
	Retry resilience.RetryConfig
}

// Engine is the context-bounded LLM answer engine. Safe for concurrent use.
type Engine struct {
	provider  Provider
	guard     *resilience.Guard
	threshold float64
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.PresenceThreshold <= 0 {
		opts.PresenceThreshold = 0.5
	}
	e := &Engine{provider: opts.Provider, threshold: opts.PresenceThreshold}
	if opts.Provider != nil {
		e.guard = resilience.NewGuard(resilience.GuardConfig{
			Name:             "llm_" + opts.Provider.Name(),
			Timeout:          opts.Timeout,
			FailureThreshold: opts.FailureThreshold,
			ResetTimeout:     opts.ResetTimeout,
			Retry:            opts.Retry,
		})
	}
	return e
}

// Available reports whether a provider is configured.
func (e *Engine) Available() bool {
	return e.provider != nil
}

// Guard exposes the call guard, nil when no provider is configured.
func (e *Engine) Guard() *resilience.Guard {
	return e.guard
}

// Answer asks the provider about question using records from snap, keeping
// the prompt estimate within tokenBudget. It never returns a provider error.
func (e *Engine) Answer(ctx context.Context, question string, snap *model.DatasetSnapshot, profile *model.Profile, tokenBudget int) model.Outcome {
	if !e.Available() {
		return model.Unavailable("no llm provider configured")
	}
	if snap.Len() == 0 {
		return model.Unavailable("empty snapshot")
	}

	ranked := rankRecords(question, snap)
	prompt, ok := buildPrompt(question, profile, e.threshold, ranked, tokenBudget)
	if !ok {
		return model.Unavailable("prompt exceeds token budget")
	}

	log := zap.L().With(
		zap.String("provider", e.provider.Name()),
		zap.String("snapshot_id", snap.ID),
	)
	log.Debug("llm: asking",
		zap.Int("records", strings.Count(prompt.Context, "\n")+1),
		zap.Int("estimated_tokens", EstimateTokens(prompt.Text())),
	)

	start := time.Now()
	comp, err := resilience.Call(ctx, e.guard, func(ctx context.Context) (Completion, error) {
		return e.provider.Complete(ctx, prompt)
	})
	if err != nil {
		kind := resilience.Classify(err)
		log.Warn("llm: call failed",
			zap.String("kind", kind),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return model.Unavailable("llm " + kind)
	}

	text := strings.TrimSpace(comp.Text)
	switch {
	case text == "":
		return model.Unavailable("empty reply")
	case isUnknown(text):
		return model.Unavailable("model reported unknown")
	}

	log.Info("llm: answered",
		zap.String("model", comp.Model),
		zap.Duration("elapsed", time.Since(start)),
	)
	return model.Answered(model.Answer{Text: text, Provenance: model.ProvenanceLLM})
}

// isUnknown matches the sentinel with optional trailing punctuation.
func isUnknown(text string) bool {
	return strings.EqualFold(strings.TrimRight(text, ".!"), UnknownReply)
}
