package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// GuardConfig configures a Guard.
type GuardConfig struct {
	Name             string
	Timeout          time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
	Retry            RetryConfig
}

// Guard bounds a call to an external service: a hard timeout over the whole
// call including retries, a circuit breaker per attempt, and a retry for
// transient failures when time remains.
type Guard struct {
	name    string
	timeout time.Duration
	breaker *CircuitBreaker
	retry   RetryConfig
}

// NewGuard builds a Guard from cfg.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(cfg.Name, "call")
	}
	return &Guard{
		name:    cfg.Name,
		timeout: cfg.Timeout,
		breaker: NewCircuitBreaker(CircuitBreakerConfig{
			Name:             cfg.Name,
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
		}),
		retry: retry,
	}
}

// Breaker exposes the guard's circuit breaker.
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}

type result[T any] struct {
	val T
	err error
}

// Call runs fn under g. The returned error is fn's last error, ErrCircuitOpen,
// or the context error when the timeout fires. Call returns at the timeout
// even if fn ignores cancellation; fn then finishes in the background and its
// result is discarded.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := DoVal(ctx, g.retry, func(ctx context.Context) (T, error) {
			return ExecuteVal(ctx, g.breaker, fn)
		})
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, eris.Wrapf(ctx.Err(), "resilience: %s", g.name)
	}
}
