package resilience

import (
	"context"
	"time"
)

// Executor composes multiple resilience patterns.
type Executor struct {
	circuitBreaker *CircuitBreaker
	bulkhead       *Bulkhead
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithBulkhead caps concurrent round trips. Rejections never reach the
// circuit breaker.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTimeout adds a hard timeout to the executor.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// Execute runs the operation through all configured patterns.
//
// The execution order, outermost first, is:
// 1. Bulkhead - limits concurrency
// 2. Circuit Breaker - rejects while the origin is down
// 3. Timeout - bounds the round trip
//
// Retries are left to callers: reads fall back to the cache and replays
// retry inside the mutation queue.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	execute := op

	if e.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.timeout.Execute(ctx, inner)
		}
	}

	if e.circuitBreaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.circuitBreaker.Execute(ctx, inner)
		}
	}

	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.bulkhead.Execute(ctx, inner)
		}
	}

	return execute(ctx)
}

// Bulkhead returns the configured bulkhead, or nil.
func (e *Executor) Bulkhead() *Bulkhead {
	return e.bulkhead
}
