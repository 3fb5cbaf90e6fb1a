package resilience

import (
	"context"
	"time"
)

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout is the maximum duration to wait for the operation.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout wraps operations with a deadline.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Timeout{config: config}
}

// Execute runs the operation with a hard deadline. The operation's context is
// canceled when the deadline passes.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// Soft waits at most the configured timeout for op. The operation runs with a
// context that is detached from ctx's cancellation, so it keeps going after
// Soft gives up on it.
//
// When op finishes in time, late is nil and err is op's result. Otherwise err
// is ErrTimeout (or ctx.Err() if the caller went away first) and late delivers
// op's eventual result exactly once.
func (t *Timeout) Soft(ctx context.Context, op func(context.Context) error) (late <-chan error, err error) {
	done := make(chan error, 1)
	bg := context.WithoutCancel(ctx)

	go func() {
		done <- op(bg)
	}()

	timer := time.NewTimer(t.config.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return nil, err
	case <-timer.C:
		return done, ErrTimeout
	case <-ctx.Done():
		return done, ctx.Err()
	}
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}
