package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier grows the delay after each failed attempt. 1 keeps it
	// constant.
	// Default: 2.0
	Multiplier float64

	// Jitter adds up to 25% random delay.
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: all non-nil errors trigger retry.
	RetryIf func(err error) bool

	// OnRetry is called before each retry with the failed attempt number,
	// its error and the delay before the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry implements retry with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}

	return &Retry{config: config}
}

// Execute runs the operation until it succeeds, returns a non-retryable
// error, or runs out of attempts. The last error is returned.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) || attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.calculateDelay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

func (r *Retry) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay)
	for i := 1; i < attempt && delay < float64(r.config.MaxDelay); i++ {
		delay *= r.config.Multiplier
	}
	d := min(time.Duration(delay), r.config.MaxDelay)

	if r.config.Jitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
