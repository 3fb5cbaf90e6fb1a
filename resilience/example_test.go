package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/offlinesync/resilience"
)

func ExampleNewCircuitBreaker_withStateChange() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		OnStateChange: func(from, to resilience.State) {
			fmt.Printf("Circuit changed: %s -> %s\n", from, to)
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("origin unreachable")
	})
	// Output:
	// Circuit changed: closed -> open
}

func ExampleTimeout_Soft() {
	to := resilience.NewTimeout(resilience.TimeoutConfig{Timeout: 10 * time.Millisecond})

	late, err := to.Soft(context.Background(), func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	})
	fmt.Println("waited:", err)
	fmt.Println("finished later:", <-late)
	// Output:
	// waited: resilience: operation timed out
	// finished later: <nil>
}

func ExampleNewRetry() {
	r := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			fmt.Printf("attempt %d failed: %v\n", attempt, err)
		},
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("connection reset")
		}
		return nil
	})
	fmt.Println(attempts, err)
	// Output:
	// attempt 1 failed: connection reset
	// 2 <nil>
}
