// Package resilience provides the failure-handling primitives the offline
// layer is built on.
//
// # Patterns
//
//   - Timeout: bounds a network round trip. Soft stops waiting at the deadline
//     but lets the operation run to completion in the background, so a late
//     network result can still refresh the cache.
//
//   - Retry: re-runs an operation with exponential backoff and optional
//     jitter. The mutation queue uses it for transient replay failures.
//
//   - Circuit Breaker: fails fast once the origin has stopped answering and
//     reports state changes, which the connectivity status listens to.
//
//   - Bulkhead: caps concurrent operations. Background cache refreshes run
//     behind one, and the HTTP network can cap its round trips with another.
//     Metrics feeds the health report.
//
// # Usage
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    MaxFailures:  3,
//	    ResetTimeout: 10 * time.Second,
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithTimeout(30*time.Second),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return roundTrip(ctx)
//	})
package resilience
