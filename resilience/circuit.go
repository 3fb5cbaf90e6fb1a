package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means requests flow normally.
	StateClosed State = iota
	// StateOpen means requests are rejected without being attempted.
	StateOpen
	// StateHalfOpen means a trial request is allowed through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the max trial requests allowed in half-open state.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called after the state changes, outside the breaker's
	// lock and in transition order. It must not call back into the breaker.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenCount int
	pending       []transition

	notifyMu sync.Mutex
}

type transition struct {
	from, to State
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs the operation through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterRequest(err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	state := cb.currentStateLocked()
	cb.mu.Unlock()
	cb.notify()
	return state
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failures = 0
	cb.halfOpenCount = 0
	cb.setStateLocked(StateClosed)
	cb.mu.Unlock()
	cb.notify()
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.notify()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		cb.halfOpenCount++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.notify()
	defer cb.mu.Unlock()

	failed := cb.config.IsFailure(err)

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			return
		}
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.failures >= cb.config.MaxFailures {
			cb.setStateLocked(StateOpen)
		}

	case StateHalfOpen:
		if failed {
			cb.lastFailure = time.Now()
			cb.setStateLocked(StateOpen)
			return
		}
		cb.failures = 0
		cb.setStateLocked(StateClosed)
	}
}

func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.config.ResetTimeout {
		cb.setStateLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) setStateLocked(state State) {
	if cb.state == state {
		return
	}
	if state == StateHalfOpen {
		cb.halfOpenCount = 0
	}
	if cb.config.OnStateChange != nil {
		cb.pending = append(cb.pending, transition{from: cb.state, to: state})
	}
	cb.state = state
}

// notify delivers queued transitions. Must be called without cb.mu held.
func (cb *CircuitBreaker) notify() {
	if cb.config.OnStateChange == nil {
		return
	}
	cb.notifyMu.Lock()
	defer cb.notifyMu.Unlock()

	cb.mu.Lock()
	pending := cb.pending
	cb.pending = nil
	cb.mu.Unlock()

	for _, t := range pending {
		cb.config.OnStateChange(t.from, t.to)
	}
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	m := CircuitBreakerMetrics{
		State:       cb.currentStateLocked(),
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
	}
	cb.mu.Unlock()
	cb.notify()
	return m
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	LastFailure time.Time
}
