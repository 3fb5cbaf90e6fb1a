package health

import (
	"context"
	"time"
)

// Status is the health of a component.
type Status int

const (
	// StatusHealthy means the component works normally.
	StatusHealthy Status = iota
	// StatusDegraded means the component works with reduced capability.
	StatusDegraded
	// StatusUnhealthy means the component does not work.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result is the outcome of one check.
type Result struct {
	Status  Status
	Message string
	Details map[string]any

	// Duration is filled in by the Aggregator.
	Duration time.Duration

	Error error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err}
}

// WithDetails returns r with details attached.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker checks one component.
//
// Contract:
// - Concurrency: Check may be called concurrently.
// - Context: Check should return promptly once ctx is done; the Aggregator
// reports a timeout either way.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type checkerFunc struct {
	name string
	fn   func(context.Context) Result
}

// CheckerFunc adapts a function to the Checker interface.
func CheckerFunc(name string, fn func(context.Context) Result) Checker {
	return &checkerFunc{name: name, fn: fn}
}

func (f *checkerFunc) Name() string                     { return f.name }
func (f *checkerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }
