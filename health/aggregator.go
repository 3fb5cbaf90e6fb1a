package health

import (
	"context"
	"sync"
	"time"
)

// Aggregator runs a set of checkers and combines their results.
type Aggregator struct {
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewAggregator creates an aggregator whose CheckAll waits at most timeout.
// A non-positive timeout means 5 seconds.
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{
		timeout:  timeout,
		checkers: make(map[string]Checker),
	}
}

// Register adds c under its name, replacing any checker with the same name.
func (a *Aggregator) Register(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := c.Name()
	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = c
}

// Names returns the registered checker names in registration order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// Check runs a single named checker.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	c, ok := a.checkers[name]
	a.mu.RUnlock()
	if !ok {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return run(ctx, c), nil
}

// CheckAll runs every checker in parallel and returns results by name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	checkers := make(map[string]Checker, len(a.checkers))
	for name, c := range a.checkers {
		checkers[name] = c
	}
	a.mu.RUnlock()

	results := make(map[string]Result, len(checkers))
	if len(checkers) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := run(ctx, c)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// Overall folds results into one status: the worst one wins.
func Overall(results map[string]Result) Status {
	status := StatusHealthy
	for _, r := range results {
		if r.Status > status {
			status = r.Status
		}
	}
	return status
}

func run(ctx context.Context, c Checker) Result {
	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- c.Check(ctx)
	}()

	select {
	case res := <-done:
		res.Duration = time.Since(start)
		return res
	case <-ctx.Done():
		return Result{
			Status:   StatusUnhealthy,
			Message:  "check timed out",
			Error:    ErrCheckTimeout,
			Duration: time.Since(start),
		}
	}
}
