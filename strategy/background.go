package strategy

import (
	"context"
	"sync"

	"github.com/jonwraymond/offlinesync/observe"
	"github.com/jonwraymond/offlinesync/resilience"
)

// DefaultBackgroundLimit is the default number of concurrent background refreshes.
const DefaultBackgroundLimit = 8

// Background runs work that outlives the request that started it.
type Background struct {
	bulkhead *resilience.Bulkhead
	logger   observe.Logger

	mu     sync.Mutex
	active int
	idle   chan struct{}
}

// NewBackground creates a Background running at most limit refreshes at once.
func NewBackground(limit int, logger observe.Logger) *Background {
	if limit <= 0 {
		limit = DefaultBackgroundLimit
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Background{
		bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: limit}),
		logger:   logger,
	}
}

func (b *Background) add() {
	b.mu.Lock()
	if b.active == 0 {
		b.idle = make(chan struct{})
	}
	b.active++
	b.mu.Unlock()
}

func (b *Background) done() {
	b.mu.Lock()
	b.active--
	if b.active == 0 {
		close(b.idle)
	}
	b.mu.Unlock()
}

// Go runs fn in a new goroutine with a context detached from ctx's
// cancellation. It returns false without running fn when the concurrency
// limit is reached.
func (b *Background) Go(ctx context.Context, fn func(context.Context)) bool {
	if err := b.bulkhead.Acquire(ctx); err != nil {
		b.logger.Debug(ctx, "background refresh skipped", observe.F("error", err))
		return false
	}
	b.add()
	detached := context.WithoutCancel(ctx)
	go func() {
		defer b.done()
		defer b.bulkhead.Release()
		fn(detached)
	}()
	return true
}

// Track registers op as in flight until it returns, so Wait covers work
// started by another runner. The returned function must be called exactly once.
func (b *Background) Track(op func(context.Context) error) func(context.Context) error {
	b.add()
	return func(ctx context.Context) error {
		defer b.done()
		return op(ctx)
	}
}

// Active returns the number of in-flight background operations.
func (b *Background) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Slots reports usage of the refresh cap, including refreshes skipped
// because it was full.
func (b *Background) Slots() (resilience.BulkheadMetrics, bool) {
	return b.bulkhead.Metrics(), true
}

// Wait blocks until no background work is in flight or ctx is done.
func (b *Background) Wait(ctx context.Context) error {
	b.mu.Lock()
	if b.active == 0 {
		b.mu.Unlock()
		return nil
	}
	idle := b.idle
	b.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
