package resilience

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewBulkhead_Defaults(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{})
	if m := b.Metrics(); m.MaxConcurrent != 10 || m.Available != 10 {
		t.Errorf("Metrics() = %+v, want MaxConcurrent=10 Available=10", m)
	}
}

func TestBulkhead_RejectsWhenFull(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := b.Acquire(context.Background()); err != ErrBulkheadFull {
		t.Errorf("Acquire() when full = %v, want ErrBulkheadFull", err)
	}
	b.Release()
	if err := b.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
	b.Release()

	m := b.Metrics()
	if m.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", m.Rejected)
	}
	if m.Active != 0 {
		t.Errorf("Active = %d, want 0", m.Active)
	}
}

func TestBulkhead_WaitsForSlot(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Second})
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Release()
	}()

	if err := b.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire() with wait error = %v", err)
	}
	b.Release()
}

func TestBulkhead_WaitCanceled(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Hour})
	_ = b.Acquire(context.Background())
	defer b.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := b.Acquire(ctx); err != context.DeadlineExceeded {
		t.Errorf("Acquire() error = %v, want DeadlineExceeded", err)
	}
}

func TestBulkhead_Execute(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 2, MaxWait: time.Second})

	var (
		mu      sync.Mutex
		current int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				current--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	if m := b.Metrics(); m.MaxActive > 2 || m.Active != 0 {
		t.Errorf("Metrics() = %+v", m)
	}
}
