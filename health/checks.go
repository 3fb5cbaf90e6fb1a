package health

import (
	"context"

	"github.com/jonwraymond/offlinesync/resilience"
	"github.com/jonwraymond/offlinesync/store"
)

// Onliner reports connectivity. *connectivity.Status implements it.
type Onliner interface {
	Online() bool
}

// StoreChecker is Unhealthy when the persistent store cannot be read.
func StoreChecker(s store.Store) Checker {
	return CheckerFunc("store", func(ctx context.Context) Result {
		names, err := s.CacheNames(ctx)
		if err != nil {
			return Unhealthy("store unavailable", err)
		}
		return Healthy("store readable").WithDetails(map[string]any{
			"caches": len(names),
		})
	})
}

// ConnectivityChecker is Degraded while offline.
func ConnectivityChecker(status Onliner) Checker {
	return CheckerFunc("connectivity", func(context.Context) Result {
		if !status.Online() {
			return Degraded("offline: serving from cache, queueing writes")
		}
		return Healthy("online")
	})
}

// QueueChecker is Degraded when a queued mutation has failed maxRetries
// times or more. Such mutations stay queued until discarded.
func QueueChecker(s store.Store, maxRetries int) Checker {
	return CheckerFunc("queue", func(ctx context.Context) Result {
		pending, err := s.ListMutations(ctx)
		if err != nil {
			return Unhealthy("queue unreadable", err)
		}
		exhausted := 0
		for _, m := range pending {
			if maxRetries > 0 && m.RetryCount >= maxRetries {
				exhausted++
			}
		}
		details := map[string]any{
			"pending":   len(pending),
			"exhausted": exhausted,
		}
		if exhausted > 0 {
			return Degraded("mutations need attention").WithDetails(details)
		}
		return Healthy("queue draining").WithDetails(details)
	})
}

// SlotsFunc reports bulkhead usage. ok is false when nothing is capped.
type SlotsFunc func() (m resilience.BulkheadMetrics, ok bool)

// CapacityChecker is Degraded while every slot of a bulkhead is taken.
func CapacityChecker(name string, slots SlotsFunc) Checker {
	return CheckerFunc(name, func(context.Context) Result {
		m, ok := slots()
		if !ok {
			return Healthy("uncapped")
		}
		details := map[string]any{
			"active":    m.Active,
			"maxActive": m.MaxActive,
			"limit":     m.MaxConcurrent,
			"rejected":  m.Rejected,
		}
		if m.Available <= 0 {
			return Degraded("at capacity").WithDetails(details)
		}
		return Healthy("slots available").WithDetails(details)
	})
}
