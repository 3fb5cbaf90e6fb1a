package strategy

import (
	"context"
	"time"

	"github.com/jonwraymond/offlinesync/store"
)

// Expiration bounds a cache by entry count and age. Zero values disable the
// corresponding bound.
type Expiration struct {
	// MaxEntries caps the number of entries; the oldest are evicted first.
	MaxEntries int

	// MaxAge is how long an entry stays servable.
	MaxAge time.Duration
}

// Expired reports whether entry is too old to serve at now.
func (e Expiration) Expired(entry store.CacheEntry, now time.Time) bool {
	return e.MaxAge > 0 && now.Sub(entry.StoredAt) > e.MaxAge
}

// Trim evicts the oldest entries of cacheName until at most MaxEntries remain.
// It returns the number of evicted entries.
func (e Expiration) Trim(ctx context.Context, st store.Store, cacheName string) (int, error) {
	if e.MaxEntries <= 0 {
		return 0, nil
	}
	entries, err := st.ListEntries(ctx, cacheName)
	if err != nil {
		return 0, err
	}
	evicted := 0
	for i := 0; len(entries)-i > e.MaxEntries; i++ {
		if err := st.DeleteEntry(ctx, cacheName, entries[i].Key); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// Sweep deletes the expired entries of cacheName, then trims it to
// MaxEntries. It returns the total number of deleted entries.
func (e Expiration) Sweep(ctx context.Context, st store.Store, cacheName string, now time.Time) (int, error) {
	deleted := 0
	if e.MaxAge > 0 {
		entries, err := st.ListEntries(ctx, cacheName)
		if err != nil {
			return 0, err
		}
		for _, entry := range entries {
			if !e.Expired(entry, now) {
				continue
			}
			if err := st.DeleteEntry(ctx, cacheName, entry.Key); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	evicted, err := e.Trim(ctx, st, cacheName)
	return deleted + evicted, err
}
