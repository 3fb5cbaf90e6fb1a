package strategy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/observe"
	"github.com/jonwraymond/offlinesync/store"
)

// base holds what every strategy shares: the cache partition, its
// expiration policy, and the path to the network.
type base struct {
	cfg  Config
	deps Deps
	meta observe.OpMeta
	log  observe.Logger

	// flights dedupes concurrent network fetches of the same key.
	flights singleflight.Group
}

func newBase(cfg Config, deps Deps) *base {
	meta := observe.OpMeta{
		Component: "strategy",
		Name:      "handle",
		Strategy:  cfg.Kind.String(),
		CacheName: cfg.CacheName,
	}
	return &base{
		cfg:  cfg,
		deps: deps,
		meta: meta,
		log:  deps.Logger.With(meta),
	}
}

func (b *base) Config() Config {
	return b.cfg
}

// lookup reads a servable entry. Misses, expired entries and storage failures
// all report ok=false; storage failures are logged so the caller degrades to
// the network.
func (b *base) lookup(ctx context.Context, key string) (*fetch.Response, bool) {
	entry, err := b.deps.Store.GetEntry(ctx, b.cfg.CacheName, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.deps.Metrics.RecordCacheLookup(ctx, b.meta, observe.LookupMiss)
		return nil, false
	case err != nil:
		b.deps.Metrics.RecordCacheLookup(ctx, b.meta, observe.LookupError)
		b.log.Warn(ctx, "cache read failed", observe.F("key", key), observe.F("error", err))
		return nil, false
	case b.cfg.Expiration.Expired(entry, b.deps.Now()):
		b.deps.Metrics.RecordCacheLookup(ctx, b.meta, observe.LookupExpired)
		return nil, false
	}

	b.deps.Metrics.RecordCacheLookup(ctx, b.meta, observe.LookupHit)
	return &fetch.Response{
		Status:   entry.Status,
		Header:   entry.Header,
		Body:     entry.Body,
		Opaque:   entry.Opaque,
		Source:   fetch.SourceCache,
		StoredAt: entry.StoredAt,
	}, true
}

func (b *base) cacheable(resp *fetch.Response) bool {
	if resp.Opaque {
		return slices.Contains(b.cfg.CacheableStatuses, 0)
	}
	return slices.Contains(b.cfg.CacheableStatuses, resp.Status)
}

// put stores resp under key if it is cacheable and trims the cache. Failures
// are logged, never returned: the response is still good for the caller.
func (b *base) put(ctx context.Context, req *fetch.Request, key string, resp *fetch.Response) {
	if !b.cacheable(resp) {
		return
	}
	err := b.deps.Store.PutEntry(ctx, store.CacheEntry{
		CacheName: b.cfg.CacheName,
		Key:       key,
		Method:    req.Method,
		URL:       req.URL.String(),
		Status:    resp.Status,
		Header:    resp.Header,
		Body:      resp.Body,
		Opaque:    resp.Opaque,
		StoredAt:  b.deps.Now(),
	})
	if err != nil {
		b.log.Warn(ctx, "cache write failed", observe.F("key", key), observe.F("error", err))
		return
	}
	if n, err := b.cfg.Expiration.Trim(ctx, b.deps.Store, b.cfg.CacheName); err != nil {
		b.log.Warn(ctx, "cache trim failed", observe.F("error", err))
	} else if n > 0 {
		b.log.Debug(ctx, "evicted oldest entries", observe.F("evicted", n))
	}
}

// fetchAndStore fetches req and caches the result. Concurrent calls for the
// same key share one network round trip; each caller gets its own copy.
//
// The shared fetch runs detached from any single caller, so one caller
// giving up neither cancels the fetch nor fails the others. It stays bounded
// by the network's own deadline.
func (b *base) fetchAndStore(ctx context.Context, req *fetch.Request, key string) (*fetch.Response, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := b.flights.DoChan(key, func() (any, error) {
		resp, err := b.deps.Network.Fetch(flightCtx, req)
		if err != nil {
			return nil, err
		}
		b.put(flightCtx, req, key, resp)
		return resp, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*fetch.Response).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// noResponse wraps the network failure that left a request unanswered.
func noResponse(err error) error {
	return fmt.Errorf("%w: %w", ErrNoResponse, err)
}
