package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/observe"
	"github.com/jonwraymond/offlinesync/resilience"
)

// networkFirst prefers a fresh network response and falls back to the cache
// when the network fails or misses the soft deadline. A network attempt that
// outlives the deadline keeps running and still refreshes the cache.
type networkFirst struct {
	*base
	timeout *resilience.Timeout
}

func newNetworkFirst(b *base) Strategy {
	s := &networkFirst{base: b}
	if b.cfg.NetworkTimeout > 0 {
		s.timeout = resilience.NewTimeout(resilience.TimeoutConfig{Timeout: b.cfg.NetworkTimeout})
	}
	return s
}

func (s *networkFirst) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	key := s.deps.Keyer.Key(req)

	resp, err := s.fetchWithDeadline(ctx, req, key)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil, err
	}

	if cached, ok := s.lookup(ctx, key); ok {
		s.log.Debug(ctx, "network failed, served from cache", observe.F("key", key), observe.F("error", err))
		return cached, nil
	}
	return nil, noResponse(err)
}

func (s *networkFirst) fetchWithDeadline(ctx context.Context, req *fetch.Request, key string) (*fetch.Response, error) {
	if s.timeout == nil {
		return s.fetchAndStore(ctx, req, key)
	}

	var resp *fetch.Response
	op := s.deps.Background.Track(func(ctx context.Context) error {
		r, err := s.fetchAndStore(ctx, req, key)
		if err != nil {
			s.log.Debug(ctx, "late network attempt failed", observe.F("key", key), observe.F("error", err))
			return err
		}
		resp = r
		return nil
	})

	late, err := s.timeout.Soft(ctx, op)
	if late == nil {
		return resp, err
	}
	if errors.Is(err, resilience.ErrTimeout) {
		return nil, fmt.Errorf("%w: %w", fetch.ErrNetworkTimeout, err)
	}
	return nil, err
}
