package strategy

import (
	"context"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/observe"
)

// staleWhileRevalidate answers from the cache at once and refreshes the entry
// in the background. Without a cached entry it waits for the network.
type staleWhileRevalidate struct {
	*base
}

func (s *staleWhileRevalidate) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	key := s.deps.Keyer.Key(req)

	if cached, ok := s.lookup(ctx, key); ok {
		refresh := req.Clone()
		s.deps.Background.Go(ctx, func(ctx context.Context) {
			if _, err := s.fetchAndStore(ctx, refresh, key); err != nil {
				s.log.Debug(ctx, "revalidation failed", observe.F("key", key), observe.F("error", err))
			}
		})
		return cached, nil
	}

	resp, err := s.fetchAndStore(ctx, req, key)
	if err != nil {
		return nil, noResponse(err)
	}
	return resp, nil
}
