package strategy

import (
	"context"

	"github.com/jonwraymond/offlinesync/fetch"
)

// cacheFirst serves a fresh cached entry without touching the network;
// on a miss it fetches, stores and returns the network response.
type cacheFirst struct {
	*base
}

func (s *cacheFirst) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	key := s.deps.Keyer.Key(req)
	if resp, ok := s.lookup(ctx, key); ok {
		return resp, nil
	}

	resp, err := s.fetchAndStore(ctx, req, key)
	if err != nil {
		return nil, noResponse(err)
	}
	return resp, nil
}
