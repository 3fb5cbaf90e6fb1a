package strategy

import (
	"context"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/store"
)

type cacheOnly struct {
	*base
}

func (s *cacheOnly) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	if resp, ok := s.lookup(ctx, s.deps.Keyer.Key(req)); ok {
		return resp, nil
	}
	return nil, noResponse(store.ErrNotFound)
}
