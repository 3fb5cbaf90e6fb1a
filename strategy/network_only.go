package strategy

import (
	"context"

	"github.com/jonwraymond/offlinesync/fetch"
)

// networkOnly passes requests straight to the network. It is also the
// router's fallback for unmatched requests.
type networkOnly struct {
	*base
}

func (s *networkOnly) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	resp, err := s.deps.Network.Fetch(ctx, req)
	if err != nil {
		return nil, noResponse(err)
	}
	return resp, nil
}
