package fetch

import "context"

// Handler answers an intercepted request, from the network, the cache, or
// the mutation queue.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Handle must honor cancellation of the wait; work it started in
// the background (cache refreshes) may outlive ctx.
// - Errors: returns an error only when no response could be produced.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
