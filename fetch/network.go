package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonwraymond/offlinesync/resilience"
)

// Network issues requests against the origin.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Fetch must honor cancellation/deadlines.
// - Errors: transport failures wrap ErrNetworkUnavailable, deadline overruns
// wrap ErrNetworkTimeout. Non-2xx statuses are returned as responses.
type Network interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// NetworkFunc adapts a function to the Network interface.
type NetworkFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch calls f(ctx, req).
func (f NetworkFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPConfig configures an HTTPNetwork.
type HTTPConfig struct {
	// Client performs the requests.
	// Default: a client without its own timeout; Timeout below applies.
	Client *http.Client

	// Timeout is the hard deadline for a single request.
	// Default: 30 seconds
	Timeout time.Duration

	// Breaker, when set, fails requests fast while the origin is unreachable.
	Breaker *resilience.CircuitBreaker

	// Origin is the application origin. no-cors requests to any other origin
	// produce opaque responses.
	Origin string

	// MaxBodyBytes caps buffered response bodies.
	// Default: 32 MiB
	MaxBodyBytes int64

	// MaxConcurrent caps round trips in flight. A request waits up to
	// SlotWait for a slot, then fails with resilience.ErrBulkheadFull.
	// Default: 0 (unlimited)
	MaxConcurrent int

	// SlotWait bounds the wait for a free slot.
	// Default: Timeout
	SlotWait time.Duration
}

// HTTPNetwork is a Network backed by net/http.
type HTTPNetwork struct {
	config HTTPConfig
	exec   *resilience.Executor
}

// NewHTTPNetwork creates a new HTTP network.
func NewHTTPNetwork(config HTTPConfig) *HTTPNetwork {
	if config.Client == nil {
		config.Client = &http.Client{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 32 << 20
	}
	if config.SlotWait <= 0 {
		config.SlotWait = config.Timeout
	}

	opts := []resilience.ExecutorOption{resilience.WithTimeout(config.Timeout)}
	if config.MaxConcurrent > 0 {
		opts = append(opts, resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: config.MaxConcurrent,
			MaxWait:       config.SlotWait,
		})))
	}
	if config.Breaker != nil {
		opts = append(opts, resilience.WithCircuitBreaker(config.Breaker))
	}

	return &HTTPNetwork{
		config: config,
		exec:   resilience.NewExecutor(opts...),
	}
}

// Fetch performs the request and buffers the response.
func (n *HTTPNetwork) Fetch(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := n.exec.Execute(ctx, func(ctx context.Context) error {
		r, err := n.do(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

func (n *HTTPNetwork) do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	res, err := n.config.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, n.config.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > n.config.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	if req.Mode == ModeNoCORS && n.config.Origin != "" && req.Origin() != n.config.Origin {
		return &Response{
			Status: 0,
			Header: make(http.Header),
			Body:   body,
			Opaque: true,
			Source: SourceNetwork,
		}, nil
	}

	return &Response{
		Status: res.StatusCode,
		Header: res.Header.Clone(),
		Body:   body,
		Source: SourceNetwork,
	}, nil
}

// Slots reports usage of the round-trip cap. ok is false when the network
// has no cap.
func (n *HTTPNetwork) Slots() (m resilience.BulkheadMetrics, ok bool) {
	if b := n.exec.Bulkhead(); b != nil {
		return b.Metrics(), true
	}
	return m, false
}

// classify maps low-level failures onto the package error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrBodyTooLarge),
		errors.Is(err, resilience.ErrBulkheadFull):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrNetworkTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
	}
}

// Ensure HTTPNetwork implements Network
var _ Network = (*HTTPNetwork)(nil)
