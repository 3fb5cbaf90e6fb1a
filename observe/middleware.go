package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/offlinesync/fetch"
)

// Middleware wraps a fetch.Handler with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Wrap returns a handler that is safe for concurrent use.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped handler are recorded and propagated unchanged.
//   - Ownership: Requests and responses are passed through without modification.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap instruments h. Every call is recorded under meta.
func (m *Middleware) Wrap(meta OpMeta, h fetch.Handler) fetch.Handler {
	logger := m.logger.With(meta)
	return fetch.HandlerFunc(func(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		resp, err := h.Handle(ctx, req)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordOperation(ctx, meta, duration, err)

		fields := []Field{
			F("method", req.Method),
			F("url", req.URL.String()),
			F("duration_ms", float64(duration.Milliseconds())),
		}
		if err != nil {
			fields = append(fields, F("error", err))
			logger.Warn(ctx, "request failed", fields...)
			return resp, err
		}
		fields = append(fields, F("status", resp.Status), F("source", resp.Source.String()))
		logger.Debug(ctx, "request handled", fields...)
		return resp, nil
	})
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
