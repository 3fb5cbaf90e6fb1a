package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OpMeta describes an operation of the offline layer for telemetry purposes.
type OpMeta struct {
	Component string // router, strategy, queue, connectivity, engine
	Name      string // operation name (required)
	Rule      string // routing rule name (optional)
	Strategy  string // strategy kind (optional)
	CacheName string // cache partition (optional)
}

// SpanName returns the deterministic span name for this operation.
// Format: offline.<component>.<name> or offline.<name>
func (m OpMeta) SpanName() string {
	if m.Component != "" {
		return "offline." + m.Component + "." + m.Name
	}
	return "offline." + m.Name
}

// Attributes returns the non-empty metadata as span/metric attributes.
func (m OpMeta) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("op.name", m.Name)}
	if m.Component != "" {
		attrs = append(attrs, attribute.String("op.component", m.Component))
	}
	if m.Rule != "" {
		attrs = append(attrs, attribute.String("rule", m.Rule))
	}
	if m.Strategy != "" {
		attrs = append(attrs, attribute.String("strategy", m.Strategy))
	}
	if m.CacheName != "" {
		attrs = append(attrs, attribute.String("cache.name", m.CacheName))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with operation span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for the operation.
	StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with the operation metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	attrs := append(meta.Attributes(), attribute.Bool("op.error", false))
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("op.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a tracer whose spans record nothing.
func NopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ error) {
	span.End()
}
