package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Cache lookup outcomes.
const (
	LookupHit     = "hit"
	LookupMiss    = "miss"
	LookupExpired = "expired"
	LookupError   = "error"
)

// Metrics records offline-layer metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOperation records an operation with duration and error status.
	RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error)

	// RecordCacheLookup records the outcome of a cache read.
	RecordCacheLookup(ctx context.Context, meta OpMeta, outcome string)

	// RecordReplay records one mutation replay attempt.
	RecordReplay(ctx context.Context, succeeded bool)

	// RecordEnqueue records a mutation saved for later replay.
	RecordEnqueue(ctx context.Context)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	lookups      metric.Int64Counter
	replays      metric.Int64Counter
	enqueued     metric.Int64Counter
}

// NewMetrics creates a Metrics instance with instruments from the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"offline.op.total",
		metric.WithDescription("Total number of offline-layer operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"offline.op.errors",
		metric.WithDescription("Total number of failed offline-layer operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"offline.op.duration_ms",
		metric.WithDescription("Operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	lookups, err := meter.Int64Counter(
		"offline.cache.lookups",
		metric.WithDescription("Cache reads by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	replays, err := meter.Int64Counter(
		"offline.queue.replays",
		metric.WithDescription("Mutation replay attempts by result"),
		metric.WithUnit("{replay}"),
	)
	if err != nil {
		return nil, err
	}

	enqueued, err := meter.Int64Counter(
		"offline.queue.enqueued",
		metric.WithDescription("Mutations saved for later replay"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		lookups:      lookups,
		replays:      replays,
		enqueued:     enqueued,
	}, nil
}

func (m *metricsImpl) RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(meta.Attributes()...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordCacheLookup(ctx context.Context, meta OpMeta, outcome string) {
	attrs := append(meta.Attributes(), attribute.String("outcome", outcome))
	m.lookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metricsImpl) RecordReplay(ctx context.Context, succeeded bool) {
	m.replays.Add(ctx, 1, metric.WithAttributes(attribute.Bool("succeeded", succeeded)))
}

func (m *metricsImpl) RecordEnqueue(ctx context.Context) {
	m.enqueued.Add(ctx, 1)
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordOperation(context.Context, OpMeta, time.Duration, error) {}
func (noopMetrics) RecordCacheLookup(context.Context, OpMeta, string)             {}
func (noopMetrics) RecordReplay(context.Context, bool)                            {}
func (noopMetrics) RecordEnqueue(context.Context)                                 {}
