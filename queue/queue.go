package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/observe"
	"github.com/jonwraymond/offlinesync/resilience"
	"github.com/jonwraymond/offlinesync/store"
)

// IdempotencyHeader carries a mutation's idempotency key on replay.
const IdempotencyHeader = "Idempotency-Key"

// Status reports whether the network is believed reachable.
type Status interface {
	Online() bool
}

// Config configures a Queue.
type Config struct {
	Store   store.Store
	Network fetch.Network

	// Status gates drains. Default: always online.
	Status Status

	Logger  observe.Logger
	Metrics observe.Metrics
	Tracer  observe.Tracer

	// ReplayAttempts is the number of tries per mutation within one drain.
	// Only network failures are retried; server rejections are not.
	// Default: 1
	ReplayAttempts int

	// RetryDelay is the delay between replay attempts.
	// Default: 200ms
	RetryDelay time.Duration

	// MaxRetries is the failed-drain count at which a mutation is reported
	// as exhausted. Exhausted mutations stay queued.
	// Default: 5
	MaxRetries int

	// OnReplayed is called after a mutation replayed successfully and was
	// removed from the store.
	OnReplayed func(ctx context.Context, m store.PendingMutation, resp *fetch.Response)

	// Now is the clock used for CreatedAt. Default: time.Now.
	Now func() time.Time
}

// DrainResult reports the outcome of one drain.
type DrainResult struct {
	// Succeeded lists replayed mutation IDs in replay order.
	Succeeded []int64

	// Failed lists the mutation that stopped the drain, if any.
	Failed []int64

	// Failure is why the Failed mutation did not replay.
	Failure error

	// Remaining is the number of mutations still queued afterwards.
	Remaining int

	// Exhausted lists failed mutations whose retry count reached MaxRetries.
	Exhausted []int64

	// Skipped is set when the drain did not run because the status is offline.
	Skipped bool
}

func (r DrainResult) clone() DrainResult {
	r.Succeeded = append([]int64(nil), r.Succeeded...)
	r.Failed = append([]int64(nil), r.Failed...)
	r.Exhausted = append([]int64(nil), r.Exhausted...)
	return r
}

// Queue is the offline mutation queue.
type Queue struct {
	cfg   Config
	retry *resilience.Retry
	log   observe.Logger
	meta  observe.OpMeta

	// drains coalesces concurrent Drain calls into one pass.
	drains singleflight.Group
}

// New creates a queue.
func New(cfg Config) (*Queue, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if cfg.Network == nil {
		return nil, fmt.Errorf("%w: network is required", ErrInvalidConfig)
	}
	if cfg.ReplayAttempts <= 0 {
		cfg.ReplayAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observe.NopTracer()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	meta := observe.OpMeta{Component: "queue", Name: "drain"}
	q := &Queue{
		cfg:  cfg,
		log:  cfg.Logger.With(meta),
		meta: meta,
	}
	q.retry = resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  cfg.ReplayAttempts,
		InitialDelay: cfg.RetryDelay,
		Jitter:       true,
		RetryIf:      fetch.IsTransient,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			q.log.Debug(context.Background(), "replay attempt failed, retrying",
				observe.F("attempt", attempt),
				observe.F("delay", delay.String()),
				observe.F("error", err),
			)
		},
	})
	return q, nil
}

func (q *Queue) online() bool {
	return q.cfg.Status == nil || q.cfg.Status.Online()
}

// Enqueue persists req for later replay. It works offline; a storage failure
// is returned so the caller never believes an unsaved mutation was queued.
func (q *Queue) Enqueue(ctx context.Context, req *fetch.Request) (store.PendingMutation, error) {
	if req == nil || req.URL == nil || req.Method == "" {
		return store.PendingMutation{}, fetch.ErrInvalidRequest
	}

	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	key := header.Get(IdempotencyHeader)
	if key == "" {
		key = uuid.NewString()
	}

	m, err := q.cfg.Store.AddMutation(ctx, store.PendingMutation{
		URL:            req.URL.String(),
		Method:         req.Method,
		Header:         header,
		Body:           req.Body,
		CreatedAt:      q.cfg.Now(),
		IdempotencyKey: key,
	})
	if err != nil {
		return store.PendingMutation{}, fmt.Errorf("queue: enqueue %s %s: %w", req.Method, req.URL, err)
	}

	q.cfg.Metrics.RecordEnqueue(ctx)
	q.log.Info(ctx, "mutation queued",
		observe.F("id", m.ID),
		observe.F("method", m.Method),
		observe.F("url", m.URL),
	)
	return m, nil
}

// Drain replays queued mutations in FIFO order, stopping at the first
// failure. While offline it returns a skipped result without touching the
// store. Concurrent calls share a single drain and its result.
//
// The returned error reports storage failures and cancellation; replay
// failures are reported in the result.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	if !q.online() {
		q.log.Debug(ctx, "drain skipped while offline")
		return DrainResult{Skipped: true}, nil
	}

	v, err, _ := q.drains.Do("drain", func() (any, error) {
		return q.drain(ctx)
	})
	res := v.(DrainResult)
	return res.clone(), err
}

func (q *Queue) drain(ctx context.Context) (DrainResult, error) {
	ctx, span := q.cfg.Tracer.StartSpan(ctx, q.meta)
	start := time.Now()

	res, err := q.drainPending(ctx)

	q.cfg.Tracer.EndSpan(span, err)
	q.cfg.Metrics.RecordOperation(ctx, q.meta, time.Since(start), err)
	if err != nil {
		q.log.Warn(ctx, "drain aborted", observe.F("error", err), observe.F("succeeded", len(res.Succeeded)))
	} else if len(res.Succeeded) > 0 || len(res.Failed) > 0 {
		q.log.Info(ctx, "drain finished",
			observe.F("succeeded", len(res.Succeeded)),
			observe.F("failed", len(res.Failed)),
			observe.F("remaining", res.Remaining),
		)
	}
	return res, err
}

func (q *Queue) drainPending(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	pending, err := q.cfg.Store.ListMutations(ctx)
	if err != nil {
		return res, fmt.Errorf("queue: list pending: %w", err)
	}

	for i, m := range pending {
		res.Remaining = len(pending) - i
		if !q.online() {
			q.log.Info(ctx, "went offline during drain", observe.F("remaining", res.Remaining))
			return res, nil
		}

		resp, err := q.replay(ctx, m)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			q.cfg.Metrics.RecordReplay(ctx, false)
			return q.recordFailure(ctx, res, m, err)
		}
		q.cfg.Metrics.RecordReplay(ctx, true)

		if err := q.cfg.Store.DeleteMutation(ctx, m.ID); err != nil {
			return res, fmt.Errorf("queue: remove replayed mutation %d: %w", m.ID, err)
		}
		res.Succeeded = append(res.Succeeded, m.ID)
		res.Remaining--
		q.log.Debug(ctx, "mutation replayed", observe.F("id", m.ID), observe.F("status", resp.Status))

		if q.cfg.OnReplayed != nil {
			q.cfg.OnReplayed(ctx, m, resp)
		}
	}
	return res, nil
}

func (q *Queue) recordFailure(ctx context.Context, res DrainResult, m store.PendingMutation, cause error) (DrainResult, error) {
	m.RetryCount++
	m.LastError = cause.Error()
	res.Failed = append(res.Failed, m.ID)
	res.Failure = cause

	if m.RetryCount >= q.cfg.MaxRetries {
		res.Exhausted = append(res.Exhausted, m.ID)
	}

	q.log.Warn(ctx, "replay failed, drain halted",
		observe.F("id", m.ID),
		observe.F("retry_count", m.RetryCount),
		observe.F("remaining", res.Remaining),
		observe.F("error", cause),
	)

	if err := q.cfg.Store.PutMutation(ctx, m); err != nil {
		return res, fmt.Errorf("queue: record failure of mutation %d: %w", m.ID, err)
	}
	return res, nil
}

// replay sends m verbatim. Non-2xx answers are a *ReplayError wrapping
// ErrReplayRejected; network failures are a *ReplayError wrapping the
// network error.
func (q *Queue) replay(ctx context.Context, m store.PendingMutation) (*fetch.Response, error) {
	req, err := fetch.NewRequest(m.Method, m.URL, m.Body)
	if err != nil {
		return nil, &ReplayError{ID: m.ID, Err: err}
	}
	if m.Header != nil {
		req.Header = m.Header.Clone()
	}
	if m.IdempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, m.IdempotencyKey)
	}

	var resp *fetch.Response
	err = q.retry.Execute(ctx, func(ctx context.Context) error {
		r, err := q.cfg.Network.Fetch(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	switch {
	case err != nil:
		return nil, &ReplayError{ID: m.ID, Err: err}
	case !resp.OK():
		return nil, &ReplayError{ID: m.ID, Status: resp.Status, Err: ErrReplayRejected}
	}
	return resp, nil
}

// Discard removes a queued mutation without replaying it.
func (q *Queue) Discard(ctx context.Context, id int64) error {
	m, err := q.cfg.Store.GetMutation(ctx, id)
	if err != nil {
		return fmt.Errorf("queue: discard %d: %w", id, err)
	}
	if err := q.cfg.Store.DeleteMutation(ctx, id); err != nil {
		return fmt.Errorf("queue: discard %d: %w", id, err)
	}
	q.log.Info(ctx, "mutation discarded",
		observe.F("id", id),
		observe.F("method", m.Method),
		observe.F("url", m.URL),
		observe.F("retry_count", m.RetryCount),
	)
	return nil
}

// Pending returns the queued mutations in replay order.
func (q *Queue) Pending(ctx context.Context) ([]store.PendingMutation, error) {
	pending, err := q.cfg.Store.ListMutations(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: list pending: %w", err)
	}
	return pending, nil
}

// Len returns the number of queued mutations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	pending, err := q.Pending(ctx)
	return len(pending), err
}

// IsRejected reports whether err is a server rejection of a replay.
func IsRejected(err error) bool {
	return errors.Is(err, ErrReplayRejected)
}
