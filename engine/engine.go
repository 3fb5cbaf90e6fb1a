package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/offlinesync/connectivity"
	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/health"
	"github.com/jonwraymond/offlinesync/observe"
	"github.com/jonwraymond/offlinesync/queue"
	"github.com/jonwraymond/offlinesync/resilience"
	"github.com/jonwraymond/offlinesync/route"
	"github.com/jonwraymond/offlinesync/store"
	"github.com/jonwraymond/offlinesync/strategy"
)

// Engine is one instance of the offline layer.
type Engine struct {
	cfg Config
	now func() time.Time

	store     store.Store
	ownsStore bool
	network   fetch.Network
	breaker   *resilience.CircuitBreaker

	status  *connectivity.Status
	router  *route.Router
	queue   *queue.Queue
	monitor *connectivity.Monitor
	bg      *strategy.Background
	keyer   strategy.Keyer
	mutate  fetch.Handler
	health  *health.Aggregator

	// suspectOffline is set when the engine itself took the status offline
	// after a failed mutation. The next successful round trip clears it.
	suspectOffline atomic.Bool

	observer     observe.Observer
	ownsObserver bool
	logger       observe.Logger

	closeOnce sync.Once
	closeErr  error
}

// New builds and starts an engine.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	e := &Engine{cfg: cfg, now: o.now, keyer: strategy.DefaultKeyer{}}

	if err := e.setupObserver(ctx, o.observer); err != nil {
		return nil, err
	}
	if err := e.build(ctx, o); err != nil {
		_ = e.release(ctx)
		return nil, err
	}

	e.monitor.Start()
	e.logger.Info(ctx, "engine started",
		observe.F("rules", len(e.router.Rules())),
		observe.F("online", e.status.Online()),
		observe.F("db", e.cfg.DBPath),
	)
	return e, nil
}

func (e *Engine) setupObserver(ctx context.Context, obs observe.Observer) error {
	if obs == nil {
		var err error
		obs, err = observe.NewObserver(ctx, e.cfg.observeConfig())
		if err != nil {
			return fmt.Errorf("engine: observer: %w", err)
		}
		e.ownsObserver = true
	}
	e.observer = obs
	e.logger = obs.Logger().With(observe.OpMeta{Component: "engine"})
	return nil
}

func (e *Engine) build(ctx context.Context, o options) error {
	logger := e.observer.Logger()
	tracer := observe.NewTracer(e.observer.Tracer())
	metrics, err := observe.NewMetrics(e.observer.Meter())
	if err != nil {
		return fmt.Errorf("engine: metrics: %w", err)
	}
	mw := observe.NewMiddleware(tracer, metrics, logger)

	initial := connectivity.Online
	if o.offline {
		initial = connectivity.Offline
	}
	e.status = connectivity.NewStatus(initial)

	if err := e.setupStore(ctx, o.store); err != nil {
		return err
	}
	e.setupNetwork(o.network)

	rules := o.rules
	if rules == nil {
		if rules, err = e.loadRules(); err != nil {
			return err
		}
	}

	e.bg = strategy.NewBackground(e.cfg.BackgroundLimit, logger)
	network := fetch.NetworkFunc(e.fetchNetwork)
	deps := strategy.Deps{
		Store:      e.store,
		Network:    network,
		Background: e.bg,
		Keyer:      e.keyer,
		Logger:     logger,
		Metrics:    metrics,
		Now:        e.now,
	}
	e.router, err = route.NewRouter(rules, deps, route.WithMiddleware(mw), route.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	e.queue, err = queue.New(queue.Config{
		Store:          e.store,
		Network:        network,
		Status:         e.status,
		Logger:         logger,
		Metrics:        metrics,
		Tracer:         tracer,
		ReplayAttempts: e.cfg.ReplayAttempts,
		MaxRetries:     e.cfg.MaxRetries,
		OnReplayed:     e.onReplayed,
		Now:            e.now,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	e.monitor, err = connectivity.NewMonitor(connectivity.MonitorConfig{
		Status:   e.status,
		Drainer:  e.queue,
		Logger:   logger,
		Debounce: e.cfg.DrainDebounce,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	e.mutate = mw.Wrap(observe.OpMeta{Component: "engine", Name: "mutation"}, fetch.HandlerFunc(e.handleMutation))

	e.health = health.NewAggregator(5 * time.Second)
	e.health.Register(health.StoreChecker(e.store))
	e.health.Register(health.ConnectivityChecker(e.status))
	e.health.Register(health.QueueChecker(e.store, e.cfg.MaxRetries))
	e.health.Register(health.CapacityChecker("background", e.bg.Slots))
	if hn, ok := e.network.(*fetch.HTTPNetwork); ok {
		e.health.Register(health.CapacityChecker("network", hn.Slots))
	}
	return nil
}

func (e *Engine) setupStore(ctx context.Context, st store.Store) error {
	switch {
	case st != nil:
		e.store = st
	case e.cfg.DBPath != "":
		sq, err := store.OpenSQLite(ctx, e.cfg.DBPath)
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		e.store = sq
		e.ownsStore = true
	default:
		e.store = store.NewMemoryStore(store.WithClock(e.now))
		e.ownsStore = true
	}
	return nil
}

func (e *Engine) setupNetwork(n fetch.Network) {
	if n != nil {
		e.network = n
		return
	}
	if e.cfg.BreakerFailures > 0 {
		e.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:   e.cfg.BreakerFailures,
			ResetTimeout:  e.cfg.BreakerReset,
			OnStateChange: connectivity.BindBreaker(e.status),
			IsFailure:     isConnectivityFailure,
		})
	}
	e.network = fetch.NewHTTPNetwork(fetch.HTTPConfig{
		Timeout:       e.cfg.RequestTimeout,
		Breaker:       e.breaker,
		Origin:        e.cfg.AppOrigin,
		MaxConcurrent: e.cfg.MaxConcurrentRequests,
	})
}

// isConnectivityFailure counts transport failures toward opening the
// breaker. Caller cancellations and malformed requests do not count.
func isConnectivityFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled),
		errors.Is(err, fetch.ErrInvalidRequest),
		errors.Is(err, fetch.ErrBodyTooLarge):
		return false
	default:
		return true
	}
}

func (e *Engine) loadRules() ([]route.Rule, error) {
	if e.cfg.RulesFile == "" {
		origin := e.cfg.APIOrigin
		if origin == "" {
			origin = DefaultAPIOrigin
		}
		return DefaultRules(origin), nil
	}
	rules, err := route.LoadRulesFile(e.cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return rules, nil
}

// Handle answers an intercepted request. Reads go through the cache rules;
// mutations go to the network or, failing that, to the queue.
func (e *Engine) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	if req.IsMutation() {
		return e.mutate.Handle(ctx, req)
	}
	return e.router.Handle(ctx, req)
}

func (e *Engine) handleMutation(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	if e.status.Online() {
		backlog, err := e.queue.Len(ctx)
		if err != nil {
			return nil, err
		}
		if backlog == 0 {
			resp, err := e.fetchNetwork(ctx, req)
			if err == nil {
				if resp.OK() {
					e.invalidate(ctx, req.URL)
				}
				return resp, nil
			}
			if !fetch.IsTransient(err) && !errors.Is(err, resilience.ErrCircuitOpen) {
				return nil, err
			}
			e.logger.Info(ctx, "network unreachable, queueing mutation",
				observe.F("method", req.Method),
				observe.F("url", req.URL.String()),
				observe.F("error", err),
			)
			if e.status.Set(connectivity.Offline) {
				e.suspectOffline.Store(true)
			}
		}
	}

	// Mutations queued earlier must reach the server first, so a backlog
	// sends this one to the back of the queue even while online.
	m, err := e.queue.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	if e.status.Online() {
		e.monitor.Schedule()
	}
	return fetch.Queued(m.ID), nil
}

// fetchNetwork is the network every component uses. A successful round trip
// brings the status back online when a failed mutation took it offline.
func (e *Engine) fetchNetwork(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	resp, err := e.network.Fetch(ctx, req)
	if err == nil && e.suspectOffline.CompareAndSwap(true, false) {
		e.logger.Info(ctx, "network reachable again", observe.F("url", req.URL.String()))
		e.status.Set(connectivity.Online)
	}
	return resp, err
}

func (e *Engine) onReplayed(ctx context.Context, m store.PendingMutation, _ *fetch.Response) {
	u, err := url.Parse(m.URL)
	if err != nil {
		return
	}
	e.invalidate(ctx, u)
}

// invalidate drops cached GET responses for u and its parent collection from
// every cache, so the next read reflects the server's state.
func (e *Engine) invalidate(ctx context.Context, u *url.URL) {
	targets := []*url.URL{u}
	trimmed := strings.TrimRight(u.Path, "/")
	if parent := path.Dir(trimmed); trimmed != "" && parent != "." {
		for _, p := range []string{parent, strings.TrimRight(parent, "/") + "/"} {
			pu := *u
			pu.Path, pu.RawPath, pu.RawQuery = p, "", ""
			targets = append(targets, &pu)
		}
	}

	for _, name := range e.router.CacheNames() {
		for _, t := range targets {
			key := e.keyer.Key(&fetch.Request{Method: "GET", URL: t})
			if err := e.store.DeleteEntry(ctx, name, key); err != nil {
				e.logger.Warn(ctx, "cache invalidation failed",
					observe.F("cache", name),
					observe.F("key", key),
					observe.F("error", err),
				)
			}
		}
	}
}

// TriggerSync drains the queue now and waits for the result. It is skipped
// while offline.
func (e *Engine) TriggerSync(ctx context.Context) (queue.DrainResult, error) {
	return e.queue.Drain(ctx)
}

// ClearCache deletes every entry of a cache and returns how many there were.
func (e *Engine) ClearCache(ctx context.Context, name string) (int, error) {
	n, err := e.store.ClearEntries(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("engine: clear %s: %w", name, err)
	}
	e.logger.Info(ctx, "cache cleared", observe.F("cache", name), observe.F("entries", n))
	return n, nil
}

// Sweep deletes expired and surplus entries from every rule's cache.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	total := 0
	now := e.now()
	for _, rule := range e.router.Rules() {
		cfg := rule.Strategy
		if !cfg.Kind.UsesCache() {
			continue
		}
		n, err := cfg.Expiration.Sweep(ctx, e.store, cfg.CacheName, now)
		total += n
		if err != nil {
			return total, fmt.Errorf("engine: sweep %s: %w", cfg.CacheName, err)
		}
	}
	if total > 0 {
		e.logger.Info(ctx, "swept caches", observe.F("deleted", total))
	}
	return total, nil
}

// SetOnline records a connectivity change reported by the environment.
// Going online starts a background drain.
func (e *Engine) SetOnline(online bool) {
	e.suspectOffline.Store(false)
	e.status.SetOnline(online)
}

// Online reports the current connectivity status.
func (e *Engine) Online() bool {
	return e.status.Online()
}

// Status returns the connectivity status for subscribing to changes.
func (e *Engine) Status() *connectivity.Status {
	return e.status
}

// Health returns the aggregator checking the store, connectivity, the backlog
// and bulkhead capacity.
func (e *Engine) Health() *health.Aggregator {
	return e.health
}

// CacheNames returns the caches the rules use.
func (e *Engine) CacheNames() []string {
	return e.router.CacheNames()
}

// Pending returns the queued mutations in replay order.
func (e *Engine) Pending(ctx context.Context) ([]store.PendingMutation, error) {
	return e.queue.Pending(ctx)
}

// Discard removes a queued mutation without replaying it.
func (e *Engine) Discard(ctx context.Context, id int64) error {
	return e.queue.Discard(ctx, id)
}

// WaitIdle blocks until background cache refreshes and drains are done.
func (e *Engine) WaitIdle(ctx context.Context) error {
	if err := e.monitor.Wait(ctx); err != nil {
		return err
	}
	return e.bg.Wait(ctx)
}

// Close stops the monitor, waits for background work, and releases the
// store and observer the engine created.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.monitor.Stop()
		var errs []error
		if err := e.bg.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("engine: background: %w", err))
		}
		if err := e.release(ctx); err != nil {
			errs = append(errs, err)
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

func (e *Engine) release(ctx context.Context) error {
	var errs []error
	if e.ownsStore && e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: close store: %w", err))
		}
	}
	if e.ownsObserver && e.observer != nil {
		if err := e.observer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("engine: shutdown observer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Ensure Engine implements fetch.Handler
var _ fetch.Handler = (*Engine)(nil)
