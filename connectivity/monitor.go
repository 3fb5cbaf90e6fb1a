package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/offlinesync/observe"
	"github.com/jonwraymond/offlinesync/queue"
)

// Drainer replays queued mutations.
type Drainer interface {
	Drain(ctx context.Context) (queue.DrainResult, error)
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Status  *Status
	Drainer Drainer
	Logger  observe.Logger

	// Debounce delays the drain after a transition to online; the drain
	// runs only if the status is still online when the window ends.
	// Default: 0 (drain at once)
	Debounce time.Duration

	// DrainTimeout bounds a single background drain.
	// Default: 2 minutes
	DrainTimeout time.Duration

	// OnDrain is called after every drain the monitor runs.
	OnDrain func(res queue.DrainResult, err error)
}

// Monitor drains the queue once per offline to online transition.
//
// At most one drain runs at a time. A transition or trigger that arrives
// while a drain is running schedules exactly one follow-up drain.
type Monitor struct {
	cfg MonitorConfig
	log observe.Logger

	mu        sync.Mutex
	running   bool
	followUp  bool
	started   bool
	cancelSub func()
	timer     *time.Timer
	idle      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	wg sync.WaitGroup
}

// NewMonitor creates a monitor. It does nothing until Start.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Status == nil {
		return nil, fmt.Errorf("%w: status is required", ErrInvalidConfig)
	}
	if cfg.Drainer == nil {
		return nil, fmt.Errorf("%w: drainer is required", ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		cfg:    cfg,
		log:    cfg.Logger.With(observe.OpMeta{Component: "connectivity", Name: "monitor"}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start subscribes to the status. Calling Start twice has no effect.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.cancelSub = m.cfg.Status.Subscribe(m.onChange)
}

// Stop unsubscribes, cancels a pending debounce and any running drain, and
// waits for the drain goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.cancelSub != nil {
		m.cancelSub()
		m.cancelSub = nil
	}
	wasBusy := m.busyLocked()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.followUp = false
	m.settleLocked(wasBusy)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) onChange(from, to State) {
	m.log.Info(m.ctx, "connectivity changed", observe.F("from", from.String()), observe.F("to", to.String()))
	if from != Offline || to != Online {
		return
	}

	if m.cfg.Debounce <= 0 {
		m.Schedule()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return
	}
	wasBusy := m.busyLocked()
	if m.timer != nil {
		m.timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(m.cfg.Debounce, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.timer != timer {
			return
		}
		wasBusy := m.busyLocked()
		m.timer = nil
		if m.cfg.Status.Online() {
			m.scheduleLocked()
		}
		m.settleLocked(wasBusy)
	})
	m.timer = timer
	m.settleLocked(wasBusy)
}

// Trigger starts a drain as a transition would, then waits until it and any
// follow-up drains have finished or ctx is done.
func (m *Monitor) Trigger(ctx context.Context) error {
	m.Schedule()
	return m.Wait(ctx)
}

// Schedule starts a background drain, or marks a follow-up if one is
// running. It does not wait.
func (m *Monitor) Schedule() {
	m.mu.Lock()
	defer m.mu.Unlock()
	wasBusy := m.busyLocked()
	m.scheduleLocked()
	m.settleLocked(wasBusy)
}

func (m *Monitor) scheduleLocked() {
	if m.ctx.Err() != nil {
		return
	}
	if m.running {
		m.followUp = true
		return
	}
	m.running = true
	m.wg.Add(1)
	go m.loop()
}

func (m *Monitor) busyLocked() bool {
	return m.running || m.timer != nil
}

// settleLocked opens or closes the idle channel after a change to the busy
// state. wasBusy is the state before the change.
func (m *Monitor) settleLocked(wasBusy bool) {
	busy := m.busyLocked()
	switch {
	case !wasBusy && busy:
		m.idle = make(chan struct{})
	case wasBusy && !busy:
		close(m.idle)
	}
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	for {
		m.drainOnce()

		m.mu.Lock()
		if !m.followUp || m.ctx.Err() != nil {
			m.running = false
			m.followUp = false
			m.settleLocked(true)
			m.mu.Unlock()
			return
		}
		m.followUp = false
		m.mu.Unlock()
	}
}

func (m *Monitor) drainOnce() {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DrainTimeout)
	defer cancel()

	res, err := m.cfg.Drainer.Drain(ctx)
	switch {
	case err != nil:
		m.log.Warn(ctx, "background drain failed", observe.F("error", err))
	case res.Skipped:
		m.log.Debug(ctx, "background drain skipped")
	default:
		m.log.Debug(ctx, "background drain done",
			observe.F("succeeded", len(res.Succeeded)),
			observe.F("failed", len(res.Failed)),
			observe.F("remaining", res.Remaining),
		)
	}
	if m.cfg.OnDrain != nil {
		m.cfg.OnDrain(res, err)
	}
}

// Running reports whether a drain is in progress.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Wait blocks until no drain is running or pending, or ctx is done.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.busyLocked() {
		m.mu.Unlock()
		return nil
	}
	idle := m.idle
	m.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
