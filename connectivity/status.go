package connectivity

import (
	"sync"

	"github.com/jonwraymond/offlinesync/resilience"
)

// State is the network reachability state.
type State int

const (
	// Online means requests are expected to reach the origin.
	Online State = iota
	// Offline means requests are expected to fail.
	Offline
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

type subscriber struct {
	id int
	fn func(from, to State)
}

type change struct {
	from, to State
}

// Status holds the current State and notifies subscribers when it changes.
//
// Callbacks run on the goroutine that called Set, outside the status lock
// and in change order. They must not call Set.
type Status struct {
	mu      sync.Mutex
	state   State
	subs    []subscriber
	nextID  int
	pending []change

	notifyMu sync.Mutex
}

// NewStatus creates a status in the initial state.
func NewStatus(initial State) *Status {
	return &Status{state: initial}
}

// State returns the current state.
func (s *Status) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Online reports whether the state is Online.
func (s *Status) Online() bool {
	return s.State() == Online
}

// Set changes the state. It reports whether the state changed; subscribers
// are notified only on change.
func (s *Status) Set(state State) bool {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return false
	}
	s.pending = append(s.pending, change{from: s.state, to: state})
	s.state = state
	s.mu.Unlock()

	s.notify()
	return true
}

// SetOnline is Set(Online) or Set(Offline).
func (s *Status) SetOnline(online bool) bool {
	if online {
		return s.Set(Online)
	}
	return s.Set(Offline)
}

// Subscribe registers fn for state changes, called in subscription order.
// The returned function removes the subscription.
func (s *Status) Subscribe(fn func(from, to State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// notify delivers queued changes. Must be called without s.mu held.
func (s *Status) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, c := range pending {
		for _, sub := range subs {
			sub.fn(c.from, c.to)
		}
	}
}

// BindBreaker returns a circuit breaker OnStateChange callback that marks
// status offline when the circuit opens and online when it closes again.
// Half-open leaves the status unchanged.
func BindBreaker(status *Status) func(from, to resilience.State) {
	return func(from, to resilience.State) {
		switch to {
		case resilience.StateOpen:
			status.Set(Offline)
		case resilience.StateClosed:
			status.Set(Online)
		}
	}
}
