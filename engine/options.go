package engine

import (
	"time"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/observe"
	"github.com/jonwraymond/offlinesync/route"
	"github.com/jonwraymond/offlinesync/store"
)

type options struct {
	store    store.Store
	network  fetch.Network
	rules    []route.Rule
	observer observe.Observer
	now      func() time.Time
	offline  bool
}

// Option customizes an Engine.
type Option func(*options)

// WithStore uses st instead of opening Config.DBPath. The engine does not
// close a store it did not open.
func WithStore(st store.Store) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithNetwork uses n instead of an HTTP client. No circuit breaker is
// installed around a custom network.
func WithNetwork(n fetch.Network) Option {
	return func(o *options) {
		o.network = n
	}
}

// WithRules uses rules instead of Config.RulesFile or DefaultRules.
func WithRules(rules []route.Rule) Option {
	return func(o *options) {
		o.rules = rules
	}
}

// WithObserver uses obs for logging, tracing and metrics instead of
// building one from the configuration. The engine does not shut it down.
func WithObserver(obs observe.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithClock sets the clock used for cache ages and queue timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// StartOffline starts the engine with the status offline.
func StartOffline() Option {
	return func(o *options) {
		o.offline = true
	}
}
