package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/observe"
	"github.com/jonwraymond/offlinesync/store"
)

// Kind selects a caching strategy.
type Kind int

const (
	// NetworkOnly always goes to the network and never touches the cache.
	NetworkOnly Kind = iota
	// CacheFirst answers from the cache and fetches only on a miss.
	CacheFirst
	// NetworkFirst prefers the network and falls back to the cache.
	NetworkFirst
	// StaleWhileRevalidate answers from the cache and refreshes it in the background.
	StaleWhileRevalidate
	// CacheOnly answers from the cache and never goes to the network.
	CacheOnly
)

var kindNames = map[Kind]string{
	NetworkOnly:          "NetworkOnly",
	CacheFirst:           "CacheFirst",
	NetworkFirst:         "NetworkFirst",
	StaleWhileRevalidate: "StaleWhileRevalidate",
	CacheOnly:            "CacheOnly",
}

// String returns the strategy name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// UsesCache reports whether the strategy reads or writes a cache.
func (k Kind) UsesCache() bool {
	return k != NetworkOnly
}

// ParseKind parses a strategy name. Matching ignores case, dashes and
// underscores, so "NetworkFirst", "network-first" and "network_first" are
// equivalent.
func ParseKind(s string) (Kind, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for k, name := range kindNames {
		if strings.ToLower(name) == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// DefaultCacheableStatuses are the statuses stored when a Config sets none.
// Status 0 is an opaque response.
var DefaultCacheableStatuses = []int{0, 200}

// Config describes one strategy instance.
type Config struct {
	Kind Kind

	// CacheName is the cache partition. Required for every kind but NetworkOnly.
	CacheName string

	Expiration Expiration

	// NetworkTimeout is NetworkFirst's soft deadline. Zero waits for the
	// network's own timeout.
	NetworkTimeout time.Duration

	// CacheableStatuses lists the statuses that may be stored.
	// Default: DefaultCacheableStatuses
	CacheableStatuses []int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, ok := kindNames[c.Kind]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownKind, int(c.Kind))
	}
	if c.Kind.UsesCache() {
		if err := store.ValidateKey(c.CacheName); err != nil {
			return fmt.Errorf("%w: %s needs a cache name: %w", ErrInvalidConfig, c.Kind, err)
		}
	}
	if c.NetworkTimeout < 0 {
		return fmt.Errorf("%w: negative network timeout", ErrInvalidConfig)
	}
	if c.Expiration.MaxEntries < 0 || c.Expiration.MaxAge < 0 {
		return fmt.Errorf("%w: negative expiration bound", ErrInvalidConfig)
	}
	for _, s := range c.CacheableStatuses {
		if s < 0 || s > 599 {
			return fmt.Errorf("%w: cacheable status %d", ErrInvalidConfig, s)
		}
	}
	return nil
}

// Strategy is a fetch.Handler bound to one Config.
type Strategy interface {
	fetch.Handler

	// Config returns the configuration the strategy was built from.
	Config() Config
}

// Deps are the collaborators shared by every strategy.
type Deps struct {
	Store   store.Store
	Network fetch.Network

	// Background runs revalidation and late network results.
	// Default: a Background with DefaultBackgroundLimit.
	Background *Background

	// Keyer derives cache keys. Default: DefaultKeyer.
	Keyer Keyer

	Logger  observe.Logger
	Metrics observe.Metrics

	// Now is the clock used for expiration. Default: time.Now.
	Now func() time.Time
}

var constructors = map[Kind]func(*base) Strategy{
	NetworkOnly:          func(b *base) Strategy { return &networkOnly{b} },
	CacheFirst:           func(b *base) Strategy { return &cacheFirst{b} },
	NetworkFirst:         newNetworkFirst,
	StaleWhileRevalidate: func(b *base) Strategy { return &staleWhileRevalidate{b} },
	CacheOnly:            func(b *base) Strategy { return &cacheOnly{b} },
}

// New resolves cfg into a Strategy.
func New(cfg Config, deps Deps) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Network == nil && cfg.Kind != CacheOnly {
		return nil, fmt.Errorf("%w: %s needs a network", ErrInvalidConfig, cfg.Kind)
	}
	if deps.Store == nil && cfg.Kind.UsesCache() {
		return nil, fmt.Errorf("%w: %s needs a store", ErrInvalidConfig, cfg.Kind)
	}
	if len(cfg.CacheableStatuses) == 0 {
		cfg.CacheableStatuses = DefaultCacheableStatuses
	}
	if deps.Logger == nil {
		deps.Logger = observe.NopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.NopMetrics()
	}
	if deps.Keyer == nil {
		deps.Keyer = DefaultKeyer{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Background == nil {
		deps.Background = NewBackground(DefaultBackgroundLimit, deps.Logger)
	}

	return constructors[cfg.Kind](newBase(cfg, deps)), nil
}
