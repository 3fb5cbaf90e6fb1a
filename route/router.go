package route

import (
	"context"
	"fmt"
	"slices"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/observe"
	"github.com/jonwraymond/offlinesync/strategy"
)

// Rule binds matching requests to a strategy.
type Rule struct {
	// Name identifies the rule in logs and metrics. Must be unique.
	Name string

	Match Matcher

	// Methods restricts the rule to these methods.
	// Default: GET
	Methods []string

	Strategy strategy.Config
}

// Validate checks the rule.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRule)
	}
	if r.Match == nil {
		return fmt.Errorf("%w: %s: nil matcher", ErrInvalidRule, r.Name)
	}
	if err := r.Strategy.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRule, r.Name, err)
	}
	return nil
}

// Option configures a Router.
type Option func(*Router)

// WithMiddleware wraps every rule's handler, including the pass-through,
// with observability middleware.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(r *Router) {
		r.middleware = mw
	}
}

// WithLogger sets the logger used for routing decisions.
func WithLogger(logger observe.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

type compiled struct {
	rule    Rule
	methods []string
	handler fetch.Handler
}

// Router dispatches requests to the first matching rule's strategy.
type Router struct {
	routes      []compiled
	passthrough fetch.Handler
	middleware  *observe.Middleware
	logger      observe.Logger
}

// NewRouter validates rules and resolves each one into a strategy. Rule order
// is match priority.
func NewRouter(rules []Rule, deps strategy.Deps, opts ...Option) (*Router, error) {
	r := &Router{logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}

	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[rule.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Name)
		}
		seen[rule.Name] = struct{}{}

		s, err := strategy.New(rule.Strategy, deps)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRule, rule.Name, err)
		}
		r.routes = append(r.routes, compiled{
			rule:    rule,
			methods: normalizeMethods(rule.Methods),
			handler: r.wrap(rule.Name, s),
		})
	}

	pass, err := strategy.New(strategy.Config{Kind: strategy.NetworkOnly}, deps)
	if err != nil {
		return nil, err
	}
	r.passthrough = r.wrap("", pass)
	return r, nil
}

func (r *Router) wrap(name string, s strategy.Strategy) fetch.Handler {
	if r.middleware == nil {
		return s
	}
	cfg := s.Config()
	return r.middleware.Wrap(observe.OpMeta{
		Component: "route",
		Name:      "handle",
		Rule:      name,
		Strategy:  cfg.Kind.String(),
		CacheName: cfg.CacheName,
	}, s)
}

// Route returns the name and handler of the first rule matching req. An
// unmatched request gets the network pass-through and an empty name.
func (r *Router) Route(req *fetch.Request) (string, fetch.Handler) {
	for _, c := range r.routes {
		if slices.Contains(c.methods, req.Method) && c.rule.Match.Match(req) {
			return c.rule.Name, c.handler
		}
	}
	return "", r.passthrough
}

// Handle routes req and runs the chosen strategy.
func (r *Router) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	name, h := r.Route(req)
	r.logger.Debug(ctx, "routed request",
		observe.F("rule", name),
		observe.F("method", req.Method),
		observe.F("url", req.URL.String()),
	)
	return h.Handle(ctx, req)
}

// Rules returns the configured rules in priority order.
func (r *Router) Rules() []Rule {
	out := make([]Rule, len(r.routes))
	for i, c := range r.routes {
		out[i] = c.rule
	}
	return out
}

// CacheNames returns the sorted, distinct cache names the rules use.
func (r *Router) CacheNames() []string {
	var names []string
	for _, c := range r.routes {
		if c.rule.Strategy.Kind.UsesCache() {
			names = append(names, c.rule.Strategy.CacheName)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Ensure Router implements fetch.Handler
var _ fetch.Handler = (*Router)(nil)
