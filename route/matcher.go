package route

import (
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/jonwraymond/offlinesync/fetch"
)

// Matcher is a request predicate.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Match must not modify req.
type Matcher interface {
	Match(req *fetch.Request) bool
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(req *fetch.Request) bool

// Match calls f(req).
func (f MatcherFunc) Match(req *fetch.Request) bool {
	return f(req)
}

// Navigation matches page navigations.
func Navigation() Matcher {
	return MatcherFunc(func(req *fetch.Request) bool {
		return req.IsNavigation()
	})
}

// Destinations matches requests for any of the given resource kinds.
func Destinations(dests ...fetch.Destination) Matcher {
	dests = slices.Clone(dests)
	return MatcherFunc(func(req *fetch.Request) bool {
		return slices.Contains(dests, req.Destination)
	})
}

// Origin matches requests to the scheme://host origin o.
func Origin(o string) Matcher {
	o = strings.ToLower(strings.TrimRight(o, "/"))
	return MatcherFunc(func(req *fetch.Request) bool {
		return req.Origin() == o
	})
}

// PathPrefix matches URL paths starting with p.
func PathPrefix(p string) Matcher {
	return MatcherFunc(func(req *fetch.Request) bool {
		return strings.HasPrefix(req.URL.Path, p)
	})
}

// PathContains matches URL paths containing s.
func PathContains(s string) Matcher {
	return MatcherFunc(func(req *fetch.Request) bool {
		return strings.Contains(req.URL.Path, s)
	})
}

// PathRegexp matches URL paths against the regular expression expr.
func PathRegexp(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return MatcherFunc(func(req *fetch.Request) bool {
		return re.MatchString(req.URL.Path)
	}), nil
}

// Methods matches requests whose method is one of methods, case-insensitively.
func Methods(methods ...string) Matcher {
	upper := normalizeMethods(methods)
	return MatcherFunc(func(req *fetch.Request) bool {
		return slices.Contains(upper, req.Method)
	})
}

// All matches when every m matches. All() matches everything.
func All(ms ...Matcher) Matcher {
	ms = slices.Clone(ms)
	return MatcherFunc(func(req *fetch.Request) bool {
		for _, m := range ms {
			if !m.Match(req) {
				return false
			}
		}
		return true
	})
}

// Any matches when at least one m matches. Any() matches nothing.
func Any(ms ...Matcher) Matcher {
	ms = slices.Clone(ms)
	return MatcherFunc(func(req *fetch.Request) bool {
		for _, m := range ms {
			if m.Match(req) {
				return true
			}
		}
		return false
	})
}

// Not inverts m.
func Not(m Matcher) Matcher {
	return MatcherFunc(func(req *fetch.Request) bool {
		return !m.Match(req)
	})
}

func normalizeMethods(methods []string) []string {
	if len(methods) == 0 {
		return []string{http.MethodGet}
	}
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, strings.ToUpper(strings.TrimSpace(m)))
	}
	return out
}
