package route

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/strategy"
)

// MatchConfig is the YAML form of a rule's predicates. Every set field must
// match; an empty MatchConfig matches every request.
type MatchConfig struct {
	Navigate            bool     `yaml:"navigate"`
	Destinations        []string `yaml:"destinations"`
	Origin              string   `yaml:"origin"`
	PathPrefix          string   `yaml:"pathPrefix"`
	PathRegexp          string   `yaml:"pathRegexp"`
	ExcludePathContains []string `yaml:"excludePathContains"`
	Methods             []string `yaml:"methods"`
}

// RuleConfig is the YAML form of a Rule.
type RuleConfig struct {
	Name                  string    `yaml:"name"`
	Match                 MatchConfig `yaml:"match"`
	Strategy              string    `yaml:"strategy"`
	CacheName             string    `yaml:"cacheName"`
	MaxEntries            int       `yaml:"maxEntries"`
	MaxAgeSeconds         int       `yaml:"maxAgeSeconds"`
	NetworkTimeoutSeconds float64   `yaml:"networkTimeoutSeconds"`
	CacheableStatuses     []int     `yaml:"cacheableStatuses"`
}

// LoadRulesFile reads rules from a YAML file.
func LoadRulesFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("route: open rules: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// LoadRules decodes a YAML list of rules. Unknown fields are rejected.
func LoadRules(r io.Reader) ([]Rule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var configs []RuleConfig
	if err := dec.Decode(&configs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidRule, err)
	}

	rules := make([]Rule, 0, len(configs))
	for i, rc := range configs {
		if err := rc.expand(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rule, err := rc.Rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Rule converts the config into a Rule.
func (s RuleConfig) Rule() (Rule, error) {
	kind, err := strategy.ParseKind(s.Strategy)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %s: %w", ErrInvalidRule, s.Name, err)
	}
	match, err := s.Match.Matcher()
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %s: %w", ErrInvalidRule, s.Name, err)
	}

	rule := Rule{
		Name:    s.Name,
		Match:   match,
		Methods: s.Match.Methods,
		Strategy: strategy.Config{
			Kind:      kind,
			CacheName: s.CacheName,
			Expiration: strategy.Expiration{
				MaxEntries: s.MaxEntries,
				MaxAge:     time.Duration(s.MaxAgeSeconds) * time.Second,
			},
			NetworkTimeout:    time.Duration(s.NetworkTimeoutSeconds * float64(time.Second)),
			CacheableStatuses: s.CacheableStatuses,
		},
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// Matcher builds the conjunction of the predicates.
func (m MatchConfig) Matcher() (Matcher, error) {
	var ms []Matcher
	if m.Navigate {
		ms = append(ms, Navigation())
	}
	if len(m.Destinations) > 0 {
		dests := make([]fetch.Destination, 0, len(m.Destinations))
		for _, d := range m.Destinations {
			dests = append(dests, fetch.ParseDestination(d))
		}
		ms = append(ms, Destinations(dests...))
	}
	if m.Origin != "" {
		ms = append(ms, Origin(m.Origin))
	}
	if m.PathPrefix != "" {
		ms = append(ms, PathPrefix(m.PathPrefix))
	}
	if m.PathRegexp != "" {
		re, err := PathRegexp(m.PathRegexp)
		if err != nil {
			return nil, err
		}
		ms = append(ms, re)
	}
	if len(m.ExcludePathContains) > 0 {
		excl := make([]Matcher, 0, len(m.ExcludePathContains))
		for _, s := range m.ExcludePathContains {
			excl = append(excl, PathContains(s))
		}
		ms = append(ms, Not(Any(excl...)))
	}
	return All(ms...), nil
}

// expand applies strict ${VAR} expansion to every string field.
func (s *RuleConfig) expand() error {
	var errs []error
	str := func(p *string) {
		v, err := ExpandEnvStrict(*p)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*p = v
	}
	list := func(vs []string) {
		for i := range vs {
			str(&vs[i])
		}
	}

	str(&s.Name)
	str(&s.Strategy)
	str(&s.CacheName)
	str(&s.Match.Origin)
	str(&s.Match.PathPrefix)
	str(&s.Match.PathRegexp)
	list(s.Match.Destinations)
	list(s.Match.ExcludePathContains)
	list(s.Match.Methods)
	return errors.Join(errs...)
}
