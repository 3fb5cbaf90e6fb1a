package route

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/strategy"
)

const rulesYAML = `
- name: clinicas-api-cache
  match:
    origin: ${API_ORIGIN}
    pathPrefix: /api/clinicas/
    excludePathContains: [horarios_disponibles]
  strategy: NetworkFirst
  cacheName: clinicas-api-cache
  maxEntries: 100
  maxAgeSeconds: 604800
  networkTimeoutSeconds: 3
- name: images-cache
  match:
    destinations: [image]
  strategy: cache-first
  cacheName: images-cache
  maxEntries: 100
  cacheableStatuses: [0, 200]
- name: pages
  match:
    navigate: true
    pathRegexp: ^/paciente/.*$
  strategy: StaleWhileRevalidate
  cacheName: pages-cache
`

func TestLoadRules(t *testing.T) {
	t.Setenv("API_ORIGIN", "https://api.example.com")

	rules, err := LoadRules(strings.NewReader(rulesYAML))
	require.NoError(t, err)
	require.Len(t, rules, 3)

	clinicas := rules[0]
	require.Equal(t, "clinicas-api-cache", clinicas.Name)
	require.Equal(t, strategy.NetworkFirst, clinicas.Strategy.Kind)
	require.Equal(t, 3*time.Second, clinicas.Strategy.NetworkTimeout)
	require.Equal(t, 7*24*time.Hour, clinicas.Strategy.Expiration.MaxAge)
	require.Equal(t, 100, clinicas.Strategy.Expiration.MaxEntries)

	require.True(t, clinicas.Match.Match(request(t, "GET", "https://api.example.com/api/clinicas/1")))
	require.False(t, clinicas.Match.Match(request(t, "GET", "https://api.example.com/api/clinicas/1/horarios_disponibles")))
	require.False(t, clinicas.Match.Match(request(t, "GET", "https://evil.example.com/api/clinicas/1")))

	require.Equal(t, strategy.CacheFirst, rules[1].Strategy.Kind)
	img := request(t, "GET", "https://cdn.example.com/a.png")
	img.Destination = fetch.DestImage
	require.True(t, rules[1].Match.Match(img))

	nav := request(t, "GET", "https://app.example.com/paciente/citas")
	nav.Mode = fetch.ModeNavigate
	require.True(t, rules[2].Match.Match(nav))
}

func TestLoadRules_MissingEnv(t *testing.T) {
	_, err := LoadRules(strings.NewReader(rulesYAML))
	require.ErrorIs(t, err, ErrMissingEnv)
	require.Contains(t, err.Error(), "API_ORIGIN")
}

func TestLoadRules_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown field":    "- name: a\n  strategy: CacheFirst\n  cacheName: a\n  ttl: 3\n",
		"unknown strategy": "- name: a\n  strategy: CacheThenNetwork\n  cacheName: a\n",
		"missing cache":    "- name: a\n  strategy: CacheFirst\n",
		"bad regexp":       "- name: a\n  match:\n    pathRegexp: \"(\"\n  strategy: NetworkOnly\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRules(strings.NewReader(doc))
			require.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestLoadRules_Empty(t *testing.T) {
	rules, err := LoadRules(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestLoadRulesFile(t *testing.T) {
	t.Setenv("API_ORIGIN", "https://api.example.com")
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o600))

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	_, err = LoadRulesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
