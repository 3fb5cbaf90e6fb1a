package route

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/observe"
	"github.com/jonwraymond/offlinesync/store"
	"github.com/jonwraymond/offlinesync/strategy"
)

const apiOrigin = "https://api.example.com"

type countingNetwork struct {
	calls atomic.Int64
}

func (n *countingNetwork) Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	n.calls.Add(1)
	return &fetch.Response{Status: http.StatusOK, Header: http.Header{}, Body: []byte(req.URL.Path)}, nil
}

func testDeps(n fetch.Network) strategy.Deps {
	return strategy.Deps{Store: store.NewMemoryStore(), Network: n}
}

func request(t *testing.T, method, rawURL string) *fetch.Request {
	t.Helper()
	req, err := fetch.NewRequest(method, rawURL, nil)
	require.NoError(t, err)
	return req
}

func clinicRules() []Rule {
	return []Rule{
		{
			Name:     "clinicas-api-cache",
			Match:    All(Origin(apiOrigin), PathPrefix("/api/clinicas/"), Not(PathContains("horarios_disponibles"))),
			Strategy: strategy.Config{Kind: strategy.NetworkFirst, CacheName: "clinicas-api-cache"},
		},
		{
			Name:     "api-cache",
			Match:    All(Origin(apiOrigin), PathPrefix("/api/")),
			Strategy: strategy.Config{Kind: strategy.NetworkFirst, CacheName: "api-cache"},
		},
		{
			Name:     "images-cache",
			Match:    Destinations(fetch.DestImage),
			Strategy: strategy.Config{Kind: strategy.CacheFirst, CacheName: "images-cache"},
		},
	}
}

func TestRouter_FirstMatchWins(t *testing.T) {
	r, err := NewRouter(clinicRules(), testDeps(&countingNetwork{}))
	require.NoError(t, err)

	tests := []struct {
		name string
		req  *fetch.Request
		want string
	}{
		{"specific before general", request(t, "GET", apiOrigin+"/api/clinicas/3"), "clinicas-api-cache"},
		{"exclusion falls through", request(t, "GET", apiOrigin+"/api/clinicas/3/horarios_disponibles"), "api-cache"},
		{"general api", request(t, "GET", apiOrigin+"/api/citas"), "api-cache"},
		{"other origin", request(t, "GET", "https://other.example.com/api/citas"), ""},
		{"mutation passes through", request(t, "POST", apiOrigin+"/api/citas"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, h := r.Route(tt.req)
			require.Equal(t, tt.want, name)
			require.NotNil(t, h)
		})
	}

	img := request(t, "GET", "https://cdn.example.com/logo.png")
	img.Destination = fetch.DestImage
	name, _ := r.Route(img)
	require.Equal(t, "images-cache", name)
}

func TestRouter_PassThroughNeverCaches(t *testing.T) {
	n := &countingNetwork{}
	deps := testDeps(n)
	r, err := NewRouter(clinicRules(), deps)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := r.Handle(context.Background(), request(t, "GET", "https://other.example.com/x"))
		require.NoError(t, err)
		require.Equal(t, fetch.SourceNetwork, resp.Source)
	}
	require.EqualValues(t, 2, n.calls.Load())

	names, err := deps.Store.CacheNames(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestRouter_Methods(t *testing.T) {
	rules := []Rule{{
		Name:     "writes",
		Match:    PathPrefix("/api/"),
		Methods:  []string{"put", "GET"},
		Strategy: strategy.Config{Kind: strategy.NetworkOnly},
	}}
	r, err := NewRouter(rules, testDeps(&countingNetwork{}))
	require.NoError(t, err)

	name, _ := r.Route(request(t, "PUT", apiOrigin+"/api/citas/1"))
	require.Equal(t, "writes", name)
	name, _ = r.Route(request(t, "DELETE", apiOrigin+"/api/citas/1"))
	require.Equal(t, "", name)
}

func TestNewRouter_Validation(t *testing.T) {
	deps := testDeps(&countingNetwork{})
	ok := strategy.Config{Kind: strategy.CacheFirst, CacheName: "c"}

	_, err := NewRouter([]Rule{{Name: "a", Match: All(), Strategy: ok}, {Name: "a", Match: All(), Strategy: ok}}, deps)
	require.ErrorIs(t, err, ErrDuplicateRule)

	_, err = NewRouter([]Rule{{Name: "a", Strategy: ok}}, deps)
	require.ErrorIs(t, err, ErrInvalidRule)

	_, err = NewRouter([]Rule{{Name: "a", Match: All(), Strategy: strategy.Config{Kind: strategy.CacheFirst}}}, deps)
	require.ErrorIs(t, err, ErrInvalidRule)
	require.ErrorIs(t, err, strategy.ErrInvalidConfig)

	_, err = NewRouter([]Rule{{Match: All(), Strategy: ok}}, deps)
	require.ErrorIs(t, err, ErrInvalidRule)
}

func TestRouter_CacheNames(t *testing.T) {
	rules := append(clinicRules(), Rule{
		Name:     "api-cache-2",
		Match:    PathPrefix("/v2/"),
		Strategy: strategy.Config{Kind: strategy.CacheFirst, CacheName: "api-cache"},
	})
	r, err := NewRouter(rules, testDeps(&countingNetwork{}))
	require.NoError(t, err)
	require.Equal(t, []string{"api-cache", "clinicas-api-cache", "images-cache"}, r.CacheNames())
	require.Len(t, r.Rules(), 4)
}

func TestRouter_WithMiddleware(t *testing.T) {
	var seen []string
	logger := recordingLogger{warn: func(msg string) { seen = append(seen, msg) }}
	failing := fetch.NetworkFunc(func(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
		return nil, fetch.ErrNetworkUnavailable
	})

	r, err := NewRouter(clinicRules(), testDeps(failing),
		WithMiddleware(observe.NewMiddleware(nil, nil, logger)))
	require.NoError(t, err)

	_, err = r.Handle(context.Background(), request(t, "GET", apiOrigin+"/api/citas"))
	require.ErrorIs(t, err, strategy.ErrNoResponse)
	require.NotEmpty(t, seen)
}

func TestMatchers(t *testing.T) {
	nav := request(t, "GET", apiOrigin+"/paciente/clinicas/4")
	nav.Mode = fetch.ModeNavigate

	require.True(t, Navigation().Match(nav))
	require.True(t, Origin("HTTPS://API.example.com/").Match(nav))
	require.True(t, PathPrefix("/paciente/clinicas/").Match(nav))
	require.True(t, Methods("get").Match(nav))
	require.False(t, Methods("POST").Match(nav))
	require.True(t, All().Match(nav))
	require.False(t, Any().Match(nav))
	require.True(t, Any(PathContains("nope"), PathContains("clinicas")).Match(nav))

	re, err := PathRegexp(`^/paciente/clinicas/\d+$`)
	require.NoError(t, err)
	require.True(t, re.Match(nav))

	_, err = PathRegexp(`(`)
	require.Error(t, err)
}

type recordingLogger struct {
	observe.Logger
	warn func(msg string)
}

func (l recordingLogger) Warn(ctx context.Context, msg string, fields ...observe.Field) {
	l.warn(msg)
}

func (l recordingLogger) Debug(context.Context, string, ...observe.Field) {}

func (l recordingLogger) With(observe.OpMeta) observe.Logger { return l }
