package strategy

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/store"
)

// fakeNetwork answers with a configurable body and counts calls.
type fakeNetwork struct {
	calls atomic.Int64

	mu     sync.Mutex
	body   string
	status int
	err    error
	delay  time.Duration
	gate   chan struct{}
}

func newFakeNetwork(body string) *fakeNetwork {
	return &fakeNetwork{body: body, status: http.StatusOK}
}

func (n *fakeNetwork) set(body string, status int, err error) {
	n.mu.Lock()
	n.body, n.status, n.err = body, status, err
	n.mu.Unlock()
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	n.calls.Add(1)

	n.mu.Lock()
	body, status, err, delay, gate := n.body, n.status, n.err, n.delay, n.gate
	n.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return &fetch.Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(body),
		Source: fetch.SourceNetwork,
	}, nil
}

type fixture struct {
	store   *store.MemoryStore
	network *fakeNetwork
	bg      *Background
	now     time.Time
	nowMu   sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemoryStore(),
		network: newFakeNetwork("fresh"),
		bg:      NewBackground(4, nil),
		now:     time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.bg.Wait(ctx)
	})
	return f
}

func (f *fixture) clock() time.Time {
	f.nowMu.Lock()
	defer f.nowMu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.nowMu.Lock()
	f.now = f.now.Add(d)
	f.nowMu.Unlock()
}

func (f *fixture) deps() Deps {
	return Deps{Store: f.store, Network: f.network, Background: f.bg, Now: f.clock}
}

func (f *fixture) build(t *testing.T, cfg Config) Strategy {
	t.Helper()
	s, err := New(cfg, f.deps())
	require.NoError(t, err)
	return s
}

// seed writes a cached entry for rawURL.
func (f *fixture) seed(t *testing.T, cacheName, rawURL, body string) {
	t.Helper()
	req := mustRequest(t, rawURL)
	require.NoError(t, f.store.PutEntry(context.Background(), store.CacheEntry{
		CacheName: cacheName,
		Key:       DefaultKeyer{}.Key(req),
		Method:    req.Method,
		URL:       req.URL.String(),
		Status:    http.StatusOK,
		Body:      []byte(body),
		StoredAt:  f.clock(),
	}))
}

func (f *fixture) cached(t *testing.T, cacheName, rawURL string) (string, bool) {
	t.Helper()
	e, err := f.store.GetEntry(context.Background(), cacheName, DefaultKeyer{}.Key(mustRequest(t, rawURL)))
	if errors.Is(err, store.ErrNotFound) {
		return "", false
	}
	require.NoError(t, err)
	return string(e.Body), true
}

func mustRequest(t *testing.T, rawURL string) *fetch.Request {
	t.Helper()
	req, err := fetch.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	return req
}

const citas = "https://api.example.com/api/citas"

func TestCacheFirst_HitSkipsNetwork(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "images-cache", citas, "cached")
	s := f.build(t, Config{Kind: CacheFirst, CacheName: "images-cache"})

	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "cached", string(resp.Body))
	require.Equal(t, fetch.SourceCache, resp.Source)
	require.Zero(t, f.network.calls.Load())
}

func TestCacheFirst_MissFetchesAndStores(t *testing.T) {
	f := newFixture(t)
	s := f.build(t, Config{Kind: CacheFirst, CacheName: "images-cache"})

	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "fresh", string(resp.Body))
	require.Equal(t, fetch.SourceNetwork, resp.Source)

	body, ok := f.cached(t, "images-cache", citas)
	require.True(t, ok)
	require.Equal(t, "fresh", body)

	_, err = s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.EqualValues(t, 1, f.network.calls.Load())
}

func TestCacheFirst_NetworkFailureWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.network.set("", 0, fetch.ErrNetworkUnavailable)
	s := f.build(t, Config{Kind: CacheFirst, CacheName: "images-cache"})

	_, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.ErrorIs(t, err, ErrNoResponse)
	require.ErrorIs(t, err, fetch.ErrNetworkUnavailable)
}

func TestCacheFirst_ExpiredEntryIsMiss(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "images-cache", citas, "old")
	s := f.build(t, Config{
		Kind:       CacheFirst,
		CacheName:  "images-cache",
		Expiration: Expiration{MaxAge: time.Hour},
	})
	f.advance(2 * time.Hour)

	// The record still exists until swept.
	_, ok := f.cached(t, "images-cache", citas)
	require.True(t, ok)

	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "fresh", string(resp.Body))
	require.EqualValues(t, 1, f.network.calls.Load())
}

func TestCacheFirst_DoesNotStoreErrors(t *testing.T) {
	f := newFixture(t)
	f.network.set("boom", http.StatusInternalServerError, nil)
	s := f.build(t, Config{Kind: CacheFirst, CacheName: "api-cache"})

	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.Status)

	_, ok := f.cached(t, "api-cache", citas)
	require.False(t, ok)
}

func TestCacheFirst_CacheableStatuses(t *testing.T) {
	f := newFixture(t)
	f.network.set("missing", http.StatusNotFound, nil)
	s := f.build(t, Config{Kind: CacheFirst, CacheName: "api-cache", CacheableStatuses: []int{200, 404}})

	_, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)

	body, ok := f.cached(t, "api-cache", citas)
	require.True(t, ok)
	require.Equal(t, "missing", body)
}

func TestCacheFirst_StoresOpaque(t *testing.T) {
	f := newFixture(t)
	network := fetch.NetworkFunc(func(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
		return &fetch.Response{Status: 0, Opaque: true, Header: http.Header{}, Body: []byte("font")}, nil
	})
	deps := f.deps()
	deps.Network = network
	s, err := New(Config{Kind: CacheFirst, CacheName: "static-cache"}, deps)
	require.NoError(t, err)

	_, err = s.Handle(context.Background(), mustRequest(t, "https://fonts.example.com/a.woff2"))
	require.NoError(t, err)

	resp, err := s.Handle(context.Background(), mustRequest(t, "https://fonts.example.com/a.woff2"))
	require.NoError(t, err)
	require.True(t, resp.Opaque)
	require.Equal(t, fetch.SourceCache, resp.Source)
}

func TestCacheFirst_MaxEntriesEvictsOldest(t *testing.T) {
	f := newFixture(t)
	s := f.build(t, Config{
		Kind:       CacheFirst,
		CacheName:  "images-cache",
		Expiration: Expiration{MaxEntries: 3},
	})

	urls := []string{
		"https://img.example.com/1.png",
		"https://img.example.com/2.png",
		"https://img.example.com/3.png",
		"https://img.example.com/4.png",
	}
	for _, u := range urls {
		_, err := s.Handle(context.Background(), mustRequest(t, u))
		require.NoError(t, err)
	}

	entries, err := f.store.ListEntries(context.Background(), "images-cache")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	_, ok := f.cached(t, "images-cache", urls[0])
	require.False(t, ok, "oldest entry should be evicted")
	for _, u := range urls[1:] {
		_, ok := f.cached(t, "images-cache", u)
		require.True(t, ok, u)
	}
}

func TestCacheFirst_StorageFailureDegradesToNetwork(t *testing.T) {
	f := newFixture(t)
	s := f.build(t, Config{Kind: CacheFirst, CacheName: "api-cache"})
	require.NoError(t, f.store.Close())

	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "fresh", string(resp.Body))
}

func TestNetworkFirst_PrefersNetwork(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "api-cache", citas, "stale")
	s := f.build(t, Config{Kind: NetworkFirst, CacheName: "api-cache", NetworkTimeout: time.Second})

	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "fresh", string(resp.Body))

	body, _ := f.cached(t, "api-cache", citas)
	require.Equal(t, "fresh", body)
}

func TestNetworkFirst_FallsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "api-cache", citas, "stale")
	f.network.set("", 0, fetch.ErrNetworkUnavailable)
	s := f.build(t, Config{Kind: NetworkFirst, CacheName: "api-cache"})

	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "stale", string(resp.Body))
	require.Equal(t, fetch.SourceCache, resp.Source)
}

func TestNetworkFirst_SlowNetworkServesCacheThenUpdates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "api-cache", citas, "stale")
	gate := make(chan struct{})
	f.network.gate = gate
	const timeout = 30 * time.Millisecond
	s := f.build(t, Config{Kind: NetworkFirst, CacheName: "api-cache", NetworkTimeout: timeout})

	start := time.Now()
	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, "stale", string(resp.Body))
	require.Less(t, elapsed, timeout+100*time.Millisecond)

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.bg.Wait(ctx))

	body, _ := f.cached(t, "api-cache", citas)
	require.Equal(t, "fresh", body)
}

func TestNetworkFirst_TimeoutWithoutCache(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.network.gate = gate
	s := f.build(t, Config{Kind: NetworkFirst, CacheName: "api-cache", NetworkTimeout: 10 * time.Millisecond})

	_, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.ErrorIs(t, err, fetch.ErrNetworkTimeout)
	require.ErrorIs(t, err, ErrNoResponse)

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.bg.Wait(ctx))

	_, ok := f.cached(t, "api-cache", citas)
	require.True(t, ok, "late result should still be cached")
}

func TestStaleWhileRevalidate_ServesStaleThenRefreshes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "clinicas-pages", citas, "v1")
	f.network.set("v2", http.StatusOK, nil)
	s := f.build(t, Config{Kind: StaleWhileRevalidate, CacheName: "clinicas-pages"})

	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "v1", string(resp.Body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.bg.Wait(ctx))

	resp, err = s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "v2", string(resp.Body))
}

func TestStaleWhileRevalidate_MissWaitsForNetwork(t *testing.T) {
	f := newFixture(t)
	s := f.build(t, Config{Kind: StaleWhileRevalidate, CacheName: "static-cache"})

	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "fresh", string(resp.Body))
	require.Equal(t, fetch.SourceNetwork, resp.Source)
	require.EqualValues(t, 1, f.network.calls.Load())
}

func TestStaleWhileRevalidate_CanceledRequestStillRefreshes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "static-cache", citas, "v1")
	f.network.set("v2", http.StatusOK, nil)
	f.network.delay = 10 * time.Millisecond
	s := f.build(t, Config{Kind: StaleWhileRevalidate, CacheName: "static-cache"})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Handle(ctx, mustRequest(t, citas))
	require.NoError(t, err)
	cancel()

	wctx, wcancel := context.WithTimeout(context.Background(), time.Second)
	defer wcancel()
	require.NoError(t, f.bg.Wait(wctx))

	body, _ := f.cached(t, "static-cache", citas)
	require.Equal(t, "v2", body)
}

func TestNetworkOnly_NeverCaches(t *testing.T) {
	f := newFixture(t)
	s := f.build(t, Config{Kind: NetworkOnly})

	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "fresh", string(resp.Body))

	names, err := f.store.CacheNames(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestCacheOnly(t *testing.T) {
	f := newFixture(t)
	s := f.build(t, Config{Kind: CacheOnly, CacheName: "pages-cache"})

	_, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.ErrorIs(t, err, ErrNoResponse)

	f.seed(t, "pages-cache", citas, "offline page")
	resp, err := s.Handle(context.Background(), mustRequest(t, citas))
	require.NoError(t, err)
	require.Equal(t, "offline page", string(resp.Body))
	require.Zero(t, f.network.calls.Load())
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.network.gate = gate
	s := f.build(t, Config{Kind: CacheFirst, CacheName: "api-cache"})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.Handle(context.Background(), mustRequest(t, citas))
			if err == nil {
				resp.Body[0] = 'X'
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.EqualValues(t, 1, f.network.calls.Load())
	body, _ := f.cached(t, "api-cache", citas)
	require.Equal(t, "fresh", body)
}

func TestSharedFetchSurvivesLeaderCancel(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.network.gate = gate
	s := f.build(t, Config{Kind: CacheFirst, CacheName: "api-cache"})

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := s.Handle(leaderCtx, mustRequest(t, citas))
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return f.network.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		resp *fetch.Response
		err  error
	}
	follower := make(chan result, 1)
	go func() {
		resp, err := s.Handle(context.Background(), mustRequest(t, citas))
		follower <- result{resp, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(gate)
	res := <-follower
	require.NoError(t, res.err)
	require.Equal(t, "fresh", string(res.resp.Body))
	require.EqualValues(t, 1, f.network.calls.Load())

	body, ok := f.cached(t, "api-cache", citas)
	require.True(t, ok)
	require.Equal(t, "fresh", body)
}
