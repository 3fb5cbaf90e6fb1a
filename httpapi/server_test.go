package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/offlinesync/engine"
	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/resilience"
	"github.com/jonwraymond/offlinesync/route"
	"github.com/jonwraymond/offlinesync/strategy"
)

const apiOrigin = "https://api.example.com"

type origin struct {
	down  atomic.Bool
	slow  atomic.Bool
	calls atomic.Int64
}

func (o *origin) Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	o.calls.Add(1)
	if o.down.Load() {
		return nil, fetch.ErrNetworkUnavailable
	}
	if o.slow.Load() {
		return nil, fetch.ErrNetworkTimeout
	}
	status := http.StatusOK
	if req.Method == http.MethodPost {
		status = http.StatusCreated
	}
	return &fetch.Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"application/json"}, "Content-Length": []string{"999"}},
		Body:   []byte(`{"path":"` + req.URL.Path + `"}`),
		Source: fetch.SourceNetwork,
	}, nil
}

func newTestServer(t *testing.T, o *origin, opts ...engine.Option) (*httptest.Server, *engine.Engine) {
	t.Helper()
	cfg := engine.Config{
		ServiceName:     "httpapi-test",
		APIOrigin:       apiOrigin,
		ReplayAttempts:  1,
		MaxRetries:      3,
		BackgroundLimit: 4,
	}
	e, err := engine.New(context.Background(), cfg, append([]engine.Option{engine.WithNetwork(o)}, opts...)...)
	require.NoError(t, err)

	upstream, err := url.Parse(apiOrigin)
	require.NoError(t, err)
	srv := httptest.NewServer(NewHandler(e, Options{Upstream: upstream}))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return srv, e
}

func do(t *testing.T, method, target, body string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, target, r)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestProxy_NetworkThenCache(t *testing.T) {
	o := &origin{}
	srv, _ := newTestServer(t, o)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/clinicas/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "network", resp.Header.Get(SourceHeader))
	require.JSONEq(t, `{"path":"/api/clinicas/1"}`, body)

	o.down.Store(true)
	resp, body = do(t, http.MethodGet, srv.URL+"/api/clinicas/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "cache", resp.Header.Get(SourceHeader))
	require.JSONEq(t, `{"path":"/api/clinicas/1"}`, body)
}

func TestProxy_NoFallbackIs503(t *testing.T) {
	o := &origin{}
	o.down.Store(true)
	srv, _ := newTestServer(t, o)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/medicos/", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Contains(t, body, "network unavailable")
}

func TestProxy_TimeoutIs504(t *testing.T) {
	o := &origin{}
	o.slow.Store(true)
	srv, _ := newTestServer(t, o)

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/medicos/", "")
	require.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestProxy_QueuedMutation(t *testing.T) {
	o := &origin{}
	srv, e := newTestServer(t, o, engine.StartOffline())

	resp, body := do(t, http.MethodPost, srv.URL+"/api/citas/", `{"hora":"10:00"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "queued", resp.Header.Get(SourceHeader))
	require.JSONEq(t, `{"queued":true,"id":1,"message":"queued for later"}`, body)
	require.Zero(t, o.calls.Load())

	pending, err := e.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, apiOrigin+"/api/citas/", pending[0].URL)
	require.Equal(t, `{"hora":"10:00"}`, string(pending[0].Body))
}

func TestAdmin_StatusAndSync(t *testing.T) {
	o := &origin{}
	srv, e := newTestServer(t, o, engine.StartOffline())

	do(t, http.MethodPost, srv.URL+"/api/citas/", `{}`)

	resp, body := do(t, http.MethodGet, srv.URL+"/_offline/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"online":false,"pending":1}`, body)

	resp, body = do(t, http.MethodPost, srv.URL+"/_offline/sync", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"succeeded":[],"failed":[],"exhausted":[],"remaining":0,"skipped":true}`, body)

	resp, _ = do(t, http.MethodPut, srv.URL+"/_offline/status", `{"online":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.WaitIdle(ctx))

	resp, body = do(t, http.MethodGet, srv.URL+"/_offline/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"online":true}`, body)

	resp, _ = do(t, http.MethodPut, srv.URL+"/_offline/status", `{"offline":true}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_PendingAndDiscard(t *testing.T) {
	o := &origin{}
	srv, _ := newTestServer(t, o, engine.StartOffline())

	do(t, http.MethodDelete, srv.URL+"/api/citas/5", "")

	resp, body := do(t, http.MethodGet, srv.URL+"/_offline/pending", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending []pendingMutation
	require.NoError(t, json.Unmarshal([]byte(body), &pending))
	require.Len(t, pending, 1)
	require.Equal(t, http.MethodDelete, pending[0].Method)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/_offline/pending/1", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/_offline/pending/1", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/_offline/pending/abc", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_ClearCacheAndSweep(t *testing.T) {
	o := &origin{}
	rules := []route.Rule{{
		Name:     "api",
		Match:    route.PathPrefix("/api/"),
		Strategy: strategy.Config{Kind: strategy.CacheFirst, CacheName: "api-cache"},
	}}
	srv, _ := newTestServer(t, o, engine.WithRules(rules))

	do(t, http.MethodGet, srv.URL+"/api/a", "")
	do(t, http.MethodGet, srv.URL+"/api/b", "")

	resp, body := do(t, http.MethodPost, srv.URL+"/_offline/sweep", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"deleted":0}`, body)

	resp, body = do(t, http.MethodDelete, srv.URL+"/_offline/caches/api-cache", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"deleted":2}`, body)

	o.down.Store(true)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/a", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusGatewayTimeout, statusFor(fetch.ErrNetworkTimeout))
	require.Equal(t, http.StatusServiceUnavailable, statusFor(strategy.ErrNoResponse))
	require.Equal(t, http.StatusServiceUnavailable, statusFor(resilience.ErrBulkheadFull))
	require.Equal(t, http.StatusBadRequest, statusFor(fetch.ErrInvalidRequest))
	require.Equal(t, http.StatusBadGateway, statusFor(io.ErrUnexpectedEOF))
}

func TestAdmin_Health(t *testing.T) {
	o := &origin{}
	srv, e := newTestServer(t, o, engine.StartOffline())

	resp, body := do(t, http.MethodGet, srv.URL+"/_offline/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `"status":"degraded"`)
	require.ElementsMatch(t, []string{"store", "connectivity", "queue", "background"}, e.Health().Names())

	e.SetOnline(true)
	resp, body = do(t, http.MethodGet, srv.URL+"/_offline/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `"status":"healthy"`)
}
