package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/health"
	"github.com/jonwraymond/offlinesync/queue"
	"github.com/jonwraymond/offlinesync/resilience"
	"github.com/jonwraymond/offlinesync/store"
	"github.com/jonwraymond/offlinesync/strategy"
)

// SourceHeader names where a proxied response came from: network, cache or queued.
const SourceHeader = "X-Offline-Source"

// Engine is the subset of engine.Engine the handler drives.
type Engine interface {
	fetch.Handler
	TriggerSync(ctx context.Context) (queue.DrainResult, error)
	ClearCache(ctx context.Context, name string) (int, error)
	Sweep(ctx context.Context) (int, error)
	Pending(ctx context.Context) ([]store.PendingMutation, error)
	Discard(ctx context.Context, id int64) error
	SetOnline(online bool)
	Online() bool
	Health() *health.Aggregator
}

// Options configures the handler.
type Options struct {
	// Upstream resolves relative request URLs. Requests in absolute
	// (forward-proxy) form are used as is.
	Upstream *url.URL

	// Logger receives one access log line per request. Default: disabled.
	Logger zerolog.Logger
}

type server struct {
	engine   Engine
	upstream *url.URL
}

// NewHandler returns the HTTP handler for e.
func NewHandler(e Engine, opts Options) http.Handler {
	s := &server{engine: e, upstream: opts.Upstream}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))

	r.Route("/_offline", func(ar chi.Router) {
		ar.Post("/sync", s.handleSync)
		ar.Post("/sweep", s.handleSweep)
		ar.Delete("/caches/{name}", s.handleClearCache)
		ar.Get("/pending", s.handlePending)
		ar.Delete("/pending/{id}", s.handleDiscard)
		ar.Get("/status", s.handleStatus)
		ar.Put("/status", s.handleSetStatus)
		ar.Get("/health", health.Handler(e.Health()))
	})
	r.Handle("/*", http.HandlerFunc(s.handleProxy))
	return r
}

func (s *server) handleProxy(w http.ResponseWriter, r *http.Request) {
	req, err := fetch.FromHTTP(r, s.upstream)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, fetch.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, r, status, err)
		return
	}

	resp, err := s.engine.Handle(r.Context(), req)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	h := w.Header()
	for k, vs := range resp.Header {
		if k == "Content-Length" {
			continue
		}
		h[k] = append([]string(nil), vs...)
	}
	h.Set(SourceHeader, resp.Source.String())
	status := resp.Status
	if resp.Opaque || status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if _, err := w.Write(resp.Body); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("write response body")
	}
}

// statusFor maps an engine error onto a gateway status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fetch.ErrNetworkTimeout), errors.Is(err, resilience.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, fetch.ErrNetworkUnavailable),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrBulkheadFull),
		errors.Is(err, store.ErrStorageUnavailable),
		errors.Is(err, strategy.ErrNoResponse):
		return http.StatusServiceUnavailable
	case errors.Is(err, fetch.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

type drainResponse struct {
	Succeeded []int64 `json:"succeeded"`
	Failed    []int64 `json:"failed"`
	Exhausted []int64 `json:"exhausted"`
	Remaining int     `json:"remaining"`
	Skipped   bool    `json:"skipped"`
	Error     string  `json:"error,omitempty"`
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.TriggerSync(r.Context())
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	out := drainResponse{
		Succeeded: nonNil(res.Succeeded),
		Failed:    nonNil(res.Failed),
		Exhausted: nonNil(res.Exhausted),
		Remaining: res.Remaining,
		Skipped:   res.Skipped,
	}
	if res.Failure != nil {
		out.Error = res.Failure.Error()
	}
	writeJSON(w, r, http.StatusOK, out)
}

type deletedResponse struct {
	Deleted int `json:"deleted"`
}

func (s *server) handleSweep(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Sweep(r.Context())
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, r, http.StatusOK, deletedResponse{Deleted: n})
}

func (s *server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.ClearCache(r.Context(), chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, store.ErrInvalidKey), errors.Is(err, store.ErrKeyTooLong):
		writeError(w, r, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, r, statusFor(err), err)
	default:
		writeJSON(w, r, http.StatusOK, deletedResponse{Deleted: n})
	}
}

type pendingMutation struct {
	ID         int64     `json:"id"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
	RetryCount int       `json:"retryCount"`
	LastError  string    `json:"lastError,omitempty"`
}

func (s *server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.engine.Pending(r.Context())
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	out := make([]pendingMutation, 0, len(pending))
	for _, m := range pending {
		out = append(out, pendingMutation{
			ID:         m.ID,
			Method:     m.Method,
			URL:        m.URL,
			CreatedAt:  m.CreatedAt,
			RetryCount: m.RetryCount,
			LastError:  m.LastError,
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid mutation id"))
		return
	}
	switch err := s.engine.Discard(r.Context(), id); {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err)
	case err != nil:
		writeError(w, r, statusFor(err), err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type statusBody struct {
	Online  *bool `json:"online"`
	Pending int   `json:"pending,omitempty"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	online := s.engine.Online()
	body := statusBody{Online: &online}
	if pending, err := s.engine.Pending(r.Context()); err == nil {
		body.Pending = len(pending)
	}
	writeJSON(w, r, http.StatusOK, body)
}

func (s *server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil || body.Online == nil {
		writeError(w, r, http.StatusBadRequest, errors.New(`body must be {"online": true|false}`))
		return
	}
	s.engine.SetOnline(*body.Online)
	s.handleStatus(w, r)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	hlog.FromRequest(r).Warn().Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, r, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("write json")
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
