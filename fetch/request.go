package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// MaxBodyBytes bounds request bodies read from incoming HTTP requests.
const MaxBodyBytes = 10 << 20

// Destination is the kind of resource a request is fetching.
type Destination string

const (
	DestEmpty    Destination = ""
	DestDocument Destination = "document"
	DestImage    Destination = "image"
	DestScript   Destination = "script"
	DestStyle    Destination = "style"
	DestFont     Destination = "font"
	DestJSON     Destination = "json"
)

// ParseDestination maps a Sec-Fetch-Dest value onto a Destination.
func ParseDestination(s string) Destination {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "document", "iframe", "frame":
		return DestDocument
	case "image":
		return DestImage
	case "script", "worker", "sharedworker":
		return DestScript
	case "style":
		return DestStyle
	case "font":
		return DestFont
	case "json":
		return DestJSON
	default:
		return DestEmpty
	}
}

// Mode is the request mode as a browser reports it.
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
	ModeSameOrigin Mode = "same-origin"
)

// Request is an outgoing HTTP request as seen by the offline layer.
//
// Bodies are held in memory so a request can be replayed verbatim.
type Request struct {
	Method      string
	URL         *url.URL
	Header      http.Header
	Body        []byte
	Destination Destination
	Mode        Mode
}

// NewRequest builds a request for an absolute URL. An empty method means GET.
func NewRequest(method, rawURL string, body []byte) (*Request, error) {
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: url %q is not absolute", ErrInvalidRequest, rawURL)
	}
	return &Request{
		Method: strings.ToUpper(method),
		URL:    u,
		Header: make(http.Header),
		Body:   body,
		Mode:   ModeCORS,
	}, nil
}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// FromHTTP converts an intercepted HTTP request into a Request.
//
// Absolute request URLs (forward-proxy form) are used as is; relative ones are
// resolved against upstream. Destination and mode come from Sec-Fetch-Dest and
// Sec-Fetch-Mode, falling back to the Accept header when the browser did not
// send them.
func FromHTTP(r *http.Request, upstream *url.URL) (*Request, error) {
	target := r.URL
	if !target.IsAbs() {
		if upstream == nil {
			return nil, fmt.Errorf("%w: relative url %q without upstream", ErrInvalidRequest, r.URL)
		}
		target = upstream.ResolveReference(&url.URL{
			Path:     strings.TrimRight(upstream.Path, "/") + r.URL.Path,
			RawQuery: r.URL.RawQuery,
		})
	}

	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
		if err != nil {
			return nil, fmt.Errorf("fetch: read request body: %w", err)
		}
		if len(data) > MaxBodyBytes {
			return nil, ErrBodyTooLarge
		}
		if len(data) > 0 {
			body = data
		}
	}

	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}

	req := &Request{
		Method:      strings.ToUpper(r.Method),
		URL:         target,
		Header:      header,
		Body:        body,
		Destination: ParseDestination(r.Header.Get("Sec-Fetch-Dest")),
		Mode:        Mode(strings.ToLower(r.Header.Get("Sec-Fetch-Mode"))),
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	if req.Destination == DestEmpty {
		accept := r.Header.Get("Accept")
		switch {
		case strings.Contains(accept, "text/html"):
			req.Destination = DestDocument
		case strings.Contains(accept, "application/json"):
			req.Destination = DestJSON
		case strings.HasPrefix(accept, "image/"):
			req.Destination = DestImage
		}
	}
	if req.Mode == "" {
		if req.Destination == DestDocument && req.Method == http.MethodGet {
			req.Mode = ModeNavigate
		} else {
			req.Mode = ModeCORS
		}
	}
	return req, nil
}

// IsMutation reports whether the request changes server state.
func (r *Request) IsMutation() bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// IsNavigation reports whether the request is a page navigation.
func (r *Request) IsNavigation() bool {
	return r.Mode == ModeNavigate
}

// Origin returns the scheme://host origin of the request URL.
func (r *Request) Origin() string {
	return Origin(r.URL)
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	out := *r
	if r.URL != nil {
		u := *r.URL
		out.URL = &u
	}
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// HTTPRequest builds a net/http request bound to ctx.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	if r.URL == nil || r.Method == "" {
		return nil, ErrInvalidRequest
	}
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.Header != nil {
		req.Header = r.Header.Clone()
	}
	return req, nil
}

// Origin returns the lower-cased scheme://host of u.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
