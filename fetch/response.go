package fetch

import (
	"encoding/json"
	"net/http"
	"time"
)

// Source identifies where a Response came from.
type Source int

const (
	// SourceNetwork means the response was fetched from the origin.
	SourceNetwork Source = iota
	// SourceCache means the response was served from the local store.
	SourceCache
	// SourceQueued means the request was a mutation saved for later replay.
	SourceQueued
)

// String returns the string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceNetwork:
		return "network"
	case SourceCache:
		return "cache"
	case SourceQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// Response is a fully buffered HTTP response.
type Response struct {
	// Status is the HTTP status code. Opaque responses report 0.
	Status int

	Header http.Header
	Body   []byte

	// Opaque marks a cross-origin no-cors response whose content is not
	// inspected; it is cached verbatim.
	Opaque bool

	Source Source

	// StoredAt is when a cached response was written. Zero for network responses.
	StoredAt time.Time

	// MutationID is the pending mutation id for queued responses.
	MutationID int64
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	out := *r
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// QueuedBody is the JSON payload of a queued response.
type QueuedBody struct {
	Queued  bool   `json:"queued"`
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// Queued builds the 202 response returned when a mutation was saved for
// later replay instead of reaching the origin.
func Queued(id int64) *Response {
	body, _ := json.Marshal(QueuedBody{
		Queued:  true,
		ID:      id,
		Message: "queued for later",
	})
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &Response{
		Status:     http.StatusAccepted,
		Header:     header,
		Body:       body,
		Source:     SourceQueued,
		MutationID: id,
	}
}
