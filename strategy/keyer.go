package strategy

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/jonwraymond/offlinesync/fetch"
	"github.com/jonwraymond/offlinesync/store"
)

// Keyer derives the cache key of a request.
//
// Contract:
// - Determinism: equivalent requests must produce the same key regardless of
// query parameter order, host case or default ports.
// - Concurrency: implementations must be safe for concurrent use.
// - Keys must satisfy store.ValidateKey.
type Keyer interface {
	Key(req *fetch.Request) string
}

// DefaultKeyer keys requests by method and normalized URL. Headers are not
// part of the key.
type DefaultKeyer struct{}

// Key returns "METHOD normalized-url". Keys longer than store.MaxKeyLength
// are replaced by "METHOD sha256:<hex>".
func (DefaultKeyer) Key(req *fetch.Request) string {
	key := req.Method + " " + NormalizeURL(req.URL)
	if len(key) <= store.MaxKeyLength {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return req.Method + " sha256:" + hex.EncodeToString(sum[:])
}

// NormalizeURL returns a canonical form of u: lower-case scheme and host,
// default port dropped, empty path as "/", query sorted by key, fragment and
// user info removed.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	out := url.URL{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Host),
		Path:   u.Path,
	}
	if out.Path == "" {
		out.Path = "/"
	}
	if port := u.Port(); (out.Scheme == "http" && port == "80") || (out.Scheme == "https" && port == "443") {
		out.Host = strings.ToLower(u.Hostname())
	}
	if u.RawQuery != "" {
		// Encode sorts by key.
		out.RawQuery = u.Query().Encode()
	}
	return out.String()
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = DefaultKeyer{}
