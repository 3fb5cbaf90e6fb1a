// Package fetch defines the request and response model shared by the offline
// layer, the Handler interface every caching strategy implements, and the
// Network abstraction strategies and the replay queue use to reach the origin.
//
// Requests carry the browser's view of a fetch: destination (document, image,
// script, ...) and mode (navigate, cors, no-cors). FromHTTP derives both from
// the Sec-Fetch-* headers so an HTTP proxy can route requests the same way a
// service worker would.
//
// # Network errors
//
// Implementations of Network report transport failures as
// ErrNetworkUnavailable and deadline overruns as ErrNetworkTimeout. HTTP error
// statuses are not errors: a 500 is a Response with Status 500.
package fetch
