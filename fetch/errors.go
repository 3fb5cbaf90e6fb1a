package fetch

import "errors"

// Sentinel errors for network operations.
var (
	// ErrNetworkUnavailable indicates the origin could not be reached at all.
	ErrNetworkUnavailable = errors.New("fetch: network unavailable")

	// ErrNetworkTimeout indicates a fetch exceeded its deadline.
	ErrNetworkTimeout = errors.New("fetch: network timeout")

	// ErrInvalidRequest indicates a request is missing a method or absolute URL.
	ErrInvalidRequest = errors.New("fetch: invalid request")

	// ErrBodyTooLarge indicates a request or response body exceeded the limit.
	ErrBodyTooLarge = errors.New("fetch: body exceeds limit")
)

// IsTransient reports whether err is a connectivity failure that an offline
// fallback (cache read or mutation queueing) should absorb.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrNetworkTimeout)
}
