package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrStorageUnavailable indicates the underlying storage cannot be used.
	ErrStorageUnavailable = errors.New("store: storage unavailable")

	// ErrInvalidKey indicates an empty or malformed cache name or key.
	ErrInvalidKey = errors.New("store: key is invalid")

	// ErrKeyTooLong indicates a key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("store: key exceeds max length")
)
