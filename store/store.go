package store

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache name or entry key.
const MaxKeyLength = 512

// CacheEntry is a stored response.
type CacheEntry struct {
	CacheName string
	Key       string

	Method string
	URL    string

	Status int
	Header http.Header
	Body   []byte
	Opaque bool

	// StoredAt is when the response was written. The store fills it in when
	// it is zero.
	StoredAt time.Time

	// Seq orders entries by insertion. Assigned by the store on every put;
	// overwriting an entry makes it the newest.
	Seq int64
}

// Clone returns a deep copy of the entry.
func (e CacheEntry) Clone() CacheEntry {
	e.Header = e.Header.Clone()
	if e.Body != nil {
		e.Body = append([]byte(nil), e.Body...)
	}
	return e
}

// PendingMutation is a state-changing request saved for later replay.
type PendingMutation struct {
	// ID is assigned by AddMutation and strictly increases.
	ID int64

	URL    string
	Method string
	Header http.Header
	Body   []byte

	CreatedAt time.Time

	// RetryCount is the number of failed replays so far.
	RetryCount int
	LastError  string

	// IdempotencyKey is sent with every replay of this mutation.
	IdempotencyKey string
}

// Clone returns a deep copy of the mutation.
func (m PendingMutation) Clone() PendingMutation {
	m.Header = m.Header.Clone()
	if m.Body != nil {
		m.Body = append([]byte(nil), m.Body...)
	}
	return m
}

// Store is the persistent store shared by the caching strategies and the
// mutation queue.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use; each
// operation is atomic with respect to others on the same key.
// - Errors: missing records return ErrNotFound; storage failures wrap
// ErrStorageUnavailable. Deletes are idempotent.
// - Ownership: returned records are copies; callers may modify them.
type Store interface {
	// GetEntry returns the entry stored under (cacheName, key).
	GetEntry(ctx context.Context, cacheName, key string) (CacheEntry, error)

	// PutEntry upserts an entry, replacing any entry with the same
	// (CacheName, Key), and assigns it the next sequence number.
	PutEntry(ctx context.Context, entry CacheEntry) error

	// DeleteEntry removes an entry.
	DeleteEntry(ctx context.Context, cacheName, key string) error

	// ListEntries returns the entries of a cache, oldest first.
	ListEntries(ctx context.Context, cacheName string) ([]CacheEntry, error)

	// ClearEntries removes every entry of a cache and returns how many were removed.
	ClearEntries(ctx context.Context, cacheName string) (int, error)

	// CacheNames returns the names of all non-empty caches, sorted.
	CacheNames(ctx context.Context) ([]string, error)

	// AddMutation appends a mutation to the queue and returns it with its ID.
	AddMutation(ctx context.Context, m PendingMutation) (PendingMutation, error)

	// PutMutation upserts a mutation by ID.
	PutMutation(ctx context.Context, m PendingMutation) error

	// GetMutation returns a mutation by ID.
	GetMutation(ctx context.Context, id int64) (PendingMutation, error)

	// DeleteMutation removes a mutation.
	DeleteMutation(ctx context.Context, id int64) error

	// ListMutations returns all queued mutations in ascending ID order.
	ListMutations(ctx context.Context) ([]PendingMutation, error)

	// Close releases the store. Later operations fail with ErrStorageUnavailable.
	Close() error
}

// ValidateKey checks that a cache name or entry key is usable.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

func validateEntryKey(cacheName, key string) error {
	if err := ValidateKey(cacheName); err != nil {
		return err
	}
	return ValidateKey(key)
}
