package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu        sync.RWMutex
	caches    map[string]map[string]CacheEntry
	mutations map[int64]PendingMutation
	seq       int64
	nextID    int64
	closed    bool
	now       func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used to stamp entries and mutations.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		caches:    make(map[string]map[string]CacheEntry),
		mutations: make(map[int64]PendingMutation),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetEntry returns the entry stored under (cacheName, key).
func (s *MemoryStore) GetEntry(_ context.Context, cacheName, key string) (CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return CacheEntry{}, ErrStorageUnavailable
	}

	entry, ok := s.caches[cacheName][key]
	if !ok {
		return CacheEntry{}, ErrNotFound
	}
	return entry.Clone(), nil
}

// PutEntry upserts an entry.
func (s *MemoryStore) PutEntry(_ context.Context, entry CacheEntry) error {
	if err := validateEntryKey(entry.CacheName, entry.Key); err != nil {
		return err
	}

	entry = entry.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageUnavailable
	}

	if entry.StoredAt.IsZero() {
		entry.StoredAt = s.now()
	}
	s.seq++
	entry.Seq = s.seq

	cache, ok := s.caches[entry.CacheName]
	if !ok {
		cache = make(map[string]CacheEntry)
		s.caches[entry.CacheName] = cache
	}
	cache[entry.Key] = entry
	return nil
}

// DeleteEntry removes an entry.
func (s *MemoryStore) DeleteEntry(_ context.Context, cacheName, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageUnavailable
	}

	if cache, ok := s.caches[cacheName]; ok {
		delete(cache, key)
		if len(cache) == 0 {
			delete(s.caches, cacheName)
		}
	}
	return nil
}

// ListEntries returns the entries of a cache, oldest first.
func (s *MemoryStore) ListEntries(_ context.Context, cacheName string) ([]CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStorageUnavailable
	}

	cache := s.caches[cacheName]
	out := make([]CacheEntry, 0, len(cache))
	for _, entry := range cache {
		out = append(out, entry.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ClearEntries removes every entry of a cache.
func (s *MemoryStore) ClearEntries(_ context.Context, cacheName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStorageUnavailable
	}

	n := len(s.caches[cacheName])
	delete(s.caches, cacheName)
	return n, nil
}

// CacheNames returns the names of all non-empty caches, sorted.
func (s *MemoryStore) CacheNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStorageUnavailable
	}

	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// AddMutation appends a mutation to the queue.
func (s *MemoryStore) AddMutation(_ context.Context, m PendingMutation) (PendingMutation, error) {
	m = m.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return PendingMutation{}, ErrStorageUnavailable
	}

	s.nextID++
	m.ID = s.nextID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.mutations[m.ID] = m
	return m.Clone(), nil
}

// PutMutation upserts a mutation by ID.
func (s *MemoryStore) PutMutation(_ context.Context, m PendingMutation) error {
	if m.ID <= 0 {
		return ErrInvalidKey
	}
	m = m.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageUnavailable
	}

	if m.ID > s.nextID {
		s.nextID = m.ID
	}
	s.mutations[m.ID] = m
	return nil
}

// GetMutation returns a mutation by ID.
func (s *MemoryStore) GetMutation(_ context.Context, id int64) (PendingMutation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return PendingMutation{}, ErrStorageUnavailable
	}

	m, ok := s.mutations[id]
	if !ok {
		return PendingMutation{}, ErrNotFound
	}
	return m.Clone(), nil
}

// DeleteMutation removes a mutation.
func (s *MemoryStore) DeleteMutation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageUnavailable
	}

	delete(s.mutations, id)
	return nil
}

// ListMutations returns all queued mutations in ascending ID order.
func (s *MemoryStore) ListMutations(_ context.Context) ([]PendingMutation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStorageUnavailable
	}

	out := make([]PendingMutation, 0, len(s.mutations))
	for _, m := range s.mutations {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
