// Package store persists the offline layer's state: cached responses grouped
// by cache name, and the queue of mutations waiting to be replayed.
//
// Two implementations are provided. MemoryStore keeps everything in process
// memory and is used for tests and ephemeral deployments. SQLiteStore keeps
// both tables in a local SQLite database (modernc.org/sqlite, no cgo) whose
// schema is created and upgraded by embedded, append-only migrations, so
// reopening an existing database never loses data.
//
// # Ordering
//
// Every PutEntry stamps the entry with a store-wide sequence number; listing
// a cache returns entries oldest first, which is the eviction order.
// Pending mutations get strictly increasing IDs from AddMutation and are
// always listed in ascending ID order, which is the replay order.
//
// # Errors
//
// Missing records return ErrNotFound. Any failure of the underlying storage,
// including use after Close, wraps ErrStorageUnavailable.
package store
