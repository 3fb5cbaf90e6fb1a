// Package strategy implements the caching strategies a route can bind a
// request to: CacheFirst, NetworkFirst, StaleWhileRevalidate, NetworkOnly
// and CacheOnly.
//
// A Config names the strategy Kind, the cache partition it reads and writes,
// and its expiration policy. New resolves a Config into a ready Strategy once
// at startup; per-request handling never re-parses configuration.
//
// # Caching rules
//
// Only responses whose status is in the configured cacheable set are stored
// (default 0 and 200, where 0 is an opaque cross-origin response kept
// verbatim). Entries older than MaxAge are treated as absent on read; after
// every write the cache is trimmed to MaxEntries by evicting the oldest
// entries. Sweep removes expired entries proactively.
//
// # Background work
//
// NetworkFirst stops waiting at its timeout but lets the network attempt
// finish and refresh the cache; StaleWhileRevalidate refreshes the cache
// after answering from it. Both run detached from the request context under
// a shared Background, which bounds concurrency and lets callers wait until
// all refreshes are done.
package strategy
