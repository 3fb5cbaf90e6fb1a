// Package httpapi exposes an engine over HTTP.
//
// Every request that is not an admin call is converted into a fetch.Request
// and answered by the engine, so a browser or app pointed at this handler
// gets cached responses while the origin is unreachable and "queued for
// later" answers for mutations. The X-Offline-Source response header says
// where each answer came from.
//
// Admin endpoints under /_offline/ trigger a sync, clear or sweep caches,
// list and discard queued mutations, and read or set the connectivity
// status.
package httpapi
