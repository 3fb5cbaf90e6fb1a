// Package observe provides observability primitives for the offline layer:
// structured logging, OpenTelemetry tracing and metrics, and a middleware
// that instruments any fetch.Handler.
//
// It is a pure instrumentation library: no caching, no transport, no I/O
// beyond exporter setup. The engine wires an Observer into the router,
// strategies, and the replay queue.
package observe
