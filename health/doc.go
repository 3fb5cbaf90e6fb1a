// Package health reports whether the offline layer can do its job.
//
// An Aggregator runs named Checkers in parallel under a shared deadline and
// folds their results into one Status. The built-in checkers cover the
// persistent store, the connectivity status and the mutation backlog.
//
// Being offline is Degraded, not Unhealthy: cached reads and queued writes
// keep working. Only an unusable store makes the layer Unhealthy.
package health
