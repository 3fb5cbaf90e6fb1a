// Package queue persists state-changing requests made while offline and
// replays them once the network is back.
//
// Mutations are replayed strictly in the order they were queued, one at a
// time. A drain stops at the first mutation that fails to replay: later
// mutations may depend on its server-side effect, so they stay queued
// untouched for the next drain. Failed mutations are never dropped
// automatically; Discard removes one explicitly.
//
// Each mutation carries an idempotency key that is sent as the
// Idempotency-Key header on every replay, so a replay whose response was
// lost can be retried safely.
package queue
