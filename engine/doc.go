// Package engine wires the offline layer together.
//
// An Engine owns the persistent store, the network client and its circuit
// breaker, the cache router, the mutation queue and the connectivity
// monitor. Reads go through the router's caching strategies. Mutations go
// to the network while online; when the network is unreachable, or the
// status is offline, they are queued and the caller gets a 202 "queued for
// later" response. Coming back online drains the queue in the background.
//
// Configuration comes from the environment (see LoadConfig); every
// collaborator can be replaced with an Option.
package engine
