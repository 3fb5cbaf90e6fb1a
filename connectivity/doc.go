// Package connectivity tracks whether the network is reachable and drains
// the mutation queue when it comes back.
//
// Status is the process-wide online/offline state. It is set by whatever
// observes the environment (an embedding application, an admin endpoint, or
// the network circuit breaker via BindBreaker) and notifies subscribers on
// every change. Monitor subscribes to a Status and runs one drain per
// offline to online transition, never two at once.
package connectivity
