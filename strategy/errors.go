package strategy

import "errors"

// Sentinel errors for strategy operations.
var (
	// ErrNoResponse indicates neither the network nor the cache could answer.
	ErrNoResponse = errors.New("strategy: no response available")

	// ErrUnknownKind indicates an unrecognized strategy name.
	ErrUnknownKind = errors.New("strategy: unknown kind")

	// ErrInvalidConfig indicates a strategy configuration is unusable.
	ErrInvalidConfig = errors.New("strategy: invalid config")
)
