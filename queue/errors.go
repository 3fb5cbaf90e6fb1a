package queue

import (
	"errors"
	"fmt"
)

// Sentinel errors for queue operations.
var (
	// ErrReplayRejected indicates the server answered a replay with a non-2xx status.
	ErrReplayRejected = errors.New("queue: replay rejected")

	// ErrInvalidConfig indicates a queue configuration is unusable.
	ErrInvalidConfig = errors.New("queue: invalid config")
)

// ReplayError describes a mutation that failed to replay.
type ReplayError struct {
	// ID is the mutation ID.
	ID int64

	// Status is the server's answer, or 0 when the network failed.
	Status int

	// Err is ErrReplayRejected for server rejections, otherwise the network error.
	Err error
}

func (e *ReplayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("queue: mutation %d: %v: status %d", e.ID, e.Err, e.Status)
	}
	return fmt.Sprintf("queue: mutation %d: %v", e.ID, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}
