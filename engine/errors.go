package engine

import "errors"

// ErrInvalidConfig indicates an engine configuration is unusable.
var ErrInvalidConfig = errors.New("engine: invalid config")
