package connectivity

import "errors"

// ErrInvalidConfig indicates a monitor configuration is unusable.
var ErrInvalidConfig = errors.New("connectivity: invalid config")
