package route

import "errors"

// Sentinel errors for routing.
var (
	// ErrInvalidRule indicates a rule that cannot be built.
	ErrInvalidRule = errors.New("route: invalid rule")

	// ErrDuplicateRule indicates two rules share a name.
	ErrDuplicateRule = errors.New("route: duplicate rule name")

	// ErrMissingEnv indicates a rule file references an unset environment variable.
	ErrMissingEnv = errors.New("route: missing environment variables")
)
