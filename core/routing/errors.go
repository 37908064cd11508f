package routing

import "errors"

// Terminal outcomes crossing the engine boundary. Pruning decisions inside a
// search are control flow and never surface as errors.
var (
	// ErrNoRoute is returned when the frontier empties without reaching the
	// destination. Callers should treat it as a business outcome.
	ErrNoRoute = errors.New("no feasible route")
	// ErrInvalidRequest is returned for requests naming unknown nodes or
	// carrying a non-convex weight vector. Not retryable as-is.
	ErrInvalidRequest = errors.New("invalid search request")
)
