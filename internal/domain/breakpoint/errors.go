package breakpoint

import (
	"errors"
)

// ErrNoValidBreakpoint means no candidate year left both segments with enough
// rows. Callers may fall back to reporting a single pooled trend.
var ErrNoValidBreakpoint = errors.New("no valid breakpoint")
