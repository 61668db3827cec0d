package dataset

import (
	"errors"
	"fmt"
)

// ErrMalformedInput marks a dataset the engine cannot run on at all. It is the
// only error class that aborts a run instead of degrading it.
var ErrMalformedInput = errors.New("malformed input dataset")

var (
	errEmpty     = fmt.Errorf("%w: no rows", ErrMalformedInput)
	errNoHeights = fmt.Errorf("%w: no rows with a height value", ErrMalformedInput)
)
