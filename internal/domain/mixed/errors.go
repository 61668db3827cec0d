package mixed

import (
	"errors"
)

// ErrConvergenceFailure means the REML optimizer did not reach a usable
// optimum. Reported, not fatal to the run.
var ErrConvergenceFailure = errors.New("convergence failure")
