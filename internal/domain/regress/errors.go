package regress

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrInsufficientData means too few complete rows remain after
	// missing-value filtering to fit the model.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateModel means the design matrix is rank-deficient; the fit
	// is refused rather than returning NaN coefficients silently.
	ErrDegenerateModel = errors.New("degenerate model")
)
