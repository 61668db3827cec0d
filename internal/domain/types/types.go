// Package types holds small shared value types and numeric helpers used by
// the analysis modules and the results document.
package types

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Rounding policy for emitted numbers: 2 places for descriptive aggregates,
// 4 for coefficients and test statistics, 6 for p-values. Stable rounding
// keeps snapshot-style result comparisons reproducible.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	pow := math.Pow(10, float64(places))
	return math.Round(x*pow) / pow
}

// Round2 rounds to 2 decimal places.
func Round2(x float64) float64 { return Round(x, 2) }

// Round4 rounds to 4 decimal places.
func Round4(x float64) float64 { return Round(x, 4) }

// Round6 rounds to 6 decimal places.
func Round6(x float64) float64 { return Round(x, 6) }

// FloatPtr returns a pointer to x.
func FloatPtr(x float64) *float64 { return &x }

// RoundPtr rounds x and returns a pointer, or nil when x is not finite.
// Absent statistics serialize as JSON null rather than a fake number.
func RoundPtr(x float64, places int) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	v := Round(x, places)
	return &v
}

// Summary is a descriptive aggregate of one numeric sample.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summarize computes a rounded Summary of xs. The standard deviation is the
// sample (n-1) estimate; it is zero for samples smaller than two.
func Summarize(xs []float64) Summary {
	s := Summary{Count: len(xs)}
	if len(xs) == 0 {
		return s
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 || math.IsNaN(std) {
		std = 0
	}
	minV, maxV := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < minV {
			minV = x
		}
		if x > maxV {
			maxV = x
		}
	}
	s.Mean = Round2(mean)
	s.Std = Round2(std)
	s.Min = Round2(minV)
	s.Max = Round2(maxV)
	return s
}
