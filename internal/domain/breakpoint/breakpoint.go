// Package breakpoint searches for a structural break in a linear trend using
// a Chow test over a fixed candidate list.
//
// The candidate years are configuration, never inferred from the data: a
// fixed list keeps break estimates comparable across category and country
// slices.
package breakpoint

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cricstats/stature/internal/domain/regress"
	"github.com/cricstats/stature/internal/domain/types"
)

// Default detection policy constants.
const (
	defaultMinSegment   = 5
	defaultMinRows      = 10
	defaultSignificance = 0.05
	chowParams          = 2 // slope + intercept per segment
)

// Candidate is the Chow test outcome for one candidate year.
type Candidate struct {
	Year        int     `json:"year"`
	FStatistic  float64 `json:"f_statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

// Result is the outcome of a breakpoint search over one slice.
type Result struct {
	N              int         `json:"n"`
	BestBreakpoint int         `json:"best_breakpoint"`
	FStatistic     float64     `json:"f_statistic"`
	PValue         float64     `json:"p_value"`
	Significant    bool        `json:"significant"`
	PreSlope       *float64    `json:"pre_slope"`
	PostSlope      *float64    `json:"post_slope"`
	Candidates     []Candidate `json:"candidates"`
}

// Detector runs the candidate-list Chow search.
type Detector struct {
	candidates   []int
	minSegment   int
	minRows      int
	significance float64
	responseName string
	yearName     string
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithCandidates sets the ordered candidate years.
func WithCandidates(years []int) Option {
	return func(d *Detector) {
		if len(years) > 0 {
			d.candidates = years
		}
	}
}

// WithMinSegment sets the per-segment row floor.
func WithMinSegment(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.minSegment = n
		}
	}
}

// WithMinRows sets the slice row floor below which the search is refused.
func WithMinRows(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.minRows = n
		}
	}
}

// WithSignificance sets the alpha used for the significant flag.
func WithSignificance(alpha float64) Option {
	return func(d *Detector) {
		if alpha > 0 && alpha < 1 {
			d.significance = alpha
		}
	}
}

// WithTermNames sets the response and year term names used in reported fits.
func WithTermNames(response, year string) Option {
	return func(d *Detector) {
		if response != "" {
			d.responseName = response
		}
		if year != "" {
			d.yearName = year
		}
	}
}

// New constructs a Detector. Callers must supply candidates via WithCandidates
// or rely on the configuration layer to do so.
func New(opts ...Option) *Detector {
	d := &Detector{
		minSegment:   defaultMinSegment,
		minRows:      defaultMinRows,
		significance: defaultSignificance,
		responseName: "height_cm",
		yearName:     "tournament_year",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs the Chow search over aligned (year, response) vectors.
// The best candidate is the maximum F; ties break to the earliest year.
// Fails with regress.ErrInsufficientData when the slice is too small and
// ErrNoValidBreakpoint when no candidate leaves both segments populated.
func (d *Detector) Detect(years, values []float64) (*Result, error) {
	if len(years) != len(values) {
		return nil, fmt.Errorf("%w: misaligned vectors", regress.ErrDegenerateModel)
	}
	n := len(values)
	if n < d.minRows {
		return nil, fmt.Errorf("%w: %d rows, need %d", regress.ErrInsufficientData, n, d.minRows)
	}
	if len(d.candidates) == 0 {
		return nil, fmt.Errorf("%w: empty candidate list", ErrNoValidBreakpoint)
	}

	pooled, err := d.fit(years, values)
	if err != nil {
		return nil, err
	}

	res := &Result{N: n, FStatistic: -1}
	found := false
	for _, bp := range d.candidates {
		preY, preV, postY, postV := split(years, values, bp)
		if len(preV) < d.minSegment || len(postV) < d.minSegment {
			continue
		}

		preFit, err := d.fitSegment(preY, preV)
		if err != nil {
			continue
		}
		postFit, err := d.fitSegment(postY, postV)
		if err != nil {
			continue
		}

		rssRestricted := preFit.RSS + postFit.RSS
		df2 := n - 2*chowParams
		if df2 <= 0 || rssRestricted <= 0 {
			continue
		}
		fstat := ((pooled.RSS - rssRestricted) / chowParams) / (rssRestricted / float64(df2))
		if math.IsNaN(fstat) || math.IsInf(fstat, 0) {
			continue
		}
		if fstat < 0 {
			fstat = 0
		}
		fdist := distuv.F{D1: chowParams, D2: float64(df2)}
		pval := 1 - fdist.CDF(fstat)

		res.Candidates = append(res.Candidates, Candidate{
			Year:        bp,
			FStatistic:  types.Round4(fstat),
			PValue:      types.Round6(pval),
			Significant: pval < d.significance,
		})

		// Strict greater-than keeps the earliest year on ties.
		if fstat > res.FStatistic {
			res.FStatistic = fstat
			res.PValue = pval
			res.BestBreakpoint = bp
			found = true
		}
	}

	if !found {
		return nil, fmt.Errorf("%w: no candidate leaves %d rows per segment",
			ErrNoValidBreakpoint, d.minSegment)
	}

	res.Significant = res.PValue < d.significance
	res.FStatistic = types.Round4(res.FStatistic)
	res.PValue = types.Round6(res.PValue)

	// Independent segment fits for reporting. These reuse the shared fitter
	// and are separate from the Chow-test fits above.
	preY, preV, postY, postV := split(years, values, res.BestBreakpoint)
	if m, err := d.fitSegment(preY, preV); err == nil {
		if slope, ok := m.Slope(d.yearName); ok {
			res.PreSlope = types.FloatPtr(slope)
		}
	}
	if m, err := d.fitSegment(postY, postV); err == nil {
		if slope, ok := m.Slope(d.yearName); ok {
			res.PostSlope = types.FloatPtr(slope)
		}
	}

	return res, nil
}

// PooledTrend fits the single-trend model, used as the fallback report when
// no candidate breakpoint is valid.
func (d *Detector) PooledTrend(years, values []float64) (*regress.Model, error) {
	return d.fit(years, values)
}

func (d *Detector) fit(years, values []float64) (*regress.Model, error) {
	return regress.Fit(
		regress.Term{Name: d.responseName, Values: values},
		[]regress.Term{{Name: d.yearName, Values: years}},
	)
}

func (d *Detector) fitSegment(years, values []float64) (*regress.Model, error) {
	return regress.Fit(
		regress.Term{Name: d.responseName, Values: values},
		[]regress.Term{{Name: d.yearName, Values: years}},
		regress.WithMinRows(d.minSegment),
	)
}

func split(years, values []float64, bp int) (preY, preV, postY, postV []float64) {
	cut := float64(bp)
	for i, y := range years {
		if y <= cut {
			preY = append(preY, y)
			preV = append(preV, values[i])
		} else {
			postY = append(postY, y)
			postV = append(postV, values[i])
		}
	}
	return preY, preV, postY, postV
}
