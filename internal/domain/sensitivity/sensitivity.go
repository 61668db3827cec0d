// Package sensitivity re-runs the core year trend under named
// data-restriction policies and reports robustness comparisons.
package sensitivity

import (
	"errors"

	"github.com/cricstats/stature/internal/domain/dataset"
	"github.com/cricstats/stature/internal/domain/groupcmp"
	"github.com/cricstats/stature/internal/domain/regress"
)

// Default policy constants.
const (
	defaultMinRows      = 5
	defaultMinPerSample = 3
	defaultRecentCutoff = 2007
)

// Result is the sensitivity battery. Absent branches mean the restriction
// left too few rows; each absence is listed in Skipped.
type Result struct {
	VerifiedOnly     *regress.Model      `json:"verified_only,omitempty"`
	UnflaggedOnly    *regress.Model      `json:"unflagged_only,omitempty"`
	ODIOnly          *regress.Model      `json:"odi_only,omitempty"`
	T20Only          *regress.Model      `json:"t20_only,omitempty"`
	FormatComparison *FormatComparison   `json:"format_comparison,omitempty"`
	FastVsBat        *groupcmp.TwoSample `json:"fast_vs_bat,omitempty"`
	Skipped          []Skip              `json:"skipped,omitempty"`
}

// Skip records one sub-analysis that could not run.
type Skip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Rows   int    `json:"rows"`
}

// FormatComparison is the ODI-vs-T20 comparison on the recent-year window.
type FormatComparison struct {
	CutoffYear int     `json:"cutoff_year"`
	ODIMean    float64 `json:"odi_mean"`
	ODIN       int     `json:"odi_n"`
	T20Mean    float64 `json:"t20_mean"`
	T20N       int     `json:"t20_n"`
	TStatistic float64 `json:"t_statistic"`
	PValue     float64 `json:"p_value"`
	CohensD    float64 `json:"cohens_d"`
}

// Runner executes the battery with fixed policy constants.
type Runner struct {
	minRows      int
	minPerSample int
	recentCutoff int
}

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithMinRows sets the complete-case floor for the trend reruns.
func WithMinRows(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.minRows = n
		}
	}
}

// WithMinPerSample sets the per-side floor for two-sample comparisons.
func WithMinPerSample(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.minPerSample = n
		}
	}
}

// WithRecentCutoff sets the first year of the format-comparison window.
func WithRecentCutoff(year int) Option {
	return func(r *Runner) {
		if year > 0 {
			r.recentCutoff = year
		}
	}
}

// New constructs a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		minRows:      defaultMinRows,
		minPerSample: defaultMinPerSample,
		recentCutoff: defaultRecentCutoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every sub-analysis independently over the table.
func (r *Runner) Run(t *dataset.Table) *Result {
	res := &Result{}

	res.VerifiedOnly = r.trend(t.VerifiedOnly(), "verified_only", res)
	res.UnflaggedOnly = r.trend(t.Unflagged(), "unflagged_only", res)
	res.ODIOnly = r.trend(t.ByFormat(dataset.ODI), "odi_only", res)
	res.T20Only = r.trend(t.ByFormat(dataset.T20), "t20_only", res)

	r.formatComparison(t, res)
	r.fastVsBat(t, res)

	return res
}

// trend reruns height ~ tournament_year on a restricted view.
func (r *Runner) trend(view *dataset.Table, name string, res *Result) *regress.Model {
	cols := view.CompleteCases(dataset.FieldHeight, dataset.FieldYear)
	m, err := regress.FitComplete(
		[]string{string(dataset.FieldHeight), string(dataset.FieldYear)},
		cols,
		regress.WithMinRows(r.minRows),
	)
	if err != nil {
		res.Skipped = append(res.Skipped, Skip{
			Name:   name,
			Reason: reason(err),
			Rows:   len(cols[0]),
		})
		return nil
	}
	return m
}

func (r *Runner) formatComparison(t *dataset.Table, res *Result) {
	recent := t.YearsAtOrAfter(r.recentCutoff)
	odi := recent.ByFormat(dataset.ODI).Heights()
	t20 := recent.ByFormat(dataset.T20).Heights()

	cmp, err := groupcmp.Compare(odi, t20, r.minPerSample)
	if err != nil {
		res.Skipped = append(res.Skipped, Skip{
			Name:   "format_comparison",
			Reason: reason(err),
			Rows:   len(odi) + len(t20),
		})
		return
	}
	res.FormatComparison = &FormatComparison{
		CutoffYear: r.recentCutoff,
		ODIMean:    cmp.MeanA,
		ODIN:       cmp.NA,
		T20Mean:    cmp.MeanB,
		T20N:       cmp.NB,
		TStatistic: cmp.TStatistic,
		PValue:     cmp.PValue,
		CohensD:    cmp.CohensD,
	}
}

func (r *Runner) fastVsBat(t *dataset.Table, res *Result) {
	fast := t.ByCategory(dataset.FAST).Heights()
	bat := t.ByCategory(dataset.BAT).Heights()

	cmp, err := groupcmp.Compare(fast, bat, r.minPerSample)
	if err != nil {
		res.Skipped = append(res.Skipped, Skip{
			Name:   "fast_vs_bat",
			Reason: reason(err),
			Rows:   len(fast) + len(bat),
		})
		return
	}
	cmp.GroupA = string(dataset.FAST)
	cmp.GroupB = string(dataset.BAT)
	res.FastVsBat = cmp
}

func reason(err error) string {
	switch {
	case errors.Is(err, regress.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, regress.ErrDegenerateModel):
		return "degenerate_model"
	default:
		return "error"
	}
}
