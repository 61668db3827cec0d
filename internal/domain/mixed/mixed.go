// Package mixed estimates linear models with a random intercept per group,
// absorbing group-level baseline differences while estimating shared slopes.
//
// Estimation is restricted maximum likelihood with the variance ratio
// profiled out: for a single random intercept the per-group covariance has a
// closed-form inverse, so the REML criterion reduces to a one-dimensional
// search over the ratio of intercept variance to residual variance.
package mixed

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/cricstats/stature/internal/domain/regress"
	"github.com/cricstats/stature/internal/domain/types"
)

// Default estimation policy constants.
const (
	defaultMinRows  = 10
	defaultMaxRatio = 1e3
	goldenTolerance = 1e-7
	goldenMaxIter   = 200
	gridPoints      = 41
)

// FixedEffect is one estimated fixed-effect coefficient.
type FixedEffect struct {
	Estimate float64  `json:"estimate"`
	StdErr   *float64 `json:"std_err"`
}

// Result is a fitted random-intercept model.
type Result struct {
	Converged         bool                   `json:"converged"`
	N                 int                    `json:"n"`
	NGroups           int                    `json:"n_groups"`
	LogLikelihood     float64                `json:"log_likelihood"`
	AIC               float64                `json:"aic"`
	BIC               float64                `json:"bic"`
	FixedEffects      map[string]FixedEffect `json:"fixed_effects"`
	InterceptVariance float64                `json:"intercept_variance"`
	ResidualVariance  float64                `json:"residual_variance"`
}

// Option applies a configuration option to a fit.
type Option func(*estimator)

// WithMinRows sets the row floor below which the fit is refused.
func WithMinRows(n int) Option {
	return func(e *estimator) {
		if n > 0 {
			e.minRows = n
		}
	}
}

// WithMaxRatio bounds the searched variance ratio.
func WithMaxRatio(r float64) Option {
	return func(e *estimator) {
		if r > 0 {
			e.maxRatio = r
		}
	}
}

type estimator struct {
	minRows  int
	maxRatio float64
}

// ExpandCategorical indicator-codes labels, dropping the first sorted level
// as reference, producing terms named factor_<level>.
func ExpandCategorical(labels []string, factor string) []regress.Term {
	seen := make(map[string]bool)
	var lv []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			lv = append(lv, l)
		}
	}
	sort.Strings(lv)
	if len(lv) < 2 {
		return nil
	}
	terms := make([]regress.Term, 0, len(lv)-1)
	for _, level := range lv[1:] {
		vals := make([]float64, len(labels))
		for i, l := range labels {
			if l == level {
				vals[i] = 1
			}
		}
		terms = append(terms, regress.Term{Name: factor + "_" + level, Values: vals})
	}
	return terms
}

// Fit estimates response ~ fixed effects with a random intercept per group.
// Fails with regress.ErrInsufficientData for undersized input, with
// regress.ErrDegenerateModel for a rank-deficient design, and with
// ErrConvergenceFailure when the REML search finds no usable optimum.
func Fit(y []float64, fixed []regress.Term, groups []string, opts ...Option) (*Result, error) {
	e := &estimator{minRows: defaultMinRows, maxRatio: defaultMaxRatio}
	for _, opt := range opts {
		opt(e)
	}

	n := len(y)
	if len(groups) != n {
		return nil, fmt.Errorf("%w: misaligned grouping column", regress.ErrDegenerateModel)
	}
	for _, t := range fixed {
		if len(t.Values) != n {
			return nil, fmt.Errorf("term %q has %d rows, response has %d: %w",
				t.Name, len(t.Values), n, regress.ErrDegenerateModel)
		}
	}
	if n < e.minRows {
		return nil, fmt.Errorf("%w: %d rows, need %d", regress.ErrInsufficientData, n, e.minRows)
	}

	p := len(fixed) + 1
	if n <= p+1 {
		return nil, fmt.Errorf("%w: %d rows for %d parameters", regress.ErrInsufficientData, n, p)
	}

	// Group index sets.
	byGroup := make(map[string][]int)
	for i, g := range groups {
		byGroup[g] = append(byGroup[g], i)
	}
	if len(byGroup) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 groups, have %d",
			regress.ErrInsufficientData, len(byGroup))
	}

	// Design matrix rows, intercept first.
	design := make([][]float64, n)
	names := make([]string, p)
	names[0] = regress.InterceptName
	for j, t := range fixed {
		names[j+1] = t.Name
	}
	for i := 0; i < n; i++ {
		row := make([]float64, p)
		row[0] = 1
		for j, t := range fixed {
			row[j+1] = t.Values[i]
		}
		design[i] = row
	}

	prof := &profile{n: n, p: p, y: y, design: design, byGroup: byGroup}

	// Coarse grid over the ratio, then golden-section refinement around the
	// best bracket. Ratio zero (no group variance) is always a candidate.
	ratios := make([]float64, 0, gridPoints)
	ratios = append(ratios, 0)
	for i := 0; i < gridPoints-1; i++ {
		frac := float64(i) / float64(gridPoints-2)
		ratios = append(ratios, 1e-4*math.Pow(e.maxRatio/1e-4, frac))
	}

	bestIdx, bestLL := -1, math.Inf(-1)
	for i, r := range ratios {
		if ll, _, ok := prof.criterion(r); ok && ll > bestLL {
			bestLL = ll
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil, fmt.Errorf("%w: criterion undefined over the search grid", ErrConvergenceFailure)
	}

	lo := ratios[max(bestIdx-1, 0)]
	hi := ratios[min(bestIdx+1, len(ratios)-1)]
	ratio, converged := goldenSection(func(r float64) float64 {
		ll, _, ok := prof.criterion(r)
		if !ok {
			return math.Inf(-1)
		}
		return ll
	}, lo, hi)

	ll, sol, ok := prof.criterion(ratio)
	if !ok {
		return nil, fmt.Errorf("%w: criterion undefined at optimum", ErrConvergenceFailure)
	}

	k := float64(p + 2) // fixed effects + two variance components
	res := &Result{
		Converged:         converged,
		N:                 n,
		NGroups:           len(byGroup),
		LogLikelihood:     types.Round4(ll),
		AIC:               types.Round4(-2*ll + 2*k),
		BIC:               types.Round4(-2*ll + k*math.Log(float64(n))),
		FixedEffects:      make(map[string]FixedEffect, p),
		InterceptVariance: types.Round4(ratio * sol.sigma2),
		ResidualVariance:  types.Round4(sol.sigma2),
	}
	for j := 0; j < p; j++ {
		fe := FixedEffect{Estimate: types.Round4(sol.beta[j])}
		if se := sol.se[j]; se > 0 && !math.IsNaN(se) {
			fe.StdErr = types.RoundPtr(se, 4)
		}
		res.FixedEffects[names[j]] = fe
	}

	if !converged {
		return res, fmt.Errorf("%w: golden-section search did not close", ErrConvergenceFailure)
	}
	return res, nil
}

// solution carries the GLS estimates at one variance ratio.
type solution struct {
	beta   []float64
	se     []float64
	sigma2 float64
}

type profile struct {
	n       int
	p       int
	y       []float64
	design  [][]float64
	byGroup map[string][]int
}

// criterion evaluates the REML log-likelihood at a given variance ratio,
// using the closed-form per-group inverse (I - c J) with c = r/(1+n_g r).
func (pr *profile) criterion(ratio float64) (float64, *solution, bool) {
	p := pr.p
	a := mat.NewDense(p, p, nil) // X' V^-1 X
	u := make([]float64, p)      // X' V^-1 y
	q := 0.0                     // y' V^-1 y
	logDetV := 0.0

	sx := make([]float64, p)
	for _, idx := range pr.byGroup {
		ng := float64(len(idx))
		c := ratio / (1 + ng*ratio)
		logDetV += math.Log(1 + ng*ratio)

		for j := range sx {
			sx[j] = 0
		}
		sy := 0.0
		for _, i := range idx {
			row := pr.design[i]
			yi := pr.y[i]
			sy += yi
			q += yi * yi
			for j := 0; j < p; j++ {
				sx[j] += row[j]
				u[j] += row[j] * yi
				for l := j; l < p; l++ {
					a.Set(j, l, a.At(j, l)+row[j]*row[l])
				}
			}
		}
		q -= c * sy * sy
		for j := 0; j < p; j++ {
			u[j] -= c * sx[j] * sy
			for l := j; l < p; l++ {
				a.Set(j, l, a.At(j, l)-c*sx[j]*sx[l])
			}
		}
	}
	for j := 0; j < p; j++ {
		for l := j + 1; l < p; l++ {
			a.Set(l, j, a.At(j, l))
		}
	}

	var lu mat.LU
	lu.Factorize(a)
	logDetA, sign := lu.LogDet()
	if sign <= 0 || math.IsNaN(logDetA) {
		return 0, nil, false
	}

	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return 0, nil, false
	}

	beta := make([]float64, p)
	for j := 0; j < p; j++ {
		for l := 0; l < p; l++ {
			beta[j] += inv.At(j, l) * u[l]
		}
	}
	bu := 0.0
	for j := 0; j < p; j++ {
		bu += beta[j] * u[j]
	}

	dfr := float64(pr.n - p)
	sigma2 := (q - bu) / dfr
	if sigma2 <= 0 || math.IsNaN(sigma2) {
		return 0, nil, false
	}

	ll := -0.5 * (dfr*(math.Log(2*math.Pi*sigma2)+1) + logDetV + logDetA)
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return 0, nil, false
	}

	se := make([]float64, p)
	for j := 0; j < p; j++ {
		se[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}
	return ll, &solution{beta: beta, se: se, sigma2: sigma2}, true
}

// goldenSection maximizes f over [lo, hi]. The second return reports whether
// the bracket closed below tolerance within the iteration limit.
func goldenSection(f func(float64) float64, lo, hi float64) (float64, bool) {
	const invPhi = 0.6180339887498949
	if hi <= lo {
		return lo, true
	}
	x1 := hi - invPhi*(hi-lo)
	x2 := lo + invPhi*(hi-lo)
	f1, f2 := f(x1), f(x2)
	for i := 0; i < goldenMaxIter; i++ {
		if hi-lo < goldenTolerance*(1+math.Abs(lo)) {
			return (lo + hi) / 2, true
		}
		if f1 >= f2 {
			hi = x2
			x2, f2 = x1, f1
			x1 = hi - invPhi*(hi-lo)
			f1 = f(x1)
		} else {
			lo = x1
			x1, f1 = x2, f2
			x2 = lo + invPhi*(hi-lo)
			f2 = f(x2)
		}
	}
	return (lo + hi) / 2, false
}
