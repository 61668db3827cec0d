// Package regress fits ordinary least-squares linear models. It is the shared
// fitter behind every regression-based analysis in the engine.
package regress

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cricstats/stature/internal/domain/types"
)

// Default fitting policy constants.
const (
	defaultMinRows    = 5
	defaultConfidence = 0.95
	rankTolerance     = 1e-10
)

// InterceptName is the coefficient key of the fitted intercept.
const InterceptName = "Intercept"

// Term is one named column entering a model.
type Term struct {
	Name   string
	Values []float64
}

// Coefficient carries the inference for one fitted parameter. Values are
// rounded at construction: 4 places for estimates, 6 for p-values.
type Coefficient struct {
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"std_err"`
	TValue   float64 `json:"t_value"`
	PValue   float64 `json:"p_value"`
	CILower  float64 `json:"ci_lower"`
	CIUpper  float64 `json:"ci_upper"`
}

// Model is a fitted OLS model.
type Model struct {
	Formula      string                 `json:"formula"`
	N            int                    `json:"n"`
	RSquared     float64                `json:"r_squared"`
	AdjRSquared  float64                `json:"adj_r_squared"`
	FStatistic   *float64               `json:"f_statistic"`
	FPValue      *float64               `json:"f_pvalue"`
	Coefficients map[string]Coefficient `json:"coefficients"`

	// RSS is the residual sum of squares, kept unrounded for model
	// comparison tests. Not part of the emitted document.
	RSS float64 `json:"-"`
}

// Slope returns the rounded estimate for a named coefficient.
func (m *Model) Slope(name string) (float64, bool) {
	c, ok := m.Coefficients[name]
	if !ok {
		return 0, false
	}
	return c.Estimate, true
}

// Option applies a configuration option to a fit.
type Option func(*fitter)

// WithMinRows sets the complete-case floor below which the fit is refused.
func WithMinRows(n int) Option {
	return func(f *fitter) {
		if n > 0 {
			f.minRows = n
		}
	}
}

// WithConfidence sets the coverage of reported confidence intervals.
func WithConfidence(level float64) Option {
	return func(f *fitter) {
		if level > 0 && level < 1 {
			f.confidence = level
		}
	}
}

type fitter struct {
	minRows    int
	confidence float64
}

// Fit estimates response ~ predictors by least squares with an intercept.
// The caller supplies complete-case vectors; all terms must share one length.
// Fails with ErrInsufficientData below the row floor and ErrDegenerateModel
// when the design matrix is rank-deficient.
func Fit(response Term, predictors []Term, opts ...Option) (*Model, error) {
	f := &fitter{minRows: defaultMinRows, confidence: defaultConfidence}
	for _, opt := range opts {
		opt(f)
	}

	n := len(response.Values)
	for _, t := range predictors {
		if len(t.Values) != n {
			return nil, fmt.Errorf("term %q has %d rows, response has %d: %w",
				t.Name, len(t.Values), n, ErrDegenerateModel)
		}
	}
	p := len(predictors) + 1 // plus intercept
	if n < f.minRows {
		return nil, fmt.Errorf("%w: %d rows, need %d", ErrInsufficientData, n, f.minRows)
	}
	if n <= p {
		return nil, fmt.Errorf("%w: %d rows for %d parameters", ErrInsufficientData, n, p)
	}

	// Design matrix with leading intercept column.
	x := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	for j, t := range predictors {
		for i := 0; i < n; i++ {
			x.Set(i, j+1, t.Values[i])
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), response.Values...))

	var qr mat.QR
	qr.Factorize(x)

	// Rank check on the R diagonal guards against collinear predictors.
	var r mat.Dense
	qr.RTo(&r)
	maxDiag := 0.0
	for j := 0; j < p; j++ {
		if v := math.Abs(r.At(j, j)); v > maxDiag {
			maxDiag = v
		}
	}
	for j := 0; j < p; j++ {
		if math.Abs(r.At(j, j)) <= rankTolerance*maxDiag || maxDiag == 0 {
			return nil, fmt.Errorf("%w: design matrix is rank-deficient", ErrDegenerateModel)
		}
	}

	var betaDense mat.Dense
	if err := qr.SolveTo(&betaDense, false, y); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateModel, err)
	}
	beta := make([]float64, p)
	for j := 0; j < p; j++ {
		beta[j] = betaDense.At(j, 0)
	}

	// Residuals and sums of squares.
	var fitted mat.VecDense
	fitted.MulVec(x, betaDense.ColView(0))
	rss := 0.0
	for i := 0; i < n; i++ {
		d := y.AtVec(i) - fitted.AtVec(i)
		rss += d * d
	}
	meanY := 0.0
	for i := 0; i < n; i++ {
		meanY += y.AtVec(i)
	}
	meanY /= float64(n)
	tss := 0.0
	for i := 0; i < n; i++ {
		d := y.AtVec(i) - meanY
		tss += d * d
	}

	df := n - p
	sigma2 := rss / float64(df)

	// Coefficient covariance sigma2 * (X'X)^-1.
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateModel, err)
	}

	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	tcrit := tdist.Quantile(1 - (1-f.confidence)/2)

	coefs := make(map[string]Coefficient, p)
	names := make([]string, p)
	names[0] = InterceptName
	for j, t := range predictors {
		names[j+1] = t.Name
	}
	for j := 0; j < p; j++ {
		se := math.Sqrt(sigma2 * xtxInv.At(j, j))
		var tval, pval float64
		if se > 0 {
			tval = beta[j] / se
			pval = 2 * (1 - tdist.CDF(math.Abs(tval)))
		}
		// A zero-residual fit reports zero standard errors and p-values;
		// the estimates themselves are exact.
		coefs[names[j]] = Coefficient{
			Estimate: types.Round4(beta[j]),
			StdErr:   types.Round4(se),
			TValue:   types.Round4(tval),
			PValue:   types.Round6(pval),
			CILower:  types.Round4(beta[j] - tcrit*se),
			CIUpper:  types.Round4(beta[j] + tcrit*se),
		}
	}

	rsq, adj := 0.0, 0.0
	if tss > 0 {
		rsq = 1 - rss/tss
		adj = 1 - (1-rsq)*float64(n-1)/float64(df)
	}

	m := &Model{
		Formula:      formula(response.Name, names[1:]),
		N:            n,
		RSquared:     types.Round4(rsq),
		AdjRSquared:  types.Round4(adj),
		Coefficients: coefs,
		RSS:          rss,
	}

	// Model F-test against the intercept-only model.
	if p > 1 && rss > 0 && tss > rss {
		fstat := ((tss - rss) / float64(p-1)) / (rss / float64(df))
		fdist := distuv.F{D1: float64(p - 1), D2: float64(df)}
		fp := 1 - fdist.CDF(fstat)
		m.FStatistic = types.RoundPtr(fstat, 4)
		m.FPValue = types.RoundPtr(fp, 6)
	}

	return m, nil
}

// FitComplete builds complete-case terms from aligned columns and fits.
// cols[0] is the response; the rest are predictors, named by names.
func FitComplete(names []string, cols [][]float64, opts ...Option) (*Model, error) {
	if len(names) != len(cols) || len(names) < 2 {
		return nil, fmt.Errorf("%w: need a response and at least one predictor", ErrDegenerateModel)
	}
	resp := Term{Name: names[0], Values: cols[0]}
	preds := make([]Term, 0, len(cols)-1)
	for i := 1; i < len(cols); i++ {
		preds = append(preds, Term{Name: names[i], Values: cols[i]})
	}
	return Fit(resp, preds, opts...)
}

func formula(response string, predictors []string) string {
	return response + " ~ " + strings.Join(predictors, " + ")
}
