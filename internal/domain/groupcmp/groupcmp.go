// Package groupcmp quantifies height differences across unordered groupings:
// one-way and two-way analysis of variance, Bonferroni-corrected pairwise
// tests, and standardized effect sizes.
package groupcmp

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cricstats/stature/internal/domain/regress"
	"github.com/cricstats/stature/internal/domain/types"
)

// Default comparison policy constants.
const (
	defaultMinPerGroup  = 2
	defaultMinPerSample = 3
	defaultSignificance = 0.05
)

// Group is one named sample entering a comparison.
type Group struct {
	Name   string
	Values []float64
}

// OneWay is a one-way ANOVA result with descriptives and post-hoc pairs.
type OneWay struct {
	FStatistic  float64                  `json:"f_statistic"`
	PValue      float64                  `json:"p_value"`
	Groups      []string                 `json:"groups"`
	Descriptive map[string]types.Summary `json:"descriptive"`
	Pairwise    []Pairwise               `json:"pairwise"`
}

// Pairwise is one Bonferroni-corrected two-sample comparison.
type Pairwise struct {
	Pair        string  `json:"pair"`
	TStatistic  float64 `json:"t"`
	PAdjusted   float64 `json:"p_adj"`
	Significant bool    `json:"significant"`
}

// Option applies a configuration option to a comparison.
type Option func(*comparer)

// WithMinPerGroup sets the row floor for a group to enter an ANOVA.
func WithMinPerGroup(n int) Option {
	return func(c *comparer) {
		if n > 0 {
			c.minPerGroup = n
		}
	}
}

// WithSignificance sets the alpha used for significance flags.
func WithSignificance(alpha float64) Option {
	return func(c *comparer) {
		if alpha > 0 && alpha < 1 {
			c.significance = alpha
		}
	}
}

type comparer struct {
	minPerGroup  int
	significance float64
}

// OneWayANOVA runs the classical F-test across k >= 2 groups, dropping groups
// below the per-group floor, and attaches Welch pairwise comparisons with
// Bonferroni correction capped at 1.0.
func OneWayANOVA(groups []Group, opts ...Option) (*OneWay, error) {
	c := &comparer{minPerGroup: defaultMinPerGroup, significance: defaultSignificance}
	for _, opt := range opts {
		opt(c)
	}

	valid := make([]Group, 0, len(groups))
	for _, g := range groups {
		if len(g.Values) >= c.minPerGroup {
			valid = append(valid, g)
		}
	}
	if len(valid) < 2 {
		return nil, fmt.Errorf("%w: %d usable groups, need 2", regress.ErrInsufficientData, len(valid))
	}

	// Between/within decomposition.
	var all []float64
	for _, g := range valid {
		all = append(all, g.Values...)
	}
	grand := stat.Mean(all, nil)
	n := len(all)
	k := len(valid)

	ssb, ssw := 0.0, 0.0
	for _, g := range valid {
		m := stat.Mean(g.Values, nil)
		ssb += float64(len(g.Values)) * (m - grand) * (m - grand)
		for _, v := range g.Values {
			ssw += (v - m) * (v - m)
		}
	}
	dfb := float64(k - 1)
	dfw := float64(n - k)
	if dfw <= 0 || ssw <= 0 {
		return nil, fmt.Errorf("%w: no within-group variance", regress.ErrDegenerateModel)
	}
	fstat := (ssb / dfb) / (ssw / dfw)
	fdist := distuv.F{D1: dfb, D2: dfw}
	pval := 1 - fdist.CDF(fstat)

	out := &OneWay{
		FStatistic:  types.Round4(fstat),
		PValue:      types.Round6(pval),
		Descriptive: make(map[string]types.Summary, k),
	}
	for _, g := range valid {
		out.Groups = append(out.Groups, g.Name)
		out.Descriptive[g.Name] = types.Summarize(g.Values)
	}

	// Post-hoc pairwise Welch t-tests, Bonferroni-corrected by the number of
	// comparisons and capped at 1.0.
	nComparisons := k * (k - 1) / 2
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			t, p, _ := WelchT(valid[i].Values, valid[j].Values)
			pAdj := math.Min(p*float64(nComparisons), 1.0)
			out.Pairwise = append(out.Pairwise, Pairwise{
				Pair:        valid[i].Name + " vs " + valid[j].Name,
				TStatistic:  types.Round4(t),
				PAdjusted:   types.Round6(pAdj),
				Significant: pAdj < c.significance,
			})
		}
	}

	return out, nil
}

// WelchT is the unequal-variance two-sample t-test. Returns the t statistic,
// the two-sided p-value, and the Welch-Satterthwaite degrees of freedom.
func WelchT(a, b []float64) (t, p, df float64) {
	if len(a) < 2 || len(b) < 2 {
		return 0, 1, 0
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))

	sa, sb := va/na, vb/nb
	se := math.Sqrt(sa + sb)
	if se == 0 {
		return 0, 1, 0
	}
	t = (ma - mb) / se
	df = (sa + sb) * (sa + sb) /
		(sa*sa/(na-1) + sb*sb/(nb-1))
	if df <= 0 || math.IsNaN(df) {
		return t, 1, 0
	}
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = 2 * (1 - tdist.CDF(math.Abs(t)))
	return t, p, df
}

// CohensD is the standardized mean difference between two samples, normalized
// by the root-mean-square of the two sample standard deviations.
func CohensD(a, b []float64) float64 {
	if len(a) < 2 || len(b) < 2 {
		return 0
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	pooled := math.Sqrt((va + vb) / 2)
	if pooled == 0 {
		return 0
	}
	return (ma - mb) / pooled
}

// TwoSample is a standalone two-group comparison: descriptives, Welch t-test,
// and Cohen's d.
type TwoSample struct {
	GroupA     string  `json:"group_a,omitempty"`
	GroupB     string  `json:"group_b,omitempty"`
	MeanA      float64 `json:"mean_a"`
	MeanB      float64 `json:"mean_b"`
	StdA       float64 `json:"std_a"`
	StdB       float64 `json:"std_b"`
	NA         int     `json:"n_a"`
	NB         int     `json:"n_b"`
	Difference float64 `json:"difference"`
	CohensD    float64 `json:"cohens_d"`
	TStatistic float64 `json:"t_statistic"`
	PValue     float64 `json:"p_value"`
}

// Compare runs the standalone two-group comparison. Each side needs at least
// minPerSample values (default 3).
func Compare(a, b []float64, minPerSample int) (*TwoSample, error) {
	if minPerSample <= 0 {
		minPerSample = defaultMinPerSample
	}
	if len(a) < minPerSample || len(b) < minPerSample {
		return nil, fmt.Errorf("%w: %d and %d rows, need %d per side",
			regress.ErrInsufficientData, len(a), len(b), minPerSample)
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	t, p, _ := WelchT(a, b)
	return &TwoSample{
		MeanA:      types.Round2(ma),
		MeanB:      types.Round2(mb),
		StdA:       types.Round2(math.Sqrt(va)),
		StdB:       types.Round2(math.Sqrt(vb)),
		NA:         len(a),
		NB:         len(b),
		Difference: types.Round2(ma - mb),
		CohensD:    types.Round4(CohensD(a, b)),
		TStatistic: types.Round4(t),
		PValue:     types.Round6(p),
	}, nil
}

// TwoWaySource is one row of a two-way ANOVA table.
type TwoWaySource struct {
	SumSq  *float64 `json:"sum_sq"`
	DF     float64  `json:"df"`
	F      *float64 `json:"F"`
	PValue *float64 `json:"p_value"`
}

// TwoWay is a two-factor ANOVA with interaction, Type II sums of squares.
type TwoWay struct {
	N          int                     `json:"n"`
	Table      map[string]TwoWaySource `json:"anova_table"`
	EtaSquared map[string]float64      `json:"eta_squared"`
}

// TwoWayANOVA partitions the variance of values across two categorical
// factors and their interaction. Sums of squares are Type II, computed by
// model comparison on indicator-coded regressions; effect sizes are eta
// squared against the total sum of squares.
func TwoWayANOVA(values []float64, factorA, factorB []string, nameA, nameB string) (*TwoWay, error) {
	n := len(values)
	if len(factorA) != n || len(factorB) != n {
		return nil, fmt.Errorf("%w: misaligned factors", regress.ErrDegenerateModel)
	}

	levelsA := levels(factorA)
	levelsB := levels(factorB)
	if len(levelsA) < 2 || len(levelsB) < 2 {
		return nil, fmt.Errorf("%w: both factors need at least 2 levels", regress.ErrInsufficientData)
	}

	dumA := dummies(factorA, levelsA, nameA)
	dumB := dummies(factorB, levelsB, nameB)
	inter := interactions(dumA, dumB)

	resp := regress.Term{Name: "response", Values: values}
	fit := func(preds []regress.Term) (*regress.Model, error) {
		return regress.Fit(resp, preds)
	}

	mA, err := fit(dumA)
	if err != nil {
		return nil, err
	}
	mB, err := fit(dumB)
	if err != nil {
		return nil, err
	}
	mAB, err := fit(concat(dumA, dumB))
	if err != nil {
		return nil, err
	}
	mFull, err := fit(concat(concat(dumA, dumB), inter))
	if err != nil {
		return nil, err
	}

	a, b := len(levelsA), len(levelsB)
	dfA := float64(a - 1)
	dfB := float64(b - 1)
	dfAB := float64((a - 1) * (b - 1))
	dfResid := float64(n - a*b)
	if dfResid <= 0 {
		return nil, fmt.Errorf("%w: %d rows for %d cells", regress.ErrInsufficientData, n, a*b)
	}

	ssA := math.Max(mB.RSS-mAB.RSS, 0)
	ssB := math.Max(mA.RSS-mAB.RSS, 0)
	ssAB := math.Max(mAB.RSS-mFull.RSS, 0)
	ssResid := mFull.RSS
	msResid := ssResid / dfResid

	interName := nameA + ":" + nameB
	out := &TwoWay{
		N:          n,
		Table:      make(map[string]TwoWaySource, 4),
		EtaSquared: make(map[string]float64, 3),
	}
	ssTotal := ssA + ssB + ssAB + ssResid

	add := func(name string, ss, df float64, withTest bool) {
		src := TwoWaySource{SumSq: types.RoundPtr(ss, 4), DF: df}
		if withTest && df > 0 && msResid > 0 {
			f := (ss / df) / msResid
			fdist := distuv.F{D1: df, D2: dfResid}
			p := 1 - fdist.CDF(f)
			src.F = types.RoundPtr(f, 4)
			src.PValue = types.RoundPtr(p, 6)
		}
		out.Table[name] = src
		if withTest && ssTotal > 0 {
			out.EtaSquared[name] = types.Round4(ss / ssTotal)
		}
	}
	add(nameA, ssA, dfA, true)
	add(nameB, ssB, dfB, true)
	add(interName, ssAB, dfAB, true)
	add("Residual", ssResid, dfResid, false)

	return out, nil
}

func levels(labels []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// dummies indicator-codes labels against sorted levels, dropping the first
// level as reference.
func dummies(labels, lv []string, factor string) []regress.Term {
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

func interactions(a, b []regress.Term) []regress.Term {
	var out []regress.Term
	for _, ta := range a {
		for _, tb := range b {
			vals := make([]float64, len(ta.Values))
			for i := range vals {
				vals[i] = ta.Values[i] * tb.Values[i]
			}
			out = append(out, regress.Term{Name: ta.Name + ":" + tb.Name, Values: vals})
		}
	}
	return out
}

func concat(a, b []regress.Term) []regress.Term {
	out := make([]regress.Term, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
