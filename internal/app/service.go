// Package app provides the orchestrator that runs every analysis stage over
// the dataset and assembles one results document.
//
// No analysis module calls another; all composition happens here. Every
// stage failure is caught and recorded as a structured skip in the document;
// only malformed input aborts a run.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cricstats/stature/internal/config"
	"github.com/cricstats/stature/internal/domain/breakpoint"
	"github.com/cricstats/stature/internal/domain/dataset"
	"github.com/cricstats/stature/internal/domain/groupcmp"
	"github.com/cricstats/stature/internal/domain/mixed"
	"github.com/cricstats/stature/internal/domain/regress"
	"github.com/cricstats/stature/internal/domain/results"
	"github.com/cricstats/stature/internal/domain/sensitivity"
	"github.com/cricstats/stature/internal/domain/types"
	"github.com/cricstats/stature/pkg/logger"
	"github.com/cricstats/stature/pkg/metrics"
)

// Run states, for observability only; correctness never depends on them.
const (
	stateIdle      = "idle"
	stateRunning   = "running"
	stateCompleted = "completed"
	stateFailed    = "failed"
)

// Service sequences the analysis stages.
type Service struct {
	cfg *config.Config
	log logger.Logger

	mu    sync.Mutex
	state string
	stage string
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New constructs a Service bound to one immutable configuration.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg, state: stateIdle}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get()
	}
	return s
}

// State reports the current run state and stage.
func (s *Service) State() (state, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.stage
}

func (s *Service) setStage(ctx context.Context, stage string) {
	s.mu.Lock()
	s.state = stateRunning
	s.stage = stage
	s.mu.Unlock()
	s.log.Debug(ctx, "stage start", logger.String("stage", stage))
}

func (s *Service) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.stage = ""
	s.mu.Unlock()
}

// Run executes the full analysis battery over the table and returns the
// assembled results document. The table is read-only input; a malformed
// table (no rows, or no heights at all) is the only fatal condition.
func (s *Service) Run(ctx context.Context, table *dataset.Table) (*results.Document, error) {
	start := time.Now()

	if table == nil {
		s.setState(stateFailed)
		return nil, fmt.Errorf("%w: nil table", dataset.ErrMalformedInput)
	}
	if err := table.CheckUsable(); err != nil {
		s.setState(stateFailed)
		return nil, err
	}

	valid := table.WithHeight()
	doc := results.New(table.Len(), valid.Len())
	metrics.UpdateDatasetRows(table.Len())

	s.log.Info(ctx, "analysis run started",
		logger.String("run_id", doc.RunID),
		logger.Int("rows", table.Len()),
		logger.Int("rows_with_height", valid.Len()),
	)

	s.setStage(ctx, "descriptive")
	s.runDescriptive(valid, doc)

	s.setStage(ctx, "unadjusted_trend")
	s.runUnadjustedTrend(valid, doc)

	s.setStage(ctx, "adjusted_trend")
	s.runAdjustedTrend(valid, doc)

	s.setStage(ctx, "country_trend")
	s.runCountryTrend(valid, doc)

	s.setStage(ctx, "regional")
	s.runRegional(valid, doc)

	s.setStage(ctx, "breakpoints")
	s.runBreakpoints(valid, doc)

	s.setStage(ctx, "category_era")
	s.runCategoryEra(valid, doc)

	s.setStage(ctx, "mixed_effects")
	s.runMixedEffects(valid, doc)

	s.setStage(ctx, "sensitivity")
	s.runSensitivity(valid, doc)

	s.setState(stateCompleted)
	elapsed := time.Since(start)
	metrics.RecordRun(elapsed.Seconds())
	s.log.Info(ctx, "analysis run completed",
		logger.String("run_id", doc.RunID),
		logger.Int("skips", len(doc.Skips)),
		logger.Any("elapsed", elapsed),
	)
	return doc, nil
}

func (s *Service) runDescriptive(t *dataset.Table, doc *results.Document) {
	d := &results.Descriptive{
		ByCategory:       make(map[string]types.Summary),
		ByEra:            make(map[string]types.Summary),
		CategoryByEra:    make(map[string]map[string]results.Cell),
		ExcessByCategory: make(map[string]types.Summary),
	}

	for _, cat := range s.categories() {
		slice := t.ByCategory(cat)
		if slice.Len() == 0 {
			continue
		}
		d.ByCategory[string(cat)] = types.Summarize(slice.Heights())

		cells := make(map[string]results.Cell)
		for _, era := range t.Eras() {
			hs := slice.ByEra(era).Heights()
			if len(hs) == 0 {
				continue
			}
			cells[eraKey(era)] = results.Cell{Mean: types.Round2(mean(hs)), Count: len(hs)}
		}
		if len(cells) > 0 {
			d.CategoryByEra[string(cat)] = cells
		}

		excess := slice.CompleteCases(dataset.FieldExcess)[0]
		if len(excess) > 0 {
			d.ExcessByCategory[string(cat)] = types.Summarize(excess)
		}
	}
	if len(d.ExcessByCategory) == 0 {
		d.ExcessByCategory = nil
	}

	for _, era := range t.Eras() {
		hs := t.ByEra(era).Heights()
		if len(hs) > 0 {
			d.ByEra[eraKey(era)] = types.Summarize(hs)
		}
	}

	heights := t.Heights()
	verified := 0
	for _, o := range t.Rows() {
		if o.HeightVerified {
			verified++
		}
	}
	overall := types.Summarize(heights)
	d.Overall = results.Overall{
		N:              t.Len(),
		NVerified:      verified,
		MeanHeight:     overall.Mean,
		StdHeight:      overall.Std,
		NUniquePlayers: t.UniquePlayers(),
		NTournaments:   t.UniqueTournaments(),
	}

	doc.Descriptive = d
	metrics.RecordAnalysisCompleted("descriptive")
}

// runUnadjustedTrend fits height ~ tournament_year per category and pooled.
// Slices are independent, so they fit concurrently.
func (s *Service) runUnadjustedTrend(t *dataset.Table, doc *results.Document) {
	out := make(map[string]*regress.Model)
	var mu sync.Mutex

	slices := s.categorySlices(t)
	slices["ALL"] = t

	s.eachSlice(slices, func(name string, view *dataset.Table) {
		m, err := s.fitTrend(view)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			doc.AddSkip("unadjusted_trend", name, reasonOf(err), view.Len())
			metrics.RecordAnalysisSkipped("unadjusted_trend", reasonOf(err))
			return
		}
		out[name] = m
	})

	if len(out) > 0 {
		doc.UnadjustedTrend = out
		metrics.RecordAnalysisCompleted("unadjusted_trend")
	}
}

func (s *Service) runAdjustedTrend(t *dataset.Table, doc *results.Document) {
	adj := &results.AdjustedTrend{
		Models:      make(map[string]*regress.Model),
		Attenuation: make(map[string]results.Attenuation),
	}
	var mu sync.Mutex

	slices := s.categorySlices(t)
	slices["ALL"] = t

	s.eachSlice(slices, func(name string, view *dataset.Table) {
		cols := view.CompleteCases(dataset.FieldHeight, dataset.FieldYear, dataset.FieldPopHeight)
		m, err := regress.FitComplete(
			[]string{string(dataset.FieldHeight), string(dataset.FieldYear), string(dataset.FieldPopHeight)},
			cols,
			regress.WithMinRows(s.cfg.MinRowsPerFit),
			regress.WithConfidence(s.cfg.ConfidenceLevel),
		)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			doc.AddSkip("adjusted_trend", name, reasonOf(err), len(cols[0]))
			metrics.RecordAnalysisSkipped("adjusted_trend", reasonOf(err))
			return
		}
		adj.Models[name] = m
	})

	if len(adj.Models) == 0 {
		return
	}

	// Attenuation of the year slope against the unadjusted fit.
	for name, m := range adj.Models {
		un, ok := doc.UnadjustedTrend[name]
		if !ok {
			continue
		}
		adjSlope, okA := m.Slope(string(dataset.FieldYear))
		unSlope, okU := un.Slope(string(dataset.FieldYear))
		if !okA || !okU || unSlope == 0 {
			continue
		}
		adj.Attenuation[name] = results.Attenuation{
			UnadjustedSlope: unSlope,
			AdjustedSlope:   adjSlope,
			Fraction:        types.Round4(1 - adjSlope/unSlope),
		}
	}
	if len(adj.Attenuation) == 0 {
		adj.Attenuation = nil
	}
	doc.AdjustedTrend = adj
	metrics.RecordAnalysisCompleted("adjusted_trend")
}

// runCountryTrend fits the BAT height trend per nation.
func (s *Service) runCountryTrend(t *dataset.Table, doc *results.Document) {
	bat := t.ByCategory(dataset.BAT)
	out := make(map[string]*regress.Model)
	var mu sync.Mutex

	slices := make(map[string]*dataset.Table, len(s.cfg.Nations))
	for _, nation := range s.cfg.Nations {
		slices[nation] = bat.ByCountry(nation)
	}

	s.eachSlice(slices, func(name string, view *dataset.Table) {
		m, err := s.fitTrend(view)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			doc.AddSkip("country_trend", name, reasonOf(err), view.Len())
			metrics.RecordAnalysisSkipped("country_trend", reasonOf(err))
			return
		}
		out[name] = m
	})

	if len(out) > 0 {
		doc.CountryTrend = out
		metrics.RecordAnalysisCompleted("country_trend")
	}
}

func (s *Service) runRegional(t *dataset.Table, doc *results.Document) {
	regions := t.Regions()
	groups := make([]groupcmp.Group, 0, len(regions))
	for _, r := range regions {
		groups = append(groups, groupcmp.Group{Name: r, Values: t.ByRegion(r).Heights()})
	}

	res, err := groupcmp.OneWayANOVA(groups,
		groupcmp.WithMinPerGroup(s.cfg.MinRowsPerGroup),
		groupcmp.WithSignificance(s.cfg.SignificanceLevel),
	)
	if err != nil {
		doc.AddSkip("regional", "", reasonOf(err), t.Len())
		metrics.RecordAnalysisSkipped("regional", reasonOf(err))
		return
	}
	doc.Regional = res
	metrics.RecordAnalysisCompleted("regional")
}

func (s *Service) runBreakpoints(t *dataset.Table, doc *results.Document) {
	det := breakpoint.New(
		breakpoint.WithCandidates(s.cfg.CandidateBreakpoints),
		breakpoint.WithMinSegment(s.cfg.MinRowsPerSegment),
		breakpoint.WithMinRows(s.cfg.MinRowsPerSlice),
		breakpoint.WithSignificance(s.cfg.SignificanceLevel),
	)

	slices := map[string]*dataset.Table{
		string(dataset.BAT):  t.ByCategory(dataset.BAT),
		string(dataset.FAST): t.ByCategory(dataset.FAST),
		"ALL":                t,
	}

	out := make(map[string]*breakpoint.Result)
	pooled := make(map[string]*regress.Model)
	var mu sync.Mutex

	s.eachSlice(slices, func(name string, view *dataset.Table) {
		cols := view.CompleteCases(dataset.FieldHeight, dataset.FieldYear)
		years, heights := cols[1], cols[0]
		res, err := det.Detect(years, heights)

		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			out[name] = res
			return
		}
		doc.AddSkip("breakpoints", name, reasonOf(err), len(heights))
		metrics.RecordAnalysisSkipped("breakpoints", reasonOf(err))
		// Without a valid candidate the slice still gets its pooled trend.
		if errors.Is(err, breakpoint.ErrNoValidBreakpoint) {
			if m, ferr := det.PooledTrend(years, heights); ferr == nil {
				pooled[name] = m
			}
		}
	})

	if len(out) > 0 {
		doc.Breakpoints = out
		metrics.RecordAnalysisCompleted("breakpoints")
	}
	if len(pooled) > 0 {
		doc.PooledTrends = pooled
	}
}

func (s *Service) runCategoryEra(t *dataset.Table, doc *results.Document) {
	var values []float64
	var cats, eras []string
	for _, o := range t.Rows() {
		if o.HeightCM == nil || o.Category == "" || o.Era == 0 {
			continue
		}
		values = append(values, *o.HeightCM)
		cats = append(cats, string(o.Category))
		eras = append(eras, eraKey(o.Era))
	}
	if len(values) < s.cfg.MinRowsPerSlice {
		doc.AddSkip("category_era", "", "insufficient_data", len(values))
		metrics.RecordAnalysisSkipped("category_era", "insufficient_data")
		return
	}

	res, err := groupcmp.TwoWayANOVA(values, cats, eras, "category", "era")
	if err != nil {
		doc.AddSkip("category_era", "", reasonOf(err), len(values))
		metrics.RecordAnalysisSkipped("category_era", reasonOf(err))
		return
	}
	doc.CategoryEra = res
	metrics.RecordAnalysisCompleted("category_era")
}

func (s *Service) runMixedEffects(t *dataset.Table, doc *results.Document) {
	if !s.cfg.MixedEffects {
		// Capability disabled: the absence is part of the document shape.
		doc.MixedEffects = &results.MixedEffects{Omitted: true}
		doc.AddSkip("mixed_effects", "", "capability_disabled", t.Len())
		metrics.RecordAnalysisSkipped("mixed_effects", "capability_disabled")
		return
	}

	me := &results.MixedEffects{}

	// Model 1: height ~ year + category, random intercept per nation.
	y1, f1, g1 := s.mixedDesign(t, false)
	m1, err := mixed.Fit(y1, f1, g1, mixed.WithMinRows(s.cfg.MinRowsPerSlice))
	if err != nil && m1 == nil {
		doc.AddSkip("mixed_effects", "model1", reasonOf(err), len(y1))
		metrics.RecordAnalysisSkipped("mixed_effects", reasonOf(err))
	} else {
		// A non-converged fit is still reported, flagged converged: false.
		me.Model1 = m1
		if err != nil {
			doc.AddSkip("mixed_effects", "model1", reasonOf(err), len(y1))
		}
	}

	// Model 2 adds the population baseline covariate.
	y2, f2, g2 := s.mixedDesign(t, true)
	m2, err := mixed.Fit(y2, f2, g2, mixed.WithMinRows(s.cfg.MinRowsPerSlice))
	if err != nil && m2 == nil {
		doc.AddSkip("mixed_effects", "model2", reasonOf(err), len(y2))
		metrics.RecordAnalysisSkipped("mixed_effects", reasonOf(err))
	} else {
		me.Model2 = m2
		if err != nil {
			doc.AddSkip("mixed_effects", "model2", reasonOf(err), len(y2))
		}
	}

	if me.Model1 != nil || me.Model2 != nil {
		doc.MixedEffects = me
		metrics.RecordAnalysisCompleted("mixed_effects")
	}
}

// mixedDesign extracts the complete-case response, fixed-effect terms, and
// grouping column for the hierarchical models.
func (s *Service) mixedDesign(t *dataset.Table, withPop bool) ([]float64, []regress.Term, []string) {
	var y, years, pops []float64
	var cats, countries []string
	for _, o := range t.Rows() {
		if o.HeightCM == nil || o.TournamentYear == 0 || o.Category == "" || o.Country == "" {
			continue
		}
		if withPop && o.PopHeight == nil {
			continue
		}
		y = append(y, *o.HeightCM)
		years = append(years, float64(o.TournamentYear))
		if withPop {
			pops = append(pops, *o.PopHeight)
		}
		cats = append(cats, string(o.Category))
		countries = append(countries, o.Country)
	}

	fixed := []regress.Term{{Name: string(dataset.FieldYear), Values: years}}
	if withPop {
		fixed = append(fixed, regress.Term{Name: string(dataset.FieldPopHeight), Values: pops})
	}
	fixed = append(fixed, mixed.ExpandCategorical(cats, "category")...)
	return y, fixed, countries
}

func (s *Service) runSensitivity(t *dataset.Table, doc *results.Document) {
	runner := sensitivity.New(
		sensitivity.WithMinRows(s.cfg.MinRowsPerFit),
		sensitivity.WithMinPerSample(s.cfg.MinRowsPerSample),
		sensitivity.WithRecentCutoff(s.cfg.RecentYearCutoff),
	)
	res := runner.Run(t)
	doc.Sensitivity = res
	for _, skip := range res.Skipped {
		doc.AddSkip("sensitivity", skip.Name, skip.Reason, skip.Rows)
		metrics.RecordAnalysisSkipped("sensitivity", skip.Reason)
	}
	metrics.RecordAnalysisCompleted("sensitivity")
}

// fitTrend fits the core height ~ tournament_year model on a view.
func (s *Service) fitTrend(view *dataset.Table) (*regress.Model, error) {
	metrics.RecordSliceFit()
	cols := view.CompleteCases(dataset.FieldHeight, dataset.FieldYear)
	return regress.FitComplete(
		[]string{string(dataset.FieldHeight), string(dataset.FieldYear)},
		cols,
		regress.WithMinRows(s.cfg.MinRowsPerFit),
		regress.WithConfidence(s.cfg.ConfidenceLevel),
	)
}

func (s *Service) categories() []dataset.Category {
	out := make([]dataset.Category, 0, len(s.cfg.Categories))
	for _, c := range s.cfg.Categories {
		out = append(out, dataset.Category(c))
	}
	return out
}

func (s *Service) categorySlices(t *dataset.Table) map[string]*dataset.Table {
	out := make(map[string]*dataset.Table, len(s.cfg.Categories)+1)
	for _, c := range s.categories() {
		out[string(c)] = t.ByCategory(c)
	}
	return out
}

// eachSlice runs fn over every named view, bounded by the configured worker
// count. Slices are independent; callers serialize their own writes.
func (s *Service) eachSlice(slices map[string]*dataset.Table, fn func(name string, view *dataset.Table)) {
	workers := s.cfg.SliceWorkers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for name, view := range slices {
		wg.Add(1)
		sem <- struct{}{}
		go func(n string, v *dataset.Table) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(n, v)
		}(name, view)
	}
	wg.Wait()
}

// reasonOf maps module errors onto the document's skip-reason vocabulary.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, regress.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, regress.ErrDegenerateModel):
		return "degenerate_model"
	case errors.Is(err, breakpoint.ErrNoValidBreakpoint):
		return "no_valid_breakpoint"
	case errors.Is(err, mixed.ErrConvergenceFailure):
		return "convergence_failure"
	default:
		return "error"
	}
}

func eraKey(era int) string { return fmt.Sprintf("%d", era) }

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
