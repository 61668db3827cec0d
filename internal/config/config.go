// Package config defines engine configuration structures and loading hooks.
//
// Conventions:
// - Study constants (categories, nations, regions, eras, candidate breakpoints)
//   are configuration data, not code, and are constructed once at startup.
// - Provide New() to build a Config with the published study defaults.
// - External errors must be wrapped via this package's sentinel errors.
package config

// Config contains process configuration for an analysis run.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DatasetPath points at the merged player-tournament CSV.
	DatasetPath string `koanf:"dataset_path"`

	// RawDir optionally points at a directory of per-tournament JSON files,
	// used instead of DatasetPath when set.
	RawDir string `koanf:"raw_dir"`

	// OutputPath is where the results document JSON is written.
	OutputPath string `koanf:"output_path"`

	// DashboardPath, when non-empty, enables the dashboard payload export.
	DashboardPath string `koanf:"dashboard_path"`

	// Categories is the closed set of player role codes.
	Categories []string `koanf:"categories"`

	// Nations is the closed set of nation codes in the study.
	Nations []string `koanf:"nations"`

	// RegionMap groups nation codes into regions.
	RegionMap map[string]string `koanf:"region_map"`

	// EraBounds maps tournament-year ranges onto coarse era buckets.
	EraBounds []EraBound `koanf:"era_bounds"`

	// CandidateBreakpoints is the fixed ordered list of years searched by the
	// structural-break detector. The detector never infers candidates from data.
	CandidateBreakpoints []int `koanf:"candidate_breakpoints"`

	// MinRowsPerFit is the complete-case floor below which a regression is
	// skipped. A policy constant, not a numerical necessity.
	MinRowsPerFit int `koanf:"min_rows_per_fit"`

	// MinRowsPerSegment is the per-segment floor for breakpoint candidates.
	MinRowsPerSegment int `koanf:"min_rows_per_segment"`

	// MinRowsPerSlice is the floor for running the breakpoint search at all.
	MinRowsPerSlice int `koanf:"min_rows_per_slice"`

	// MinRowsPerGroup is the floor for a group to enter an ANOVA.
	MinRowsPerGroup int `koanf:"min_rows_per_group"`

	// MinRowsPerSample is the floor per side of a two-sample comparison.
	MinRowsPerSample int `koanf:"min_rows_per_sample"`

	// RecentYearCutoff restricts the format comparison to recent tournaments.
	RecentYearCutoff int `koanf:"recent_year_cutoff"`

	// SignificanceLevel is the alpha used for significance flags.
	SignificanceLevel float64 `koanf:"significance_level"`

	// ConfidenceLevel is the coverage of reported confidence intervals.
	ConfidenceLevel float64 `koanf:"confidence_level"`

	// MixedEffects toggles the hierarchical-model capability. When disabled
	// the stage is omitted and its absence recorded in the results document.
	MixedEffects bool `koanf:"mixed_effects"`

	// SliceWorkers bounds concurrent per-slice fits inside a stage.
	SliceWorkers int `koanf:"slice_workers"`
}

// EraBound assigns one era bucket to an inclusive tournament-year range.
type EraBound struct {
	From int `koanf:"from"`
	To   int `koanf:"to"`
	Era  int `koanf:"era"`
}

// New creates a Config carrying the study defaults.
func New() *Config {
	return &Config{
		LogLevel:      "info",
		DatasetPath:   "data/processed/all_players.csv",
		OutputPath:    "data/processed/analysis_results.json",
		DashboardPath: "",
		Categories:    []string{"WK", "BAT", "FAST", "SPIN"},
		Nations:       []string{"AUS", "ENG", "IND", "PAK", "WI", "NZL", "SL", "RSA"},
		RegionMap: map[string]string{
			"IND": "South Asian",
			"PAK": "South Asian",
			"SL":  "South Asian",
			"AUS": "Oceanian",
			"NZL": "Oceanian",
			"WI":  "Caribbean",
			"ENG": "European",
			"RSA": "African",
		},
		EraBounds: []EraBound{
			{From: 1975, To: 1987, Era: 1},
			{From: 1992, To: 1999, Era: 2},
			{From: 2003, To: 2012, Era: 3},
			{From: 2014, To: 2026, Era: 4},
		},
		CandidateBreakpoints: []int{1996, 1999, 2003, 2007, 2010, 2012},
		MinRowsPerFit:        5,
		MinRowsPerSegment:    5,
		MinRowsPerSlice:      10,
		MinRowsPerGroup:      2,
		MinRowsPerSample:     3,
		RecentYearCutoff:     2007,
		SignificanceLevel:    0.05,
		ConfidenceLevel:      0.95,
		MixedEffects:         true,
		SliceWorkers:         4,
	}
}

// Region resolves a nation code to its region, or "Unknown".
func (c *Config) Region(nation string) string {
	if r, ok := c.RegionMap[nation]; ok {
		return r
	}
	return "Unknown"
}

// Era resolves a tournament year to its era bucket. The second return is
// false when the year falls outside every configured range.
func (c *Config) Era(year int) (int, bool) {
	for _, b := range c.EraBounds {
		if year >= b.From && year <= b.To {
			return b.Era, true
		}
	}
	return 0, false
}
