// Package dataset holds the immutable player-tournament table the engine
// analyzes. One Observation is one player's appearance in one tournament.
//
// Missing numeric values are modeled with pointers rather than sentinel
// floats; every analysis filters to complete cases for the columns it needs.
package dataset

// Category is a player role code.
type Category string

// Valid categories.
const (
	WK   Category = "WK"
	BAT  Category = "BAT"
	FAST Category = "FAST"
	SPIN Category = "SPIN"
)

// Format is a tournament format code.
type Format string

// Valid formats.
const (
	ODI Format = "ODI"
	T20 Format = "T20"
)

// Plausibility bounds enforced by the upstream validator. The engine tolerates
// violations; ingest reports them as warnings.
const (
	HeightMinCM = 150.0
	HeightMaxCM = 220.0
	AgeMin      = 15
	AgeMax      = 45
)

// ValidFlags is the closed set of data-quality annotations.
var ValidFlags = map[string]bool{
	"HEIGHT_ESTIMATED":    true,
	"HEIGHT_CONFLICTING":  true,
	"DOB_ESTIMATED":       true,
	"DOB_UNKNOWN":         true,
	"CATEGORY_AMBIGUOUS":  true,
	"LIMITED_APPEARANCES": true,
	"CAPTAIN":             true,
}

// Observation is one row of the input table.
type Observation struct {
	PlayerID        string
	FullName        string
	Country         string
	Category        Category
	BattingPosition int
	BirthYear       int
	AgeAtTournament int
	HeightCM        *float64
	HeightVerified  bool
	HeightSource    string
	PopHeight       *float64
	HeightExcess    *float64
	Flag            string
	Notes           string
	TournamentID    string
	Format          Format
	TournamentYear  int
	Era             int
	Region          string
}

// Field names a numeric column usable in a model.
type Field string

// Numeric fields.
const (
	FieldHeight    Field = "height_cm"
	FieldYear      Field = "tournament_year"
	FieldPopHeight Field = "pop_height_birth_cohort"
	FieldExcess    Field = "height_excess"
	FieldBirthYear Field = "birth_year"
	FieldAge       Field = "age_at_tournament"
	FieldEra       Field = "era"
	FieldPosition  Field = "batting_position"
)

// Numeric returns the value of a field and whether it is present.
func (o Observation) Numeric(f Field) (float64, bool) {
	switch f {
	case FieldHeight:
		if o.HeightCM == nil {
			return 0, false
		}
		return *o.HeightCM, true
	case FieldYear:
		return float64(o.TournamentYear), o.TournamentYear != 0
	case FieldPopHeight:
		if o.PopHeight == nil {
			return 0, false
		}
		return *o.PopHeight, true
	case FieldExcess:
		if o.HeightExcess == nil {
			return 0, false
		}
		return *o.HeightExcess, true
	case FieldBirthYear:
		return float64(o.BirthYear), o.BirthYear != 0
	case FieldAge:
		return float64(o.AgeAtTournament), o.AgeAtTournament != 0
	case FieldEra:
		return float64(o.Era), o.Era != 0
	case FieldPosition:
		return float64(o.BattingPosition), o.BattingPosition != 0
	default:
		return 0, false
	}
}

// Table is an immutable collection of observations. Derived views share the
// backing array; nothing in the engine mutates rows after construction.
type Table struct {
	rows []Observation
}

// New wraps rows in a Table. Rows are not copied; the caller hands over
// ownership.
func New(rows []Observation) *Table {
	return &Table{rows: rows}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the backing rows. Callers must treat them as read-only.
func (t *Table) Rows() []Observation { return t.rows }

// Filter returns the view of rows satisfying pred.
func (t *Table) Filter(pred func(Observation) bool) *Table {
	out := make([]Observation, 0, len(t.rows))
	for _, o := range t.rows {
		if pred(o) {
			out = append(out, o)
		}
	}
	return &Table{rows: out}
}

// ByCategory filters to one player category.
func (t *Table) ByCategory(c Category) *Table {
	return t.Filter(func(o Observation) bool { return o.Category == c })
}

// ByCountry filters to one nation code.
func (t *Table) ByCountry(country string) *Table {
	return t.Filter(func(o Observation) bool { return o.Country == country })
}

// ByRegion filters to one region.
func (t *Table) ByRegion(region string) *Table {
	return t.Filter(func(o Observation) bool { return o.Region == region })
}

// ByFormat filters to one tournament format.
func (t *Table) ByFormat(f Format) *Table {
	return t.Filter(func(o Observation) bool { return o.Format == f })
}

// ByEra filters to one era bucket.
func (t *Table) ByEra(era int) *Table {
	return t.Filter(func(o Observation) bool { return o.Era == era })
}

// YearsAtOrBefore filters to tournament years <= year.
func (t *Table) YearsAtOrBefore(year int) *Table {
	return t.Filter(func(o Observation) bool { return o.TournamentYear <= year })
}

// YearsAfter filters to tournament years > year.
func (t *Table) YearsAfter(year int) *Table {
	return t.Filter(func(o Observation) bool { return o.TournamentYear > year })
}

// YearsAtOrAfter filters to tournament years >= year.
func (t *Table) YearsAtOrAfter(year int) *Table {
	return t.Filter(func(o Observation) bool { return o.TournamentYear >= year })
}

// VerifiedOnly filters to rows with verified heights.
func (t *Table) VerifiedOnly() *Table {
	return t.Filter(func(o Observation) bool { return o.HeightVerified })
}

// Unflagged filters out rows carrying a data-quality flag.
func (t *Table) Unflagged() *Table {
	return t.Filter(func(o Observation) bool { return o.Flag == "" })
}

// WithHeight filters to rows with a present height.
func (t *Table) WithHeight() *Table {
	return t.Filter(func(o Observation) bool { return o.HeightCM != nil })
}

// CompleteCases returns aligned column vectors for rows where every named
// field is present (listwise deletion).
func (t *Table) CompleteCases(fields ...Field) [][]float64 {
	cols := make([][]float64, len(fields))
	row := make([]float64, len(fields))
	for _, o := range t.rows {
		ok := true
		for i, f := range fields {
			v, present := o.Numeric(f)
			if !present {
				ok = false
				break
			}
			row[i] = v
		}
		if !ok {
			continue
		}
		for i := range fields {
			cols[i] = append(cols[i], row[i])
		}
	}
	return cols
}

// Heights returns the present height values.
func (t *Table) Heights() []float64 {
	out := make([]float64, 0, len(t.rows))
	for _, o := range t.rows {
		if o.HeightCM != nil {
			out = append(out, *o.HeightCM)
		}
	}
	return out
}

// Countries returns the distinct nation codes in row order of first sighting.
func (t *Table) Countries() []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range t.rows {
		if o.Country != "" && !seen[o.Country] {
			seen[o.Country] = true
			out = append(out, o.Country)
		}
	}
	return out
}

// Regions returns the distinct regions in row order of first sighting.
func (t *Table) Regions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range t.rows {
		if o.Region != "" && !seen[o.Region] {
			seen[o.Region] = true
			out = append(out, o.Region)
		}
	}
	return out
}

// Eras returns the distinct era buckets in ascending order.
func (t *Table) Eras() []int {
	seen := make(map[int]bool)
	var out []int
	for _, o := range t.rows {
		if o.Era != 0 && !seen[o.Era] {
			seen[o.Era] = true
			out = append(out, o.Era)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// UniquePlayers returns the count of distinct player ids.
func (t *Table) UniquePlayers() int {
	seen := make(map[string]bool)
	for _, o := range t.rows {
		seen[o.PlayerID] = true
	}
	return len(seen)
}

// UniqueTournaments returns the count of distinct tournament ids.
func (t *Table) UniqueTournaments() int {
	seen := make(map[string]bool)
	for _, o := range t.rows {
		seen[o.TournamentID] = true
	}
	return len(seen)
}

// CheckUsable reports whether the table can drive an analysis run. A table
// with no rows, or no rows carrying a height, is malformed input.
func (t *Table) CheckUsable() error {
	if len(t.rows) == 0 {
		return errEmpty
	}
	for _, o := range t.rows {
		if o.HeightCM != nil {
			return nil
		}
	}
	return errNoHeights
}

// DeriveSpec supplies the configuration-driven derivations applied at ingest.
type DeriveSpec struct {
	RegionOf func(country string) string
	EraOf    func(year int) (int, bool)
}

// Derive returns a table with recomputed derived columns: height_excess (never
// trusted from input), region, and era where missing. Input rows are not
// modified.
func (t *Table) Derive(spec DeriveSpec) *Table {
	out := make([]Observation, len(t.rows))
	copy(out, t.rows)
	for i := range out {
		o := &out[i]
		if o.HeightCM != nil && o.PopHeight != nil {
			excess := *o.HeightCM - *o.PopHeight
			o.HeightExcess = &excess
		} else {
			o.HeightExcess = nil
		}
		if spec.RegionOf != nil {
			o.Region = spec.RegionOf(o.Country)
		}
		if o.Era == 0 && spec.EraOf != nil {
			if era, ok := spec.EraOf(o.TournamentYear); ok {
				o.Era = era
			}
		}
	}
	return &Table{rows: out}
}
