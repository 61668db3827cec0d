// Package results defines the nested, serializable document an analysis run
// produces. Every value is a plain number, string, bool, or nesting of those;
// nothing engine-specific leaks into the emitted JSON, and all floats are
// rounded at construction so snapshots reproduce byte-for-byte.
package results

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cricstats/stature/internal/domain/breakpoint"
	"github.com/cricstats/stature/internal/domain/groupcmp"
	"github.com/cricstats/stature/internal/domain/mixed"
	"github.com/cricstats/stature/internal/domain/regress"
	"github.com/cricstats/stature/internal/domain/sensitivity"
	"github.com/cricstats/stature/internal/domain/types"
)

// Document is the full results tree of one engine run. Nil analysis branches
// mean the stage produced nothing; the Skips list says why.
type Document struct {
	RunID          string `json:"run_id"`
	GeneratedAt    string `json:"generated_at"`
	Rows           int    `json:"rows"`
	RowsWithHeight int    `json:"rows_with_height"`

	Descriptive     *Descriptive                  `json:"descriptive,omitempty"`
	UnadjustedTrend map[string]*regress.Model     `json:"unadjusted_trend,omitempty"`
	AdjustedTrend   *AdjustedTrend                `json:"adjusted_trend,omitempty"`
	CountryTrend    map[string]*regress.Model     `json:"country_trend,omitempty"`
	Regional        *groupcmp.OneWay              `json:"regional,omitempty"`
	Breakpoints     map[string]*breakpoint.Result `json:"breakpoints,omitempty"`
	PooledTrends    map[string]*regress.Model     `json:"pooled_trends,omitempty"`
	CategoryEra     *groupcmp.TwoWay              `json:"category_era,omitempty"`
	MixedEffects    *MixedEffects                 `json:"mixed_effects,omitempty"`
	Sensitivity     *sensitivity.Result           `json:"sensitivity,omitempty"`

	Skips []Skip `json:"skips"`
}

// Descriptive is the stage-one summary battery.
type Descriptive struct {
	ByCategory       map[string]types.Summary   `json:"by_category"`
	ByEra            map[string]types.Summary   `json:"by_era"`
	CategoryByEra    map[string]map[string]Cell `json:"category_by_era"`
	ExcessByCategory map[string]types.Summary   `json:"excess_by_category,omitempty"`
	Overall          Overall                    `json:"overall"`
}

// Cell is one category-by-era aggregate.
type Cell struct {
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// Overall summarizes the whole table.
type Overall struct {
	N              int     `json:"n"`
	NVerified      int     `json:"n_verified"`
	MeanHeight     float64 `json:"mean_height"`
	StdHeight      float64 `json:"std_height"`
	NUniquePlayers int     `json:"n_unique_players"`
	NTournaments   int     `json:"n_tournaments"`
}

// AdjustedTrend carries the population-adjusted models and the attenuation of
// the year slope once the demographic baseline is controlled for.
type AdjustedTrend struct {
	Models      map[string]*regress.Model `json:"models"`
	Attenuation map[string]Attenuation    `json:"attenuation,omitempty"`
}

// Attenuation compares the unadjusted and adjusted year slopes of one slice.
type Attenuation struct {
	UnadjustedSlope float64 `json:"unadjusted_slope"`
	AdjustedSlope   float64 `json:"adjusted_slope"`
	Fraction        float64 `json:"fraction"`
}

// MixedEffects carries the hierarchical-model stage. Omitted is set when the
// capability is disabled at construction time, so the document shape still
// records the absence explicitly.
type MixedEffects struct {
	Omitted bool          `json:"omitted,omitempty"`
	Model1  *mixed.Result `json:"model1,omitempty"`
	Model2  *mixed.Result `json:"model2,omitempty"`
}

// Skip is a structured record of an analysis branch that produced no numbers.
type Skip struct {
	Analysis string `json:"analysis"`
	Slice    string `json:"slice,omitempty"`
	Reason   string `json:"reason"`
	Rows     int    `json:"rows"`
}

// New creates an empty document stamped with a fresh run id.
func New(rows, rowsWithHeight int) *Document {
	return &Document{
		RunID:          uuid.NewString(),
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
		Rows:           rows,
		RowsWithHeight: rowsWithHeight,
		Skips:          []Skip{},
	}
}

// AddSkip records an absent branch.
func (d *Document) AddSkip(analysis, slice, reason string, rows int) {
	d.Skips = append(d.Skips, Skip{Analysis: analysis, Slice: slice, Reason: reason, Rows: rows})
}

// Encode serializes the document to indented JSON. Map keys sort on marshal,
// so encoding is deterministic.
func (d *Document) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return b, nil
}

// Decode parses a document produced by Encode.
func Decode(b []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return &d, nil
}
