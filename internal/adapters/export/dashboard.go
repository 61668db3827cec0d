package export

import (
	"sort"

	"github.com/cricstats/stature/internal/domain/dataset"
	"github.com/cricstats/stature/internal/domain/results"
	"github.com/cricstats/stature/internal/domain/types"
)

// Dashboard is the chart-facing payload: column-oriented rows plus
// pre-aggregated series, so the front end never recomputes statistics.
type Dashboard struct {
	Players  Columns          `json:"players"`
	Temporal []TemporalRow    `json:"temporal"`
	Country  []CountryRow     `json:"country"`
	Summary  *results.Overall `json:"summary,omitempty"`
}

// Columns is the column-oriented view of rows that carry a height.
type Columns struct {
	PlayerID       []string   `json:"player_id"`
	FullName       []string   `json:"full_name"`
	Country        []string   `json:"country"`
	Category       []string   `json:"category"`
	HeightCM       []float64  `json:"height_cm"`
	HeightVerified []bool     `json:"height_verified"`
	PopHeight      []*float64 `json:"pop_height"`
	HeightExcess   []*float64 `json:"height_excess"`
	TournamentID   []string   `json:"tournament_id"`
	Format         []string   `json:"format"`
	TournamentYear []int      `json:"tournament_year"`
	Era            []int      `json:"era"`
	Region         []string   `json:"region"`
}

// TemporalRow is one mean-height point in a year/category/format series.
// The "ALL" marker aggregates over the dropped dimension.
type TemporalRow struct {
	Year       int      `json:"year"`
	Category   string   `json:"category"`
	Format     string   `json:"format"`
	MeanHeight float64  `json:"mean_height"`
	MeanPop    *float64 `json:"mean_pop,omitempty"`
	Count      int      `json:"count"`
}

// CountryRow aggregates height and excess per country and category.
type CountryRow struct {
	Country    string   `json:"country"`
	Category   string   `json:"category"`
	MeanHeight float64  `json:"mean_height"`
	MeanExcess *float64 `json:"mean_excess,omitempty"`
	Count      int      `json:"count"`
}

type bucket struct {
	sum      float64
	count    int
	popSum   float64
	popCount int
}

func (b *bucket) add(h float64, pop *float64) {
	b.sum += h
	b.count++
	if pop != nil {
		b.popSum += *pop
		b.popCount++
	}
}

// BuildDashboard assembles the payload from rows that carry a height.
func BuildDashboard(t *dataset.Table, doc *results.Document) *Dashboard {
	valid := t.WithHeight()

	d := &Dashboard{
		Players:  buildColumns(valid),
		Temporal: buildTemporal(valid),
		Country:  buildCountry(valid),
	}
	if doc != nil && doc.Descriptive != nil {
		overall := doc.Descriptive.Overall
		d.Summary = &overall
	}
	return d
}

func buildColumns(t *dataset.Table) Columns {
	n := t.Len()
	c := Columns{
		PlayerID:       make([]string, 0, n),
		FullName:       make([]string, 0, n),
		Country:        make([]string, 0, n),
		Category:       make([]string, 0, n),
		HeightCM:       make([]float64, 0, n),
		HeightVerified: make([]bool, 0, n),
		PopHeight:      make([]*float64, 0, n),
		HeightExcess:   make([]*float64, 0, n),
		TournamentID:   make([]string, 0, n),
		Format:         make([]string, 0, n),
		TournamentYear: make([]int, 0, n),
		Era:            make([]int, 0, n),
		Region:         make([]string, 0, n),
	}
	for _, o := range t.Rows() {
		c.PlayerID = append(c.PlayerID, o.PlayerID)
		c.FullName = append(c.FullName, o.FullName)
		c.Country = append(c.Country, o.Country)
		c.Category = append(c.Category, string(o.Category))
		c.HeightCM = append(c.HeightCM, *o.HeightCM)
		c.HeightVerified = append(c.HeightVerified, o.HeightVerified)
		c.PopHeight = append(c.PopHeight, o.PopHeight)
		c.HeightExcess = append(c.HeightExcess, o.HeightExcess)
		c.TournamentID = append(c.TournamentID, o.TournamentID)
		c.Format = append(c.Format, string(o.Format))
		c.TournamentYear = append(c.TournamentYear, o.TournamentYear)
		c.Era = append(c.Era, o.Era)
		c.Region = append(c.Region, o.Region)
	}
	return c
}

type temporalKey struct {
	year     int
	category string
	format   string
}

func buildTemporal(t *dataset.Table) []TemporalRow {
	buckets := make(map[temporalKey]*bucket)
	add := func(k temporalKey, h float64, pop *float64) {
		b, ok := buckets[k]
		if !ok {
			b = &bucket{}
			buckets[k] = b
		}
		b.add(h, pop)
	}

	for _, o := range t.Rows() {
		h := *o.HeightCM
		year, cat, format := o.TournamentYear, string(o.Category), string(o.Format)
		add(temporalKey{year, cat, "ALL"}, h, o.PopHeight)
		add(temporalKey{year, cat, format}, h, o.PopHeight)
		add(temporalKey{year, "ALL", "ALL"}, h, o.PopHeight)
		add(temporalKey{year, "ALL", format}, h, o.PopHeight)
	}

	keys := make([]temporalKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.year != b.year {
			return a.year < b.year
		}
		if a.category != b.category {
			return a.category < b.category
		}
		return a.format < b.format
	})

	rows := make([]TemporalRow, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		row := TemporalRow{
			Year:       k.year,
			Category:   k.category,
			Format:     k.format,
			MeanHeight: types.Round2(b.sum / float64(b.count)),
			Count:      b.count,
		}
		if b.popCount > 0 {
			row.MeanPop = types.FloatPtr(types.Round2(b.popSum / float64(b.popCount)))
		}
		rows = append(rows, row)
	}
	return rows
}

type countryKey struct {
	country  string
	category string
}

func buildCountry(t *dataset.Table) []CountryRow {
	type cbucket struct {
		sum         float64
		count       int
		excessSum   float64
		excessCount int
	}
	buckets := make(map[countryKey]*cbucket)
	add := func(k countryKey, h float64, excess *float64) {
		b, ok := buckets[k]
		if !ok {
			b = &cbucket{}
			buckets[k] = b
		}
		b.sum += h
		b.count++
		if excess != nil {
			b.excessSum += *excess
			b.excessCount++
		}
	}

	for _, o := range t.Rows() {
		h := *o.HeightCM
		add(countryKey{o.Country, string(o.Category)}, h, o.HeightExcess)
		add(countryKey{o.Country, "ALL"}, h, o.HeightExcess)
	}

	keys := make([]countryKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].country != keys[j].country {
			return keys[i].country < keys[j].country
		}
		return keys[i].category < keys[j].category
	})

	rows := make([]CountryRow, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		row := CountryRow{
			Country:    k.country,
			Category:   k.category,
			MeanHeight: types.Round2(b.sum / float64(b.count)),
			Count:      b.count,
		}
		if b.excessCount > 0 {
			row.MeanExcess = types.FloatPtr(types.Round2(b.excessSum / float64(b.excessCount)))
		}
		rows = append(rows, row)
	}
	return rows
}
