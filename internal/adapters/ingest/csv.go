// Package ingest loads the player-tournament table from its two source
// shapes: the flat processed CSV, and the raw per-tournament JSON files the
// CSV is merged from. Both paths produce the same dataset.Table.
//
// Malformed structure (unreadable file, missing required columns, no usable
// rows) is fatal. Row-level oddities (out-of-range heights, unknown flags)
// are logged and kept; the analyses decide what to exclude.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cricstats/stature/internal/domain/dataset"
	"github.com/cricstats/stature/pkg/logger"
)

// Required CSV columns. Anything else in the header is ignored.
var requiredColumns = []string{
	"player_id",
	"full_name",
	"country",
	"category",
	"height_cm",
	"tournament_id",
	"format",
	"tournament_year",
}

// ReadCSV parses the flat all-players CSV into observations.
func ReadCSV(ctx context.Context, path string) ([]dataset.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", dataset.ErrMalformedInput, path, err)
	}
	defer f.Close()
	return parseCSV(ctx, f, path)
}

func parseCSV(ctx context.Context, r io.Reader, name string) ([]dataset.Observation, error) {
	log := logger.Named("ingest")

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read header: %v", dataset.ErrMalformedInput, name, err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s: %w: %s", dataset.ErrMalformedInput, name, ErrMissingColumn, col)
		}
	}

	var rows []dataset.Observation
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: %s: line %d: %v", dataset.ErrMalformedInput, name, line, err)
		}

		cell := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		o := dataset.Observation{
			PlayerID:        cell("player_id"),
			FullName:        cell("full_name"),
			Country:         cell("country"),
			Category:        dataset.Category(cell("category")),
			BattingPosition: parseInt(cell("batting_position")),
			BirthYear:       parseInt(cell("birth_year")),
			AgeAtTournament: parseInt(cell("age_at_tournament")),
			HeightCM:        parseFloat(cell("height_cm")),
			HeightVerified:  parseBool(cell("height_verified")),
			HeightSource:    cell("height_source"),
			PopHeight:       parseFloat(cell("pop_height_birth_cohort")),
			Flag:            cell("flag"),
			Notes:           cell("notes"),
			TournamentID:    cell("tournament_id"),
			Format:          dataset.Format(cell("format")),
			TournamentYear:  parseInt(cell("tournament_year")),
			Era:             parseInt(cell("era")),
			Region:          cell("region"),
		}
		warnRow(ctx, log, o, line)
		rows = append(rows, o)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s: no data rows", dataset.ErrMalformedInput, name)
	}
	log.Info(ctx, "csv loaded", logger.String("path", name), logger.Int("rows", len(rows)))
	return rows, nil
}

// warnRow logs row-level quality issues without rejecting the row.
func warnRow(ctx context.Context, log logger.Logger, o dataset.Observation, line int) {
	if o.HeightCM != nil && (*o.HeightCM < dataset.HeightMinCM || *o.HeightCM > dataset.HeightMaxCM) {
		log.Warn(ctx, "height out of plausible range",
			logger.Int("line", line),
			logger.String("player_id", o.PlayerID),
			logger.Float64("height_cm", *o.HeightCM),
		)
	}
	if o.AgeAtTournament != 0 && (o.AgeAtTournament < dataset.AgeMin || o.AgeAtTournament > dataset.AgeMax) {
		log.Warn(ctx, "age out of plausible range",
			logger.Int("line", line),
			logger.String("player_id", o.PlayerID),
			logger.Int("age", o.AgeAtTournament),
		)
	}
	if o.Flag != "" && !dataset.ValidFlags[o.Flag] {
		log.Warn(ctx, "unknown quality flag",
			logger.Int("line", line),
			logger.String("player_id", o.PlayerID),
			logger.String("flag", o.Flag),
		)
	}
}

func parseInt(s string) int {
	if s == "" {
		return 0
	}
	// Merged CSVs render integers as floats ("1992.0").
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}
