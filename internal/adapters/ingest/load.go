package ingest

import (
	"context"
	"fmt"

	"github.com/cricstats/stature/internal/config"
	"github.com/cricstats/stature/internal/domain/dataset"
)

// Load builds the analysis table from whichever source the configuration
// names: the processed CSV when set, otherwise the raw tournament directory.
// Derived columns (height_excess, region, era) are recomputed from the
// configuration rather than trusted from the input.
func Load(ctx context.Context, cfg *config.Config) (*dataset.Table, error) {
	var (
		rows []dataset.Observation
		err  error
	)
	switch {
	case cfg.DatasetPath != "":
		rows, err = ReadCSV(ctx, cfg.DatasetPath)
	case cfg.RawDir != "":
		rows, err = ReadTournaments(ctx, cfg.RawDir)
	default:
		return nil, fmt.Errorf("%w: no dataset path or raw directory configured", dataset.ErrMalformedInput)
	}
	if err != nil {
		return nil, err
	}

	return dataset.New(rows).Derive(dataset.DeriveSpec{
		RegionOf: cfg.Region,
		EraOf:    cfg.Era,
	}), nil
}
