package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cricstats/stature/internal/domain/dataset"
	"github.com/cricstats/stature/pkg/logger"
)

// tournamentFile mirrors one raw tournament JSON document.
type tournamentFile struct {
	Tournament struct {
		TournamentID string `json:"tournament_id"`
		Format       string `json:"format"`
		Year         int    `json:"year"`
		Era          int    `json:"era"`
	} `json:"tournament"`
	Teams []struct {
		Nation    string `json:"nation"`
		PlayingXI []struct {
			PlayerID        string   `json:"player_id"`
			FullName        string   `json:"full_name"`
			Category        string   `json:"category"`
			BattingPosition int      `json:"batting_position"`
			DateOfBirth     string   `json:"date_of_birth"`
			BirthYear       int      `json:"birth_year"`
			AgeAtTournament int      `json:"age_at_tournament"`
			HeightCM        *float64 `json:"height_cm"`
			HeightVerified  bool     `json:"height_verified"`
			HeightSource    string   `json:"height_source"`
			PopHeight       *float64 `json:"pop_height_birth_cohort"`
			Flag            string   `json:"flag"`
			Notes           string   `json:"notes"`
		} `json:"playing_xi"`
	} `json:"teams"`
}

// ReadTournaments flattens every *.json tournament file under dir into
// observations, in lexical file order.
func ReadTournaments(ctx context.Context, dir string) ([]dataset.Observation, error) {
	log := logger.Named("ingest")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %s: %v", dataset.ErrMalformedInput, dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s: %w", dataset.ErrMalformedInput, dir, ErrNoFiles)
	}

	var rows []dataset.Observation
	for _, path := range files {
		fileRows, err := readTournament(path)
		if err != nil {
			return nil, err
		}
		log.Debug(ctx, "tournament loaded",
			logger.String("file", filepath.Base(path)),
			logger.Int("rows", len(fileRows)),
		)
		rows = append(rows, fileRows...)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s: no player records", dataset.ErrMalformedInput, dir)
	}
	log.Info(ctx, "tournaments loaded",
		logger.String("dir", dir),
		logger.Int("files", len(files)),
		logger.Int("rows", len(rows)),
	)
	return rows, nil
}

func readTournament(path string) ([]dataset.Observation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", dataset.ErrMalformedInput, path, err)
	}

	var doc tournamentFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", dataset.ErrMalformedInput, path, err)
	}

	id := doc.Tournament.TournamentID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	var rows []dataset.Observation
	for _, team := range doc.Teams {
		for _, p := range team.PlayingXI {
			rows = append(rows, dataset.Observation{
				PlayerID:        p.PlayerID,
				FullName:        p.FullName,
				Country:         team.Nation,
				Category:        dataset.Category(p.Category),
				BattingPosition: p.BattingPosition,
				BirthYear:       p.BirthYear,
				AgeAtTournament: p.AgeAtTournament,
				HeightCM:        p.HeightCM,
				HeightVerified:  p.HeightVerified,
				HeightSource:    p.HeightSource,
				PopHeight:       p.PopHeight,
				Flag:            p.Flag,
				Notes:           p.Notes,
				TournamentID:    id,
				Format:          dataset.Format(doc.Tournament.Format),
				TournamentYear:  doc.Tournament.Year,
				Era:             doc.Tournament.Era,
			})
		}
	}
	return rows, nil
}
