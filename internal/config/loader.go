package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if STATURE_CONFIG is set
//  3. env (prefix STATURE_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("STATURE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: STATURE_DATASET_PATH, STATURE_MIN_ROWS_PER_FIT, ...
	// Keys keep their underscores to match the koanf tags on the struct.
	envProvider := env.Provider("STATURE_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "stature_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("%w: categories must not be empty", ErrInvalidConfig)
	}
	if len(c.CandidateBreakpoints) == 0 {
		return fmt.Errorf("%w: candidate_breakpoints must not be empty", ErrInvalidConfig)
	}
	if c.MinRowsPerFit < 2 {
		return fmt.Errorf("%w: min_rows_per_fit must be at least 2", ErrInvalidConfig)
	}
	if c.SignificanceLevel <= 0 || c.SignificanceLevel >= 1 {
		return fmt.Errorf("%w: significance_level must be in (0, 1)", ErrInvalidConfig)
	}
	if c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1 {
		return fmt.Errorf("%w: confidence_level must be in (0, 1)", ErrInvalidConfig)
	}
	if c.SliceWorkers < 1 {
		c.SliceWorkers = 1
	}
	return nil
}
