package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cricstats/stature/internal/config"
)

func clearConfigEnvVars() {
	for _, key := range []string{
		"STATURE_CONFIG",
		"STATURE_LOG_LEVEL",
		"STATURE_DATASET_PATH",
		"STATURE_OUTPUT_PATH",
		"STATURE_MIN_ROWS_PER_FIT",
		"STATURE_RECENT_YEAR_CUTOFF",
		"STATURE_SLICE_WORKERS",
	} {
		_ = os.Unsetenv(key)
	}
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then it should load the study defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
				convey.So(cfg.DatasetPath, convey.ShouldEqual, "data/processed/all_players.csv")
				convey.So(cfg.Categories, convey.ShouldResemble, []string{"WK", "BAT", "FAST", "SPIN"})
				convey.So(cfg.Nations, convey.ShouldHaveLength, 8)
				convey.So(cfg.CandidateBreakpoints, convey.ShouldResemble, []int{1996, 1999, 2003, 2007, 2010, 2012})
				convey.So(cfg.MinRowsPerFit, convey.ShouldEqual, 5)
				convey.So(cfg.RecentYearCutoff, convey.ShouldEqual, 2007)
				convey.So(cfg.SignificanceLevel, convey.ShouldEqual, 0.05)
				convey.So(cfg.ConfidenceLevel, convey.ShouldEqual, 0.95)
				convey.So(cfg.MixedEffects, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("STATURE_LOG_LEVEL", "debug")
			_ = os.Setenv("STATURE_DATASET_PATH", "/tmp/players.csv")
			_ = os.Setenv("STATURE_MIN_ROWS_PER_FIT", "8")
			_ = os.Setenv("STATURE_SLICE_WORKERS", "2")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then env vars should override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.DatasetPath, convey.ShouldEqual, "/tmp/players.csv")
				convey.So(cfg.MinRowsPerFit, convey.ShouldEqual, 8)
				convey.So(cfg.SliceWorkers, convey.ShouldEqual, 2)
				convey.So(cfg.RecentYearCutoff, convey.ShouldEqual, 2007)
			})
		})

		convey.Convey("When loading config from a YAML file", func() {
			clearConfigEnvVars()
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			yaml := "log_level: warn\nrecent_year_cutoff: 2010\nmin_rows_per_slice: 12\n"
			convey.So(os.WriteFile(path, []byte(yaml), 0o644), convey.ShouldBeNil)
			_ = os.Setenv("STATURE_CONFIG", path)
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then file values should override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "warn")
				convey.So(cfg.RecentYearCutoff, convey.ShouldEqual, 2010)
				convey.So(cfg.MinRowsPerSlice, convey.ShouldEqual, 12)
				convey.So(cfg.MinRowsPerFit, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When a validated value is out of range", func() {
			clearConfigEnvVars()
			_ = os.Setenv("STATURE_MIN_ROWS_PER_FIT", "1")
			defer clearConfigEnvVars()

			cfg, err := config.Load()

			convey.Convey("Then loading should fail with the sentinel", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})
	})
}

func TestDerivationHelpers(t *testing.T) {
	convey.Convey("Given the study defaults", t, func() {
		cfg := config.New()

		convey.Convey("When resolving regions", func() {
			convey.So(cfg.Region("IND"), convey.ShouldEqual, "South Asian")
			convey.So(cfg.Region("AUS"), convey.ShouldEqual, "Oceanian")
			convey.So(cfg.Region("WI"), convey.ShouldEqual, "Caribbean")
			convey.So(cfg.Region("ZZZ"), convey.ShouldEqual, "Unknown")
		})

		convey.Convey("When resolving eras", func() {
			era, ok := cfg.Era(1983)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(era, convey.ShouldEqual, 1)

			era, ok = cfg.Era(1996)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(era, convey.ShouldEqual, 2)

			era, ok = cfg.Era(2011)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(era, convey.ShouldEqual, 3)

			era, ok = cfg.Era(2023)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(era, convey.ShouldEqual, 4)

			_, ok = cfg.Era(1989)
			convey.So(ok, convey.ShouldBeFalse)
		})
	})
}
