package app_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cricstats/stature/internal/app"
	"github.com/cricstats/stature/internal/config"
	"github.com/cricstats/stature/internal/domain/dataset"
	"github.com/cricstats/stature/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// study synthesizes a balanced tournament history: batters get taller over
// time, fast bowlers stay tall and flat, keepers and spinners stay short.
func study(cfg *config.Config) *dataset.Table {
	years := []int{1992, 1996, 1999, 2003, 2007, 2011, 2015, 2019}
	countries := []string{"AUS", "IND", "ENG"}
	countryOffset := map[string]float64{"AUS": 3, "IND": -4, "ENG": 1}
	popHeight := map[string]float64{"AUS": 178, "IND": 165, "ENG": 175}
	base := map[dataset.Category]float64{
		dataset.BAT: 180, dataset.FAST: 190, dataset.WK: 174, dataset.SPIN: 178,
	}

	var rows []dataset.Observation
	noise := 0.2
	for _, year := range years {
		format := dataset.ODI
		if year >= 2007 && year%2 != 0 {
			format = dataset.T20
		}
		for _, country := range countries {
			for cat, b := range base {
				h := b + countryOffset[country] + noise
				if cat == dataset.BAT {
					h += 0.3 * float64(year-1992)
				}
				pop := popHeight[country]
				rows = append(rows, dataset.Observation{
					PlayerID:       fmt.Sprintf("%s_%s_%d", country, cat, year),
					Country:        country,
					Category:       cat,
					Format:         format,
					TournamentID:   fmt.Sprintf("%s_%d", format, year),
					TournamentYear: year,
					HeightCM:       &h,
					PopHeight:      &pop,
					HeightVerified: year%2 == 0,
				})
				noise = -noise
			}
		}
	}
	return dataset.New(rows).Derive(dataset.DeriveSpec{RegionOf: cfg.Region, EraOf: cfg.Era})
}

func TestRun(t *testing.T) {
	convey.Convey("Given the orchestrator over a balanced study", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc := app.New(cfg)
		table := study(cfg)

		convey.Convey("When running the full battery", func() {
			doc, err := svc.Run(ctx, table)

			convey.Convey("Then the run should complete", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(doc, convey.ShouldNotBeNil)
				convey.So(doc.RunID, convey.ShouldNotBeEmpty)
				state, _ := svc.State()
				convey.So(state, convey.ShouldEqual, "completed")
			})

			convey.Convey("Then descriptives should cover categories and eras", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(doc.Descriptive, convey.ShouldNotBeNil)
				convey.So(doc.Descriptive.ByCategory, convey.ShouldContainKey, "BAT")
				convey.So(doc.Descriptive.ByCategory, convey.ShouldContainKey, "FAST")
				convey.So(doc.Descriptive.ByEra, convey.ShouldContainKey, "2")
				convey.So(doc.Descriptive.Overall.N, convey.ShouldEqual, table.Len())
				convey.So(doc.Descriptive.Overall.NTournaments, convey.ShouldEqual, 8)
			})

			convey.Convey("Then the batter trend should rise and the bowler trend should not", func() {
				convey.So(err, convey.ShouldBeNil)
				bat, ok := doc.UnadjustedTrend["BAT"]
				convey.So(ok, convey.ShouldBeTrue)
				slope, ok := bat.Slope("tournament_year")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(slope, convey.ShouldAlmostEqual, 0.3, 0.05)

				fast, ok := doc.UnadjustedTrend["FAST"]
				convey.So(ok, convey.ShouldBeTrue)
				fslope, _ := fast.Slope("tournament_year")
				convey.So(fslope, convey.ShouldAlmostEqual, 0, 0.05)

				convey.So(doc.UnadjustedTrend, convey.ShouldContainKey, "ALL")
			})

			convey.Convey("Then the adjusted trend should carry the baseline covariate", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(doc.AdjustedTrend, convey.ShouldNotBeNil)
				bat := doc.AdjustedTrend.Models["BAT"]
				convey.So(bat, convey.ShouldNotBeNil)
				convey.So(bat.Coefficients, convey.ShouldContainKey, "pop_height_birth_cohort")
			})

			convey.Convey("Then every study nation with data should have a country trend", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(doc.CountryTrend, convey.ShouldContainKey, "AUS")
				convey.So(doc.CountryTrend, convey.ShouldContainKey, "IND")
				convey.So(doc.CountryTrend, convey.ShouldContainKey, "ENG")
			})

			convey.Convey("Then the regional comparison should separate the regions", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(doc.Regional, convey.ShouldNotBeNil)
				convey.So(doc.Regional.Groups, convey.ShouldContain, "Oceanian")
				convey.So(doc.Regional.Groups, convey.ShouldContain, "South Asian")
			})

			convey.Convey("Then breakpoint results should exist for the searched slices", func() {
				convey.So(err, convey.ShouldBeNil)
				total := len(doc.Breakpoints) + len(doc.PooledTrends)
				convey.So(total, convey.ShouldBeGreaterThanOrEqualTo, 3)
			})

			convey.Convey("Then the two-factor analysis should run", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(doc.CategoryEra, convey.ShouldNotBeNil)
				convey.So(doc.CategoryEra.Table, convey.ShouldContainKey, "category")
				convey.So(doc.CategoryEra.EtaSquared["category"], convey.ShouldBeGreaterThan, 0)
			})

			convey.Convey("Then the hierarchical models should be reported", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(doc.MixedEffects, convey.ShouldNotBeNil)
				convey.So(doc.MixedEffects.Omitted, convey.ShouldBeFalse)
				convey.So(doc.MixedEffects.Model1, convey.ShouldNotBeNil)
				convey.So(doc.MixedEffects.Model1.NGroups, convey.ShouldEqual, 3)
				convey.So(doc.MixedEffects.Model1.FixedEffects, convey.ShouldContainKey, "tournament_year")
				convey.So(doc.MixedEffects.Model2, convey.ShouldNotBeNil)
				convey.So(doc.MixedEffects.Model2.FixedEffects, convey.ShouldContainKey, "pop_height_birth_cohort")
			})

			convey.Convey("Then the sensitivity battery should be attached", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(doc.Sensitivity, convey.ShouldNotBeNil)
				convey.So(doc.Sensitivity.VerifiedOnly, convey.ShouldNotBeNil)
				convey.So(doc.Sensitivity.FastVsBat, convey.ShouldNotBeNil)
				convey.So(doc.Sensitivity.FastVsBat.CohensD, convey.ShouldBeGreaterThan, 1)
			})
		})

		convey.Convey("When the hierarchical capability is disabled", func() {
			off := config.New()
			off.MixedEffects = false
			doc, err := app.New(off).Run(ctx, study(off))

			convey.Convey("Then the omission should be explicit in the document", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(doc.MixedEffects, convey.ShouldNotBeNil)
				convey.So(doc.MixedEffects.Omitted, convey.ShouldBeTrue)
				convey.So(doc.MixedEffects.Model1, convey.ShouldBeNil)

				found := false
				for _, s := range doc.Skips {
					if s.Analysis == "mixed_effects" && s.Reason == "capability_disabled" {
						found = true
					}
				}
				convey.So(found, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a slice is too small, the run degrades instead of failing", func() {
			// Single nation, single category, one tournament: most stages
			// cannot run, but the run itself must survive.
			h := 180.0
			tiny := dataset.New([]dataset.Observation{
				{PlayerID: "a", Country: "AUS", Category: dataset.BAT, TournamentYear: 2007, HeightCM: &h},
				{PlayerID: "b", Country: "AUS", Category: dataset.BAT, TournamentYear: 2007, HeightCM: &h},
			})

			doc, err := svc.Run(ctx, tiny)

			convey.Convey("Then skips should explain the absences", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(doc, convey.ShouldNotBeNil)
				convey.So(len(doc.Skips), convey.ShouldBeGreaterThan, 0)
				reasons := make(map[string]bool)
				for _, s := range doc.Skips {
					reasons[s.Reason] = true
				}
				convey.So(reasons["insufficient_data"], convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the table is malformed", func() {
			convey.Convey("Then an empty table should abort the run", func() {
				doc, err := svc.Run(ctx, dataset.New(nil))
				convey.So(doc, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, dataset.ErrMalformedInput)
			})

			convey.Convey("Then a heightless table should abort the run", func() {
				doc, err := svc.Run(ctx, dataset.New([]dataset.Observation{
					{PlayerID: "a", TournamentYear: 1992},
				}))
				convey.So(doc, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, dataset.ErrMalformedInput)
			})

			convey.Convey("Then a nil table should abort the run", func() {
				doc, err := svc.Run(ctx, nil)
				convey.So(doc, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, dataset.ErrMalformedInput)
			})
		})
	})
}
