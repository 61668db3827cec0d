package results_test

import (
	"bytes"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cricstats/stature/internal/domain/regress"
	"github.com/cricstats/stature/internal/domain/results"
	"github.com/cricstats/stature/internal/domain/types"
)

func sampleDocument() *results.Document {
	doc := results.New(100, 90)
	doc.Descriptive = &results.Descriptive{
		ByCategory: map[string]types.Summary{
			"BAT":  {Count: 40, Mean: 180.25, Std: 5.5, Min: 168, Max: 196},
			"FAST": {Count: 30, Mean: 188.1, Std: 6.2, Min: 175, Max: 203},
		},
		ByEra:         map[string]types.Summary{"2": {Count: 50, Mean: 181, Std: 6, Min: 168, Max: 199}},
		CategoryByEra: map[string]map[string]results.Cell{"BAT": {"2": {Mean: 180.5, Count: 20}}},
		Overall:       results.Overall{N: 100, NVerified: 70, MeanHeight: 182.3, StdHeight: 6.8, NUniquePlayers: 64, NTournaments: 12},
	}
	doc.UnadjustedTrend = map[string]*regress.Model{
		"BAT": {
			Formula:  "height_cm ~ tournament_year",
			N:        40,
			RSquared: 0.12,
			Coefficients: map[string]regress.Coefficient{
				"tournament_year": {Estimate: 0.153, StdErr: 0.04, TValue: 3.8, PValue: 0.000481, CILower: 0.07, CIUpper: 0.23},
			},
		},
	}
	doc.AddSkip("country_trend", "WI", "insufficient_data", 3)
	return doc
}

func TestDocumentRoundTrip(t *testing.T) {
	convey.Convey("Given an assembled document", t, func() {
		doc := sampleDocument()

		convey.Convey("When encoding, decoding, and encoding again", func() {
			first, err := doc.Encode()
			convey.So(err, convey.ShouldBeNil)

			decoded, err := results.Decode(first)
			convey.So(err, convey.ShouldBeNil)

			second, err := decoded.Encode()
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the bytes should be identical", func() {
				convey.So(bytes.Equal(first, second), convey.ShouldBeTrue)
			})

			convey.Convey("Then the decoded document should match", func() {
				convey.So(decoded.RunID, convey.ShouldEqual, doc.RunID)
				convey.So(decoded.Rows, convey.ShouldEqual, 100)
				convey.So(decoded.Descriptive.ByCategory["BAT"].Count, convey.ShouldEqual, 40)
				convey.So(decoded.UnadjustedTrend["BAT"].Coefficients["tournament_year"].Estimate, convey.ShouldEqual, 0.153)
				convey.So(decoded.Skips, convey.ShouldHaveLength, 1)
				convey.So(decoded.Skips[0].Reason, convey.ShouldEqual, "insufficient_data")
			})
		})
	})
}

func TestNew(t *testing.T) {
	convey.Convey("Given a fresh document", t, func() {
		doc := results.New(10, 8)

		convey.Convey("Then identity fields should be populated", func() {
			convey.So(doc.RunID, convey.ShouldNotBeEmpty)
			convey.So(doc.GeneratedAt, convey.ShouldNotBeEmpty)
			convey.So(doc.Rows, convey.ShouldEqual, 10)
			convey.So(doc.RowsWithHeight, convey.ShouldEqual, 8)
		})

		convey.Convey("Then two documents should have distinct run ids", func() {
			convey.So(results.New(10, 8).RunID, convey.ShouldNotEqual, doc.RunID)
		})
	})
}
