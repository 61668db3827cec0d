package breakpoint_test

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cricstats/stature/internal/domain/breakpoint"
	"github.com/cricstats/stature/internal/domain/regress"
)

// piecewise builds a yearly series with slope pre before the knot and slope
// post after it, plus a small alternating disturbance so fits are never exact.
func piecewise(from, to, knot int, pre, post float64) (years, values []float64) {
	base := 180.0
	level := base
	noise := 0.1
	for y := from; y <= to; y++ {
		if y > from {
			if y <= knot {
				level += pre
			} else {
				level += post
			}
		}
		years = append(years, float64(y))
		values = append(values, level+noise)
		noise = -noise
	}
	return years, values
}

func TestDetect(t *testing.T) {
	convey.Convey("Given a breakpoint detector with the study candidates", t, func() {
		det := breakpoint.New(
			breakpoint.WithCandidates([]int{1996, 1999, 2003, 2007, 2010, 2012}),
		)

		convey.Convey("When the series breaks sharply at 2003", func() {
			years, values := piecewise(1992, 2012, 2003, 0.05, 0.8)

			res, err := det.Detect(years, values)

			convey.Convey("Then 2003 should win with a significant Chow test", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.BestBreakpoint, convey.ShouldEqual, 2003)
				convey.So(res.Significant, convey.ShouldBeTrue)
				convey.So(res.PValue, convey.ShouldBeLessThan, 0.05)
				convey.So(res.N, convey.ShouldEqual, len(values))
			})

			convey.Convey("Then the segment slopes should straddle the break", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.PreSlope, convey.ShouldNotBeNil)
				convey.So(res.PostSlope, convey.ShouldNotBeNil)
				convey.So(*res.PreSlope, convey.ShouldAlmostEqual, 0.05, 0.1)
				convey.So(*res.PostSlope, convey.ShouldAlmostEqual, 0.8, 0.1)
			})

			convey.Convey("Then every evaluable candidate should be recorded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(res.Candidates), convey.ShouldBeGreaterThan, 0)
				for _, c := range res.Candidates {
					convey.So(c.FStatistic, convey.ShouldBeGreaterThanOrEqualTo, 0)
					convey.So(c.PValue, convey.ShouldBeBetweenOrEqual, 0, 1)
				}
			})
		})

		convey.Convey("When the series is a single steady trend", func() {
			years, values := piecewise(1992, 2012, 2003, 0.3, 0.3)

			res, err := det.Detect(years, values)

			convey.Convey("Then no candidate should test significant", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Significant, convey.ShouldBeFalse)
				for _, c := range res.Candidates {
					convey.So(c.Significant, convey.ShouldBeFalse)
				}
			})
		})

		convey.Convey("When candidates tie, the earliest wins", func() {
			years, values := piecewise(1992, 2012, 2003, 0.05, 0.8)
			tied := breakpoint.New(breakpoint.WithCandidates([]int{2003, 2003}))

			res, err := tied.Detect(years, values)

			convey.Convey("Then the first listed year should be kept", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.BestBreakpoint, convey.ShouldEqual, 2003)
				convey.So(len(res.Candidates), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the slice is too small", func() {
			years, values := piecewise(2000, 2008, 2004, 0.1, 0.5)

			res, err := det.Detect(years, values)

			convey.Convey("Then detection should be refused", func() {
				convey.So(res, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, regress.ErrInsufficientData)
			})
		})

		convey.Convey("When no candidate leaves both segments populated", func() {
			years, values := piecewise(1992, 2012, 2003, 0.05, 0.8)
			outside := breakpoint.New(breakpoint.WithCandidates([]int{1960, 2030}))

			res, err := outside.Detect(years, values)

			convey.Convey("Then it should report no valid breakpoint", func() {
				convey.So(res, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, breakpoint.ErrNoValidBreakpoint)
			})

			convey.Convey("And the pooled trend should still be fittable", func() {
				m, ferr := outside.PooledTrend(years, values)
				convey.So(ferr, convey.ShouldBeNil)
				convey.So(m.N, convey.ShouldEqual, len(values))
			})
		})
	})
}
