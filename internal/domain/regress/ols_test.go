package regress_test

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/cricstats/stature/internal/domain/regress"
)

func TestFit(t *testing.T) {
	convey.Convey("Given the least-squares fitter", t, func() {
		convey.Convey("When fitting an exact linear relationship", func() {
			// y = 3 + 2x, no noise.
			x := []float64{1, 2, 3, 4, 5, 6}
			y := []float64{5, 7, 9, 11, 13, 15}

			m, err := regress.Fit(
				regress.Term{Name: "y", Values: y},
				[]regress.Term{{Name: "x", Values: x}},
			)

			convey.Convey("Then it should recover the coefficients exactly", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(m, convey.ShouldNotBeNil)
				convey.So(m.N, convey.ShouldEqual, 6)
				convey.So(m.Coefficients[regress.InterceptName].Estimate, convey.ShouldEqual, 3)
				convey.So(m.Coefficients["x"].Estimate, convey.ShouldEqual, 2)
				convey.So(m.RSquared, convey.ShouldEqual, 1)
				convey.So(m.Formula, convey.ShouldEqual, "y ~ x")
			})
		})

		convey.Convey("When fitting a noisy positive trend", func() {
			x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
			y := []float64{2.1, 3.9, 6.2, 7.8, 10.1, 12.2, 13.8, 16.1, 18.0, 19.9}

			m, err := regress.Fit(
				regress.Term{Name: "y", Values: y},
				[]regress.Term{{Name: "x", Values: x}},
			)

			convey.Convey("Then the slope should be near 2 and strongly significant", func() {
				convey.So(err, convey.ShouldBeNil)
				slope, ok := m.Slope("x")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(slope, convey.ShouldAlmostEqual, 2.0, 0.05)
				convey.So(m.Coefficients["x"].PValue, convey.ShouldBeLessThan, 0.001)
				convey.So(m.RSquared, convey.ShouldBeGreaterThan, 0.99)
			})

			convey.Convey("Then the confidence interval should bracket the estimate", func() {
				convey.So(err, convey.ShouldBeNil)
				c := m.Coefficients["x"]
				convey.So(c.CILower, convey.ShouldBeLessThan, c.Estimate)
				convey.So(c.CIUpper, convey.ShouldBeGreaterThan, c.Estimate)
			})

			convey.Convey("Then the model F-test should be reported", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(m.FStatistic, convey.ShouldNotBeNil)
				convey.So(m.FPValue, convey.ShouldNotBeNil)
				convey.So(*m.FPValue, convey.ShouldBeLessThan, 0.001)
			})
		})

		convey.Convey("When there are fewer rows than the floor", func() {
			x := []float64{1, 2, 3, 4}
			y := []float64{1, 2, 3, 4}

			m, err := regress.Fit(
				regress.Term{Name: "y", Values: y},
				[]regress.Term{{Name: "x", Values: x}},
			)

			convey.Convey("Then the fit should be refused", func() {
				convey.So(m, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, regress.ErrInsufficientData)
			})
		})

		convey.Convey("When exactly at the row floor", func() {
			x := []float64{1, 2, 3, 4, 5}
			y := []float64{1.1, 2.0, 3.2, 3.9, 5.1}

			m, err := regress.Fit(
				regress.Term{Name: "y", Values: y},
				[]regress.Term{{Name: "x", Values: x}},
			)

			convey.Convey("Then the fit should succeed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(m.N, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When a predictor is duplicated", func() {
			x := []float64{1, 2, 3, 4, 5, 6}
			y := []float64{2, 4, 6, 8, 10, 12}

			m, err := regress.Fit(
				regress.Term{Name: "y", Values: y},
				[]regress.Term{
					{Name: "a", Values: x},
					{Name: "b", Values: x},
				},
			)

			convey.Convey("Then the degenerate design should be rejected", func() {
				convey.So(m, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, regress.ErrDegenerateModel)
			})
		})

		convey.Convey("When a predictor is constant", func() {
			y := []float64{2, 4, 6, 8, 10, 12}
			c := []float64{7, 7, 7, 7, 7, 7}

			m, err := regress.Fit(
				regress.Term{Name: "y", Values: y},
				[]regress.Term{{Name: "c", Values: c}},
			)

			convey.Convey("Then it should be rejected as collinear with the intercept", func() {
				convey.So(m, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, regress.ErrDegenerateModel)
			})
		})

		convey.Convey("When term lengths disagree", func() {
			m, err := regress.Fit(
				regress.Term{Name: "y", Values: []float64{1, 2, 3, 4, 5}},
				[]regress.Term{{Name: "x", Values: []float64{1, 2, 3}}},
			)

			convey.Convey("Then the fit should fail", func() {
				convey.So(m, convey.ShouldBeNil)
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When a custom row floor is set", func() {
			x := []float64{1, 2, 3, 4}
			y := []float64{1.2, 1.9, 3.1, 4.2}

			m, err := regress.Fit(
				regress.Term{Name: "y", Values: y},
				[]regress.Term{{Name: "x", Values: x}},
				regress.WithMinRows(3),
			)

			convey.Convey("Then four rows should be enough", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(m.N, convey.ShouldEqual, 4)
			})
		})
	})
}

func TestFitComplete(t *testing.T) {
	convey.Convey("Given aligned columns", t, func() {
		cols := [][]float64{
			{5, 7, 9, 11, 13, 15},
			{1, 2, 3, 4, 5, 6},
		}

		convey.Convey("When fitting with named columns", func() {
			m, err := regress.FitComplete([]string{"height_cm", "tournament_year"}, cols)

			convey.Convey("Then the first column should be the response", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(m.Formula, convey.ShouldEqual, "height_cm ~ tournament_year")
				slope, ok := m.Slope("tournament_year")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(slope, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When names and columns disagree", func() {
			m, err := regress.FitComplete([]string{"y"}, cols)

			convey.Convey("Then it should fail", func() {
				convey.So(m, convey.ShouldBeNil)
				convey.So(err, convey.ShouldWrap, regress.ErrDegenerateModel)
			})
		})
	})
}
