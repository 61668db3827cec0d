package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test-namespace")
			subsystemOpt := WithSubsystem("test-subsystem")
			bucketsOpt := WithHistogramBuckets([]float64{0.1, 0.5, 1.0})
			enabledOpt := WithEnabled(true)
			registryOpt := WithRegistry(prometheus.NewRegistry())

			Convey("Then they should be valid functions", func() {
				So(namespaceOpt, ShouldNotBeNil)
				So(subsystemOpt, ShouldNotBeNil)
				So(bucketsOpt, ShouldNotBeNil)
				So(enabledOpt, ShouldNotBeNil)
				So(registryOpt, ShouldNotBeNil)
			})
		})
	})
}

func TestManagerCreation(t *testing.T) {
	Convey("Given manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithEnabled(true),
				WithRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestRecording(t *testing.T) {
	Convey("Given the package-level recorders", t, func() {
		Convey("When recording stage outcomes", func() {
			RecordAnalysisCompleted("unadjusted_trend")
			RecordAnalysisSkipped("country_trend", "insufficient_data")
			RecordAnalysisFailed("mixed_effects")
			RecordSliceFit()
			UpdateDatasetRows(352)
			RecordRun(1.25)

			Convey("Then the registry should expose the counters", func() {
				families, err := Registry().Gather()
				So(err, ShouldBeNil)

				names := make(map[string]bool, len(families))
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["stature_engine_analyses_completed_total"], ShouldBeTrue)
				So(names["stature_engine_analyses_skipped_total"], ShouldBeTrue)
				So(names["stature_engine_runs_total"], ShouldBeTrue)
				So(names["stature_engine_dataset_rows"], ShouldBeTrue)
			})
		})
	})
}
