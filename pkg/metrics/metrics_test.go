package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with pipeline defaults", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "pitwall")
				So(manager.subsystem, ShouldEqual, "pipeline")
				So(manager.enabled, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors carry the constant labels", func() {
				manager.featureSetsSaved.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldNotBeEmpty)

				found := false
				for _, mf := range families {
					if mf.GetName() == "test_namespace_test_subsystem_feature_sets_saved_total" {
						found = true
						So(mf.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording pipeline activity", func() {
			before := testutil.ToFloat64(globalManager.eventsLoaded)
			RecordEventLoaded()
			RecordEventLoaded()
			So(testutil.ToFloat64(globalManager.eventsLoaded), ShouldEqual, before+2)

			UpdateFeatureShape(120, 30)
			So(testutil.ToFloat64(globalManager.featureRows), ShouldEqual, 120)
			So(testutil.ToFloat64(globalManager.featureColumns), ShouldEqual, 30)

			UpdateModelMetric("elo", "mae", 2.5)
			So(testutil.ToFloat64(globalManager.modelMetric.WithLabelValues("elo", "mae")), ShouldEqual, 2.5)

			ratings := testutil.ToFloat64(globalManager.ratingUpdates)
			RecordRatingUpdates(0)
			RecordRatingUpdates(6)
			So(testutil.ToFloat64(globalManager.ratingUpdates), ShouldEqual, ratings+6)
		})

		Convey("When metrics are disabled", func() {
			globalManager.enabled = false
			defer func() { globalManager.enabled = true }()

			before := testutil.ToFloat64(globalManager.featureSetsSaved)
			RecordFeatureSetSaved()
			So(testutil.ToFloat64(globalManager.featureSetsSaved), ShouldEqual, before)
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
