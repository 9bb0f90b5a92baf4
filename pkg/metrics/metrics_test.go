package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should use the attune namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "attune")
				So(manager.subsystem, ShouldEqual, "engine")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 2, 3}),
				WithPrometheusRegistry(registry),
			)
			manager.reactionsProcessed.Inc()

			Convey("Then metric names should reflect the options", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_reactions_processed_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
				So(manager.histogramBuckets, ShouldResemble, []float64{1, 2, 3})
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "attune")
				So(manager.subsystem, ShouldEqual, "engine")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording pipeline metrics", func() {
			before := testutil.ToFloat64(globalManager.reactionsProcessed)
			RecordReactionProcessed()
			RecordReactionProcessed()

			Convey("Then the counter advances", func() {
				So(testutil.ToFloat64(globalManager.reactionsProcessed), ShouldEqual, before+2)
			})
		})

		Convey("When setting gauges", func() {
			UpdateActiveSessions(3)
			UpdateActiveParticipants(7)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.activeSessions), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.activeParticipants), ShouldEqual, 7)
			})
		})

		Convey("When recording every helper", func() {
			So(func() {
				RecordReactionRejected("invalid_sentiment")
				RecordReactionDebounced()
				RecordPipelineLatency(1.2)
				RecordAutoAdvance()
				RecordRecommendationLatency("combined", 3.4)
				RecordRecommendationsUpdated()
				RecordRecommendationFallback()
				RecordSessionCreated()
				RecordSessionEnded()
				RecordBusPublished("SESSION_CREATED")
				RecordBusDropped()
				UpdateBusSubscribers(2)
				RecordReactionLogWrite()
				RecordReactionLogFailure()
				UpdateReactionLogBreakerState(2)
				UpdateWSConnections(1)
				RecordWSMessage("in")
				RecordHTTPRequest("/sessions", "POST", "201")
				RecordHTTPRequestDuration("/sessions", "POST", "201", 5)
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerActiveCount(4)
				RecordWorkerProcessingLatency(0.5)
				RecordWorkerError()
				RecordErrorByComponent("pipeline", "invalid_reaction")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordSessionCreated()
		families, err := GetRegistry().Gather()

		Convey("Then it exposes only attune metrics", func() {
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "attune_engine_"), ShouldBeTrue)
			}
		})
	})
}
