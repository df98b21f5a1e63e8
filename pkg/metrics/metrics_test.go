package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with resonance naming", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "resonance")
				So(manager.subsystem, ShouldEqual, "engine")
				So(manager.Enabled(), ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("prefix"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.name("x"), ShouldEqual, "prefix_x")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.Enabled(), ShouldBeFalse)
				So(manager.RefreshInterval(), ShouldEqual, 5*time.Second)
				So(manager.customLabels["env"], ShouldEqual, "test")
			})
		})

		Convey("When empty option values are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "resonance")
				So(manager.subsystem, ShouldEqual, "engine")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When two managers share a registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording fingerprint metrics", func() {
			before := testutil.ToFloat64(globalManager.fingerprintsRegistered)
			RecordFingerprintRegistered()
			RecordFingerprintArchived()
			UpdateActiveFingerprints(3)
			UpdateStoredComparisons(12)

			Convey("Then the values are visible", func() {
				So(testutil.ToFloat64(globalManager.fingerprintsRegistered), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.fingerprintsActive), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.comparisonsStored), ShouldEqual, 12)
			})
		})

		Convey("When recording pulse and match metrics", func() {
			before := testutil.ToFloat64(globalManager.matches.WithLabelValues("faint-echo"))
			RecordPulse("text")
			RecordMatch("faint-echo", 0.25)
			RecordScoringLatency(0.4)

			Convey("Then the labelled counter moves", func() {
				So(testutil.ToFloat64(globalManager.matches.WithLabelValues("faint-echo")), ShouldEqual, before+1)
			})
		})

		Convey("When recording scheduler and queue metrics", func() {
			UpdateSchedulerRunning(true)
			So(testutil.ToFloat64(globalManager.schedulerRunning), ShouldEqual, 1)
			UpdateSchedulerRunning(false)
			So(testutil.ToFloat64(globalManager.schedulerRunning), ShouldEqual, 0)

			UpdateQueueSize(4)
			UpdateQueueCapacity(16)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 4)
			So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 16)

			before := testutil.ToFloat64(globalManager.notificationsDropped.WithLabelValues("match_found"))
			RecordNotificationDropped("match_found")
			So(testutil.ToFloat64(globalManager.notificationsDropped.WithLabelValues("match_found")), ShouldEqual, before+1)
		})

		Convey("When recording the remaining metrics", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordStoreWrite("file", "fingerprints", 1.5)
					RecordStoreError("sqlite", "append")
					RecordStoreCorruption("file", "comparisons")
					RecordPollTick(12)
					RecordAdapterItems("inbox", 2)
					RecordAdapterError("web")
					RecordDuplicateItem()
					RecordNotification("high_priority")
					RecordQueueEnqueue()
					RecordQueueDequeue()
					UpdateDispatcherCount(2)
					RecordDispatchLatency(0.3)
					RecordSinkError("log")
					RecordHTTPRequest("/v1/pulses", "POST", "201")
					RecordHTTPRequestDuration("/v1/pulses", "POST", "201", 2.5)
					RecordErrorByComponent("registry", "persist")
					RecordErrorByEndpoint("/v1/pulses", "POST", "bad_request")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(8)
					RecordSystemGCPauseTime(0.2)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording is switched off", func() {
			Configure(WithMetricsEnabled(false), WithRefreshInterval(3*time.Second))
			defer Configure(WithMetricsEnabled(true), WithRefreshInterval(defaultRefreshInterval))
			before := testutil.ToFloat64(globalManager.fingerprintsRegistered)
			UpdateQueueSize(7)
			queued := testutil.ToFloat64(globalManager.queueSize)
			RecordFingerprintRegistered()
			UpdateQueueSize(99)

			Convey("Then recorders leave the metrics untouched", func() {
				So(Enabled(), ShouldBeFalse)
				So(RefreshInterval(), ShouldEqual, 3*time.Second)
				So(testutil.ToFloat64(globalManager.fingerprintsRegistered), ShouldEqual, before)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, queued)
			})
		})

		Convey("When gathering the custom registry", func() {
			families, err := GetRegistry().Gather()

			Convey("Then resonance metrics are exported", func() {
				So(err, ShouldBeNil)
				names := make(map[string]bool, len(families))
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["resonance_engine_fingerprints_registered_total"], ShouldBeTrue)
				So(names["resonance_engine_queue_size"], ShouldBeTrue)
			})
		})
	})
}
