package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should use the default refresh interval", func() {
				So(manager, ShouldNotBeNil)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("desk"),
				WithLatencyBuckets([]float64{1, 5, 10}),
				WithRefreshInterval(3*time.Second),
				WithConstLabels(map[string]string{"desk": "a1"}),
				WithPrometheusRegistry(registry),
			)
			manager.framesScored.WithLabelValues("aligned", "score").Inc()

			Convey("Then metric names and labels should reflect them", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_desk_frames_scored_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "desk")
					}
				}
				So(found, ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, 3*time.Second)
			})
		})

		Convey("When options receive empty values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithLatencyBuckets(nil),
				WithRefreshInterval(-time.Second),
				WithConstLabels(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "sitstraight")
				So(manager.subsystem, ShouldEqual, "posture")
				So(manager.latencyBuckets, ShouldNotBeEmpty)
				So(manager.refreshInterval, ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestCurrent(t *testing.T) {
	Convey("Current returns the global manager", t, func() {
		m, err := Current()
		So(err, ShouldBeNil)
		So(m, ShouldEqual, globalManager)
	})
}

func TestPostureMetrics(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When a frame is scored", func() {
			before := testutil.ToFloat64(globalManager.framesScored.WithLabelValues("neutral", "process"))
			RecordFrameScored("neutral", "process", 70, 0.3)

			Convey("Then the state counter and last-value gauges should move", func() {
				after := testutil.ToFloat64(globalManager.framesScored.WithLabelValues("neutral", "process"))
				So(after-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.lastScore), ShouldEqual, 70)
				So(testutil.ToFloat64(globalManager.lastSlouch), ShouldAlmostEqual, 0.3)
			})
		})

		Convey("When pipeline failures are recorded", func() {
			dropped := testutil.ToFloat64(globalManager.framesDropped)
			decode := testutil.ToFloat64(globalManager.decodeErrors)
			RecordFrameDropped()
			RecordDecodeError()
			RecordIncompleteLandmarks()
			RecordExtractorError("timeout")
			RecordConfigReload("ok")

			Convey("Then the counters should increase", func() {
				So(testutil.ToFloat64(globalManager.framesDropped), ShouldEqual, dropped+1)
				So(testutil.ToFloat64(globalManager.decodeErrors), ShouldEqual, decode+1)
			})
		})

		Convey("When operational metrics are updated", func() {
			UpdateQueueSize(12)
			UpdateQueueCapacity(100)
			UpdateQueueUtilization(0.12)
			UpdateWorkerCount(4)
			UpdateStoreRecords(42)
			UpdateWSClients(2)

			Convey("Then the gauges should hold the values", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.storeRecordsTotal), ShouldEqual, 42)
				So(testutil.ToFloat64(globalManager.wsClients), ShouldEqual, 2)
			})
		})

		Convey("When recording the remaining helpers", func() {
			So(func() {
				RecordScoringLatency(0.2)
				RecordInferenceLatency(35)
				RecordSampleProcessed()
				RecordSampleDuplicate()
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordWorkerProcessingLatency(1)
				RecordWorkerError()
				RecordStoreWriteLatency(0.5)
				RecordStoreQueryLatency(0.5)
				RecordHTTPRequest("/score", "POST", "200")
				RecordHTTPRequestDuration("/score", "POST", "200", 2)
				RecordRateLimited("/process")
				RecordErrorByComponent("extractor", "timeout")
				RecordErrorByEndpoint("/process", "POST", "decode_error")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.samplesProcessed)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordSampleProcessed()
					RecordFrameScored("aligned", "samples", 90, 0.1)
					UpdateQueueSize(j)
				}
			}()
		}
		wg.Wait()

		Convey("Then no increments should be lost", func() {
			So(testutil.ToFloat64(globalManager.samplesProcessed)-before, ShouldEqual, 1000)
		})
	})
}
