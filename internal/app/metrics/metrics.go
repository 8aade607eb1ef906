// Package metrics exposes the keeper's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	schedulerCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedkeeper",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Total number of update-feed scheduler cycles.",
		},
		[]string{"chain", "provider", "result"},
	)

	schedulerBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedkeeper",
			Subsystem: "scheduler",
			Name:      "batches_total",
			Help:      "Total number of registry batch reads.",
		},
		[]string{"chain", "provider", "result"},
	)

	activeFeeds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "feedkeeper",
			Subsystem: "scheduler",
			Name:      "active_feeds",
			Help:      "Active feeds reported by the registry on the last cycle.",
		},
		[]string{"chain"},
	)

	signedDataFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedkeeper",
			Subsystem: "fetcher",
			Name:      "fetches_total",
			Help:      "Total number of signed-data URL fetches.",
		},
		[]string{"result"},
	)

	signedDataFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "feedkeeper",
			Subsystem: "fetcher",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of signed-data URL fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
	)

	dataPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedkeeper",
			Subsystem: "fetcher",
			Name:      "data_points_total",
			Help:      "Signed data points accepted into or rejected from the store.",
		},
		[]string{"outcome"},
	)

	stagedUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedkeeper",
			Subsystem: "update",
			Name:      "staged_total",
			Help:      "Update decisions staged for submission.",
		},
		[]string{"chain"},
	)
)

func init() {
	Registry.MustRegister(
		schedulerCycles,
		schedulerBatches,
		activeFeeds,
		signedDataFetches,
		signedDataFetchDuration,
		dataPoints,
		stagedUpdates,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordSchedulerCycle records one completed or aborted scheduler cycle.
func RecordSchedulerCycle(chain, provider string, success bool) {
	schedulerCycles.WithLabelValues(chain, provider, result(success)).Inc()
}

// RecordSchedulerBatch records one registry batch read outcome.
func RecordSchedulerBatch(chain, provider string, success bool) {
	schedulerBatches.WithLabelValues(chain, provider, result(success)).Inc()
}

// SetActiveFeeds records the registry's reported active-feed count for a
// chain.
func SetActiveFeeds(chain string, count uint64) {
	activeFeeds.WithLabelValues(chain).Set(float64(count))
}

// RecordSignedDataFetch records one signed-data URL fetch.
func RecordSignedDataFetch(duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	signedDataFetches.WithLabelValues(result(success)).Inc()
	signedDataFetchDuration.Observe(duration.Seconds())
}

// RecordDataPoints records accepted and rejected signed data points.
func RecordDataPoints(accepted, rejected int) {
	if accepted > 0 {
		dataPoints.WithLabelValues("accepted").Add(float64(accepted))
	}
	if rejected > 0 {
		dataPoints.WithLabelValues("rejected").Add(float64(rejected))
	}
}

// RecordStagedUpdate records an update decision staged for submission.
func RecordStagedUpdate(chain string) {
	stagedUpdates.WithLabelValues(chain).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
