// Package metrics defines the Prometheus metric collectors used across the
// aggregator service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	MutationsTotal       *prometheus.CounterVec
	FlushesTotal         *prometheus.CounterVec
	FlushWaitSeconds     prometheus.Histogram
	PendingCompletions   prometheus.Gauge
	ActiveWorkers        prometheus.Gauge
	BootstrapsTotal      *prometheus.CounterVec
	SnapshotSavesTotal   *prometheus.CounterVec
	ReindexJobsTotal     *prometheus.CounterVec
	ReindexBatchesTotal  *prometheus.CounterVec
	ReindexChunksTotal   prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_mutations_total",
				Help: "Total mutation events applied, by operation (add, delete).",
			},
			[]string{"operation"},
		),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_flushes_total",
				Help: "Total batch flushes, by trigger (batch, idle).",
			},
			[]string{"trigger"},
		),
		FlushWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stats_flush_wait_seconds",
				Help:    "Time a request spent waiting for its flush.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		PendingCompletions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stats_pending_completions",
				Help: "Number of requests currently waiting for a flush.",
			},
		),
		ActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stats_active_workers",
				Help: "Number of tenant batch workers currently running.",
			},
		),
		BootstrapsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_bootstraps_total",
				Help: "Tenant state bootstraps, by source (snapshot, corpus, degraded).",
			},
			[]string{"source"},
		),
		SnapshotSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_snapshot_saves_total",
				Help: "Snapshot store writes, by status (ok, error).",
			},
			[]string{"status"},
		),
		ReindexJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reindex_jobs_total",
				Help: "Reindex jobs run, by status (ok, degraded, error).",
			},
			[]string{"status"},
		),
		ReindexBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reindex_batches_total",
				Help: "Reindex upsert batches, by status (ok, fetch_error, upsert_error).",
			},
			[]string{"status"},
		),
		ReindexChunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reindex_chunks_total",
				Help: "Total chunks reweighted by reindex jobs.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.MutationsTotal,
		m.FlushesTotal,
		m.FlushWaitSeconds,
		m.PendingCompletions,
		m.ActiveWorkers,
		m.BootstrapsTotal,
		m.SnapshotSavesTotal,
		m.ReindexJobsTotal,
		m.ReindexBatchesTotal,
		m.ReindexChunksTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
