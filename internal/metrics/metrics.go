// Package metrics provides Prometheus metrics for the docsplit service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docsplit"

// Ingest metrics track documents moving through the pipeline.
var (
	// DocumentsTotal counts documents by source MIME type and final status.
	DocumentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_total",
		Help:      "Documents processed by the ingest pipeline",
	}, []string{"mime", "status"})

	// StageDuration is a histogram of pipeline stage duration in seconds.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"stage"})

	// StageErrorsTotal counts stage failures.
	StageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_errors_total",
		Help:      "Pipeline stage failures",
	}, []string{"stage"})

	// ChunksCreatedTotal counts chunks produced by the splitter.
	ChunksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_created_total",
		Help:      "Chunks produced by the splitter",
	})

	// ChunkSizeBytes is a histogram of produced chunk sizes.
	ChunkSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chunk_size_bytes",
		Help:      "Size of produced chunks in bytes",
		Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000},
	})

	// JobsInFlight is the number of jobs currently being processed.
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_in_flight",
		Help:      "Jobs currently being processed by workers",
	})

	// QueueDepth is the number of jobs waiting in the ingest queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Jobs waiting in the ingest queue",
	})
)

// HTTP metrics track the API surface.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordStage records one pipeline stage execution.
func RecordStage(stage string, duration time.Duration, err error) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		StageErrorsTotal.WithLabelValues(stage).Inc()
	}
}

// RecordDocument records a finished document by MIME type and status.
func RecordDocument(mime, status string) {
	DocumentsTotal.WithLabelValues(mime, status).Inc()
}

// RecordChunks records counts and sizes for one document's chunks.
func RecordChunks(chunks []string) {
	ChunksCreatedTotal.Add(float64(len(chunks)))
	for _, c := range chunks {
		ChunkSizeBytes.Observe(float64(len(c)))
	}
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
