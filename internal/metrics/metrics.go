package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentio_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	SamplerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentio_sampler_ticks_total",
			Help: "Sampler ticks by modality and outcome",
		},
		[]string{"modality", "outcome"},
	)

	ClassifyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentio_classify_latency_seconds",
			Help:    "Classifier round-trip latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"modality"},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentio_persist_failures_total",
			Help: "Event log appends that failed and were dropped",
		},
	)

	ActiveCaptures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentio_active_capture_sessions",
			Help: "Capture sessions currently holding a device stream",
		},
		[]string{"modality"},
	)
)

// Outcomes de un tick del sampler.
const (
	OutcomeClassified = "classified"
	OutcomeNoSubject  = "no_subject"
	OutcomeSkipped    = "skipped"
	OutcomeError      = "error"
)
