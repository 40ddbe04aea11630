package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackernorm",
		Subsystem: "worker",
		Name:      "sessions_processed_total",
		Help:      "Number of sessions processed by the worker, by source format and outcome.",
	}, []string{"format", "outcome"})

	parseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trackernorm",
		Subsystem: "worker",
		Name:      "parse_duration_seconds",
		Help:      "Time spent analyzing a session file.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"format"})

	lastProcessedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackernorm",
		Subsystem: "worker",
		Name:      "last_processed_timestamp_seconds",
		Help:      "Timestamp of the most recently processed session.",
	})
)

func init() {
	prometheus.MustRegister(processedCounter, parseDuration, lastProcessedGauge)
}

func recordProcessed(format, outcome string, took time.Duration, at time.Time) {
	if format == "" {
		format = "unknown"
	}
	processedCounter.WithLabelValues(format, outcome).Inc()
	parseDuration.WithLabelValues(format).Observe(took.Seconds())
	lastProcessedGauge.Set(float64(at.Unix()))
}
