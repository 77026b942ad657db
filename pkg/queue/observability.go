package queue

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuectl_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"store"},
	)

	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuectl_jobs_processed_total",
			Help: "Total number of claim-execute cycles finished by workers",
		},
		[]string{"status"},
	)

	jobsRetryTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queuectl_jobs_retry_total",
			Help: "Total number of retries scheduled after failed executions",
		},
	)

	jobsDeadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queuectl_jobs_dead_total",
			Help: "Total number of jobs moved to the dead-letter queue",
		},
	)

	jobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queuectl_jobs_inflight",
			Help: "Current number of claimed jobs being executed by workers",
		},
	)
)

// RecordEnqueued counts one enqueued job for the given store kind.
func RecordEnqueued(store string) {
	jobsEnqueuedTotal.WithLabelValues(normalizeMetricLabel(store, "unknown")).Inc()
}

// RecordProcessed counts one finished claim-execute cycle by outcome status.
func RecordProcessed(status string) {
	jobsProcessedTotal.WithLabelValues(normalizeMetricLabel(status, "unknown")).Inc()
}

// RecordRetry counts one scheduled retry.
func RecordRetry() {
	jobsRetryTotal.Inc()
}

// RecordDead counts one job exhausting its retries.
func RecordDead() {
	jobsDeadTotal.Inc()
}

// IncInFlight marks one more job as being executed.
func IncInFlight() {
	jobsInFlight.Inc()
}

// DecInFlight marks one job execution as finished.
func DecInFlight() {
	jobsInFlight.Dec()
}

func normalizeMetricLabel(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
