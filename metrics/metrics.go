// Package metrics exposes prometheus instruments for the mail pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mailsift"

var (
	// PollCycles counts ingestion poll cycles per folder and outcome.
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Total number of mailbox poll cycles",
		},
		[]string{"folder", "status"}, // status: ok, failed
	)

	// MessagesIngested counts messages handed to the pipeline.
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Total number of fetched messages by dedup outcome",
		},
		[]string{"outcome"}, // outcome: new, duplicate, invalid
	)

	// RecordsProcessed counts pipeline outcomes.
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Total number of records run through the pipeline",
		},
		[]string{"status"}, // status: processed, failed, quarantined, interrupted
	)

	// StepDuration observes pipeline step latency.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_duration_seconds",
			Help:      "Pipeline step duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"step", "status"},
	)

	// Notifications counts delivery attempts by outcome.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_attempts_total",
			Help:      "Total number of notification delivery attempts",
		},
		[]string{"channel", "status"}, // status: sent, failed, exhausted
	)

	// IndexEntries reports the number of vectors in the index.
	IndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Number of entries in the vector index",
		},
	)

	// QueryDuration observes retrieval and answer latency.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Search and answer duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"kind", "status"}, // kind: search, answer
	)
)

// Status renders an error as a metric label.
func Status(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

// RecordPollCycle records one poll of a folder.
func RecordPollCycle(folder string, err error) {
	PollCycles.WithLabelValues(folder, Status(err)).Inc()
}

// IncrementIngested counts a fetched message by outcome.
func IncrementIngested(outcome string) {
	MessagesIngested.WithLabelValues(outcome).Inc()
}

// IncrementProcessed counts a pipeline outcome.
func IncrementProcessed(status string) {
	RecordsProcessed.WithLabelValues(status).Inc()
}

// RecordStepDuration records the latency of a pipeline step.
func RecordStepDuration(step string, err error, duration time.Duration) {
	StepDuration.WithLabelValues(step, Status(err)).Observe(duration.Seconds())
}

// IncrementNotification counts a delivery attempt.
func IncrementNotification(channel, status string) {
	Notifications.WithLabelValues(channel, status).Inc()
}

// SetIndexEntries sets the index size gauge.
func SetIndexEntries(n int) {
	IndexEntries.Set(float64(n))
}

// RecordQueryDuration records the latency of a search or answer.
func RecordQueryDuration(kind string, err error, duration time.Duration) {
	QueryDuration.WithLabelValues(kind, Status(err)).Observe(duration.Seconds())
}
