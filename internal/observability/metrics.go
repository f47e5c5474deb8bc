// Package observability registers Prometheus collectors and error reporting.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record outcomes.
const (
	OutcomePersisted = "persisted"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

var (
	webhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Webhook events received, labeled by event type.",
	}, []string{"type"})

	recordOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "ingest",
		Name:      "records_total",
		Help:      "Provider records processed, labeled by data type, ingestion source and outcome.",
	}, []string{"data_type", "source", "outcome"})

	timestampFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "ingest",
		Name:      "timestamp_fallbacks_total",
		Help:      "Records persisted with the processing time because no usable timestamp was present.",
	}, []string{"data_type", "source"})

	lastPersisted = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthsync",
		Subsystem: "ingest",
		Name:      "last_record_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent record persisted.",
	})

	backfillRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "backfill",
		Name:      "runs_total",
		Help:      "Historical backfill runs, labeled by result.",
	}, []string{"result"})

	backfillDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "healthsync",
		Subsystem: "backfill",
		Name:      "run_duration_seconds",
		Help:      "Wall time of historical backfill runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(webhookEvents, recordOutcomes, timestampFallbacks, lastPersisted, backfillRuns, backfillDuration)
}

// RecordWebhookEvent counts a received webhook event.
func RecordWebhookEvent(eventType string) {
	webhookEvents.WithLabelValues(eventType).Inc()
}

// RecordOutcome counts a processed record.
func RecordOutcome(dataType, source, outcome string) {
	recordOutcomes.WithLabelValues(dataType, source, outcome).Inc()
	if outcome == OutcomePersisted {
		lastPersisted.Set(float64(time.Now().Unix()))
	}
}

// RecordTimestampFallback counts a record stored with a substituted timestamp.
func RecordTimestampFallback(dataType, source string) {
	timestampFallbacks.WithLabelValues(dataType, source).Inc()
}

// RecordBackfill tracks a finished backfill run.
func RecordBackfill(started time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	backfillRuns.WithLabelValues(result).Inc()
	backfillDuration.Observe(time.Since(started).Seconds())
}
