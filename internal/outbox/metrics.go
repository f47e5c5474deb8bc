package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "healthsync"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Outbox events published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox events that failed to publish.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent delivering and marking an outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Outbox events routed to outbox_dlq, by topic.",
	}, []string{"topic"})

	dlqOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "DLQ entries handled by the replay manager, by outcome.",
	}, []string{"outcome", "event_type"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Entries remaining in outbox_dlq that are not quarantined.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, dlqOutcomeCounter, dlqBacklogGauge)
}

func recordDLQProcessed(entry dlqEntry) {
	dlqOutcomeCounter.WithLabelValues("processed", entry.EventType).Inc()
}

func recordDLQRequeued(entry dlqEntry) {
	dlqOutcomeCounter.WithLabelValues("requeued", entry.EventType).Inc()
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqOutcomeCounter.WithLabelValues("quarantined", entry.EventType).Inc()
}

func recordDLQRetry(entry dlqEntry) {
	dlqOutcomeCounter.WithLabelValues("retry_scheduled", entry.EventType).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(count))
}
