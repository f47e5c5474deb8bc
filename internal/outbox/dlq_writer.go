package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter persists events the dispatcher could not publish.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write records an undeliverable envelope alongside the supplied reason.
func (w *DLQWriter) Write(ctx context.Context, env Envelope, reason string) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, NOW())`,
		env.EventID, env.EventType, env.Topic, env.Payload, reason, env.AggregateType, env.AggregateID, env.SchemaSubject, env.PartitionKey,
	)
	return err
}
