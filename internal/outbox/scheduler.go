package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/events"
	"example.com/healthsync/internal/ingest"
)

// Scheduler queues backfill requests as outbox rows for the dispatcher to publish.
type Scheduler struct {
	pool  *pgxpool.Pool
	topic string
}

// NewScheduler constructs a Scheduler publishing to topic.
func NewScheduler(pool *pgxpool.Pool, topic string) *Scheduler {
	return &Scheduler{pool: pool, topic: topic}
}

// ScheduleBackfill implements ingest.BackfillScheduler. Rescheduling the same
// request (same connection and request time) is a no-op.
func (s *Scheduler) ScheduleBackfill(ctx context.Context, req ingest.BackfillRequest) error {
	body, err := json.Marshal(events.BackfillRequested{
		UserID:       req.UserID,
		ConnectionID: req.ConnectionID,
		Reason:       string(req.Reason),
		RequestedAt:  req.RequestedAt.UTC(),
	})
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

	dedupeKey := fmt.Sprintf("%s:%s:%d", req.ConnectionID, events.BackfillRequestedType, req.RequestedAt.UnixNano())
	_, err = s.pool.Exec(ctx, stmt,
		"connection",
		req.ConnectionID,
		events.BackfillRequestedType,
		s.topic,
		s.topic+"-value",
		req.ConnectionID,
		body,
		dedupeKey,
	)
	if err != nil {
		return fmt.Errorf("enqueue backfill: %w", err)
	}
	return nil
}
