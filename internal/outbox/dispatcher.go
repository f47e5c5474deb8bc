// Package outbox persists queued events in Postgres and delivers them to Kafka.
package outbox

import (
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"example.com/healthsync/internal/events"
	"example.com/healthsync/internal/logging"
)

// DefaultClaimLease is how long a claimed row stays invisible to other dispatchers.
const DefaultClaimLease = 5 * time.Minute

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Envelope is one outbox row.
type Envelope struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// Dispatcher relays unpublished outbox rows to Kafka. Rows are claimed with a
// lease, so a dispatcher that dies mid-batch only delays its rows.
type Dispatcher struct {
	pool      *pgxpool.Pool
	producer  messageWriter
	registry  schemaRegistrar
	dlq       *DLQWriter
	interval  time.Duration
	batchSize int
	lease     time.Duration
	logger    *slog.Logger
	schemaIDs sync.Map
	done      chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClaimLease overrides DefaultClaimLease.
func WithClaimLease(lease time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if lease > 0 {
			d.lease = lease
		}
	}
}

// NewDispatcher constructs a Dispatcher polling every interval for up to batchSize rows.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, interval time.Duration, batchSize int, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		pool:      pool,
		producer:  producer,
		registry:  registry,
		dlq:       NewDLQWriter(pool),
		interval:  interval,
		batchSize: batchSize,
		lease:     DefaultClaimLease,
		logger:    logging.Discard(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start polls until ctx is cancelled. Call it in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start returns.
func (d *Dispatcher) Wait() {
	<-d.done
}

// drain publishes one claimed batch. Rows whose topic could not be written
// are copied to outbox_dlq; every claimed row is then marked published.
func (d *Dispatcher) drain(ctx context.Context) error {
	started := time.Now()
	batch, err := d.claim(ctx)
	if err != nil || len(batch) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(started).Seconds()) }()

	for topic, envs := range groupByTopic(batch) {
		if err := d.publish(ctx, topic, envs); err != nil {
			d.logger.Warn("outbox publish failed, routing to dlq", "topic", topic, "events", len(envs), "error", err)
			failedCounter.Add(float64(len(envs)))
			if err := d.deadLetter(ctx, envs, err); err != nil {
				return err
			}
			continue
		}
		deliveredCounter.Add(float64(len(envs)))
	}
	return d.markPublished(ctx, batch)
}

func (d *Dispatcher) claim(ctx context.Context) ([]Envelope, error) {
	const stmt = `UPDATE outbox SET claimed_at = NOW()
        WHERE event_id IN (
            SELECT event_id FROM outbox
            WHERE published_at IS NULL
              AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
            ORDER BY event_id
            LIMIT $1
            FOR UPDATE SKIP LOCKED)
        RETURNING event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload`

	rows, err := d.pool.Query(ctx, stmt, d.batchSize, d.lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	defer rows.Close()

	var batch []Envelope
	for rows.Next() {
		var env Envelope
		if err := rows.Scan(&env.EventID, &env.AggregateType, &env.AggregateID, &env.EventType, &env.Topic, &env.SchemaSubject, &env.PartitionKey, &env.Payload); err != nil {
			return nil, err
		}
		batch = append(batch, env)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(batch, func(a, b Envelope) int { return cmp.Compare(a.EventID, b.EventID) })
	return batch, nil
}

func groupByTopic(batch []Envelope) map[string][]Envelope {
	out := make(map[string][]Envelope)
	for _, env := range batch {
		out[env.Topic] = append(out[env.Topic], env)
	}
	return out
}

func (d *Dispatcher) publish(ctx context.Context, topic string, envs []Envelope) error {
	msgs := make([]kafka.Message, 0, len(envs))
	now := time.Now().UTC()
	for _, env := range envs {
		schema, ok := schemaCatalog[env.EventType]
		if !ok {
			return fmt.Errorf("no schema registered for event_type=%s", env.EventType)
		}
		id, err := d.schemaID(ctx, env.SchemaSubject, schema)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(env.PartitionKey),
			Value: encodeWireFormat(id, env.Payload),
			Time:  now,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(env.EventType)},
				{Key: "schema_subject", Value: []byte(env.SchemaSubject)},
				{Key: "aggregate_id", Value: []byte(env.AggregateID)},
			},
		})
	}
	return d.producer.WriteMessages(ctx, topic, msgs...)
}

// schemaID caches registry lookups per subject and schema body.
func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	key := subject + "\x00" + schema
	if id, ok := d.schemaIDs.Load(key); ok {
		return id.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, fmt.Errorf("resolve schema %s: %w", subject, err)
	}
	d.schemaIDs.Store(key, id)
	return id, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, batch []Envelope) error {
	ids := make([]int64, len(batch))
	for i, env := range batch {
		ids[i] = env.EventID
	}
	if _, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}
	return nil
}

func (d *Dispatcher) deadLetter(ctx context.Context, envs []Envelope, cause error) error {
	for _, env := range envs {
		if err := d.dlq.Write(ctx, env, fmt.Sprintf("%s (topic=%s)", cause, env.Topic)); err != nil {
			return fmt.Errorf("write outbox dlq: %w", err)
		}
		dlqCounter.WithLabelValues(env.Topic).Inc()
	}
	return nil
}

// encodeWireFormat prefixes payload with the Confluent header: magic byte 0
// followed by the big-endian schema ID.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:], uint32(schemaID))
	return append(frame, payload...)
}

// schemaCatalog maps each published event type to its JSON schema.
var schemaCatalog = map[string]string{
	events.BackfillRequestedType: backfillRequestedSchema,
}
