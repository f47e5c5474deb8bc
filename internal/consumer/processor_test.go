package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func framed(schemaID int, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], payload)
	return value
}

func backfillMessage(offset int64, payload []byte) kafka.Message {
	return kafka.Message{
		Topic:     "health_backfill_requests",
		Partition: 0,
		Offset:    offset,
		Key:       []byte("conn-1"),
		Time:      time.Now().UTC(),
		Value:     framed(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("backfill.requested")},
			{Key: "schema_subject", Value: []byte("health_backfill_requests-value")},
		},
	}
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, nil))
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"user_id":"42","connection_id":"conn-1"}`)
	reader := &stubReader{messages: []kafka.Message{backfillMessage(10, payload)}, after: contextCanceled}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(testLogger(t)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "backfill.requested", handler.last.EventType)
	require.Equal(t, "health_backfill_requests-value", handler.last.SchemaSubject)
	require.Equal(t, "conn-1", handler.last.Key)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerErrorWithoutDeadLetter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{messages: []kafka.Message{backfillMessage(20, []byte(`{}`))}, after: contextCanceled}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(testLogger(t)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorRetriesThenDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := backfillMessage(30, []byte(`{"user_id":"42"}`))
	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &stubHandler{err: errors.New("provider unavailable")}
	dlq := &stubWriter{}

	before := testutil.ToFloat64(deadLetterCounter.WithLabelValues(msg.Topic, "backfill.requested"))

	processor := NewProcessor(reader, handler,
		WithLogger(testLogger(t)),
		WithRetry(3, time.Millisecond),
		WithDeadLetter(dlq, "health_backfill_requests_dlq"),
	)

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Equal(t, 1, reader.commitCalls, "dead-lettered message is committed")
	require.Equal(t, "health_backfill_requests_dlq", dlq.topic)
	require.Len(t, dlq.messages, 1)
	require.Equal(t, msg.Value, dlq.messages[0].Value)

	reason, ok := headerValue(dlq.messages[0], "dlq_reason")
	require.True(t, ok)
	require.Equal(t, "provider unavailable", string(reason))
	require.Equal(t, before+1, testutil.ToFloat64(deadLetterCounter.WithLabelValues(msg.Topic, "backfill.requested")))
}

func TestProcessorRecoversOnRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{messages: []kafka.Message{backfillMessage(40, []byte(`{}`))}, after: contextCanceled}
	handler := &stubHandler{failures: 1, err: errors.New("transient")}
	dlq := &stubWriter{}

	processor := NewProcessor(reader, handler, WithRetry(2, time.Millisecond), WithDeadLetter(dlq, "dlq"))
	require.ErrorIs(t, processor.Run(ctx), context.Canceled)

	require.Equal(t, 2, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Empty(t, dlq.messages)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bad := kafka.Message{Topic: "health_backfill_requests", Value: []byte{0, 1}}
	reader := &stubReader{messages: []kafka.Message{bad}, after: contextCanceled}
	handler := &stubHandler{}

	require.ErrorIs(t, NewProcessor(reader, handler).Run(ctx), context.Canceled)
	require.Zero(t, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls    int
	failures int
	err      error
	last     Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	if h.failures > 0 && h.calls > h.failures {
		return nil
	}
	return h.err
}

type stubWriter struct {
	topic    string
	messages []kafka.Message
}

func (w *stubWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	w.topic = topic
	w.messages = append(w.messages, msgs...)
	return nil
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
