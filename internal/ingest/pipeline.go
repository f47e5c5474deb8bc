package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"example.com/healthsync/internal/dedup"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/logging"
	"example.com/healthsync/internal/observability"
	"example.com/healthsync/internal/timestamp"
	"example.com/healthsync/internal/validation"
)

// BackfillScheduler hands a historical import off to a worker. Implementations
// must return once the request is durably queued, not when the import finishes.
type BackfillScheduler interface {
	ScheduleBackfill(ctx context.Context, req BackfillRequest) error
}

// BackfillRequest identifies the connection to import history for.
type BackfillRequest struct {
	UserID       string
	ConnectionID string
	Reason       EventType
	RequestedAt  time.Time
}

// Result summarises how an event was applied.
type Result struct {
	Type       EventType
	Persisted  int
	Invalid    int
	Duplicates int
	Fallbacks  int
	// Skipped names why the event was acknowledged without being applied.
	Skipped string
}

// Pipeline applies webhook events to connections and records.
type Pipeline struct {
	users       domain.UserRepository
	connections domain.ConnectionRepository
	records     domain.RecordRepository
	guard       *dedup.Guard
	scheduler   BackfillScheduler
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the processing clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline constructs a Pipeline.
func NewPipeline(users domain.UserRepository, connections domain.ConnectionRepository, records domain.RecordRepository, scheduler BackfillScheduler, opts ...Option) *Pipeline {
	p := &Pipeline{
		users:       users,
		connections: connections,
		records:     records,
		guard:       dedup.NewGuard(records),
		scheduler:   scheduler,
		logger:      logging.Discard(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest applies evt. Validation, timestamp and duplicate outcomes are reported
// in the Result; only storage or queue failures are returned as errors, since
// the provider should redeliver those.
func (p *Pipeline) Ingest(ctx context.Context, evt Event) (Result, error) {
	observability.RecordWebhookEvent(string(evt.Type))
	logger := p.logger.With("event_type", string(evt.Type), "terra_user_id", string(evt.User.UserID))

	switch evt.Type {
	case EventAuth, EventUserReauth:
		return p.link(ctx, logger, evt)
	case EventDeauth:
		return p.unlink(ctx, logger, evt)
	case EventBody, EventDaily, EventSleep, EventActivity, EventAthlete:
		dataType, _ := evt.Type.DataType()
		return p.ingestData(ctx, logger, evt, dataType)
	default:
		logger.Warn("unknown webhook type ignored")
		return Result{Type: evt.Type, Skipped: "unknown event type"}, nil
	}
}

func (p *Pipeline) link(ctx context.Context, logger *slog.Logger, evt Event) (Result, error) {
	res := Result{Type: evt.Type}
	ref, err := evt.linkRef()
	if err != nil {
		logger.Error("auth event missing account fields", "error", err)
		res.Skipped = "incomplete user"
		return res, nil
	}

	user, err := p.users.GetUser(ctx, ref.ReferenceID)
	if err != nil {
		return res, fmt.Errorf("load user %s: %w", ref.ReferenceID, err)
	}
	if user == nil {
		logger.Error("auth event for unknown user", "reference_id", ref.ReferenceID)
		res.Skipped = domain.ErrUserNotFound.Error()
		return res, nil
	}

	now := p.now()
	provider := domain.NormalizeProvider(ref.Provider)
	conn, err := p.connections.FindConnection(ctx, user.ID, provider, ref.ExternalUserID)
	if err != nil {
		return res, fmt.Errorf("find connection: %w", err)
	}
	if conn == nil {
		conn = &domain.Connection{
			ID:             uuid.NewString(),
			UserID:         user.ID,
			Provider:       provider,
			ExternalUserID: ref.ExternalUserID,
			Status:         domain.ConnectionPending,
			CreatedAt:      now,
		}
	}
	if err := conn.MarkConnected(now, ref.ReferenceID, evt.RawUser); err != nil {
		return res, err
	}
	if err := p.connections.SaveConnection(ctx, *conn); err != nil {
		return res, fmt.Errorf("save connection: %w", err)
	}
	logger.Info("connection established", "user_id", user.ID, "connection_id", conn.ID, "provider", string(provider))

	req := BackfillRequest{UserID: user.ID, ConnectionID: conn.ID, Reason: evt.Type, RequestedAt: now}
	if err := p.scheduler.ScheduleBackfill(ctx, req); err != nil {
		return res, fmt.Errorf("schedule backfill: %w", err)
	}
	return res, nil
}

func (p *Pipeline) unlink(ctx context.Context, logger *slog.Logger, evt Event) (Result, error) {
	res := Result{Type: evt.Type}
	user, conn, skipped, err := p.resolveConnection(ctx, logger, evt)
	if err != nil || skipped != "" {
		res.Skipped = skipped
		return res, err
	}
	if err := conn.MarkDisconnected(p.now()); err != nil {
		return res, err
	}
	if err := p.connections.SaveConnection(ctx, *conn); err != nil {
		return res, fmt.Errorf("save connection: %w", err)
	}
	logger.Info("connection disconnected", "user_id", user.ID, "connection_id", conn.ID)
	return res, nil
}

func (p *Pipeline) ingestData(ctx context.Context, logger *slog.Logger, evt Event, dataType domain.DataType) (Result, error) {
	res := Result{Type: evt.Type}
	user, conn, skipped, err := p.resolveConnection(ctx, logger, evt)
	if err != nil || skipped != "" {
		res.Skipped = skipped
		return res, err
	}

	now := p.now()
	for i, item := range evt.Data {
		if err := validation.Check(dataType, item); err != nil {
			logger.Warn("invalid record skipped", "index", i, "reason", err.Error())
			observability.RecordOutcome(string(dataType), string(domain.SourceWebhook), observability.OutcomeInvalid)
			res.Invalid++
			continue
		}
		payload := validation.Sanitize(item)

		resolved := timestamp.ResolveOrFallback(payload, now)
		meta := domain.IngestionMetadata{
			Source:         domain.SourceWebhook,
			WebhookType:    string(evt.Type),
			ExternalUserID: conn.ExternalUserID,
			ReceivedAt:     &now,
			Validated:      true,
		}
		if resolved.Fallback {
			logger.Warn("record timestamp unresolved, using processing time", "index", i, "error", resolved.Err.Error())
			observability.RecordTimestampFallback(string(dataType), string(domain.SourceWebhook))
			meta.TimestampFallback = true
			meta.TimestampError = resolved.Err.Error()
			res.Fallbacks++
		}

		rec := domain.HealthRecord{
			ID:           uuid.NewString(),
			UserID:       user.ID,
			ConnectionID: conn.ID,
			DataType:     dataType,
			RecordedAt:   resolved.At,
			Payload:      payload,
			Metadata:     meta,
			CreatedAt:    now,
		}
		stored, err := p.store(ctx, rec)
		if err != nil {
			observability.RecordOutcome(string(dataType), string(domain.SourceWebhook), observability.OutcomeFailed)
			return res, err
		}
		if !stored {
			observability.RecordOutcome(string(dataType), string(domain.SourceWebhook), observability.OutcomeDuplicate)
			res.Duplicates++
			continue
		}
		observability.RecordOutcome(string(dataType), string(domain.SourceWebhook), observability.OutcomePersisted)
		res.Persisted++
	}

	logger.Info("webhook data processed",
		"user_id", user.ID,
		"connection_id", conn.ID,
		"received", len(evt.Data),
		"persisted", res.Persisted,
		"invalid", res.Invalid,
		"duplicates", res.Duplicates,
	)
	return res, nil
}

// store persists rec unless an identical record exists. It reports false for duplicates.
func (p *Pipeline) store(ctx context.Context, rec domain.HealthRecord) (bool, error) {
	exists, err := p.guard.Exists(ctx, rec.Key())
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := p.records.InsertRecord(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDuplicateRecord) {
			return false, nil
		}
		return false, fmt.Errorf("insert record: %w", err)
	}
	return true, nil
}

// resolveConnection loads the user and connection an event refers to. A
// non-empty skipped reason means the event must be acknowledged and dropped.
func (p *Pipeline) resolveConnection(ctx context.Context, logger *slog.Logger, evt Event) (*domain.User, *domain.Connection, string, error) {
	ref, err := evt.accountRef()
	if err != nil {
		logger.Error("event missing account fields", "error", err)
		return nil, nil, "incomplete user", nil
	}
	user, err := p.users.GetUser(ctx, ref.ReferenceID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("load user %s: %w", ref.ReferenceID, err)
	}
	if user == nil {
		logger.Error("event for unknown user", "reference_id", ref.ReferenceID)
		return nil, nil, domain.ErrUserNotFound.Error(), nil
	}
	conn, err := p.connections.FindConnectionByExternalID(ctx, user.ID, ref.ExternalUserID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("find connection: %w", err)
	}
	if conn == nil {
		logger.Error("event for unknown connection", "user_id", user.ID)
		return nil, nil, domain.ErrConnectionNotFound.Error(), nil
	}
	return user, conn, "", nil
}
