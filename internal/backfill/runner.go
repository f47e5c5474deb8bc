// Package backfill imports a connection's provider history out of band.
package backfill

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
	"example.com/healthsync/internal/terra"
	"example.com/healthsync/internal/timestamp"
	"example.com/healthsync/internal/validation"
)

// DefaultWindow is how far back a backfill reaches.
const DefaultWindow = 365 * 24 * time.Hour

// ErrConnectionMismatch is returned when a request names a connection owned by another user.
var ErrConnectionMismatch = errors.New("connection does not belong to user")

// Fetcher pulls one category of provider history.
type Fetcher interface {
	Fetch(ctx context.Context, category domain.DataType, externalUserID string, start, end time.Time) (*terra.Response, error)
}

// Report counts what a run stored.
type Report struct {
	Fetched    int
	Persisted  int
	Duplicates int
	Fallbacks  int
	// Skipped is set when the run did nothing, e.g. the connection was revoked meanwhile.
	Skipped string
}

// Runner executes backfills.
type Runner struct {
	connections domain.ConnectionRepository
	records     domain.RecordRepository
	guard       *dedup.Guard
	fetcher     Fetcher
	categories  []domain.DataType
	window      time.Duration
	reporter    observability.Reporter
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithWindow overrides DefaultWindow.
func WithWindow(window time.Duration) Option {
	return func(r *Runner) {
		if window > 0 {
			r.window = window
		}
	}
}

// WithReporter sets where fatal failures are reported.
func WithReporter(reporter observability.Reporter) Option {
	return func(r *Runner) {
		if reporter != nil {
			r.reporter = reporter
		}
	}
}

// NewRunner constructs a Runner.
func NewRunner(connections domain.ConnectionRepository, records domain.RecordRepository, fetcher Fetcher, opts ...Option) *Runner {
	r := &Runner{
		connections: connections,
		records:     records,
		guard:       dedup.NewGuard(records),
		fetcher:     fetcher,
		categories:  terra.BackfillCategories,
		window:      DefaultWindow,
		reporter:    observability.NopReporter{},
		logger:      logging.Discard(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run pulls every backfill category for the connection and stores records not
// seen before. Any fetch or storage failure aborts the run, marks the
// connection as errored and is returned to the caller for retry.
func (r *Runner) Run(ctx context.Context, userID, connectionID string) (Report, error) {
	started := time.Now()
	logger := r.logger.With("user_id", userID, "connection_id", connectionID)

	conn, err := r.connections.GetConnection(ctx, connectionID)
	if err != nil {
		return Report{}, fmt.Errorf("load connection %s: %w", connectionID, err)
	}
	if conn == nil {
		return Report{}, fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, connectionID)
	}
	if conn.UserID != userID {
		return Report{}, fmt.Errorf("%w: %s", ErrConnectionMismatch, connectionID)
	}
	if conn.Status == domain.ConnectionDisconnected {
		logger.Info("backfill skipped for disconnected connection")
		return Report{Skipped: "connection disconnected"}, nil
	}

	report, err := r.pull(ctx, logger, conn)
	if err != nil {
		r.fail(ctx, logger, conn, err)
		observability.RecordBackfill(started, err)
		return report, fmt.Errorf("backfill connection %s: %w", connectionID, err)
	}

	observability.RecordBackfill(started, nil)
	logger.Info("backfill completed",
		"fetched", report.Fetched,
		"persisted", report.Persisted,
		"duplicates", report.Duplicates,
		"duration", time.Since(started).String(),
	)
	return report, nil
}

func (r *Runner) pull(ctx context.Context, logger *slog.Logger, conn *domain.Connection) (Report, error) {
	var report Report
	now := r.now()
	start := now.Add(-r.window)

	for _, category := range r.categories {
		resp, err := r.fetcher.Fetch(ctx, category, conn.ExternalUserID, start, now)
		if err != nil {
			return report, fmt.Errorf("fetch %s: %w", category, err)
		}
		report.Fetched += len(resp.Data)

		for _, item := range resp.Data {
			payload := validation.Sanitize(item)
			resolved := timestamp.ResolveOrFallback(payload, now)
			backfilledAt := now
			meta := domain.IngestionMetadata{
				Source:         domain.SourceBackfill,
				ExternalUserID: conn.ExternalUserID,
				BackfilledAt:   &backfilledAt,
			}
			if resolved.Fallback {
				logger.Warn("backfill record timestamp unresolved, using processing time", "data_type", string(category), "error", resolved.Err.Error())
				observability.RecordTimestampFallback(string(category), string(domain.SourceBackfill))
				meta.TimestampFallback = true
				meta.TimestampError = resolved.Err.Error()
				report.Fallbacks++
			}

			rec := domain.HealthRecord{
				ID:           uuid.NewString(),
				UserID:       conn.UserID,
				ConnectionID: conn.ID,
				DataType:     category,
				RecordedAt:   resolved.At,
				Payload:      payload,
				Metadata:     meta,
				CreatedAt:    now,
			}
			stored, err := r.store(ctx, rec)
			if err != nil {
				observability.RecordOutcome(string(category), string(domain.SourceBackfill), observability.OutcomeFailed)
				return report, err
			}
			if !stored {
				observability.RecordOutcome(string(category), string(domain.SourceBackfill), observability.OutcomeDuplicate)
				report.Duplicates++
				continue
			}
			observability.RecordOutcome(string(category), string(domain.SourceBackfill), observability.OutcomePersisted)
			report.Persisted++
		}
		logger.Debug("backfill category imported", "data_type", string(category), "records", len(resp.Data))
	}
	return report, nil
}

func (r *Runner) store(ctx context.Context, rec domain.HealthRecord) (bool, error) {
	exists, err := r.guard.Exists(ctx, rec.Key())
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := r.records.InsertRecord(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDuplicateRecord) {
			return false, nil
		}
		return false, fmt.Errorf("insert record: %w", err)
	}
	return true, nil
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, conn *domain.Connection, cause error) {
	logger.Error("backfill failed", "error", cause)
	r.reporter.Capture(cause, map[string]string{
		"component":     "backfill",
		"connection_id": conn.ID,
		"provider":      string(conn.Provider),
	})

	if err := conn.MarkFailed(r.now(), cause.Error()); err != nil {
		logger.Warn("connection state left unchanged", "status", string(conn.Status), "error", err)
		return
	}
	if err := r.connections.SaveConnection(ctx, *conn); err != nil {
		logger.Error("mark connection errored", "error", err)
	}
}
