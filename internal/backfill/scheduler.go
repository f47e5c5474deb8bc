package backfill

import (
	"context"
	"log/slog"
	"sync"

	"example.com/healthsync/internal/ingest"
	"example.com/healthsync/internal/logging"
)

// AsyncScheduler runs backfills on goroutines in the current process. It is
// the scheduler for deployments without Kafka.
type AsyncScheduler struct {
	ctx      context.Context
	runner   *Runner
	logger   *slog.Logger
	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewAsyncScheduler constructs an AsyncScheduler. Runs are bound to ctx, not to
// the request that scheduled them.
func NewAsyncScheduler(ctx context.Context, runner *Runner, logger *slog.Logger) *AsyncScheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AsyncScheduler{
		ctx:      ctx,
		runner:   runner,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// ScheduleBackfill implements ingest.BackfillScheduler. A request for a
// connection already being imported is dropped.
func (s *AsyncScheduler) ScheduleBackfill(_ context.Context, req ingest.BackfillRequest) error {
	s.mu.Lock()
	if _, running := s.inflight[req.ConnectionID]; running {
		s.mu.Unlock()
		s.logger.Info("backfill already running", "connection_id", req.ConnectionID)
		return nil
	}
	s.inflight[req.ConnectionID] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, req.ConnectionID)
			s.mu.Unlock()
		}()
		// Failures are already logged, reported and recorded on the connection.
		_, _ = s.runner.Run(s.ctx, req.UserID, req.ConnectionID)
	}()
	return nil
}

// Wait blocks until every scheduled run has returned.
func (s *AsyncScheduler) Wait() {
	s.wg.Wait()
}
