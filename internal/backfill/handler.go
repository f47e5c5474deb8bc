package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"example.com/healthsync/internal/consumer"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/events"
	"example.com/healthsync/internal/logging"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler runs backfills for backfill.requested messages.
type Handler struct {
	runner *Runner
	logger *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(runner *Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{runner: runner, logger: logger}
}

// Handle implements consumer.Handler. Malformed requests and requests for
// connections that no longer exist are dropped; run failures are returned so
// the processor can retry and dead-letter them.
func (h *Handler) Handle(ctx context.Context, msg consumer.Message) error {
	if msg.EventType != "" && msg.EventType != events.BackfillRequestedType {
		h.logger.Debug("ignoring event", "event_type", msg.EventType, "offset", msg.Offset)
		return nil
	}

	var req events.BackfillRequested
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		h.logger.Warn("malformed backfill request dropped", "offset", msg.Offset, "error", err)
		return nil
	}
	if err := validate.Struct(req); err != nil {
		h.logger.Warn("invalid backfill request dropped", "offset", msg.Offset, "error", err)
		return nil
	}

	_, err := h.runner.Run(ctx, req.UserID, req.ConnectionID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrConnectionNotFound), errors.Is(err, ErrConnectionMismatch):
		h.logger.Warn("backfill request dropped", "connection_id", req.ConnectionID, "error", err)
		return nil
	default:
		return fmt.Errorf("run backfill: %w", err)
	}
}
