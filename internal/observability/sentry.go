package observability

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig configures error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	ServerName  string
}

// InitSentry initialises the Sentry client.
func InitSentry(cfg SentryConfig, logger *slog.Logger) error {
	if cfg.DSN == "" {
		logger.Warn("sentry dsn not configured, error reporting disabled")
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		ServerName:  cfg.ServerName,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
				delete(event.Request.Headers, "Terra-Signature")
			}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	logger.Info("sentry initialised", "environment", cfg.Environment)
	return nil
}

// FlushSentry waits for buffered events to be delivered.
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// Reporter forwards unexpected errors to an error tracker.
type Reporter interface {
	Capture(err error, tags map[string]string)
}

// SentryReporter reports through the global Sentry hub. It is a no-op when
// Sentry was not initialised.
type SentryReporter struct{}

// Capture implements Reporter.
func (SentryReporter) Capture(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// NopReporter discards errors.
type NopReporter struct{}

// Capture implements Reporter.
func (NopReporter) Capture(error, map[string]string) {}
