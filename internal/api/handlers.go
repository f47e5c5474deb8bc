// Package api exposes the webhook receiver and the health read APIs.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/ingest"
	"example.com/healthsync/internal/logging"
	"example.com/healthsync/internal/summary"
	"example.com/healthsync/internal/terra"
)

// Ingester applies decoded webhook events.
type Ingester interface {
	Ingest(ctx context.Context, evt ingest.Event) (ingest.Result, error)
}

// Summarizer computes summaries and digests.
type Summarizer interface {
	Summarize(ctx context.Context, userID string, start, end time.Time) (*summary.Summary, error)
	SummarizeDays(ctx context.Context, userID string, days int) (*summary.Summary, error)
	ActivitiesForAnalysis(ctx context.Context, userID, activityType string, start, end time.Time) ([]summary.ActivityEntry, error)
}

// Provider is the subset of the aggregator API used by connection management.
type Provider interface {
	GenerateWidgetSession(ctx context.Context, referenceID string, providers []string) (*terra.WidgetSession, error)
	Deauthenticate(ctx context.Context, externalUserID string) error
}

// Config wires a Handler.
type Config struct {
	Pipeline    Ingester
	Summaries   Summarizer
	Records     domain.RecordRepository
	Connections domain.ConnectionRepository
	Provider    Provider

	// SigningSecret verifies webhook signatures when VerifySignature is set.
	SigningSecret   string
	VerifySignature bool
	DefaultDays     int
	Logger          *slog.Logger
	Now             func() time.Time
}

// Handler serves HTTP requests.
type Handler struct {
	pipeline      Ingester
	summaries     Summarizer
	records       domain.RecordRepository
	connections   domain.ConnectionRepository
	provider      Provider
	signingSecret string
	verify        bool
	defaultDays   int
	logger        *slog.Logger
	now           func() time.Time
	validate      *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		pipeline:      cfg.Pipeline,
		summaries:     cfg.Summaries,
		records:       cfg.Records,
		connections:   cfg.Connections,
		provider:      cfg.Provider,
		signingSecret: cfg.SigningSecret,
		verify:        cfg.VerifySignature,
		defaultDays:   cfg.DefaultDays,
		logger:        cfg.Logger,
		now:           cfg.Now,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
	if h.defaultDays <= 0 {
		h.defaultDays = 7
	}
	if h.logger == nil {
		h.logger = logging.Discard()
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/terra", h.webhook)
	mux.HandleFunc("GET /v1/health/summary", h.healthSummary)
	mux.HandleFunc("GET /v1/health/digest", h.healthDigest)
	mux.HandleFunc("GET /v1/health/records", h.healthRecords)
	mux.HandleFunc("GET /v1/health/activities", h.activities)
	mux.HandleFunc("GET /v1/connections", h.listConnections)
	mux.HandleFunc("POST /v1/connections/session", h.createSession)
	mux.HandleFunc("DELETE /v1/connections/{id}", h.deleteConnection)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requireScope returns the caller's claims, or writes 401/403 and returns nil.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) *auth.Claims {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil
	}
	return claims
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
