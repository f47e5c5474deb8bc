package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/healthsync/internal/api"
	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/backfill"
	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/ingest"
	"example.com/healthsync/internal/logging"
	"example.com/healthsync/internal/observability"
	"example.com/healthsync/internal/outbox"
	"example.com/healthsync/internal/persistence/memory"
	"example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/summary"
	"example.com/healthsync/internal/terra"
	httptransport "example.com/healthsync/internal/transport/http"
)

type stores struct {
	users       domain.UserRepository
	connections domain.ConnectionRepository
	records     domain.RecordRepository
}

func main() {
	cfg := config.Load()
	logger := logging.New("healthsync-api", cfg.LogLevel)

	if cfg.WebhookVerifySignature && cfg.TerraSigningSecret == "" {
		fatal(logger, "TERRA_SIGNING_SECRET is required when WEBHOOK_VERIFY_SIGNATURE is enabled", nil)
	}

	if err := observability.InitSentry(observability.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.Release,
		ServerName:  "healthsync-api",
	}, logger); err != nil {
		fatal(logger, "sentry init failed", err)
	}
	defer observability.FlushSentry(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	terraClient := terra.NewClient(terra.ClientConfig{
		BaseURL:            cfg.TerraAPIURL,
		APIKey:             cfg.TerraAPIKey,
		DevID:              cfg.TerraDevID,
		Timeout:            cfg.TerraTimeout,
		SuccessRedirectURL: cfg.TerraSuccessRedirect,
		FailureRedirectURL: cfg.TerraFailureRedirect,
	})

	var (
		repos     stores
		scheduler ingest.BackfillScheduler
		waiters   []func()
	)
	if cfg.PostgresURL != "" {
		if err := postgres.MigrateUp(cfg.PostgresURL); err != nil {
			fatal(logger, "migrations failed", err)
		}
		pool, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			fatal(logger, "failed to connect to postgres", err)
		}
		defer pool.Close()

		repos = stores{
			users:       postgres.NewUserRepository(pool),
			connections: postgres.NewConnectionRepository(pool),
			records:     postgres.NewRecordRepository(pool),
		}

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithDispatcherLogger(logger))
		go dispatcher.Start(ctx)
		waiters = append(waiters, dispatcher.Wait)

		scheduler = outbox.NewScheduler(pool, cfg.BackfillTopic)
	} else {
		logger.Warn("POSTGRES_URL not set, using in-memory store with in-process backfills")
		store := memory.NewStore()
		repos = stores{users: store, connections: store, records: store}

		runner := backfill.NewRunner(store, store, terraClient,
			backfill.WithLogger(logger),
			backfill.WithWindow(cfg.BackfillWindow),
			backfill.WithReporter(observability.SentryReporter{}))
		async := backfill.NewAsyncScheduler(ctx, runner, logger)
		waiters = append(waiters, async.Wait)
		scheduler = async
	}

	pipeline := ingest.NewPipeline(repos.users, repos.connections, repos.records, scheduler, ingest.WithLogger(logger))
	engine := summary.NewEngine(repos.users, repos.connections, repos.records, summary.WithLogger(logger))

	handler := api.NewHandler(api.Config{
		Pipeline:        pipeline,
		Summaries:       engine,
		Records:         repos.records,
		Connections:     repos.connections,
		Provider:        terraClient,
		SigningSecret:   cfg.TerraSigningSecret,
		VerifySignature: cfg.WebhookVerifySignature,
		DefaultDays:     cfg.SummaryDefaultDays,
		Logger:          logger,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths)
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), authMiddleware.Wrap(requestLogger(logger, mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("healthsync api listening", "address", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server error", err)
		}
	}()

	<-shutdownCh
	logger.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	cancel()
	for _, wait := range waiters {
		wait()
	}
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func fatal(logger *slog.Logger, msg string, err error) {
	if err != nil {
		logger.Error(msg, "error", err)
	} else {
		logger.Error(msg)
	}
	os.Exit(1)
}
