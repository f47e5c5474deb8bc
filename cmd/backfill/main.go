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

	"github.com/segmentio/kafka-go"

	"example.com/healthsync/internal/backfill"
	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/consumer"
	"example.com/healthsync/internal/logging"
	"example.com/healthsync/internal/observability"
	"example.com/healthsync/internal/outbox"
	"example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/terra"
	httptransport "example.com/healthsync/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.New("healthsync-backfill", cfg.LogLevel)

	if cfg.PostgresURL == "" {
		fatal(logger, "POSTGRES_URL is required", nil)
	}
	if err := observability.InitSentry(observability.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.Release,
		ServerName:  "healthsync-backfill",
	}, logger); err != nil {
		fatal(logger, "sentry init failed", err)
	}
	defer observability.FlushSentry(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		fatal(logger, "failed to connect to postgres", err)
	}
	defer pool.Close()

	terraClient := terra.NewClient(terra.ClientConfig{
		BaseURL: cfg.TerraAPIURL,
		APIKey:  cfg.TerraAPIKey,
		DevID:   cfg.TerraDevID,
		Timeout: cfg.TerraTimeout,
	})
	runner := backfill.NewRunner(
		postgres.NewConnectionRepository(pool),
		postgres.NewRecordRepository(pool),
		terraClient,
		backfill.WithLogger(logger),
		backfill.WithWindow(cfg.BackfillWindow),
		backfill.WithReporter(observability.SentryReporter{}),
	)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.BackfillConsumerGroup,
		Topic:           cfg.BackfillTopic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	proc := consumer.NewProcessor(reader, backfill.NewHandler(runner, logger),
		consumer.WithLogger(logger),
		consumer.WithRetry(cfg.BackfillMaxAttempts, cfg.BackfillRetryDelay),
		consumer.WithDeadLetter(producer, cfg.BackfillDLQTopic),
	)

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	go func() {
		logger.Info("backfill metrics listening", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("backfill worker started", "topic", cfg.BackfillTopic, "group", cfg.BackfillConsumerGroup)
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("backfill worker stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		logger.Info("backfill worker shutdown requested")
	case <-done:
	}
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	if err != nil {
		logger.Error(msg, "error", err)
	} else {
		logger.Error(msg)
	}
	os.Exit(1)
}
