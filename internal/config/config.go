// Package config centralises configuration parsing for the healthsync binaries.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration values.
type Config struct {
	HTTPAddress    string
	MetricsAddress string

	// PostgresURL selects the Postgres store; empty runs on the in-memory store.
	PostgresURL string

	KafkaBrokers          []string
	SchemaRegistryURL     string
	OutboxPollInterval    time.Duration
	OutboxBatchSize       int
	BackfillTopic         string
	BackfillDLQTopic      string
	BackfillConsumerGroup string
	BackfillMaxAttempts   int
	BackfillRetryDelay    time.Duration
	BackfillWindow        time.Duration

	TerraAPIURL            string
	TerraAPIKey            string
	TerraDevID             string
	TerraSigningSecret     string
	TerraTimeout           time.Duration
	TerraSuccessRedirect   string
	TerraFailureRedirect   string
	WebhookVerifySignature bool

	JWTSecret string
	JWTIssuer string

	DLQPollInterval time.Duration // Interval between DLQ polling iterations.
	DLQMaxRetries   int           // Retry attempts before quarantine.
	DLQBaseDelay    time.Duration // Base delay for exponential backoff.
	DLQBatchSize    int

	LogLevel          string
	SentryDSN         string
	SentryEnvironment string
	Release           string

	SummaryDefaultDays int
}

// Load reads an optional .env file (ENV_FILE, default ".env") and then the
// environment. Variables already set in the environment take precedence.
func Load() Config {
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	return Config{
		HTTPAddress:    getEnv("HTTP_ADDRESS", ":8080"),
		MetricsAddress: getEnv("METRICS_ADDRESS", ":9090"),
		PostgresURL:    getEnv("POSTGRES_URL", ""),

		KafkaBrokers:          splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		SchemaRegistryURL:     getEnv("SCHEMA_REGISTRY_URL", "http://schema-registry:8081"),
		OutboxPollInterval:    getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:       getIntEnv("OUTBOX_BATCH_SIZE", 25),
		BackfillTopic:         getEnv("BACKFILL_TOPIC", "healthsync.backfill"),
		BackfillDLQTopic:      getEnv("BACKFILL_DLQ_TOPIC", "healthsync.backfill.dlq"),
		BackfillConsumerGroup: getEnv("BACKFILL_CONSUMER_GROUP", "healthsync-backfill"),
		BackfillMaxAttempts:   getIntEnv("BACKFILL_MAX_ATTEMPTS", 3),
		BackfillRetryDelay:    getDurationEnv("BACKFILL_RETRY_DELAY", 5*time.Second),
		BackfillWindow:        getDurationEnv("BACKFILL_WINDOW", 8760*time.Hour),

		TerraAPIURL:            getEnv("TERRA_API_URL", "https://api.tryterra.co"),
		TerraAPIKey:            getEnv("TERRA_API_KEY", ""),
		TerraDevID:             getEnv("TERRA_DEV_ID", ""),
		TerraSigningSecret:     getEnv("TERRA_SIGNING_SECRET", ""),
		TerraTimeout:           getDurationEnv("TERRA_TIMEOUT", 30*time.Second),
		TerraSuccessRedirect:   getEnv("TERRA_SUCCESS_REDIRECT_URL", ""),
		TerraFailureRedirect:   getEnv("TERRA_FAILURE_REDIRECT_URL", ""),
		WebhookVerifySignature: getBoolEnv("WEBHOOK_VERIFY_SIGNATURE", true),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer: getEnv("JWT_ISSUER", "healthsync"),

		DLQPollInterval: getDurationEnv("DLQ_POLL_INTERVAL", 30*time.Second),
		DLQMaxRetries:   getIntEnv("DLQ_MAX_RETRIES", 5),
		DLQBaseDelay:    getDurationEnv("DLQ_BASE_DELAY", time.Minute),
		DLQBatchSize:    getIntEnv("DLQ_BATCH_SIZE", 50),

		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "development"),
		Release:           getEnv("RELEASE", ""),

		SummaryDefaultDays: getIntEnv("SUMMARY_DEFAULT_DAYS", 7),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
