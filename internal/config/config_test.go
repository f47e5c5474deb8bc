package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("POSTGRES_URL", "")

	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Empty(t, cfg.PostgresURL)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 8760*time.Hour, cfg.BackfillWindow)
	require.True(t, cfg.WebhookVerifySignature)
	require.Equal(t, 7, cfg.SummaryDefaultDays)
}

func TestLoadReadsEnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TERRA_DEV_ID=from-file\nOUTBOX_BATCH_SIZE=99\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("OUTBOX_BATCH_SIZE", "10")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("WEBHOOK_VERIFY_SIGNATURE", "false")
	t.Setenv("DLQ_BASE_DELAY", "not-a-duration")
	t.Cleanup(func() { os.Unsetenv("TERRA_DEV_ID") })

	cfg := Load()
	require.Equal(t, "from-file", cfg.TerraDevID)
	require.Equal(t, 10, cfg.OutboxBatchSize)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.False(t, cfg.WebhookVerifySignature)
	require.Equal(t, time.Minute, cfg.DLQBaseDelay)
}
