package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewWithWriterRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "api", "info")
	logger.Debug("hidden")
	logger.Info("webhook received", "type", "activity")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "webhook received", entry["message"])
	require.Equal(t, "INFO", entry["severity"])
	require.Equal(t, "api", entry["service"])
	require.Equal(t, "activity", entry["type"])
}
