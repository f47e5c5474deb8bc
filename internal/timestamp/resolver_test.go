package timestamp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolvePrefersStartTime(t *testing.T) {
	raw := map[string]any{
		"metadata": map[string]any{"start_time": "2024-03-01T08:00:00+02:00"},
		"ts_utc":   "2024-03-05T00:00:00Z",
	}
	got, err := Resolve(raw)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC), got)
}

func TestResolveFallsBackToTSUTC(t *testing.T) {
	raw := map[string]any{"metadata": map[string]any{}, "ts_utc": "2024-03-05 07:30:00"}
	got, err := Resolve(raw)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 5, 7, 30, 0, 0, time.UTC), got)
}

func TestResolveMissing(t *testing.T) {
	_, err := Resolve(map[string]any{"metadata": map[string]any{"start_time": ""}})
	require.ErrorIs(t, err, ErrMissingTimestamp)
}

func TestResolveMalformedDoesNotConsultLaterFields(t *testing.T) {
	raw := map[string]any{
		"metadata": map[string]any{"start_time": "yesterday-ish"},
		"ts_utc":   "2024-03-05T00:00:00Z",
	}
	_, err := Resolve(raw)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, FieldStartTime, perr.Field)
}

func TestResolveNonStringValue(t *testing.T) {
	_, err := Resolve(map[string]any{"ts_utc": 12345.0})
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, FieldTSUTC, perr.Field)
}

func TestResolveOrFallback(t *testing.T) {
	now := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

	res := ResolveOrFallback(map[string]any{}, now)
	require.True(t, res.Fallback)
	require.Equal(t, now, res.At)
	require.ErrorIs(t, res.Err, ErrMissingTimestamp)

	res = ResolveOrFallback(map[string]any{"ts_utc": "2024-03-01"}, now)
	require.False(t, res.Fallback)
	require.NoError(t, res.Err)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), res.At)
}
