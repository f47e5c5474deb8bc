package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionLifecycle(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	conn := Connection{ID: "c1", UserID: "42", Provider: ProviderWhoop}

	require.NoError(t, conn.MarkConnected(now, "42", map[string]any{"user_id": "t-1"}))
	require.Equal(t, ConnectionConnected, conn.Status)
	require.NotNil(t, conn.ConnectedAt)
	require.Equal(t, "42", conn.ReferenceID)

	require.NoError(t, conn.MarkConnected(now.Add(time.Hour), "42", nil), "reauth from connected")

	require.NoError(t, conn.MarkFailed(now, "provider unavailable"))
	require.Equal(t, ConnectionError, conn.Status)
	require.Equal(t, "provider unavailable", conn.Metadata["error"])

	require.NoError(t, conn.MarkDisconnected(now))
	require.Equal(t, ConnectionDisconnected, conn.Status)
	require.Nil(t, conn.ConnectedAt)

	require.NoError(t, conn.MarkDisconnected(now), "deauth is idempotent")
}

func TestConnectionRejectsFailureWhenNotConnected(t *testing.T) {
	conn := Connection{Status: ConnectionDisconnected}
	err := conn.MarkFailed(time.Now(), "boom")
	require.True(t, errors.Is(err, ErrInvalidTransition))
	require.Equal(t, ConnectionDisconnected, conn.Status)
}

func TestUserPreferredUnits(t *testing.T) {
	height, weight := 180.0, 80.0
	u := User{HeightCM: &height, WeightKG: &weight, UnitsPreference: UnitsImperial}
	require.InDelta(t, 70.9, *u.HeightInPreferredUnits(), 0.001)
	require.InDelta(t, 176.4, *u.WeightInPreferredUnits(), 0.001)

	u.UnitsPreference = ""
	require.Equal(t, UnitsMetric, u.Units())
	require.Equal(t, 180.0, *u.HeightInPreferredUnits())
}

func TestUserAge(t *testing.T) {
	dob := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	u := User{DateOfBirth: &dob}
	require.Equal(t, 33, *u.Age(time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 34, *u.Age(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)))
	require.Nil(t, User{}.Age(time.Now()))
}
