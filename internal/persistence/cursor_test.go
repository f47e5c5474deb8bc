package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	c := &domain.Cursor{RecordedAt: time.Date(2024, 3, 1, 8, 0, 0, 1500, time.UTC), ID: "rec-1"}
	token := EncodeCursor(c)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, c.ID, decoded.ID)
	require.True(t, c.RecordedAt.Equal(decoded.RecordedAt))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	got, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = DecodeCursor("!!!")
	require.Error(t, err)

	_, err = DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("not-a-time|id")))
	require.Error(t, err)
}

func TestNextCursor(t *testing.T) {
	recs := []domain.HealthRecord{{ID: "a"}, {ID: "b"}}
	require.Nil(t, NextCursor(recs, 3))
	require.Equal(t, "b", NextCursor(recs, 2).ID)
}
