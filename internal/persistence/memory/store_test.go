package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

func TestInsertRecordEnforcesIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	at := time.Date(2024, 3, 1, 8, 0, 0, 123456789, time.UTC)
	rec := domain.HealthRecord{UserID: "42", ConnectionID: "c1", DataType: domain.DataTypeActivity, RecordedAt: at}

	require.NoError(t, store.InsertRecord(ctx, rec))
	require.ErrorIs(t, store.InsertRecord(ctx, rec), domain.ErrDuplicateRecord)

	exists, err := store.RecordExists(ctx, rec.Key())
	require.NoError(t, err)
	require.True(t, exists)

	other := rec
	other.DataType = domain.DataTypeSleep
	require.NoError(t, store.InsertRecord(ctx, other))

	count, err := store.CountRecords(ctx, domain.RecordQuery{UserID: "42"})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestListRecordsWindowAndCursor(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertRecord(ctx, domain.HealthRecord{
			UserID: "42", ConnectionID: "c1", DataType: domain.DataTypeDaily, RecordedAt: base.AddDate(0, 0, i),
		}))
	}

	got, err := store.ListRecords(ctx, domain.RecordQuery{UserID: "42", From: base.AddDate(0, 0, 1), To: base.AddDate(0, 0, 4)})
	require.NoError(t, err)
	require.Len(t, got, 3)

	page, err := store.ListRecords(ctx, domain.RecordQuery{UserID: "42", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	last := page[1]
	next, err := store.ListRecords(ctx, domain.RecordQuery{UserID: "42", Limit: 2, After: &domain.Cursor{RecordedAt: last.RecordedAt, ID: last.ID}})
	require.NoError(t, err)
	require.Len(t, next, 2)
	require.True(t, next[0].RecordedAt.After(last.RecordedAt))

	stats, err := store.ConnectionStats(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 5, stats.Records)
	require.Equal(t, base.AddDate(0, 0, 4), *stats.LastRecordAt)
}
