package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/persistence/memory"
)

func TestGuardExists(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	guard := NewGuard(store)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.FixedZone("CET", 3600))

	key := domain.RecordKey{UserID: "42", ConnectionID: "c1", DataType: domain.DataTypeSleep, RecordedAt: at}
	exists, err := guard.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.InsertRecord(ctx, domain.HealthRecord{
		UserID: "42", ConnectionID: "c1", DataType: domain.DataTypeSleep, RecordedAt: at.UTC(),
	}))

	exists, err = guard.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists, "same instant in a different zone is the same record")

	key.DataType = domain.DataTypeActivity
	exists, err = guard.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)
}
