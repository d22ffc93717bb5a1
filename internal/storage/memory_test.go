package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec, err := m.CreateRelay(ctx, RelayRecord{AccountID: "0.0.1", FunctionName: "transfer"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())

	_, err = m.CreateRelay(ctx, RelayRecord{ID: rec.ID})
	require.Error(t, err)

	require.NoError(t, m.CompleteRelay(ctx, rec.ID, Outcome{
		Status:        StatusSubmitted,
		TransactionID: "0.0.2@1700000000.000000000",
		LedgerStatus:  "SUCCESS",
	}))

	got, err := m.GetRelay(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, got.Status)
	assert.Equal(t, "SUCCESS", got.LedgerStatus)
	require.NotNil(t, got.CompletedAt)

	_, err = m.GetRelay(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.CompleteRelay(ctx, "missing", Outcome{}), ErrNotFound)
}

func TestMemory_ListAndPrune(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := m.CreateRelay(ctx, RelayRecord{AccountID: "0.0.1", CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	_, err := m.CreateRelay(ctx, RelayRecord{AccountID: "0.0.9", CreatedAt: base})
	require.NoError(t, err)

	list, err := m.ListRelays(ctx, "0.0.1", 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, base.Add(3*time.Hour), list[0].CreatedAt)

	n, err := m.PruneRelays(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	list, err = m.ListRelays(ctx, "0.0.1", 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
