package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

func testRun(id string, startedAt int64) *domain.IngestRun {
	return &domain.IngestRun{
		RunID:              id,
		Mode:               domain.RunModeBackfill,
		FromBlock:          19_075_220,
		ToBlock:            19_125_220,
		LogsFetched:        42,
		ActivitiesIngested: 40,
		DuplicatesSkipped:  2,
		PositionsUpserted:  7,
		SnapshotBlock:      19_125_220,
		BackupOK:           true,
		DatabaseOK:         true,
		StartedAt:          startedAt,
		FinishedAt:         startedAt + 30,
	}
}

func TestIngestRunStore_InsertAndGetRecent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewIngestRunStore(pool)

	require.NoError(t, store.Insert(ctx, testRun("run-1", 1000)))
	require.NoError(t, store.Insert(ctx, testRun("run-2", 2000)))
	require.NoError(t, store.Insert(ctx, testRun("run-3", 3000)))

	runs, err := store.GetRecent(ctx, 2)
	require.NoError(t, err)

	assert.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)

	got := runs[0]
	assert.Equal(t, domain.RunModeBackfill, got.Mode)
	assert.Equal(t, uint64(19_075_220), got.FromBlock)
	assert.Equal(t, uint64(19_125_220), got.ToBlock)
	assert.Equal(t, 42, got.LogsFetched)
	assert.Equal(t, 2, got.DuplicatesSkipped)
	assert.True(t, got.BackupOK)
	assert.True(t, got.DatabaseOK)
}

func TestIngestRunStore_InsertDuplicateRunID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewIngestRunStore(pool)

	require.NoError(t, store.Insert(ctx, testRun("run-dup", 1000)))

	err := store.Insert(ctx, testRun("run-dup", 2000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestIngestRunStore_FailedRunRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewIngestRunStore(pool)

	failed := testRun("run-failed", 1000)
	failed.DatabaseOK = false
	failed.Error = "upsert positions: connection refused"
	require.NoError(t, store.Insert(ctx, failed))

	runs, err := store.GetRecent(ctx, 1)
	require.NoError(t, err)

	assert.Len(t, runs, 1)
	assert.False(t, runs[0].DatabaseOK)
	assert.True(t, runs[0].BackupOK)
	assert.Equal(t, "upsert positions: connection refused", runs[0].Error)
}
