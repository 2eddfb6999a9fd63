package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

func testPosition(actor string, netSupply, netBorrow int64) *domain.UserPosition {
	p := domain.NewUserPosition(actor)
	p.NetSupply.SetInt64(netSupply)
	p.NetBorrow.SetInt64(netBorrow)
	p.UpdatedAt = 1_700_000_000
	return p
}

func TestUserPositionStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewUserPositionStore()

	require.NoError(t, store.Upsert(ctx, testPosition("0xaaa", 100, 0)))
	require.NoError(t, store.Upsert(ctx, testPosition("0xaaa", 250, 40)))

	got, err := store.GetByActor(ctx, "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.NetSupply.Int64())
	assert.Equal(t, int64(40), got.NetBorrow.Int64())

	_, err = store.GetByActor(ctx, "0xmissing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUserPositionStore_UpsertBulkValidates(t *testing.T) {
	ctx := context.Background()
	store := NewUserPositionStore()

	err := store.UpsertBulk(ctx, []*domain.UserPosition{
		testPosition("0xaaa", 10, 0),
		nil,
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUserPositionStore_Leaderboards(t *testing.T) {
	ctx := context.Background()
	store := NewUserPositionStore()

	require.NoError(t, store.UpsertBulk(ctx, []*domain.UserPosition{
		testPosition("0xaaa", 300, 0),
		testPosition("0xbbb", 500, 120),
		testPosition("0xccc", 0, 80),  // fully withdrawn supplier
		testPosition("0xddd", -50, 0), // withdrew more than it supplied
		testPosition("0xeee", 500, 0),
	}))

	top, err := store.GetTopByNetSupply(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	// Equal nets fall back to address order.
	assert.Equal(t, "0xbbb", top[0].ActorAddress)
	assert.Equal(t, "0xeee", top[1].ActorAddress)

	borrowers, err := store.GetTopByNetBorrow(ctx, 10)
	require.NoError(t, err)
	require.Len(t, borrowers, 2)
	assert.Equal(t, "0xbbb", borrowers[0].ActorAddress)
	assert.Equal(t, "0xccc", borrowers[1].ActorAddress)

	suppliers, err := store.CountActiveSuppliers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, suppliers)

	active, err := store.CountActiveBorrowers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active)
}
