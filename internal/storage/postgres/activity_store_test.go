package postgres

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/idhash"
	"morpho-market-indexer/internal/storage"
)

// testActivity builds an activity with amount expressed in whole tokens,
// scaled to the raw units of the token the kind moves.
func testActivity(kind domain.ActivityKind, actor, tx string, block uint64, amount int64) *domain.Activity {
	raw := new(big.Int).Mul(big.NewInt(amount), pow10(domain.DecimalsFor(kind)))
	a := &domain.Activity{
		ID:              idhash.ComputeActivityID(tx, string(kind), actor),
		Kind:            kind,
		Amount:          raw,
		AmountFormatted: domain.FormatAmount(raw, kind),
		ActorAddress:    actor,
		TransactionHash: tx,
		BlockNumber:     block,
		Timestamp:       int64(block) * 12,
		MarketID:        domain.MarketID,
	}
	if kind == domain.KindBorrow {
		a.BorrowShares = new(big.Int).Set(raw)
	}
	return a
}

func pow10(decimals int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func TestActivityStore_InsertAndGetAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewActivityStore(pool)

	activity := testActivity(domain.KindSupply, "0xaaa1", "0xtx1", 100, 1000)

	err := store.Insert(ctx, activity)
	require.NoError(t, err)

	got, err := store.GetAll(ctx)
	require.NoError(t, err)

	assert.Len(t, got, 1)
	assert.Equal(t, activity.ID, got[0].ID)
	assert.Equal(t, domain.KindSupply, got[0].Kind)
	assert.Equal(t, activity.Amount.String(), got[0].Amount.String())
	assert.Equal(t, "1000", got[0].AmountFormatted)
	assert.Equal(t, "0xaaa1", got[0].ActorAddress)
	assert.Equal(t, "0xtx1", got[0].TransactionHash)
	assert.Equal(t, uint64(100), got[0].BlockNumber)
	assert.Equal(t, activity.Timestamp, got[0].Timestamp)
	assert.Equal(t, domain.MarketID, got[0].MarketID)
	assert.Nil(t, got[0].BorrowShares)
}

func TestActivityStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewActivityStore(pool)

	activity := testActivity(domain.KindBorrow, "0xdup", "0xduptx", 100, 300)

	err := store.Insert(ctx, activity)
	require.NoError(t, err)

	// Same (transaction_hash, kind, actor_address) with a different amount
	// still collides: the key is the event identity, not the payload.
	dup := testActivity(domain.KindBorrow, "0xdup", "0xduptx", 100, 999)
	err = store.Insert(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestActivityStore_SameTxDifferentKind(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewActivityStore(pool)

	// A supply and a borrow in the same transaction by the same actor are
	// distinct activities.
	require.NoError(t, store.Insert(ctx, testActivity(domain.KindSupply, "0xabc", "0xsametx", 100, 1000)))
	require.NoError(t, store.Insert(ctx, testActivity(domain.KindBorrow, "0xabc", "0xsametx", 100, 300)))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestActivityStore_InsertBulkAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewActivityStore(pool)

	err := store.InsertBulk(ctx, []*domain.Activity{
		testActivity(domain.KindSupply, "0xbulk", "0xbulktx1", 100, 10),
	})
	require.NoError(t, err)

	// Second batch contains a duplicate - entire batch must roll back.
	err = store.InsertBulk(ctx, []*domain.Activity{
		testActivity(domain.KindSupply, "0xbulk", "0xbulktx2", 101, 20),
		testActivity(domain.KindSupply, "0xbulk", "0xbulktx1", 100, 10), // duplicate!
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestActivityStore_InsertBulkEmpty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewActivityStore(pool)
	require.NoError(t, store.InsertBulk(context.Background(), nil))
}

func TestActivityStore_GetByActorAndKind(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewActivityStore(pool)

	err := store.InsertBulk(ctx, []*domain.Activity{
		testActivity(domain.KindSupply, "0xactorA", "0xfiltertx1", 103, 30),
		testActivity(domain.KindSupply, "0xactorA", "0xfiltertx2", 101, 10),
		testActivity(domain.KindWithdraw, "0xactorA", "0xfiltertx3", 102, 5),
		testActivity(domain.KindSupply, "0xactorB", "0xfiltertx4", 104, 40),
	})
	require.NoError(t, err)

	byActor, err := store.GetByActor(ctx, "0xactorA")
	require.NoError(t, err)
	assert.Len(t, byActor, 3)
	// Ordered by block_number ASC regardless of insert order.
	assert.Equal(t, uint64(101), byActor[0].BlockNumber)
	assert.Equal(t, uint64(102), byActor[1].BlockNumber)
	assert.Equal(t, uint64(103), byActor[2].BlockNumber)

	byKind, err := store.GetByKind(ctx, domain.KindWithdraw)
	require.NoError(t, err)
	assert.Len(t, byKind, 1)
	assert.Equal(t, "0xactorA", byKind[0].ActorAddress)
}

func TestActivityStore_BorrowSharesRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewActivityStore(pool)

	borrow := testActivity(domain.KindBorrow, "0xshares", "0xsharestx", 100, 300)
	require.NoError(t, store.Insert(ctx, borrow))

	got, err := store.GetByKind(ctx, domain.KindBorrow)
	require.NoError(t, err)

	assert.Len(t, got, 1)
	require.NotNil(t, got[0].BorrowShares)
	assert.Equal(t, borrow.BorrowShares.String(), got[0].BorrowShares.String())
}

func TestActivityStore_EmptyResult(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewActivityStore(pool)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
