package memory

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

func TestActivityStore_InsertAndDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore()

	activity := testActivity(domain.KindSupply, "0xaaa", "0xtx1", 100, 1000)
	require.NoError(t, store.Insert(ctx, activity))

	err := store.Insert(ctx, testActivity(domain.KindSupply, "0xaaa", "0xtx1", 100, 999))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Same tx, different kind - distinct activity.
	require.NoError(t, store.Insert(ctx, testActivity(domain.KindBorrow, "0xaaa", "0xtx1", 100, 300)))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestActivityStore_InsertBulkAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore()

	require.NoError(t, store.Insert(ctx, testActivity(domain.KindSupply, "0xaaa", "0xtx1", 100, 10)))

	// Batch with one duplicate leaves the store untouched.
	err := store.InsertBulk(ctx, []*domain.Activity{
		testActivity(domain.KindSupply, "0xaaa", "0xtx2", 101, 20),
		testActivity(domain.KindSupply, "0xaaa", "0xtx1", 100, 10),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestActivityStore_IntraBatchDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore()

	err := store.InsertBulk(ctx, []*domain.Activity{
		testActivity(domain.KindRepay, "0xbbb", "0xtx9", 100, 5),
		testActivity(domain.KindRepay, "0xbbb", "0xtx9", 100, 5),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestActivityStore_GetAllOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore()

	// Insert out of block order.
	require.NoError(t, store.InsertBulk(ctx, []*domain.Activity{
		testActivity(domain.KindSupply, "0xccc", "0xtx3", 300, 30),
		testActivity(domain.KindSupply, "0xccc", "0xtx1", 100, 10),
		testActivity(domain.KindSupply, "0xccc", "0xtx2", 200, 20),
	}))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)

	require.Len(t, all, 3)
	assert.Equal(t, uint64(100), all[0].BlockNumber)
	assert.Equal(t, uint64(200), all[1].BlockNumber)
	assert.Equal(t, uint64(300), all[2].BlockNumber)
}

func TestActivityStore_Filters(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore()

	require.NoError(t, store.InsertBulk(ctx, []*domain.Activity{
		testActivity(domain.KindSupply, "0xactorA", "0xtx1", 100, 10),
		testActivity(domain.KindWithdraw, "0xactorA", "0xtx2", 200, 4),
		testActivity(domain.KindSupply, "0xactorB", "0xtx3", 300, 7),
	}))

	byActor, err := store.GetByActor(ctx, "0xactorA")
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byKind, err := store.GetByKind(ctx, domain.KindSupply)
	require.NoError(t, err)
	assert.Len(t, byKind, 2)
}

func TestActivityStore_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore()

	original := testActivity(domain.KindSupply, "0xiso", "0xtxiso", 100, 1000)
	require.NoError(t, store.Insert(ctx, original))

	// Mutating the inserted value must not reach the store.
	original.Amount.SetInt64(1)

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, whole(1000, domain.CollateralDecimals).String(), got[0].Amount.String())

	// Mutating a read result must not reach the store either.
	got[0].Amount.SetInt64(2)

	again, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, whole(1000, domain.CollateralDecimals).String(), again[0].Amount.String())
}

func whole(amount int64, decimals int32) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), pow10(decimals))
}
