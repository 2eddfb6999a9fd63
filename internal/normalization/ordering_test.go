package normalization

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/types"

	"morpho-market-indexer/internal/domain"
)

func TestSortLogs_BlockThenIndex(t *testing.T) {
	logs := []types.Log{
		{BlockNumber: 200, Index: 1},
		{BlockNumber: 100, Index: 5},
		{BlockNumber: 200, Index: 0},
		{BlockNumber: 100, Index: 2},
	}

	SortLogs(logs)

	want := []struct {
		block uint64
		index uint
	}{
		{100, 2}, {100, 5}, {200, 0}, {200, 1},
	}
	for i, w := range want {
		if logs[i].BlockNumber != w.block || logs[i].Index != w.index {
			t.Errorf("position %d: expected (%d, %d), got (%d, %d)",
				i, w.block, w.index, logs[i].BlockNumber, logs[i].Index)
		}
	}
}

func TestSortActivities_Deterministic(t *testing.T) {
	a := &domain.Activity{BlockNumber: 100, TransactionHash: "0xbb", Kind: domain.KindSupply, ActorAddress: "0x01"}
	b := &domain.Activity{BlockNumber: 100, TransactionHash: "0xaa", Kind: domain.KindSupply, ActorAddress: "0x01"}
	c := &domain.Activity{BlockNumber: 99, TransactionHash: "0xcc", Kind: domain.KindSupply, ActorAddress: "0x01"}
	d := &domain.Activity{BlockNumber: 100, TransactionHash: "0xbb", Kind: domain.KindBorrow, ActorAddress: "0x01"}

	first := []*domain.Activity{a, b, c, d}
	second := []*domain.Activity{d, c, b, a}

	SortActivities(first)
	SortActivities(second)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("ordering not deterministic at %d", i)
		}
	}

	if first[0] != c {
		t.Error("lower block must sort first")
	}
	if first[1] != b {
		t.Error("ties break on tx hash")
	}
	// Same block and tx: kind breaks the tie ("borrow" < "supply").
	if first[2] != d || first[3] != a {
		t.Error("ties on (block, tx) break on kind")
	}
}
