package lookup

import (
	"errors"
	"math/big"
	"testing"

	"morpho-market-indexer/internal/domain"
)

func snap(ts int64, supply int64) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		MarketID:    domain.MarketID,
		TotalSupply: big.NewInt(supply),
		TotalBorrow: new(big.Int),
		Timestamp:   ts,
	}
}

func TestSnapshotAt_Exact(t *testing.T) {
	snapshots := []*domain.MarketSnapshot{snap(100, 1), snap(200, 2), snap(300, 3)}

	got, err := SnapshotAt(200, snapshots)
	if err != nil {
		t.Fatalf("SnapshotAt: %v", err)
	}
	if got.Timestamp != 200 {
		t.Errorf("expected snapshot at 200, got %d", got.Timestamp)
	}
}

func TestSnapshotAt_Between(t *testing.T) {
	snapshots := []*domain.MarketSnapshot{snap(100, 1), snap(200, 2), snap(300, 3)}

	got, err := SnapshotAt(250, snapshots)
	if err != nil {
		t.Fatalf("SnapshotAt: %v", err)
	}
	if got.Timestamp != 200 {
		t.Errorf("expected at-or-before snapshot 200, got %d", got.Timestamp)
	}
}

func TestSnapshotAt_BeforeFirst(t *testing.T) {
	snapshots := []*domain.MarketSnapshot{snap(100, 1), snap(200, 2)}

	got, err := SnapshotAt(50, snapshots)
	if err != nil {
		t.Fatalf("SnapshotAt: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil before first snapshot, got %+v", got)
	}
}

func TestSnapshotAt_Empty(t *testing.T) {
	_, err := SnapshotAt(100, nil)
	if !errors.Is(err, ErrNoSnapshotData) {
		t.Errorf("expected ErrNoSnapshotData, got %v", err)
	}
}

func TestHistoryAt(t *testing.T) {
	points := []*domain.MarketHistoryPoint{
		{Timestamp: 100, TotalSupply: 1},
		{Timestamp: 200, TotalSupply: 2},
	}

	got, err := HistoryAt(150, points)
	if err != nil {
		t.Fatalf("HistoryAt: %v", err)
	}
	if got.Timestamp != 100 {
		t.Errorf("expected point at 100, got %d", got.Timestamp)
	}

	// Before the first point, the first point stands in.
	got, err = HistoryAt(50, points)
	if err != nil {
		t.Fatalf("HistoryAt: %v", err)
	}
	if got.Timestamp != 100 {
		t.Errorf("expected first point fallback, got %d", got.Timestamp)
	}

	if _, err := HistoryAt(100, nil); !errors.Is(err, ErrNoHistoryData) {
		t.Errorf("expected ErrNoHistoryData, got %v", err)
	}
}
