package aggregation

import (
	"math/big"
	"sort"

	"morpho-market-indexer/internal/domain"
)

// ComputePositions folds the complete activity history into one
// cumulative position per actor. Summation is commutative big.Int
// addition, so input order does not affect the result. Positions are
// returned sorted by actor address for deterministic output.
func ComputePositions(activities []*domain.Activity, updatedAt int64) []*domain.UserPosition {
	byActor := make(map[string]*domain.UserPosition)

	for _, a := range activities {
		if a == nil || a.Amount == nil {
			continue
		}
		pos, ok := byActor[a.ActorAddress]
		if !ok {
			pos = domain.NewUserPosition(a.ActorAddress)
			pos.UpdatedAt = updatedAt
			byActor[a.ActorAddress] = pos
		}

		switch a.Kind {
		case domain.KindSupply:
			pos.TotalSupplied.Add(pos.TotalSupplied, a.Amount)
		case domain.KindWithdraw:
			pos.TotalWithdrawn.Add(pos.TotalWithdrawn, a.Amount)
		case domain.KindBorrow:
			pos.TotalBorrowed.Add(pos.TotalBorrowed, a.Amount)
			if a.BorrowShares != nil {
				pos.BorrowShares.Add(pos.BorrowShares, a.BorrowShares)
			}
		case domain.KindRepay:
			pos.TotalRepaid.Add(pos.TotalRepaid, a.Amount)
		}
	}

	positions := make([]*domain.UserPosition, 0, len(byActor))
	for _, pos := range byActor {
		pos.NetSupply.Sub(pos.TotalSupplied, pos.TotalWithdrawn)
		pos.NetBorrow.Sub(pos.TotalBorrowed, pos.TotalRepaid)
		positions = append(positions, pos)
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].ActorAddress < positions[j].ActorAddress
	})
	return positions
}

// ComputeSnapshot rolls positions up into market totals. Only strictly
// positive nets count; an actor who withdrew everything contributes
// nothing, and a negative net (more withdrawn than supplied in range)
// never subtracts from the market total.
func ComputeSnapshot(positions []*domain.UserPosition, snapshotBlock uint64, timestamp int64) *domain.MarketSnapshot {
	totalSupply := new(big.Int)
	totalBorrow := new(big.Int)

	for _, pos := range positions {
		if pos == nil {
			continue
		}
		if pos.ActiveSupplier() {
			totalSupply.Add(totalSupply, pos.NetSupply)
		}
		if pos.ActiveBorrower() {
			totalBorrow.Add(totalBorrow, pos.NetBorrow)
		}
	}

	return &domain.MarketSnapshot{
		MarketID:      domain.MarketID,
		TotalSupply:   totalSupply,
		TotalBorrow:   totalBorrow,
		SnapshotBlock: snapshotBlock,
		Timestamp:     timestamp,
	}
}

// SnapshotBlock picks the block a snapshot is attributed to: the highest
// block among the activities, falling back to the requested range upper
// bound when the range produced nothing.
func SnapshotBlock(activities []*domain.Activity, requestedUpper uint64) uint64 {
	highest := uint64(0)
	for _, a := range activities {
		if a != nil && a.BlockNumber > highest {
			highest = a.BlockNumber
		}
	}
	if highest == 0 {
		return requestedUpper
	}
	return highest
}
