// Package verification checks stored positions against an independent
// recompute from the activity table. A divergence means the position
// table drifted from what the activity history implies, either through
// a partial write or outside interference.
package verification

import (
	"math/big"

	"morpho-market-indexer/internal/domain"
)

// FieldDivergence represents a mismatch between a stored position field
// and its recomputed value. Amounts are raw decimal strings.
type FieldDivergence struct {
	Field    string // position field name
	Expected string // stored value
	Actual   string // recomputed value
}

// VerificationResult contains the result of verifying a single actor.
type VerificationResult struct {
	ActorAddress string
	Match        bool // true if all fields match
	Divergences  []FieldDivergence
}

// VerificationReport contains results for a full-table verification.
type VerificationReport struct {
	TotalPositions     int
	MatchedPositions   int
	DivergentPositions int
	Results            []VerificationResult
}

// ComparePositions compares a stored position against its recomputed
// dual and returns the divergent fields. Integer comparisons are exact;
// UpdatedAt is skipped since it is stamped at recompute time.
func ComparePositions(stored, recomputed *domain.UserPosition) []FieldDivergence {
	checks := []struct {
		field              string
		stored, recomputed *big.Int
	}{
		{"TotalSupplied", stored.TotalSupplied, recomputed.TotalSupplied},
		{"TotalWithdrawn", stored.TotalWithdrawn, recomputed.TotalWithdrawn},
		{"NetSupply", stored.NetSupply, recomputed.NetSupply},
		{"TotalBorrowed", stored.TotalBorrowed, recomputed.TotalBorrowed},
		{"TotalRepaid", stored.TotalRepaid, recomputed.TotalRepaid},
		{"NetBorrow", stored.NetBorrow, recomputed.NetBorrow},
		{"BorrowShares", stored.BorrowShares, recomputed.BorrowShares},
	}

	var divergences []FieldDivergence
	for _, c := range checks {
		if !bigEquals(c.stored, c.recomputed) {
			divergences = append(divergences, FieldDivergence{
				Field:    c.field,
				Expected: bigText(c.stored),
				Actual:   bigText(c.recomputed),
			})
		}
	}

	if stored.MarketID != recomputed.MarketID {
		divergences = append(divergences, FieldDivergence{
			Field:    "MarketID",
			Expected: stored.MarketID,
			Actual:   recomputed.MarketID,
		})
	}

	return divergences
}

// bigEquals compares two big.Int values treating nil as zero.
func bigEquals(a, b *big.Int) bool {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b) == 0
}

func bigText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
