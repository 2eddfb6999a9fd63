package domain

import "math/big"

// ActivityKind identifies the lending operation an on-chain event encodes.
type ActivityKind string

const (
	KindSupply   ActivityKind = "supply"
	KindWithdraw ActivityKind = "withdraw"
	KindBorrow   ActivityKind = "borrow"
	KindRepay    ActivityKind = "repay"
)

// ActivityKinds lists the four kinds in the order ingestion fetches them.
var ActivityKinds = []ActivityKind{KindSupply, KindWithdraw, KindBorrow, KindRepay}

// Valid reports whether k is one of the four lending kinds.
func (k ActivityKind) Valid() bool {
	switch k {
	case KindSupply, KindWithdraw, KindBorrow, KindRepay:
		return true
	}
	return false
}

// Activity represents one on-chain lending event occurrence.
// Corresponds to activities table in Postgres.
// Unique on (transaction_hash, kind, actor_address); immutable once written.
type Activity struct {
	ID              string       // deterministic id, SHA256(tx_hash|kind|actor)
	Kind            ActivityKind // supply | withdraw | borrow | repay
	Amount          *big.Int     // raw token amount, unscaled
	AmountFormatted string       // display amount scaled by the token's decimals
	ActorAddress    string       // 0x-hex address the event is attributed to (onBehalf)
	TransactionHash string       // 0x-hex transaction hash
	BlockNumber     uint64       // block containing the event
	Timestamp       int64        // Unix timestamp in seconds (block time)
	MarketID        string       // 0x-hex bytes32 market identifier
	BorrowShares    *big.Int     // borrow share count; nil for every kind except borrow
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate shared big.Int values.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	c := *a
	c.Amount = copyBig(a.Amount)
	c.BorrowShares = copyBig(a.BorrowShares)
	return &c
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
