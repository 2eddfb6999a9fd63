package domain

import "math/big"

// UserPosition represents one actor's cumulative position in the market.
// Corresponds to user_positions table in Postgres; unique on actor_address.
// Recomputed in full from the activity history on every run and upserted,
// never incremented from deltas.
type UserPosition struct {
	ActorAddress   string   // 0x-hex actor address
	MarketID       string   // market the position belongs to
	TotalSupplied  *big.Int // lifetime collateral supplied
	TotalWithdrawn *big.Int // lifetime collateral withdrawn
	NetSupply      *big.Int // supplied - withdrawn; signed
	TotalBorrowed  *big.Int // lifetime loan borrowed
	TotalRepaid    *big.Int // lifetime loan repaid
	NetBorrow      *big.Int // borrowed - repaid; signed
	BorrowShares   *big.Int // cumulative borrow shares
	UpdatedAt      int64    // Unix timestamp in seconds of last recompute
}

// NewUserPosition returns a zeroed position for actor in the fixed market.
func NewUserPosition(actor string) *UserPosition {
	return &UserPosition{
		ActorAddress:   actor,
		MarketID:       MarketID,
		TotalSupplied:  new(big.Int),
		TotalWithdrawn: new(big.Int),
		NetSupply:      new(big.Int),
		TotalBorrowed:  new(big.Int),
		TotalRepaid:    new(big.Int),
		NetBorrow:      new(big.Int),
		BorrowShares:   new(big.Int),
	}
}

// ActiveSupplier reports whether the actor holds a strictly positive net
// supply. Zero and negative nets do not count.
func (p *UserPosition) ActiveSupplier() bool {
	return p.NetSupply != nil && p.NetSupply.Sign() > 0
}

// ActiveBorrower reports whether the actor holds a strictly positive net
// borrow.
func (p *UserPosition) ActiveBorrower() bool {
	return p.NetBorrow != nil && p.NetBorrow.Sign() > 0
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate shared big.Int values.
func (p *UserPosition) Clone() *UserPosition {
	if p == nil {
		return nil
	}
	c := *p
	c.TotalSupplied = copyBig(p.TotalSupplied)
	c.TotalWithdrawn = copyBig(p.TotalWithdrawn)
	c.NetSupply = copyBig(p.NetSupply)
	c.TotalBorrowed = copyBig(p.TotalBorrowed)
	c.TotalRepaid = copyBig(p.TotalRepaid)
	c.NetBorrow = copyBig(p.NetBorrow)
	c.BorrowShares = copyBig(p.BorrowShares)
	return &c
}
