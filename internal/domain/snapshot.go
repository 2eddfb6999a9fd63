package domain

import "math/big"

// MarketSnapshot is a point-in-time rollup of market totals.
// Corresponds to market_snapshots table in Postgres; append-only, one row
// per ingestion run.
type MarketSnapshot struct {
	ID            int64    // assigned by the store; 0 until inserted
	MarketID      string   // 0x-hex bytes32 market identifier
	TotalSupply   *big.Int // sum of strictly positive net supplies
	TotalBorrow   *big.Int // sum of strictly positive net borrows
	SnapshotBlock uint64   // block height the rollup was computed at
	Timestamp     int64    // Unix timestamp in seconds
}

// Clone returns a deep copy.
func (s *MarketSnapshot) Clone() *MarketSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.TotalSupply = copyBig(s.TotalSupply)
	c.TotalBorrow = copyBig(s.TotalBorrow)
	return &c
}

// MarketHistoryPoint is one analytics sample of market totals.
// Corresponds to market_history table in ClickHouse. Values are
// display-scaled floats; the series is derived data and safe to lose.
type MarketHistoryPoint struct {
	MarketID      string  // 0x-hex bytes32 market identifier
	Timestamp     int64   // Unix timestamp in seconds
	BlockNumber   uint64  // block height of the sample
	TotalSupply   float64 // display-scaled collateral total
	TotalBorrow   float64 // display-scaled loan total
	ActivityCount uint32  // activities known at sample time
}
