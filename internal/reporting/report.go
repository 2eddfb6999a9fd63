package reporting

import "time"

// Report is the market report structure rendered to Markdown and CSV.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	// Market state
	Market MarketSection

	// 24h movement, absent when there is no day-old snapshot to diff
	Changes ChangesSection

	// Leaderboards (sorted by net descending)
	TopSuppliers []PositionRow
	TopBorrowers []PositionRow

	// Most recent activity, newest first
	RecentActivities []ActivityRow

	// Recent ingestion runs, newest first
	Runs []RunRow
}

// MarketSection summarizes the current market state.
type MarketSection struct {
	MarketID         string
	CollateralSymbol string
	LoanSymbol       string
	TotalSupply      string // display-scaled collateral
	TotalBorrow      string // display-scaled loan
	SnapshotBlock    uint64
	SnapshotTime     int64 // Unix seconds
	ActiveSuppliers  int
	ActiveBorrowers  int
	TotalActivities  int
}

// ChangesSection holds 24h deltas computed against the snapshot at or
// before 24 hours ago.
type ChangesSection struct {
	HaveBaseline    bool
	SupplyChange    string  // display-scaled signed delta
	BorrowChange    string
	SupplyChangePct float64 // 0 when the baseline total was zero
	BorrowChangePct float64
}

// PositionRow is one leaderboard entry.
type PositionRow struct {
	Rank         int
	ActorAddress string
	NetSupply    string // display-scaled
	NetBorrow    string
	Supplied     string
	Withdrawn    string
	Borrowed     string
	Repaid       string
	UpdatedAt    int64
}

// ActivityRow is one activity line in the report.
type ActivityRow struct {
	Kind            string
	ActorAddress    string
	AmountFormatted string
	TransactionHash string
	BlockNumber     uint64
	Timestamp       int64
}

// RunRow is one ingestion run line in the report.
type RunRow struct {
	RunID              string
	Mode               string
	FromBlock          uint64
	ToBlock            uint64
	ActivitiesIngested int
	DuplicatesSkipped  int
	Status             string // ok | degraded | failed
	FinishedAt         int64
}
