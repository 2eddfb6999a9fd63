package reporting

import (
	"context"
	"errors"
	"math/big"
	"time"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/lookup"
	"morpho-market-indexer/internal/storage"
)

const (
	topPositionCount    = 10
	recentActivityCount = 20
	recentRunCount      = 10

	baselineAge = 24 * time.Hour
)

// Generator produces reports from stored data.
type Generator struct {
	activityStore storage.ActivityStore
	positionStore storage.UserPositionStore
	snapshotStore storage.MarketSnapshotStore
	runStore      storage.IngestRunStore
	now           func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	activityStore storage.ActivityStore,
	positionStore storage.UserPositionStore,
	snapshotStore storage.MarketSnapshotStore,
	runStore storage.IngestRunStore,
) *Generator {
	return &Generator{
		activityStore: activityStore,
		positionStore: positionStore,
		snapshotStore: snapshotStore,
		runStore:      runStore,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete market report from the stores.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	// Latest snapshot; a fresh database has none yet.
	latest, err := g.snapshotStore.GetLatest(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	market, err := g.generateMarketSection(ctx, latest)
	if err != nil {
		return nil, err
	}

	changes, err := g.generateChanges(ctx, latest)
	if err != nil {
		return nil, err
	}

	suppliers, err := g.positionStore.GetTopByNetSupply(ctx, topPositionCount)
	if err != nil {
		return nil, err
	}

	borrowers, err := g.positionStore.GetTopByNetBorrow(ctx, topPositionCount)
	if err != nil {
		return nil, err
	}

	recent, err := g.generateRecentActivities(ctx)
	if err != nil {
		return nil, err
	}

	runs, err := g.generateRuns(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt:      g.now(),
		Market:           *market,
		Changes:          *changes,
		TopSuppliers:     positionRows(suppliers),
		TopBorrowers:     positionRows(borrowers),
		RecentActivities: recent,
		Runs:             runs,
	}, nil
}

// generateMarketSection builds the market state summary. A nil snapshot
// renders as zero totals.
func (g *Generator) generateMarketSection(ctx context.Context, latest *domain.MarketSnapshot) (*MarketSection, error) {
	activityCount, err := g.activityStore.Count(ctx)
	if err != nil {
		return nil, err
	}

	activeSuppliers, err := g.positionStore.CountActiveSuppliers(ctx)
	if err != nil {
		return nil, err
	}

	activeBorrowers, err := g.positionStore.CountActiveBorrowers(ctx)
	if err != nil {
		return nil, err
	}

	section := &MarketSection{
		MarketID:         domain.MarketID,
		CollateralSymbol: domain.CollateralSymbol,
		LoanSymbol:       domain.LoanSymbol,
		TotalSupply:      "0",
		TotalBorrow:      "0",
		ActiveSuppliers:  activeSuppliers,
		ActiveBorrowers:  activeBorrowers,
		TotalActivities:  activityCount,
	}
	if latest != nil {
		section.TotalSupply = domain.FormatUnits(latest.TotalSupply, domain.CollateralDecimals)
		section.TotalBorrow = domain.FormatUnits(latest.TotalBorrow, domain.LoanDecimals)
		section.SnapshotBlock = latest.SnapshotBlock
		section.SnapshotTime = latest.Timestamp
	}
	return section, nil
}

// generateChanges diffs the latest snapshot against the snapshot at or
// before 24 hours ago. Without a baseline the section reports no data.
func (g *Generator) generateChanges(ctx context.Context, latest *domain.MarketSnapshot) (*ChangesSection, error) {
	if latest == nil {
		return &ChangesSection{}, nil
	}

	cutoff := g.now().Add(-baselineAge).Unix()
	candidates, err := g.snapshotStore.GetByTimeRange(ctx, 0, cutoff)
	if err != nil {
		return nil, err
	}

	baseline, err := lookup.SnapshotAt(cutoff, candidates)
	if err != nil || baseline == nil {
		return &ChangesSection{}, nil
	}

	supplyDelta := new(big.Int).Sub(latest.TotalSupply, baseline.TotalSupply)
	borrowDelta := new(big.Int).Sub(latest.TotalBorrow, baseline.TotalBorrow)

	return &ChangesSection{
		HaveBaseline:    true,
		SupplyChange:    domain.FormatUnits(supplyDelta, domain.CollateralDecimals),
		BorrowChange:    domain.FormatUnits(borrowDelta, domain.LoanDecimals),
		SupplyChangePct: pctChange(supplyDelta, baseline.TotalSupply),
		BorrowChangePct: pctChange(borrowDelta, baseline.TotalBorrow),
	}, nil
}

// generateRecentActivities returns the newest activities, newest first.
func (g *Generator) generateRecentActivities(ctx context.Context) ([]ActivityRow, error) {
	activities, err := g.activityStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	// GetAll is ordered oldest first; walk the tail backwards.
	count := len(activities)
	if count > recentActivityCount {
		count = recentActivityCount
	}

	rows := make([]ActivityRow, 0, count)
	for i := len(activities) - 1; i >= len(activities)-count; i-- {
		rows = append(rows, activityRow(activities[i]))
	}
	return rows, nil
}

// generateRuns returns the most recent ingestion runs.
func (g *Generator) generateRuns(ctx context.Context) ([]RunRow, error) {
	runs, err := g.runStore.GetRecent(ctx, recentRunCount)
	if err != nil {
		return nil, err
	}

	rows := make([]RunRow, len(runs))
	for i, r := range runs {
		rows[i] = RunRow{
			RunID:              r.RunID,
			Mode:               r.Mode,
			FromBlock:          r.FromBlock,
			ToBlock:            r.ToBlock,
			ActivitiesIngested: r.ActivitiesIngested,
			DuplicatesSkipped:  r.DuplicatesSkipped,
			Status:             runStatus(r),
			FinishedAt:         r.FinishedAt,
		}
	}
	return rows, nil
}

// positionRows converts positions to ranked leaderboard rows.
func positionRows(positions []*domain.UserPosition) []PositionRow {
	rows := make([]PositionRow, len(positions))
	for i, p := range positions {
		rows[i] = PositionRow{
			Rank:         i + 1,
			ActorAddress: p.ActorAddress,
			NetSupply:    domain.FormatUnits(p.NetSupply, domain.CollateralDecimals),
			NetBorrow:    domain.FormatUnits(p.NetBorrow, domain.LoanDecimals),
			Supplied:     domain.FormatUnits(p.TotalSupplied, domain.CollateralDecimals),
			Withdrawn:    domain.FormatUnits(p.TotalWithdrawn, domain.CollateralDecimals),
			Borrowed:     domain.FormatUnits(p.TotalBorrowed, domain.LoanDecimals),
			Repaid:       domain.FormatUnits(p.TotalRepaid, domain.LoanDecimals),
			UpdatedAt:    p.UpdatedAt,
		}
	}
	return rows
}

// runStatus classifies a run row. A run with a recorded error failed; a
// run whose backup or database writes fell through is degraded even
// though ingestion finished.
func runStatus(r *domain.IngestRun) string {
	switch {
	case r.Error != "":
		return "failed"
	case !r.BackupOK || !r.DatabaseOK:
		return "degraded"
	default:
		return "ok"
	}
}

// pctChange returns delta relative to baseline as a percentage. A zero
// baseline yields zero.
func pctChange(delta, baseline *big.Int) float64 {
	if baseline == nil || baseline.Sign() == 0 {
		return 0
	}
	d := new(big.Float).SetInt(delta)
	b := new(big.Float).SetInt(baseline)
	ratio, _ := new(big.Float).Quo(d, b).Float64()
	return ratio * 100
}
