package replay

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"morpho-market-indexer/internal/aggregation"
	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/observability"
	"morpho-market-indexer/internal/reporting"
	"morpho-market-indexer/internal/storage"
)

// Engine rebuilds positions, the market snapshot, and the JSON backups
// from the persisted activity table without touching the chain. As long
// as the activity table survived, every derived table can be
// reconstructed from it.
type Engine struct {
	activityStore storage.ActivityStore
	positionStore storage.UserPositionStore
	snapshotStore storage.MarketSnapshotStore
	runStore      storage.IngestRunStore
	exporter      *reporting.Exporter
	logger        *log.Logger
	now           func() time.Time
}

// EngineOptions contains configuration for creating an Engine.
type EngineOptions struct {
	ActivityStore storage.ActivityStore
	PositionStore storage.UserPositionStore
	SnapshotStore storage.MarketSnapshotStore
	RunStore      storage.IngestRunStore
	Exporter      *reporting.Exporter
	Logger        *log.Logger
}

// NewEngine creates a replay engine.
func NewEngine(opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		activityStore: opts.ActivityStore,
		positionStore: opts.PositionStore,
		snapshotStore: opts.SnapshotStore,
		runStore:      opts.RunStore,
		exporter:      opts.Exporter,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Result contains statistics from one replay pass.
type Result struct {
	RunID             string
	ActivitiesLoaded  int
	PositionsUpserted int
	SnapshotBlock     uint64
	BackupOK          bool
	DatabaseOK        bool
	Duration          time.Duration
}

// Run recomputes every derived table from the stored activity history
// and writes it back: JSON backups first, then position upserts and one
// new snapshot row. A run row with mode replay is recorded either way.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := e.now()
	result := &Result{RunID: uuid.NewString()}

	activities, err := e.activityStore.GetAll(ctx)
	if err != nil {
		return e.fail(ctx, result, start, fmt.Errorf("load activities: %w", err))
	}
	result.ActivitiesLoaded = len(activities)
	e.logger.Printf("Replay %s: recomputing from %d stored activities", result.RunID, len(activities))

	computedAt := e.now().Unix()
	positions := aggregation.ComputePositions(activities, computedAt)
	result.SnapshotBlock = aggregation.SnapshotBlock(activities, 0)
	snapshot := aggregation.ComputeSnapshot(positions, result.SnapshotBlock, computedAt)

	// JSON backup first, before any database write.
	if err := e.exporter.Export(activities, positions, snapshot); err != nil {
		e.logger.Printf("Replay %s: backup failed: %v", result.RunID, err)
	} else {
		result.BackupOK = true
	}
	observability.RecordBackup(result.BackupOK)

	ok := true
	if len(positions) > 0 {
		if err := e.positionStore.UpsertBulk(ctx, positions); err != nil {
			ok = false
			observability.RecordIngestError("positions")
			e.logger.Printf("Replay %s: upsert positions: %v", result.RunID, err)
		} else {
			result.PositionsUpserted = len(positions)
		}
	}
	if err := e.snapshotStore.Insert(ctx, snapshot); err != nil {
		ok = false
		observability.RecordIngestError("snapshot")
		e.logger.Printf("Replay %s: insert snapshot: %v", result.RunID, err)
	}
	result.DatabaseOK = ok

	finished := e.now()
	result.Duration = finished.Sub(start)
	e.recordRun(ctx, result, "", start, finished)

	observability.RecordRun(domain.RunModeReplay, "ok", result.Duration.Seconds())
	e.logger.Printf("Replay %s complete: %d positions, snapshot at block %d in %v",
		result.RunID, result.PositionsUpserted, result.SnapshotBlock, result.Duration)

	return result, nil
}

func (e *Engine) fail(ctx context.Context, result *Result, start time.Time, err error) (*Result, error) {
	finished := e.now()
	result.Duration = finished.Sub(start)
	e.recordRun(ctx, result, err.Error(), start, finished)

	observability.RecordRun(domain.RunModeReplay, "error", result.Duration.Seconds())
	e.logger.Printf("Replay %s failed: %v", result.RunID, err)
	return result, err
}

// recordRun writes the run row. Block range stays zero since no chain
// fetch happened; recording failures are logged only.
func (e *Engine) recordRun(ctx context.Context, result *Result, errText string, start, finished time.Time) {
	run := &domain.IngestRun{
		RunID:             result.RunID,
		Mode:              domain.RunModeReplay,
		PositionsUpserted: result.PositionsUpserted,
		SnapshotBlock:     result.SnapshotBlock,
		BackupOK:          result.BackupOK,
		DatabaseOK:        result.DatabaseOK,
		Error:             errText,
		StartedAt:         start.Unix(),
		FinishedAt:        finished.Unix(),
	}
	if err := e.runStore.Insert(ctx, run); err != nil {
		e.logger.Printf("Replay %s: record run: %v", result.RunID, err)
	}
}
