package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"morpho-market-indexer/internal/aggregation"
	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/evm"
	"morpho-market-indexer/internal/normalization"
	"morpho-market-indexer/internal/observability"
	"morpho-market-indexer/internal/reporting"
	"morpho-market-indexer/internal/storage"
)

// Runner executes one ingestion pass over the fixed market: fetch logs
// per event kind, normalize them into activities, recompute positions and
// the market snapshot from the full history, export JSON backups, then
// write to the stores. Database failures never abort the backup.
type Runner struct {
	client        evm.Client
	fetcher       *evm.Fetcher
	exporter      *reporting.Exporter
	activityStore storage.ActivityStore
	positionStore storage.UserPositionStore
	snapshotStore storage.MarketSnapshotStore
	runStore      storage.IngestRunStore
	historyStore  storage.MarketHistoryStore
	batchSize     int
	logger        *log.Logger
	now           func() time.Time
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Client        evm.Client
	Fetcher       *evm.Fetcher // optional; built from Client when nil
	Exporter      *reporting.Exporter
	ActivityStore storage.ActivityStore
	PositionStore storage.UserPositionStore
	SnapshotStore storage.MarketSnapshotStore
	RunStore      storage.IngestRunStore
	HistoryStore  storage.MarketHistoryStore // optional analytics sink
	BatchSize     int
	Logger        *log.Logger
}

// NewRunner creates an ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = evm.NewFetcher(opts.Client,
			evm.WithFetchLogger(logger),
			evm.WithWindowObserver(func(uint64, int) {
				observability.RecordFetchWindow("ok")
			}),
		)
	}

	return &Runner{
		client:        opts.Client,
		fetcher:       fetcher,
		exporter:      opts.Exporter,
		activityStore: opts.ActivityStore,
		positionStore: opts.PositionStore,
		snapshotStore: opts.SnapshotStore,
		runStore:      opts.RunStore,
		historyStore:  opts.HistoryStore,
		batchSize:     batchSize,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// RunOptions select the block range for one pass.
type RunOptions struct {
	Mode      string // recorded on the run row; backfill when empty
	FromBlock uint64 // 0 = market deploy block
	ToBlock   uint64 // 0 = current chain head
}

// RunResult contains statistics from one ingestion pass.
type RunResult struct {
	RunID              string
	Mode               string
	FromBlock          uint64
	ToBlock            uint64
	LogsFetched        int
	ActivitiesDecoded  int
	ActivitiesIngested int
	DuplicatesSkipped  int
	PositionsUpserted  int
	SnapshotBlock      uint64
	BackupOK           bool
	DatabaseOK         bool
	Duration           time.Duration
}

// Run executes one ingestion pass. The returned result is non-nil even on
// failure; a run row is recorded either way.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	start := r.now()

	result := &RunResult{
		RunID: uuid.NewString(),
		Mode:  opts.Mode,
	}
	if result.Mode == "" {
		result.Mode = domain.RunModeBackfill
	}

	from, to, err := r.resolveRange(ctx, opts)
	if err != nil {
		return r.fail(ctx, result, start, fmt.Errorf("resolve block range: %w", err))
	}
	result.FromBlock = from
	result.ToBlock = to

	r.logger.Printf("Run %s: ingesting blocks %d-%d (%s)", result.RunID, from, to, result.Mode)

	logs, err := r.fetchAll(ctx, from, to)
	if err != nil {
		return r.fail(ctx, result, start, err)
	}
	result.LogsFetched = len(logs)
	normalization.SortLogs(logs)

	// One resolver per run; the cache dies with it.
	resolver := NewTimestampResolver(r.client)
	if err := resolver.ResolveAll(ctx, blockNumbers(logs)); err != nil {
		return r.fail(ctx, result, start, fmt.Errorf("resolve timestamps: %w", err))
	}

	activities := normalization.DecodeAll(logs, resolver.Cached)
	result.ActivitiesDecoded = len(activities)
	observability.RecordActivitiesDecoded(len(activities))
	r.logger.Printf("Run %s: decoded %d activities from %d logs", result.RunID, len(activities), len(logs))

	history := r.mergeHistory(ctx, activities)

	computedAt := r.now().Unix()
	positions := aggregation.ComputePositions(history, computedAt)
	result.SnapshotBlock = aggregation.SnapshotBlock(history, to)
	snapshot := aggregation.ComputeSnapshot(positions, result.SnapshotBlock, computedAt)

	// JSON backup first, before any database write.
	if err := r.exporter.Export(history, positions, snapshot); err != nil {
		r.logger.Printf("Run %s: backup failed: %v", result.RunID, err)
	} else {
		result.BackupOK = true
	}
	observability.RecordBackup(result.BackupOK)

	r.persist(ctx, result, activities, positions, snapshot)
	r.appendHistory(ctx, snapshot)

	finished := r.now()
	result.Duration = finished.Sub(start)
	r.recordRun(ctx, result, "", start, finished)

	observability.RecordRun(result.Mode, "ok", result.Duration.Seconds())
	observability.MarkSuccessfulRun(finished.Unix())
	r.logger.Printf("Run %s complete: %d activities (%d new, %d dupes), %d positions, snapshot at block %d in %v",
		result.RunID, result.ActivitiesDecoded, result.ActivitiesIngested, result.DuplicatesSkipped,
		result.PositionsUpserted, result.SnapshotBlock, result.Duration)

	return result, nil
}

// resolveRange applies the compile-time deploy block and the live chain
// head as defaults.
func (r *Runner) resolveRange(ctx context.Context, opts RunOptions) (uint64, uint64, error) {
	from := opts.FromBlock
	if from == 0 {
		from = domain.MarketDeployBlock
	}

	to := opts.ToBlock
	if to == 0 {
		head, err := r.client.BlockNumber(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("chain head: %w", err)
		}
		observability.UpdateHeadBlock(head)
		to = head
	}

	if to < from {
		return 0, 0, fmt.Errorf("invalid range [%d, %d]", from, to)
	}
	return from, to, nil
}

// mergeHistory combines the freshly decoded activities with everything
// already stored, deduplicated by id. Positions and the snapshot always
// derive from the full activity history, so a run over a narrowed block
// range never shrinks previously computed totals. A store read failure
// falls back to the fetched set alone.
func (r *Runner) mergeHistory(ctx context.Context, decoded []*domain.Activity) []*domain.Activity {
	stored, err := r.activityStore.GetAll(ctx)
	if err != nil {
		r.logger.Printf("Load stored activities: %v (aggregating over fetched set only)", err)
		return decoded
	}
	if len(stored) == 0 {
		return decoded
	}

	seen := make(map[string]bool, len(stored))
	merged := make([]*domain.Activity, 0, len(stored)+len(decoded))
	for _, a := range stored {
		seen[a.ID] = true
		merged = append(merged, a)
	}
	for _, a := range decoded {
		if !seen[a.ID] {
			merged = append(merged, a)
		}
	}
	normalization.SortActivities(merged)

	r.logger.Printf("Aggregating over %d activities (%d already stored)", len(merged), len(stored))
	return merged
}

// fetchAll fetches logs for each event kind in sequence, all restricted
// to the fixed contract and market id.
func (r *Runner) fetchAll(ctx context.Context, from, to uint64) ([]types.Log, error) {
	contract := common.HexToAddress(domain.ContractAddress)

	var all []types.Log
	for _, kind := range domain.ActivityKinds {
		q := ethereum.FilterQuery{
			Addresses: []common.Address{contract},
			Topics:    normalization.FilterTopics(kind),
		}

		logs, err := r.fetcher.FetchRange(ctx, q, from, to)
		if err != nil {
			return nil, fmt.Errorf("fetch %s logs: %w", kind, err)
		}

		observability.RecordLogsFetched(string(kind), len(logs))
		r.logger.Printf("Fetched %d %s logs", len(logs), kind)
		all = append(all, logs...)
	}
	return all, nil
}

// persist writes activities, positions, and the snapshot. Failures are
// logged and flip DatabaseOK; they do not abort the run.
func (r *Runner) persist(ctx context.Context, result *RunResult, activities []*domain.Activity, positions []*domain.UserPosition, snapshot *domain.MarketSnapshot) {
	ok := true

	stored, dupes, errs := r.storeActivities(ctx, activities)
	result.ActivitiesIngested = stored
	result.DuplicatesSkipped = dupes
	observability.RecordActivitiesStored(stored)
	observability.RecordDuplicatesSkipped(dupes)
	if errs > 0 {
		ok = false
		observability.RecordIngestError("activities")
	}

	if len(positions) > 0 {
		if err := r.positionStore.UpsertBulk(ctx, positions); err != nil {
			ok = false
			observability.RecordIngestError("positions")
			r.logger.Printf("Run %s: upsert positions: %v", result.RunID, err)
		} else {
			result.PositionsUpserted = len(positions)
		}
	}

	if err := r.snapshotStore.Insert(ctx, snapshot); err != nil {
		ok = false
		observability.RecordIngestError("snapshot")
		r.logger.Printf("Run %s: insert snapshot: %v", result.RunID, err)
	}

	result.DatabaseOK = ok
}

// storeActivities inserts activities in batches. A duplicate anywhere in
// a batch falls back to row-by-row inserts so duplicates are counted as
// skips, not failures.
func (r *Runner) storeActivities(ctx context.Context, activities []*domain.Activity) (stored, dupes, errs int) {
	for i := 0; i < len(activities); i += r.batchSize {
		end := i + r.batchSize
		if end > len(activities) {
			end = len(activities)
		}

		batch := activities[i:end]
		err := r.activityStore.InsertBulk(ctx, batch)
		if err == nil {
			stored += len(batch)
			continue
		}

		if !errors.Is(err, storage.ErrDuplicateKey) {
			errs += len(batch)
			r.logger.Printf("Insert activity batch: %v", err)
			continue
		}

		for _, a := range batch {
			switch err := r.activityStore.Insert(ctx, a); {
			case err == nil:
				stored++
			case errors.Is(err, storage.ErrDuplicateKey):
				dupes++
			default:
				errs++
				r.logger.Printf("Insert activity %s: %v", a.ID, err)
			}
		}
	}
	return stored, dupes, errs
}

// appendHistory adds one analytics point when a history sink is
// configured. Failures are logged and never affect the run outcome.
func (r *Runner) appendHistory(ctx context.Context, snapshot *domain.MarketSnapshot) {
	if r.historyStore == nil {
		return
	}

	count, err := r.activityStore.Count(ctx)
	if err != nil {
		r.logger.Printf("Count activities for history point: %v", err)
	}

	point := &domain.MarketHistoryPoint{
		MarketID:      snapshot.MarketID,
		Timestamp:     snapshot.Timestamp,
		BlockNumber:   snapshot.SnapshotBlock,
		TotalSupply:   domain.DisplayFloat(snapshot.TotalSupply, domain.CollateralDecimals),
		TotalBorrow:   domain.DisplayFloat(snapshot.TotalBorrow, domain.LoanDecimals),
		ActivityCount: uint32(count),
	}
	if err := r.historyStore.InsertBulk(ctx, []*domain.MarketHistoryPoint{point}); err != nil {
		r.logger.Printf("Append market history: %v", err)
	}
}

// fail records the run row with the error and returns it.
func (r *Runner) fail(ctx context.Context, result *RunResult, start time.Time, err error) (*RunResult, error) {
	finished := r.now()
	result.Duration = finished.Sub(start)
	r.recordRun(ctx, result, err.Error(), start, finished)

	observability.RecordRun(result.Mode, "error", result.Duration.Seconds())
	r.logger.Printf("Run %s failed: %v", result.RunID, err)
	return result, err
}

// recordRun writes the run row. Recording failures are logged only; the
// row is bookkeeping, not an outcome.
func (r *Runner) recordRun(ctx context.Context, result *RunResult, errText string, start, finished time.Time) {
	run := &domain.IngestRun{
		RunID:              result.RunID,
		Mode:               result.Mode,
		FromBlock:          result.FromBlock,
		ToBlock:            result.ToBlock,
		LogsFetched:        result.LogsFetched,
		ActivitiesIngested: result.ActivitiesIngested,
		DuplicatesSkipped:  result.DuplicatesSkipped,
		PositionsUpserted:  result.PositionsUpserted,
		SnapshotBlock:      result.SnapshotBlock,
		BackupOK:           result.BackupOK,
		DatabaseOK:         result.DatabaseOK,
		Error:              errText,
		StartedAt:          start.Unix(),
		FinishedAt:         finished.Unix(),
	}
	if err := r.runStore.Insert(ctx, run); err != nil {
		r.logger.Printf("Run %s: record run: %v", result.RunID, err)
	}
}

func blockNumbers(logs []types.Log) []uint64 {
	out := make([]uint64, len(logs))
	for i, l := range logs {
		out[i] = l.BlockNumber
	}
	return out
}
