package postgres

import (
	"context"
	"fmt"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

// IngestRunStore implements storage.IngestRunStore using PostgreSQL.
type IngestRunStore struct {
	pool *Pool
}

// NewIngestRunStore creates a new IngestRunStore.
func NewIngestRunStore(pool *Pool) *IngestRunStore {
	return &IngestRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IngestRunStore = (*IngestRunStore)(nil)

// Insert records a finished run. Returns ErrDuplicateKey if run_id exists.
func (s *IngestRunStore) Insert(ctx context.Context, r *domain.IngestRun) error {
	query := `
		INSERT INTO ingest_runs (
			run_id, mode, from_block, to_block, logs_fetched, activities_ingested,
			duplicates_skipped, positions_upserted, snapshot_block,
			backup_ok, database_ok, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RunID,
		r.Mode,
		int64(r.FromBlock),
		int64(r.ToBlock),
		r.LogsFetched,
		r.ActivitiesIngested,
		r.DuplicatesSkipped,
		r.PositionsUpserted,
		int64(r.SnapshotBlock),
		r.BackupOK,
		r.DatabaseOK,
		r.Error,
		r.StartedAt,
		r.FinishedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ingest run: %w", err)
	}
	return nil
}

// GetRecent retrieves up to limit runs, newest first.
func (s *IngestRunStore) GetRecent(ctx context.Context, limit int) ([]*domain.IngestRun, error) {
	query := `
		SELECT run_id, mode, from_block, to_block, logs_fetched, activities_ingested,
		       duplicates_skipped, positions_upserted, snapshot_block,
		       backup_ok, database_ok, error, started_at, finished_at
		FROM ingest_runs
		ORDER BY started_at DESC, run_id ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.IngestRun
	for rows.Next() {
		var (
			r                             domain.IngestRun
			fromBlock, toBlock, snapBlock int64
		)

		err := rows.Scan(
			&r.RunID,
			&r.Mode,
			&fromBlock,
			&toBlock,
			&r.LogsFetched,
			&r.ActivitiesIngested,
			&r.DuplicatesSkipped,
			&r.PositionsUpserted,
			&snapBlock,
			&r.BackupOK,
			&r.DatabaseOK,
			&r.Error,
			&r.StartedAt,
			&r.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ingest run row: %w", err)
		}

		r.FromBlock = uint64(fromBlock)
		r.ToBlock = uint64(toBlock)
		r.SnapshotBlock = uint64(snapBlock)
		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest run rows: %w", err)
	}

	return runs, nil
}
