package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

// MarketSnapshotStore implements storage.MarketSnapshotStore using PostgreSQL.
type MarketSnapshotStore struct {
	pool *Pool
}

// NewMarketSnapshotStore creates a new MarketSnapshotStore.
func NewMarketSnapshotStore(pool *Pool) *MarketSnapshotStore {
	return &MarketSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MarketSnapshotStore = (*MarketSnapshotStore)(nil)

// Insert appends a new snapshot row and fills s.ID.
func (st *MarketSnapshotStore) Insert(ctx context.Context, s *domain.MarketSnapshot) error {
	query := `
		INSERT INTO market_snapshots (
			market_id, total_supply, total_borrow, snapshot_block, timestamp
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := st.pool.QueryRow(ctx, query,
		s.MarketID,
		bigString(s.TotalSupply),
		bigString(s.TotalBorrow),
		int64(s.SnapshotBlock),
		s.Timestamp,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent snapshot. Returns ErrNotFound when no
// snapshot has been taken yet.
func (st *MarketSnapshotStore) GetLatest(ctx context.Context) (*domain.MarketSnapshot, error) {
	query := `
		SELECT id, market_id, total_supply::text, total_borrow::text, snapshot_block, timestamp
		FROM market_snapshots
		ORDER BY id DESC
		LIMIT 1
	`

	snapshot, err := scanSnapshot(st.pool.QueryRow(ctx, query))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snapshot, nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive),
// ordered by timestamp ASC.
func (st *MarketSnapshotStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.MarketSnapshot, error) {
	query := `
		SELECT id, market_id, total_supply::text, total_borrow::text, snapshot_block, timestamp
		FROM market_snapshots
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := st.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get snapshots by time range: %w", err)
	}
	defer rows.Close()

	var snapshots []*domain.MarketSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snapshots, nil
}

// scanSnapshot scans one snapshot from a row.
func scanSnapshot(row pgx.Row) (*domain.MarketSnapshot, error) {
	var (
		s             domain.MarketSnapshot
		supply        string
		borrow        string
		snapshotBlock int64
	)

	err := row.Scan(&s.ID, &s.MarketID, &supply, &borrow, &snapshotBlock, &s.Timestamp)
	if err != nil {
		return nil, err
	}

	s.SnapshotBlock = uint64(snapshotBlock)
	if s.TotalSupply, err = parseBig(supply); err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", s.ID, err)
	}
	if s.TotalBorrow, err = parseBig(borrow); err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", s.ID, err)
	}

	return &s, nil
}
