package clickhouse

import (
	"context"
	"fmt"
	"time"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

// MarketHistoryStore implements storage.MarketHistoryStore using ClickHouse.
type MarketHistoryStore struct {
	conn *Conn
}

// NewMarketHistoryStore creates a new MarketHistoryStore.
func NewMarketHistoryStore(conn *Conn) *MarketHistoryStore {
	return &MarketHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MarketHistoryStore = (*MarketHistoryStore)(nil)

// InsertBulk appends history points. The series is append-only with no
// uniqueness key; MergeTree does not enforce one either.
func (s *MarketHistoryStore) InsertBulk(ctx context.Context, points []*domain.MarketHistoryPoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_history (
			market_id, ts, block_number, total_supply, total_borrow, activity_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.MarketID, time.Unix(p.Timestamp, 0).UTC(), p.BlockNumber,
			p.TotalSupply, p.TotalBorrow, p.ActivityCount,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves points within [start, end] (inclusive), ordered
// by timestamp ASC.
func (s *MarketHistoryStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.MarketHistoryPoint, error) {
	query := `
		SELECT market_id, ts, block_number, total_supply, total_borrow, activity_count
		FROM market_history
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts ASC, block_number ASC
	`

	rows, err := s.conn.Query(ctx, query, time.Unix(start, 0).UTC(), time.Unix(end, 0).UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanMarketHistory(rows)
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanMarketHistory scans multiple rows.
func scanMarketHistory(rows chRows) ([]*domain.MarketHistoryPoint, error) {
	var points []*domain.MarketHistoryPoint

	for rows.Next() {
		var p domain.MarketHistoryPoint
		var ts time.Time

		err := rows.Scan(
			&p.MarketID, &ts, &p.BlockNumber,
			&p.TotalSupply, &p.TotalBorrow, &p.ActivityCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan market history row: %w", err)
		}

		p.Timestamp = ts.Unix()
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market history rows: %w", err)
	}

	return points, nil
}
