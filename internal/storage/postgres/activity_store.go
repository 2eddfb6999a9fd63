package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

// ActivityStore implements storage.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool *Pool
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(pool *Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

// Insert adds a new activity. Returns ErrDuplicateKey if
// (transaction_hash, kind, actor_address) already exists.
func (s *ActivityStore) Insert(ctx context.Context, a *domain.Activity) error {
	query := `
		INSERT INTO activities (
			id, kind, amount, amount_formatted, actor_address,
			transaction_hash, block_number, timestamp, market_id, borrow_shares
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		a.ID,
		string(a.Kind),
		bigString(a.Amount),
		a.AmountFormatted,
		a.ActorAddress,
		a.TransactionHash,
		int64(a.BlockNumber),
		a.Timestamp,
		a.MarketID,
		bigStringPtr(a.BorrowShares),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// InsertBulk adds multiple activities atomically. Fails entire batch on any duplicate.
func (s *ActivityStore) InsertBulk(ctx context.Context, activities []*domain.Activity) error {
	if len(activities) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO activities (
			id, kind, amount, amount_formatted, actor_address,
			transaction_hash, block_number, timestamp, market_id, borrow_shares
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, a := range activities {
		_, err := tx.Exec(ctx, query,
			a.ID,
			string(a.Kind),
			bigString(a.Amount),
			a.AmountFormatted,
			a.ActorAddress,
			a.TransactionHash,
			int64(a.BlockNumber),
			a.Timestamp,
			a.MarketID,
			bigStringPtr(a.BorrowShares),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert activity in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetAll retrieves every activity ordered by block_number ASC, id ASC.
func (s *ActivityStore) GetAll(ctx context.Context) ([]*domain.Activity, error) {
	query := `
		SELECT id, kind, amount::text, amount_formatted, actor_address,
		       transaction_hash, block_number, timestamp, market_id, borrow_shares::text
		FROM activities
		ORDER BY block_number ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all activities: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// GetByActor retrieves all activities for an actor, ordered by block_number ASC.
func (s *ActivityStore) GetByActor(ctx context.Context, actor string) ([]*domain.Activity, error) {
	query := `
		SELECT id, kind, amount::text, amount_formatted, actor_address,
		       transaction_hash, block_number, timestamp, market_id, borrow_shares::text
		FROM activities
		WHERE actor_address = $1
		ORDER BY block_number ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, actor)
	if err != nil {
		return nil, fmt.Errorf("get activities by actor: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// GetByKind retrieves all activities of one kind, ordered by block_number ASC.
func (s *ActivityStore) GetByKind(ctx context.Context, kind domain.ActivityKind) ([]*domain.Activity, error) {
	query := `
		SELECT id, kind, amount::text, amount_formatted, actor_address,
		       transaction_hash, block_number, timestamp, market_id, borrow_shares::text
		FROM activities
		WHERE kind = $1
		ORDER BY block_number ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("get activities by kind: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// Count returns the number of stored activities.
func (s *ActivityStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return count, nil
}

// scanActivities scans multiple rows into a slice of Activity.
func scanActivities(rows pgx.Rows) ([]*domain.Activity, error) {
	var activities []*domain.Activity

	for rows.Next() {
		var (
			a           domain.Activity
			kind        string
			amount      string
			blockNumber int64
			shares      *string
		)

		err := rows.Scan(
			&a.ID,
			&kind,
			&amount,
			&a.AmountFormatted,
			&a.ActorAddress,
			&a.TransactionHash,
			&blockNumber,
			&a.Timestamp,
			&a.MarketID,
			&shares,
		)
		if err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}

		a.Kind = domain.ActivityKind(kind)
		a.BlockNumber = uint64(blockNumber)
		if a.Amount, err = parseBig(amount); err != nil {
			return nil, fmt.Errorf("activity %s: %w", a.ID, err)
		}
		if a.BorrowShares, err = parseBigPtr(shares); err != nil {
			return nil, fmt.Errorf("activity %s: %w", a.ID, err)
		}

		activities = append(activities, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}

	return activities, nil
}
