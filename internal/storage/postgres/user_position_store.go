package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

// UserPositionStore implements storage.UserPositionStore using PostgreSQL.
type UserPositionStore struct {
	pool *Pool
}

// NewUserPositionStore creates a new UserPositionStore.
func NewUserPositionStore(pool *Pool) *UserPositionStore {
	return &UserPositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UserPositionStore = (*UserPositionStore)(nil)

const upsertPositionQuery = `
	INSERT INTO user_positions (
		actor_address, market_id, total_supplied, total_withdrawn, net_supply,
		total_borrowed, total_repaid, net_borrow, borrow_shares, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (actor_address) DO UPDATE SET
		market_id       = EXCLUDED.market_id,
		total_supplied  = EXCLUDED.total_supplied,
		total_withdrawn = EXCLUDED.total_withdrawn,
		net_supply      = EXCLUDED.net_supply,
		total_borrowed  = EXCLUDED.total_borrowed,
		total_repaid    = EXCLUDED.total_repaid,
		net_borrow      = EXCLUDED.net_borrow,
		borrow_shares   = EXCLUDED.borrow_shares,
		updated_at      = EXCLUDED.updated_at
`

// Upsert inserts or fully replaces the position for p.ActorAddress.
// Every cumulative column is overwritten with the freshly recomputed value.
func (s *UserPositionStore) Upsert(ctx context.Context, p *domain.UserPosition) error {
	_, err := s.pool.Exec(ctx, upsertPositionQuery, upsertArgs(p)...)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// UpsertBulk upserts multiple positions in one transaction.
func (s *UserPositionStore) UpsertBulk(ctx context.Context, positions []*domain.UserPosition) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range positions {
		if _, err := tx.Exec(ctx, upsertPositionQuery, upsertArgs(p)...); err != nil {
			return fmt.Errorf("upsert position in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func upsertArgs(p *domain.UserPosition) []any {
	return []any{
		p.ActorAddress,
		p.MarketID,
		bigString(p.TotalSupplied),
		bigString(p.TotalWithdrawn),
		bigString(p.NetSupply),
		bigString(p.TotalBorrowed),
		bigString(p.TotalRepaid),
		bigString(p.NetBorrow),
		bigString(p.BorrowShares),
		p.UpdatedAt,
	}
}

const selectPositionColumns = `
	SELECT actor_address, market_id, total_supplied::text, total_withdrawn::text,
	       net_supply::text, total_borrowed::text, total_repaid::text,
	       net_borrow::text, borrow_shares::text, updated_at
	FROM user_positions
`

// GetByActor retrieves one actor's position. Returns ErrNotFound if absent.
func (s *UserPositionStore) GetByActor(ctx context.Context, actor string) (*domain.UserPosition, error) {
	rows, err := s.pool.Query(ctx, selectPositionColumns+` WHERE actor_address = $1`, actor)
	if err != nil {
		return nil, fmt.Errorf("get position by actor: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, storage.ErrNotFound
	}
	return positions[0], nil
}

// GetAll retrieves every position ordered by actor_address ASC.
func (s *UserPositionStore) GetAll(ctx context.Context) ([]*domain.UserPosition, error) {
	rows, err := s.pool.Query(ctx, selectPositionColumns+` ORDER BY actor_address ASC`)
	if err != nil {
		return nil, fmt.Errorf("get all positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetTopByNetSupply retrieves up to limit strictly-positive net-supply
// positions, largest first.
func (s *UserPositionStore) GetTopByNetSupply(ctx context.Context, limit int) ([]*domain.UserPosition, error) {
	query := selectPositionColumns + `
		WHERE net_supply > 0
		ORDER BY net_supply DESC, actor_address ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get top by net supply: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetTopByNetBorrow retrieves up to limit strictly-positive net-borrow
// positions, largest first.
func (s *UserPositionStore) GetTopByNetBorrow(ctx context.Context, limit int) ([]*domain.UserPosition, error) {
	query := selectPositionColumns + `
		WHERE net_borrow > 0
		ORDER BY net_borrow DESC, actor_address ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get top by net borrow: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// CountActiveSuppliers counts actors with strictly positive net supply.
func (s *UserPositionStore) CountActiveSuppliers(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_positions WHERE net_supply > 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active suppliers: %w", err)
	}
	return count, nil
}

// CountActiveBorrowers counts actors with strictly positive net borrow.
func (s *UserPositionStore) CountActiveBorrowers(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_positions WHERE net_borrow > 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active borrowers: %w", err)
	}
	return count, nil
}

// scanPositions scans multiple rows into a slice of UserPosition.
func scanPositions(rows pgx.Rows) ([]*domain.UserPosition, error) {
	var positions []*domain.UserPosition

	for rows.Next() {
		var (
			p                           domain.UserPosition
			supplied, withdrawn, netSup string
			borrowed, repaid, netBor    string
			shares                      string
		)

		err := rows.Scan(
			&p.ActorAddress,
			&p.MarketID,
			&supplied,
			&withdrawn,
			&netSup,
			&borrowed,
			&repaid,
			&netBor,
			&shares,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}

		fields := []struct {
			dst **big.Int
			src string
		}{
			{&p.TotalSupplied, supplied},
			{&p.TotalWithdrawn, withdrawn},
			{&p.NetSupply, netSup},
			{&p.TotalBorrowed, borrowed},
			{&p.TotalRepaid, repaid},
			{&p.NetBorrow, netBor},
			{&p.BorrowShares, shares},
		}
		for _, f := range fields {
			v, err := parseBig(f.src)
			if err != nil {
				return nil, fmt.Errorf("position %s: %w", p.ActorAddress, err)
			}
			*f.dst = v
		}

		positions = append(positions, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}
