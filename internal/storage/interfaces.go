package storage

import (
	"context"

	"morpho-market-indexer/internal/domain"
)

// ActivityStore provides access to activities storage.
// Activities are append-only: rows are never updated, and re-ingesting the
// same event is rejected with ErrDuplicateKey so callers can count skips.
type ActivityStore interface {
	// Insert adds a new activity. Returns ErrDuplicateKey if
	// (transaction_hash, kind, actor_address) already exists.
	Insert(ctx context.Context, a *domain.Activity) error

	// InsertBulk adds multiple activities atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, activities []*domain.Activity) error

	// GetAll retrieves every activity ordered by block_number ASC, id ASC.
	GetAll(ctx context.Context) ([]*domain.Activity, error)

	// GetByActor retrieves all activities for an actor, ordered by block_number ASC.
	GetByActor(ctx context.Context, actor string) ([]*domain.Activity, error)

	// GetByKind retrieves all activities of one kind, ordered by block_number ASC.
	GetByKind(ctx context.Context, kind domain.ActivityKind) ([]*domain.Activity, error)

	// Count returns the number of stored activities.
	Count(ctx context.Context) (int, error)
}

// UserPositionStore provides access to user_positions storage.
// Positions are recomputed from scratch each run, so writes replace the
// whole row keyed by actor_address.
type UserPositionStore interface {
	// Upsert inserts or fully replaces the position for p.ActorAddress.
	Upsert(ctx context.Context, p *domain.UserPosition) error

	// UpsertBulk upserts multiple positions.
	UpsertBulk(ctx context.Context, positions []*domain.UserPosition) error

	// GetByActor retrieves one actor's position. Returns ErrNotFound if absent.
	GetByActor(ctx context.Context, actor string) (*domain.UserPosition, error)

	// GetAll retrieves every position ordered by actor_address ASC.
	GetAll(ctx context.Context) ([]*domain.UserPosition, error)

	// GetTopByNetSupply retrieves up to limit strictly-positive net-supply
	// positions, largest first.
	GetTopByNetSupply(ctx context.Context, limit int) ([]*domain.UserPosition, error)

	// GetTopByNetBorrow retrieves up to limit strictly-positive net-borrow
	// positions, largest first.
	GetTopByNetBorrow(ctx context.Context, limit int) ([]*domain.UserPosition, error)

	// CountActiveSuppliers counts actors with strictly positive net supply.
	CountActiveSuppliers(ctx context.Context) (int, error)

	// CountActiveBorrowers counts actors with strictly positive net borrow.
	CountActiveBorrowers(ctx context.Context) (int, error)
}

// MarketSnapshotStore provides access to market_snapshots storage.
type MarketSnapshotStore interface {
	// Insert appends a new snapshot row and fills s.ID.
	Insert(ctx context.Context, s *domain.MarketSnapshot) error

	// GetLatest retrieves the most recent snapshot. Returns ErrNotFound when
	// no snapshot has been taken yet.
	GetLatest(ctx context.Context) (*domain.MarketSnapshot, error)

	// GetByTimeRange retrieves snapshots within [start, end] (inclusive),
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.MarketSnapshot, error)
}

// IngestRunStore provides access to ingest_runs storage.
type IngestRunStore interface {
	// Insert records a finished run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.IngestRun) error

	// GetRecent retrieves up to limit runs, newest first.
	GetRecent(ctx context.Context, limit int) ([]*domain.IngestRun, error)
}

// MarketHistoryStore provides access to the market_history analytics series.
type MarketHistoryStore interface {
	// InsertBulk appends history points.
	InsertBulk(ctx context.Context, points []*domain.MarketHistoryPoint) error

	// GetByTimeRange retrieves points within [start, end] (inclusive),
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.MarketHistoryPoint, error)
}
