package memory

import (
	"context"
	"sort"
	"sync"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

// UserPositionStore is an in-memory implementation of storage.UserPositionStore.
type UserPositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.UserPosition // keyed by actor address
}

// NewUserPositionStore creates a new in-memory position store.
func NewUserPositionStore() *UserPositionStore {
	return &UserPositionStore{
		data: make(map[string]*domain.UserPosition),
	}
}

// Upsert inserts or fully replaces the position for p.ActorAddress.
func (s *UserPositionStore) Upsert(_ context.Context, p *domain.UserPosition) error {
	if p == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[p.ActorAddress] = p.Clone()
	return nil
}

// UpsertBulk upserts multiple positions. The batch is validated up front so
// a nil entry leaves the store untouched.
func (s *UserPositionStore) UpsertBulk(_ context.Context, positions []*domain.UserPosition) error {
	for _, p := range positions {
		if p == nil {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range positions {
		s.data[p.ActorAddress] = p.Clone()
	}
	return nil
}

// GetByActor retrieves one actor's position. Returns ErrNotFound if absent.
func (s *UserPositionStore) GetByActor(_ context.Context, actor string) (*domain.UserPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[actor]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// GetAll retrieves every position ordered by actor_address ASC.
func (s *UserPositionStore) GetAll(_ context.Context) ([]*domain.UserPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.UserPosition, 0, len(s.data))
	for _, p := range s.data {
		result = append(result, p.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ActorAddress < result[j].ActorAddress
	})
	return result, nil
}

// GetTopByNetSupply retrieves up to limit strictly-positive net-supply
// positions, largest first.
func (s *UserPositionStore) GetTopByNetSupply(_ context.Context, limit int) ([]*domain.UserPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.UserPosition
	for _, p := range s.data {
		if p.ActiveSupplier() {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if c := result[i].NetSupply.Cmp(result[j].NetSupply); c != 0 {
			return c > 0
		}
		return result[i].ActorAddress < result[j].ActorAddress
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetTopByNetBorrow retrieves up to limit strictly-positive net-borrow
// positions, largest first.
func (s *UserPositionStore) GetTopByNetBorrow(_ context.Context, limit int) ([]*domain.UserPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.UserPosition
	for _, p := range s.data {
		if p.ActiveBorrower() {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if c := result[i].NetBorrow.Cmp(result[j].NetBorrow); c != 0 {
			return c > 0
		}
		return result[i].ActorAddress < result[j].ActorAddress
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountActiveSuppliers counts actors with strictly positive net supply.
func (s *UserPositionStore) CountActiveSuppliers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.data {
		if p.ActiveSupplier() {
			count++
		}
	}
	return count, nil
}

// CountActiveBorrowers counts actors with strictly positive net borrow.
func (s *UserPositionStore) CountActiveBorrowers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.data {
		if p.ActiveBorrower() {
			count++
		}
	}
	return count, nil
}

// Verify interface compliance at compile time.
var _ storage.UserPositionStore = (*UserPositionStore)(nil)
