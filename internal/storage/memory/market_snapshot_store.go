package memory

import (
	"context"
	"sort"
	"sync"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

// MarketSnapshotStore is an in-memory implementation of storage.MarketSnapshotStore.
type MarketSnapshotStore struct {
	mu     sync.RWMutex
	data   []*domain.MarketSnapshot
	nextID int64
}

// NewMarketSnapshotStore creates a new in-memory snapshot store.
func NewMarketSnapshotStore() *MarketSnapshotStore {
	return &MarketSnapshotStore{
		data:   make([]*domain.MarketSnapshot, 0),
		nextID: 1,
	}
}

// Insert appends a new snapshot row and fills s.ID.
func (st *MarketSnapshotStore) Insert(_ context.Context, s *domain.MarketSnapshot) error {
	if s == nil {
		return storage.ErrInvalidInput
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s.ID = st.nextID
	st.nextID++
	st.data = append(st.data, s.Clone())

	return nil
}

// GetLatest retrieves the most recently inserted snapshot. Returns
// ErrNotFound when no snapshot has been taken yet.
func (st *MarketSnapshotStore) GetLatest(_ context.Context) (*domain.MarketSnapshot, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if len(st.data) == 0 {
		return nil, storage.ErrNotFound
	}
	return st.data[len(st.data)-1].Clone(), nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive),
// ordered by timestamp ASC.
func (st *MarketSnapshotStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.MarketSnapshot, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var result []*domain.MarketSnapshot
	for _, s := range st.data {
		if s.Timestamp >= start && s.Timestamp <= end {
			result = append(result, s.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.MarketSnapshotStore = (*MarketSnapshotStore)(nil)
