package memory

import (
	"context"
	"sort"
	"sync"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

// MarketHistoryStore is an in-memory implementation of storage.MarketHistoryStore.
// Used when no ClickHouse DSN is configured.
type MarketHistoryStore struct {
	mu   sync.RWMutex
	data []*domain.MarketHistoryPoint
}

// NewMarketHistoryStore creates a new in-memory history store.
func NewMarketHistoryStore() *MarketHistoryStore {
	return &MarketHistoryStore{
		data: make([]*domain.MarketHistoryPoint, 0),
	}
}

// InsertBulk appends history points. The series has no uniqueness key.
func (s *MarketHistoryStore) InsertBulk(_ context.Context, points []*domain.MarketHistoryPoint) error {
	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		point := *p
		s.data = append(s.data, &point)
	}
	return nil
}

// GetByTimeRange retrieves points within [start, end] (inclusive),
// ordered by timestamp ASC.
func (s *MarketHistoryStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.MarketHistoryPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MarketHistoryPoint
	for _, p := range s.data {
		if p.Timestamp >= start && p.Timestamp <= end {
			point := *p
			result = append(result, &point)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.MarketHistoryStore = (*MarketHistoryStore)(nil)
