package memory

import (
	"context"
	"sort"
	"sync"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

// IngestRunStore is an in-memory implementation of storage.IngestRunStore.
type IngestRunStore struct {
	mu   sync.RWMutex
	data []*domain.IngestRun
	ids  map[string]bool
}

// NewIngestRunStore creates a new in-memory run store.
func NewIngestRunStore() *IngestRunStore {
	return &IngestRunStore{
		data: make([]*domain.IngestRun, 0),
		ids:  make(map[string]bool),
	}
}

// Insert records a finished run. Returns ErrDuplicateKey if run_id exists.
func (s *IngestRunStore) Insert(_ context.Context, r *domain.IngestRun) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids[r.RunID] {
		return storage.ErrDuplicateKey
	}

	run := *r
	s.data = append(s.data, &run)
	s.ids[r.RunID] = true

	return nil
}

// GetRecent retrieves up to limit runs, newest first.
func (s *IngestRunStore) GetRecent(_ context.Context, limit int) ([]*domain.IngestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.IngestRun, 0, len(s.data))
	for _, r := range s.data {
		run := *r
		result = append(result, &run)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt != result[j].StartedAt {
			return result[i].StartedAt > result[j].StartedAt
		}
		return result[i].RunID < result[j].RunID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.IngestRunStore = (*IngestRunStore)(nil)
