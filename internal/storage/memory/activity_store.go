package memory

import (
	"context"
	"sort"
	"sync"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/storage"
)

// activityKey is the composite key for activity deduplication.
type activityKey struct {
	TxHash string
	Kind   domain.ActivityKind
	Actor  string
}

func keyOf(a *domain.Activity) activityKey {
	return activityKey{
		TxHash: a.TransactionHash,
		Kind:   a.Kind,
		Actor:  a.ActorAddress,
	}
}

// ActivityStore is an in-memory implementation of storage.ActivityStore.
type ActivityStore struct {
	mu   sync.RWMutex
	data []*domain.Activity
	keys map[activityKey]bool
}

// NewActivityStore creates a new in-memory activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		data: make([]*domain.Activity, 0),
		keys: make(map[activityKey]bool),
	}
}

// Insert adds a new activity. Returns ErrDuplicateKey if
// (transaction_hash, kind, actor_address) already exists.
func (s *ActivityStore) Insert(_ context.Context, a *domain.Activity) error {
	if a == nil {
		return storage.ErrInvalidInput
	}

	key := keyOf(a)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[key] {
		return storage.ErrDuplicateKey
	}

	s.data = append(s.data, a.Clone())
	s.keys[key] = true

	return nil
}

// InsertBulk adds multiple activities atomically. Fails entire batch on any duplicate.
func (s *ActivityStore) InsertBulk(_ context.Context, activities []*domain.Activity) error {
	if len(activities) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicates (both existing and intra-batch)
	batchKeys := make(map[activityKey]bool)
	for _, a := range activities {
		if a == nil {
			return storage.ErrInvalidInput
		}

		key := keyOf(a)
		if s.keys[key] || batchKeys[key] {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = true
	}

	for _, a := range activities {
		s.data = append(s.data, a.Clone())
		s.keys[keyOf(a)] = true
	}

	return nil
}

// GetAll retrieves every activity ordered by block_number ASC, id ASC.
func (s *ActivityStore) GetAll(_ context.Context) ([]*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Activity, 0, len(s.data))
	for _, a := range s.data {
		result = append(result, a.Clone())
	}

	sortActivities(result)
	return result, nil
}

// GetByActor retrieves all activities for an actor, ordered by block_number ASC.
func (s *ActivityStore) GetByActor(_ context.Context, actor string) ([]*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Activity
	for _, a := range s.data {
		if a.ActorAddress == actor {
			result = append(result, a.Clone())
		}
	}

	sortActivities(result)
	return result, nil
}

// GetByKind retrieves all activities of one kind, ordered by block_number ASC.
func (s *ActivityStore) GetByKind(_ context.Context, kind domain.ActivityKind) ([]*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Activity
	for _, a := range s.data {
		if a.Kind == kind {
			result = append(result, a.Clone())
		}
	}

	sortActivities(result)
	return result, nil
}

// Count returns the number of stored activities.
func (s *ActivityStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data), nil
}

// sortActivities sorts activities by (block_number, id).
func sortActivities(activities []*domain.Activity) {
	sort.Slice(activities, func(i, j int) bool {
		if activities[i].BlockNumber != activities[j].BlockNumber {
			return activities[i].BlockNumber < activities[j].BlockNumber
		}
		return activities[i].ID < activities[j].ID
	})
}

// Verify interface compliance at compile time.
var _ storage.ActivityStore = (*ActivityStore)(nil)
