package lookup

import (
	"errors"

	"morpho-market-indexer/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoSnapshotData = errors.New("no snapshot data available")
	ErrNoHistoryData  = errors.New("no history data available")
)

// SnapshotAt returns the snapshot at or before target timestamp.
// Snapshots must be ordered by timestamp ascending. If every snapshot is
// newer than target, returns nil: the market had no recorded state yet.
// Returns ErrNoSnapshotData if the slice is empty.
func SnapshotAt(target int64, snapshots []*domain.MarketSnapshot) (*domain.MarketSnapshot, error) {
	if len(snapshots) == 0 {
		return nil, ErrNoSnapshotData
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		if snapshots[i].Timestamp <= target {
			return snapshots[i], nil
		}
	}

	return nil, nil
}

// HistoryAt returns the history point at or before target timestamp.
// Points must be ordered by timestamp ascending. If no point is at or
// before target, the first available point is returned.
// Returns ErrNoHistoryData if the slice is empty.
func HistoryAt(target int64, points []*domain.MarketHistoryPoint) (*domain.MarketHistoryPoint, error) {
	if len(points) == 0 {
		return nil, ErrNoHistoryData
	}

	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Timestamp <= target {
			return points[i], nil
		}
	}

	return points[0], nil
}
