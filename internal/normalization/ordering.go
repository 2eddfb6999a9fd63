package normalization

import (
	"sort"

	"github.com/ethereum/go-ethereum/core/types"

	"morpho-market-indexer/internal/domain"
)

// SortLogs orders raw logs by (block number ASC, log index ASC). This is
// chain order within the fetched range.
func SortLogs(logs []types.Log) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}

// SortActivities orders activities by (block ASC, tx hash ASC, kind ASC,
// actor ASC). Activities carry no log index, so the uniqueness key breaks
// ties deterministically.
func SortActivities(activities []*domain.Activity) {
	sort.Slice(activities, func(i, j int) bool {
		return compareActivities(activities[i], activities[j]) < 0
	})
}

// compareActivities returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareActivities(a, b *domain.Activity) int {
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if a.TransactionHash != b.TransactionHash {
		if a.TransactionHash < b.TransactionHash {
			return -1
		}
		return 1
	}
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	if a.ActorAddress != b.ActorAddress {
		if a.ActorAddress < b.ActorAddress {
			return -1
		}
		return 1
	}
	return 0
}
