package normalization

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/idhash"
)

// DecodeActivity converts one raw log into an activity. Returns false for
// logs that do not parse as a lending event on the tracked market; such
// logs are skipped, not errors.
//
// Topic layout differs per kind. Supply and Repay carry
// (id, caller, onBehalf) in topics and (assets, shares) in data; Withdraw
// and Borrow carry (id, onBehalf, receiver) in topics and
// (caller, assets, shares) in data. onBehalf is the actor in all four.
func DecodeActivity(l types.Log, timestamp int64) (*domain.Activity, bool) {
	if l.Removed || len(l.Topics) != 4 {
		return nil, false
	}

	kind, ok := KindForTopic(l.Topics[0])
	if !ok {
		return nil, false
	}
	if l.Topics[1] != MarketTopic {
		return nil, false
	}

	vals, err := lendingABI.Unpack(eventNameForKind(kind), l.Data)
	if err != nil {
		return nil, false
	}

	var amount, shares *big.Int
	var actorTopic int
	switch kind {
	case domain.KindSupply, domain.KindRepay:
		// data: assets, shares
		if len(vals) != 2 {
			return nil, false
		}
		amount, ok = vals[0].(*big.Int)
		if !ok {
			return nil, false
		}
		actorTopic = 3
	case domain.KindWithdraw, domain.KindBorrow:
		// data: caller, assets, shares
		if len(vals) != 3 {
			return nil, false
		}
		amount, ok = vals[1].(*big.Int)
		if !ok {
			return nil, false
		}
		if kind == domain.KindBorrow {
			shares, ok = vals[2].(*big.Int)
			if !ok {
				return nil, false
			}
		}
		actorTopic = 2
	}

	actor := strings.ToLower(common.BytesToAddress(l.Topics[actorTopic].Bytes()).Hex())
	txHash := strings.ToLower(l.TxHash.Hex())

	return &domain.Activity{
		ID:              idhash.ComputeActivityID(txHash, string(kind), actor),
		Kind:            kind,
		Amount:          new(big.Int).Set(amount),
		AmountFormatted: domain.FormatAmount(amount, kind),
		ActorAddress:    actor,
		TransactionHash: txHash,
		BlockNumber:     l.BlockNumber,
		Timestamp:       timestamp,
		MarketID:        domain.MarketID,
		BorrowShares:    cloneBig(shares),
	}, true
}

// DecodeAll converts a batch of logs, dropping the ones that do not
// parse. resolve maps a block number to its timestamp.
func DecodeAll(logs []types.Log, resolve func(block uint64) int64) []*domain.Activity {
	activities := make([]*domain.Activity, 0, len(logs))
	for _, l := range logs {
		a, ok := DecodeActivity(l, resolve(l.BlockNumber))
		if !ok {
			continue
		}
		activities = append(activities, a)
	}
	return activities
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
