package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client defines the chain read interface the indexer needs.
type Client interface {
	// FilterLogs returns logs matching the query.
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	// HeaderByNumber retrieves a block header. A nil number means latest.
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// BlockNumber retrieves the current head block number.
	BlockNumber(ctx context.Context) (uint64, error)
}
