package ingestion

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"morpho-market-indexer/internal/evm"
)

// timestampGroupSize bounds in-flight header lookups.
const timestampGroupSize = 10

// TimestampResolver maps block numbers to block timestamps. Each distinct
// block is queried once; results are cached for the resolver's lifetime.
// Create one per run and discard it with the run.
type TimestampResolver struct {
	client evm.Client

	mu    sync.Mutex
	cache map[uint64]int64
}

// NewTimestampResolver creates an empty resolver backed by client.
func NewTimestampResolver(client evm.Client) *TimestampResolver {
	return &TimestampResolver{
		client: client,
		cache:  make(map[uint64]int64),
	}
}

// Resolve returns the timestamp of one block, querying the node on a
// cache miss.
func (r *TimestampResolver) Resolve(ctx context.Context, block uint64) (int64, error) {
	r.mu.Lock()
	if ts, ok := r.cache[block]; ok {
		r.mu.Unlock()
		return ts, nil
	}
	r.mu.Unlock()

	header, err := r.client.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
	if err != nil {
		return 0, fmt.Errorf("header for block %d: %w", block, err)
	}
	ts := int64(header.Time)

	r.mu.Lock()
	r.cache[block] = ts
	r.mu.Unlock()

	return ts, nil
}

// ResolveAll warms the cache for every distinct block in blocks. Lookups
// run in groups of at most timestampGroupSize; each group is awaited
// before the next starts. The first error aborts after its group
// finishes.
func (r *TimestampResolver) ResolveAll(ctx context.Context, blocks []uint64) error {
	distinct := r.uncached(blocks)
	sort.Slice(distinct, func(i, j int) bool { return distinct[i] < distinct[j] })

	for start := 0; start < len(distinct); start += timestampGroupSize {
		end := start + timestampGroupSize
		if end > len(distinct) {
			end = len(distinct)
		}
		group := distinct[start:end]

		var wg sync.WaitGroup
		errs := make([]error, len(group))
		for i, block := range group {
			wg.Add(1)
			go func(i int, block uint64) {
				defer wg.Done()
				_, errs[i] = r.Resolve(ctx, block)
			}(i, block)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// Cached returns the cached timestamp for block, or 0 when the block was
// never resolved.
func (r *TimestampResolver) Cached(block uint64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache[block]
}

// uncached returns the distinct blocks with no cache entry yet.
func (r *TimestampResolver) uncached(blocks []uint64) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uint64]struct{}, len(blocks))
	var out []uint64
	for _, b := range blocks {
		if _, ok := r.cache[b]; ok {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}
