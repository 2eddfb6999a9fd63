package evm

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// Window sizing. Providers cap eth_getLogs spans at wildly different
// widths, so fetches start wide and narrow by windowDivisor on rejection.
// MinWindowSize is the narrowing floor; a rejection below it is fatal.
const (
	DefaultWindowSize uint64 = 50_000
	MinWindowSize     uint64 = 1_000
	windowDivisor     uint64 = 5

	// DefaultWindowDelay spaces window requests to stay under provider
	// rate limits.
	DefaultWindowDelay = 200 * time.Millisecond
)

// ErrWindowTooNarrow wraps a provider range rejection at a width the
// fetcher refuses to narrow further.
var ErrWindowTooNarrow = fmt.Errorf("window below %d blocks still rejected", MinWindowSize)

// Fetcher retrieves logs over a block span in sequential fixed-size
// windows.
type Fetcher struct {
	client      Client
	windowSize  uint64
	windowDelay time.Duration
	logger      *log.Logger
	onWindow    func(width uint64, logs int)
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithWindowSize sets the initial window width in blocks.
func WithWindowSize(n uint64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.windowSize = n
		}
	}
}

// WithWindowDelay sets the pause between window requests.
func WithWindowDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.windowDelay = d
	}
}

// WithFetchLogger sets the fetch progress logger.
func WithFetchLogger(l *log.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// WithWindowObserver sets a callback invoked after each fetched window.
func WithWindowObserver(fn func(width uint64, logs int)) FetcherOption {
	return func(f *Fetcher) {
		f.onWindow = fn
	}
}

// NewFetcher creates a windowed log fetcher.
func NewFetcher(client Client, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:      client,
		windowSize:  DefaultWindowSize,
		windowDelay: DefaultWindowDelay,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchRange returns every log matching q between fromBlock and toBlock
// inclusive, in range order. The query's block bounds are overwritten per
// window. Windows run strictly in sequence; a provider range rejection
// narrows the width by windowDivisor for the rejected sub-range and
// recurses, down to MinWindowSize.
func (f *Fetcher) FetchRange(ctx context.Context, q ethereum.FilterQuery, fromBlock, toBlock uint64) ([]types.Log, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("invalid range: from %d > to %d", fromBlock, toBlock)
	}
	return f.fetchSpan(ctx, q, fromBlock, toBlock, f.windowSize)
}

func (f *Fetcher) fetchSpan(ctx context.Context, q ethereum.FilterQuery, fromBlock, toBlock, width uint64) ([]types.Log, error) {
	var out []types.Log

	for start := fromBlock; start <= toBlock; {
		end := start + width - 1
		if end > toBlock {
			end = toBlock
		}

		if start > fromBlock {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.windowDelay):
			}
		}

		q.FromBlock = new(big.Int).SetUint64(start)
		q.ToBlock = new(big.Int).SetUint64(end)

		logs, err := f.client.FilterLogs(ctx, q)
		if err != nil {
			if !IsRangeLimitError(err) {
				return nil, fmt.Errorf("filter logs [%d, %d]: %w", start, end, err)
			}

			narrowed := width / windowDivisor
			if narrowed < MinWindowSize {
				return nil, fmt.Errorf("%w: [%d, %d]: %v", ErrWindowTooNarrow, start, end, err)
			}

			f.logger.Printf("range limit at width %d, narrowing to %d for [%d, %d]", width, narrowed, start, end)
			sub, err := f.fetchSpan(ctx, q, start, end, narrowed)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			start = end + 1
			continue
		}

		if f.onWindow != nil {
			f.onWindow(width, len(logs))
		}
		if len(logs) > 0 {
			f.logger.Printf("fetched %d logs in [%d, %d]", len(logs), start, end)
		}

		out = append(out, logs...)
		start = end + 1
	}

	return out, nil
}
