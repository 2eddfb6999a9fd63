package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"morpho-market-indexer/internal/observability"
)

// Default configuration values.
const (
	DefaultDialTimeout = 15 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// RPCClient implements Client on top of go-ethereum's ethclient with
// retries and exponential backoff for transient failures.
type RPCClient struct {
	eth         *ethclient.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures RPCClient.
type ClientOption func(*RPCClient)

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *RPCClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.maxDelay = d
	}
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, endpoint string, opts ...ClientOption) (*RPCClient, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()

	eth, err := ethclient.DialContext(dialCtx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	c := &RPCClient{
		eth:         eth,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	c.eth.Close()
}

// retry runs fn with exponential backoff. Block range errors are returned
// immediately so the caller can narrow the window instead of hammering the
// provider with a request it already rejected.
func (c *RPCClient) retry(ctx context.Context, fn func() error) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if IsRangeLimitError(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// FilterLogs returns logs matching the query. Latency is recorded per
// attempt, excluding backoff sleeps.
func (c *RPCClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.retry(ctx, func() error {
		start := time.Now()
		var callErr error
		logs, callErr = c.eth.FilterLogs(ctx, q)
		observability.RecordRPCLatency("eth_getLogs", time.Since(start).Seconds())
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// HeaderByNumber retrieves a block header. A nil number means latest.
func (c *RPCClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := c.retry(ctx, func() error {
		start := time.Now()
		var callErr error
		header, callErr = c.eth.HeaderByNumber(ctx, number)
		observability.RecordRPCLatency("eth_getBlockByNumber", time.Since(start).Seconds())
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

// BlockNumber retrieves the current head block number.
func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.retry(ctx, func() error {
		start := time.Now()
		var callErr error
		head, callErr = c.eth.BlockNumber(ctx)
		observability.RecordRPCLatency("eth_blockNumber", time.Since(start).Seconds())
		return callErr
	})
	if err != nil {
		return 0, err
	}
	return head, nil
}

var _ Client = (*RPCClient)(nil)
