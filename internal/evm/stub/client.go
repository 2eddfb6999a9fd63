package stub

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrHeaderNotFound is returned when no header is seeded for a block.
var ErrHeaderNotFound = errors.New("header not found")

// ErrRangeTooWide mimics a provider block range rejection.
var ErrRangeTooWide = errors.New("query returned more than 10000 results, narrow the block range")

// Span records one FilterLogs block range.
type Span struct {
	From uint64
	To   uint64
}

// Client implements evm.Client for testing. Logs are served from a
// seeded slice filtered by block range and topics; MaxSpan forces range
// rejections for queries wider than the configured span.
type Client struct {
	mu sync.Mutex

	logs    []types.Log
	headers map[uint64]*types.Header
	head    uint64

	// MaxSpan rejects FilterLogs queries spanning more blocks. Zero
	// means unlimited.
	MaxSpan uint64

	// FilterErr forces every FilterLogs call to fail.
	FilterErr error

	// HeaderErr forces every HeaderByNumber call to fail.
	HeaderErr error

	// FilterCalls records every FilterLogs span in call order.
	FilterCalls []Span

	headerCalls       int
	headerInFlight    int
	maxHeaderInFlight int
}

// NewClient creates an empty stub client.
func NewClient() *Client {
	return &Client{
		headers: make(map[uint64]*types.Header),
	}
}

// AddLog seeds a log.
func (c *Client) AddLog(l types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, l)
}

// AddHeader seeds a block header with the given timestamp.
func (c *Client) AddHeader(number uint64, timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[number] = &types.Header{
		Number: new(big.Int).SetUint64(number),
		Time:   timestamp,
	}
	if number > c.head {
		c.head = number
	}
}

// SetHead sets the head block number.
func (c *Client) SetHead(number uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = number
}

// HeaderCalls returns how many HeaderByNumber calls were made.
func (c *Client) HeaderCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headerCalls
}

// MaxHeaderConcurrency returns the peak number of in-flight
// HeaderByNumber calls observed.
func (c *Client) MaxHeaderConcurrency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxHeaderInFlight
}

// FilterLogs returns seeded logs within the query's block range whose
// topics match the query's topic sets.
func (c *Client) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := uint64(0)
	if q.FromBlock != nil {
		from = q.FromBlock.Uint64()
	}
	to := from
	if q.ToBlock != nil {
		to = q.ToBlock.Uint64()
	}
	c.FilterCalls = append(c.FilterCalls, Span{From: from, To: to})

	if c.FilterErr != nil {
		return nil, c.FilterErr
	}
	if c.MaxSpan > 0 && to-from+1 > c.MaxSpan {
		return nil, ErrRangeTooWide
	}

	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if !matchAddress(q.Addresses, l.Address) {
			continue
		}
		if !matchTopics(q.Topics, l.Topics) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// HeaderByNumber returns a seeded header. A nil number returns the head.
// The call yields between bookkeeping so tests can observe overlapping
// lookups.
func (c *Client) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	c.headerCalls++
	c.headerInFlight++
	if c.headerInFlight > c.maxHeaderInFlight {
		c.maxHeaderInFlight = c.headerInFlight
	}
	c.mu.Unlock()

	time.Sleep(time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.headerInFlight--

	if c.HeaderErr != nil {
		return nil, c.HeaderErr
	}
	n := c.head
	if number != nil {
		n = number.Uint64()
	}
	h, ok := c.headers[n]
	if !ok {
		return nil, ErrHeaderNotFound
	}
	return h, nil
}

// BlockNumber returns the configured head.
func (c *Client) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func matchAddress(addrs []common.Address, addr common.Address) bool {
	if len(addrs) == 0 {
		return true
	}
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}

func matchTopics(sets [][]common.Hash, topics []common.Hash) bool {
	for i, set := range sets {
		if len(set) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		found := false
		for _, t := range set {
			if t == topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
