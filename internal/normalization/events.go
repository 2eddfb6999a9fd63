package normalization

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"morpho-market-indexer/internal/domain"
)

// Canonical signatures of the four lending events. The market identifier
// is always the first indexed topic; onBehalf is the position the
// activity is attributed to.
const (
	supplySig   = "Supply(bytes32,address,address,uint256,uint256)"
	withdrawSig = "Withdraw(bytes32,address,address,address,uint256,uint256)"
	borrowSig   = "Borrow(bytes32,address,address,address,uint256,uint256)"
	repaySig    = "Repay(bytes32,address,address,uint256,uint256)"
)

// Topic hashes identifying each event kind in a log's first topic.
var (
	SupplyTopic   = crypto.Keccak256Hash([]byte(supplySig))
	WithdrawTopic = crypto.Keccak256Hash([]byte(withdrawSig))
	BorrowTopic   = crypto.Keccak256Hash([]byte(borrowSig))
	RepayTopic    = crypto.Keccak256Hash([]byte(repaySig))

	// MarketTopic is the tracked market's identifier as a log topic.
	MarketTopic = common.HexToHash(domain.MarketID)
)

// lendingEventsABI covers only the events the indexer decodes. Supply and
// Repay index the caller; Withdraw and Borrow leave it in the data and
// index the receiver instead.
const lendingEventsABI = `[
	{"type":"event","name":"Supply","inputs":[
		{"name":"id","type":"bytes32","indexed":true},
		{"name":"caller","type":"address","indexed":true},
		{"name":"onBehalf","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]},
	{"type":"event","name":"Withdraw","inputs":[
		{"name":"id","type":"bytes32","indexed":true},
		{"name":"caller","type":"address","indexed":false},
		{"name":"onBehalf","type":"address","indexed":true},
		{"name":"receiver","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]},
	{"type":"event","name":"Borrow","inputs":[
		{"name":"id","type":"bytes32","indexed":true},
		{"name":"caller","type":"address","indexed":false},
		{"name":"onBehalf","type":"address","indexed":true},
		{"name":"receiver","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]},
	{"type":"event","name":"Repay","inputs":[
		{"name":"id","type":"bytes32","indexed":true},
		{"name":"caller","type":"address","indexed":true},
		{"name":"onBehalf","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]}
]`

var lendingABI = mustParseABI(lendingEventsABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("parse lending events ABI: " + err.Error())
	}
	return parsed
}

// TopicForKind returns the first-topic hash identifying kind.
func TopicForKind(kind domain.ActivityKind) common.Hash {
	switch kind {
	case domain.KindSupply:
		return SupplyTopic
	case domain.KindWithdraw:
		return WithdrawTopic
	case domain.KindBorrow:
		return BorrowTopic
	case domain.KindRepay:
		return RepayTopic
	}
	return common.Hash{}
}

// KindForTopic maps a first-topic hash back to its kind.
func KindForTopic(topic common.Hash) (domain.ActivityKind, bool) {
	switch topic {
	case SupplyTopic:
		return domain.KindSupply, true
	case WithdrawTopic:
		return domain.KindWithdraw, true
	case BorrowTopic:
		return domain.KindBorrow, true
	case RepayTopic:
		return domain.KindRepay, true
	}
	return "", false
}

// eventNameForKind maps a kind to its ABI event name.
func eventNameForKind(kind domain.ActivityKind) string {
	switch kind {
	case domain.KindSupply:
		return "Supply"
	case domain.KindWithdraw:
		return "Withdraw"
	case domain.KindBorrow:
		return "Borrow"
	case domain.KindRepay:
		return "Repay"
	}
	return ""
}

// FilterTopics builds the topic filter for one kind scoped to the tracked
// market: first topic selects the event, second topic selects the market.
func FilterTopics(kind domain.ActivityKind) [][]common.Hash {
	return [][]common.Hash{
		{TopicForKind(kind)},
		{MarketTopic},
	}
}
