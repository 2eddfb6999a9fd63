package normalization

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"morpho-market-indexer/internal/domain"
)

const (
	testActor    = "0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b"
	testCaller   = "0xcccccccccccccccccccccccccccccccccccccccc"
	testReceiver = "0xdddddddddddddddddddddddddddddddddddddddd"
	testTxHash   = "0x9f2e8a7b6c5d4e3f2a1b0c9d8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a3b2c1d0e9f"
)

// dataWords ABI-encodes values as consecutive 32-byte words.
func dataWords(vals ...[]byte) []byte {
	var out []byte
	for _, v := range vals {
		out = append(out, common.LeftPadBytes(v, 32)...)
	}
	return out
}

func supplyLog(assets, shares *big.Int) types.Log {
	return types.Log{
		Address:     common.HexToAddress(domain.ContractAddress),
		Topics:      []common.Hash{SupplyTopic, MarketTopic, common.HexToHash(testCaller), common.HexToHash(testActor)},
		Data:        dataWords(assets.Bytes(), shares.Bytes()),
		BlockNumber: 19_100_000,
		TxHash:      common.HexToHash(testTxHash),
		Index:       3,
	}
}

func borrowLog(assets, shares *big.Int) types.Log {
	return types.Log{
		Address:     common.HexToAddress(domain.ContractAddress),
		Topics:      []common.Hash{BorrowTopic, MarketTopic, common.HexToHash(testActor), common.HexToHash(testReceiver)},
		Data:        dataWords(common.HexToAddress(testCaller).Bytes(), assets.Bytes(), shares.Bytes()),
		BlockNumber: 19_100_050,
		TxHash:      common.HexToHash(testTxHash),
		Index:       7,
	}
}

func TestDecodeActivity_Supply(t *testing.T) {
	assets := big.NewInt(5_000_000_000_000_000_000) // 5 wstETH
	l := supplyLog(assets, big.NewInt(123))

	a, ok := DecodeActivity(l, 1_700_000_000)
	if !ok {
		t.Fatal("expected supply log to decode")
	}

	if a.Kind != domain.KindSupply {
		t.Errorf("expected kind supply, got %s", a.Kind)
	}
	if a.ActorAddress != testActor {
		t.Errorf("expected actor %s, got %s", testActor, a.ActorAddress)
	}
	if a.Amount.Cmp(assets) != 0 {
		t.Errorf("expected amount %s, got %s", assets, a.Amount)
	}
	if a.AmountFormatted != "5" {
		t.Errorf("expected formatted amount 5, got %s", a.AmountFormatted)
	}
	if a.BorrowShares != nil {
		t.Errorf("supply must not carry borrow shares, got %s", a.BorrowShares)
	}
	if a.BlockNumber != 19_100_000 {
		t.Errorf("expected block 19100000, got %d", a.BlockNumber)
	}
	if a.Timestamp != 1_700_000_000 {
		t.Errorf("expected timestamp 1700000000, got %d", a.Timestamp)
	}
	if a.MarketID != domain.MarketID {
		t.Errorf("expected market %s, got %s", domain.MarketID, a.MarketID)
	}
	if a.ID == "" {
		t.Error("expected deterministic id to be set")
	}
}

func TestDecodeActivity_WithdrawActorFromSecondTopic(t *testing.T) {
	assets := big.NewInt(400)
	l := types.Log{
		Topics:      []common.Hash{WithdrawTopic, MarketTopic, common.HexToHash(testActor), common.HexToHash(testReceiver)},
		Data:        dataWords(common.HexToAddress(testCaller).Bytes(), assets.Bytes(), big.NewInt(77).Bytes()),
		BlockNumber: 19_100_001,
		TxHash:      common.HexToHash(testTxHash),
	}

	a, ok := DecodeActivity(l, 0)
	if !ok {
		t.Fatal("expected withdraw log to decode")
	}
	if a.Kind != domain.KindWithdraw {
		t.Errorf("expected kind withdraw, got %s", a.Kind)
	}
	if a.ActorAddress != testActor {
		t.Errorf("expected actor %s, got %s", testActor, a.ActorAddress)
	}
	if a.Amount.Cmp(assets) != 0 {
		t.Errorf("expected amount from second data word, got %s", a.Amount)
	}
	if a.BorrowShares != nil {
		t.Error("withdraw must not carry borrow shares")
	}
}

func TestDecodeActivity_BorrowKeepsShares(t *testing.T) {
	assets := big.NewInt(300_000_000) // 300 USDC
	shares := big.NewInt(299_500_123)
	a, ok := DecodeActivity(borrowLog(assets, shares), 1_700_000_100)
	if !ok {
		t.Fatal("expected borrow log to decode")
	}

	if a.Kind != domain.KindBorrow {
		t.Errorf("expected kind borrow, got %s", a.Kind)
	}
	if a.AmountFormatted != "300" {
		t.Errorf("expected loan-decimal formatting 300, got %s", a.AmountFormatted)
	}
	if a.BorrowShares == nil || a.BorrowShares.Cmp(shares) != 0 {
		t.Errorf("expected borrow shares %s, got %v", shares, a.BorrowShares)
	}
}

func TestDecodeActivity_RepayUsesLoanDecimals(t *testing.T) {
	assets := big.NewInt(100_000_000)
	l := types.Log{
		Topics:      []common.Hash{RepayTopic, MarketTopic, common.HexToHash(testCaller), common.HexToHash(testActor)},
		Data:        dataWords(assets.Bytes(), big.NewInt(1).Bytes()),
		BlockNumber: 19_100_002,
		TxHash:      common.HexToHash(testTxHash),
	}

	a, ok := DecodeActivity(l, 0)
	if !ok {
		t.Fatal("expected repay log to decode")
	}
	if a.Kind != domain.KindRepay {
		t.Errorf("expected kind repay, got %s", a.Kind)
	}
	if a.AmountFormatted != "100" {
		t.Errorf("expected formatted 100, got %s", a.AmountFormatted)
	}
	if a.BorrowShares != nil {
		t.Error("repay must not carry borrow shares")
	}
}

func TestDecodeActivity_SkipsForeignMarket(t *testing.T) {
	l := supplyLog(big.NewInt(1), big.NewInt(1))
	l.Topics[1] = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")

	if _, ok := DecodeActivity(l, 0); ok {
		t.Error("expected log for another market to be skipped")
	}
}

func TestDecodeActivity_SkipsMalformed(t *testing.T) {
	unknown := supplyLog(big.NewInt(1), big.NewInt(1))
	unknown.Topics[0] = common.HexToHash("0xdead")
	if _, ok := DecodeActivity(unknown, 0); ok {
		t.Error("expected unknown event to be skipped")
	}

	short := supplyLog(big.NewInt(1), big.NewInt(1))
	short.Topics = short.Topics[:2]
	if _, ok := DecodeActivity(short, 0); ok {
		t.Error("expected log with missing topics to be skipped")
	}

	truncated := supplyLog(big.NewInt(1), big.NewInt(1))
	truncated.Data = truncated.Data[:16]
	if _, ok := DecodeActivity(truncated, 0); ok {
		t.Error("expected log with truncated data to be skipped")
	}

	removed := supplyLog(big.NewInt(1), big.NewInt(1))
	removed.Removed = true
	if _, ok := DecodeActivity(removed, 0); ok {
		t.Error("expected reorged-out log to be skipped")
	}
}

func TestDecodeActivity_DistinctIDsPerKindAndActor(t *testing.T) {
	supply, ok := DecodeActivity(supplyLog(big.NewInt(10), big.NewInt(10)), 0)
	if !ok {
		t.Fatal("supply decode failed")
	}
	borrow, ok := DecodeActivity(borrowLog(big.NewInt(10), big.NewInt(10)), 0)
	if !ok {
		t.Fatal("borrow decode failed")
	}

	// Same transaction, different kinds: ids must differ.
	if supply.ID == borrow.ID {
		t.Errorf("expected distinct ids, got %s twice", supply.ID)
	}
}

func TestDecodeAll_DropsUnparsedAndResolvesTimestamps(t *testing.T) {
	bad := supplyLog(big.NewInt(1), big.NewInt(1))
	bad.Topics[0] = common.HexToHash("0xdead")

	logs := []types.Log{
		supplyLog(big.NewInt(2), big.NewInt(2)),
		bad,
		borrowLog(big.NewInt(3), big.NewInt(3)),
	}

	activities := DecodeAll(logs, func(block uint64) int64 {
		return int64(block) * 10
	})

	if len(activities) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(activities))
	}
	if activities[0].Timestamp != int64(19_100_000)*10 {
		t.Errorf("expected resolved timestamp, got %d", activities[0].Timestamp)
	}
	if activities[1].Timestamp != int64(19_100_050)*10 {
		t.Errorf("expected resolved timestamp, got %d", activities[1].Timestamp)
	}
}

func TestFilterTopics(t *testing.T) {
	topics := FilterTopics(domain.KindBorrow)
	if len(topics) != 2 {
		t.Fatalf("expected 2 topic positions, got %d", len(topics))
	}
	if topics[0][0] != BorrowTopic {
		t.Error("first position must select the event kind")
	}
	if topics[1][0] != MarketTopic {
		t.Error("second position must pin the market")
	}
}
