package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// The indexer tracks exactly one market. Market identifier, contract
// address, deploy block, and token decimals are compile-time constants,
// not configuration.
const (
	// MarketID is the bytes32 identifier of the wstETH/USDC market.
	MarketID = "0xb323495f7e4148be5643a4ea4a8221eef163e4bccfdedc2a6f4696baacbc86cc"

	// ContractAddress is the lending protocol core contract emitting the events.
	ContractAddress = "0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb"

	// MarketDeployBlock is the block the market was created at. Backfills
	// with no explicit starting block begin here.
	MarketDeployBlock uint64 = 19_075_220

	CollateralSymbol = "wstETH"
	LoanSymbol       = "USDC"

	CollateralDecimals int32 = 18
	LoanDecimals       int32 = 6
)

// DecimalsFor returns the decimal count of the token a kind is denominated
// in. Supply and withdraw move the collateral token; borrow and repay move
// the loan token.
func DecimalsFor(kind ActivityKind) int32 {
	switch kind {
	case KindBorrow, KindRepay:
		return LoanDecimals
	default:
		return CollateralDecimals
	}
}

// FormatAmount renders a raw integer amount as a display string scaled by
// the decimals of the token kind is denominated in. Display only; all
// arithmetic stays on *big.Int.
func FormatAmount(amount *big.Int, kind ActivityKind) string {
	return FormatUnits(amount, DecimalsFor(kind))
}

// FormatUnits renders amount scaled down by an explicit decimal count.
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// DisplayFloat renders amount as a float for chart payloads. Lossy above
// 2^53 of the scaled value; used for display series only.
func DisplayFloat(amount *big.Int, decimals int32) float64 {
	if amount == nil {
		return 0
	}
	return decimal.NewFromBigInt(amount, -decimals).InexactFloat64()
}
