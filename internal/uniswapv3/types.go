package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Standard fee tiers in hundredths of a basis point.
const (
	FeeLowest uint32 = 100   // 0.01%
	FeeLow    uint32 = 500   // 0.05%
	FeeMedium uint32 = 3000  // 0.3%
	FeeHigh   uint32 = 10000 // 1%
)

// FeeTiers lists the fee tiers probed when looking for a pool, in preference order.
var FeeTiers = []uint32{FeeMedium, FeeLow, FeeHigh, FeeLowest}

// PoolState is a snapshot of a pool's slot0 and immutables.
type PoolState struct {
	Address      common.Address
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
	Fee          uint32
	Token0       common.Address
	Token1       common.Address
}

// ExactInputSingleParams holds parameters for exactInputSingle swap.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               uint32
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// MaxUint256 is the maximum uint256 value (used for approvals).
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
