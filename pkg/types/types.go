// Package types contains public API types for the swap core.
// These types form the external interface and must remain backwards-compatible.
package types

// TokenRef identifies a token in API requests. An empty or zero address
// means the chain's native asset.
type TokenRef struct {
	ChainID  int64  `json:"chainId,omitempty"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
	PriceID  string `json:"priceId,omitempty"`
	Stable   bool   `json:"stable,omitempty"`
}

// QuoteRequest asks for the output of selling Amount of TokenIn. With
// Reverse set, Amount is the desired output and the input is solved for.
type QuoteRequest struct {
	TokenIn  TokenRef `json:"tokenIn"`
	TokenOut TokenRef `json:"tokenOut"`
	Amount   float64  `json:"amount"`
	Reverse  bool     `json:"reverse,omitempty"`
}

// QuoteResponse is a priced trade. Amounts are truncated to display precision.
type QuoteResponse struct {
	AmountIn    float64 `json:"amountIn"`
	AmountOut   float64 `json:"amountOut"`
	Fee         uint32  `json:"fee"`
	Pool        string  `json:"pool"`
	Reverse     bool    `json:"reverse"`
	PriceImpact float64 `json:"priceImpact"`
}

// PriceImpactRequest asks for the estimated impact of selling AmountIn of TokenA.
type PriceImpactRequest struct {
	TokenA   TokenRef `json:"tokenA"`
	TokenB   TokenRef `json:"tokenB"`
	AmountIn float64  `json:"amountIn"`
}

// PriceImpactResponse carries an impact estimate in percent.
type PriceImpactResponse struct {
	PriceImpact float64 `json:"priceImpact"`
}

// SpotPriceResponse is the price of one TokenA in TokenB. Zero means unknown.
type SpotPriceResponse struct {
	Price float64 `json:"price"`
}

// TicksRequest describes a liquidity price range. Prices are token1 per token0
// unless Swapped, in which case they are given in the user's order and inverted.
type TicksRequest struct {
	MinPrice       float64 `json:"minPrice"`
	MaxPrice       float64 `json:"maxPrice"`
	FeeTier        uint32  `json:"feeTier"`
	Token0Decimals uint8   `json:"token0Decimals"`
	Token1Decimals uint8   `json:"token1Decimals"`
	Swapped        bool    `json:"swapped,omitempty"`
	FullRange      bool    `json:"fullRange,omitempty"`
}

// TicksResponse is an aligned tick range.
type TicksResponse struct {
	TickLower int32 `json:"tickLower"`
	TickUpper int32 `json:"tickUpper"`
	FullRange bool  `json:"fullRange"`
}

// Preference is one stored user preference.
type Preference struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ClearHistoryResponse reports how many records were deleted.
type ClearHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}

// EventTxStatus is the type tag of StatusEvent messages.
const EventTxStatus = "tx_status"

// StatusEvent is pushed over the WebSocket when a tracked transaction resolves.
type StatusEvent struct {
	Type        string `json:"type"`
	Hash        string `json:"hash"`
	Owner       string `json:"owner"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
	ElapsedMs   int64  `json:"elapsedMs"`
}
