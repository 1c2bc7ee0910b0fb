// Package swap builds and submits exact-input swaps through the V3 router.
package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/gas"
	"github.com/gateway-fm/swapcore/internal/metrics"
	"github.com/gateway-fm/swapcore/internal/pricefeed"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/uniswapv3"
	"github.com/gateway-fm/swapcore/internal/wallet"
)

// ErrSwapFailed is returned when a swap cannot be built or submitted.
var ErrSwapFailed = errors.New("swap failed")

// Deadline is how long a submitted swap stays valid.
const Deadline = 20 * time.Minute

// PoolResolver finds the canonical pool fee for a pair.
type PoolResolver interface {
	ResolvePool(ctx context.Context, tokenA, tokenB token.Token) (uint32, common.Address, error)
}

// Request describes one swap.
type Request struct {
	AmountIn  float64
	AmountOut float64
	TokenIn   token.Token
	TokenOut  token.Token
	Gas       gas.Settings
}

// Config holds configuration for the executor.
type Config struct {
	Pools   PoolResolver
	Wallet  wallet.Wallet
	Router  common.Address
	WETH    common.Address
	ChainID int64
	// Fees supplies live suggestions for basic gas mode; optional.
	Fees    pricefeed.Feed
	Metrics *metrics.PrometheusMetrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Executor submits swaps. It holds no per-swap state.
type Executor struct {
	pools   PoolResolver
	wallet  wallet.Wallet
	router  common.Address
	weth    common.Address
	chainID int64
	fees    pricefeed.Feed
	metrics *metrics.PrometheusMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewExecutor creates a new swap executor.
func NewExecutor(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		pools:   cfg.Pools,
		wallet:  cfg.Wallet,
		router:  cfg.Router,
		weth:    cfg.WETH,
		chainID: cfg.ChainID,
		fees:    cfg.Fees,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     now,
	}
}

// MinimumOut returns floor(amountOut * (1 - slippage/100)) in tokenOut units.
func MinimumOut(amountOut float64, tokenOut token.Token, slippage float64) *big.Int {
	return token.MulPercentFloor(token.ToUnits(amountOut, tokenOut.Decimals), slippage)
}

// ExecuteSwap submits the swap and reports whether it was sent. Failures are
// logged and yield ok=false; callers must not record a transaction then.
func (e *Executor) ExecuteSwap(ctx context.Context, req Request) (common.Hash, bool) {
	hash, err := e.Swap(ctx, req)
	if err != nil {
		e.logger.Error("swap not submitted",
			slog.String("in", req.TokenIn.String()),
			slog.String("out", req.TokenOut.String()),
			slog.String("error", err.Error()),
		)
		return common.Hash{}, false
	}
	return hash, true
}

// Swap is ExecuteSwap with the failure cause returned as an error wrapping ErrSwapFailed.
func (e *Executor) Swap(ctx context.Context, req Request) (hash common.Hash, err error) {
	unwrap := req.TokenOut.IsNative()
	defer func() { e.metrics.RecordSwap(err == nil, unwrap) }()

	tx, err := e.Build(ctx, req)
	if err != nil {
		return common.Hash{}, err
	}
	if err := wallet.EnsureChain(ctx, e.wallet, e.chainID); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrSwapFailed, err)
	}
	hash, err = e.wallet.SendTransaction(ctx, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrSwapFailed, err)
	}

	e.logger.Info("swap submitted",
		slog.String("in", req.TokenIn.String()),
		slog.String("out", req.TokenOut.String()),
		slog.Float64("amountIn", req.AmountIn),
		slog.Bool("unwrap", unwrap),
		slog.String("hash", hash.Hex()),
	)
	return hash, nil
}

// Build prepares the router transaction for req without submitting it.
func (e *Executor) Build(ctx context.Context, req Request) (wallet.TxRequest, error) {
	if err := req.Gas.Validate(); err != nil {
		return wallet.TxRequest{}, fmt.Errorf("%w: %w", ErrSwapFailed, err)
	}
	amountIn := token.ToUnits(req.AmountIn, req.TokenIn.Decimals)
	if amountIn.Sign() == 0 {
		return wallet.TxRequest{}, fmt.Errorf("%w: zero input amount", ErrSwapFailed)
	}

	fee, _, err := e.pools.ResolvePool(ctx, req.TokenIn, req.TokenOut)
	if err != nil {
		return wallet.TxRequest{}, fmt.Errorf("%w: %w", ErrSwapFailed, err)
	}

	minOut := MinimumOut(req.AmountOut, req.TokenOut, req.Gas.Slippage)
	unwrap := req.TokenOut.IsNative()

	// With a native output the router receives WETH and unwraps it to the sender.
	recipient := e.wallet.Address()
	if unwrap {
		recipient = e.router
	}

	deadline := big.NewInt(e.now().Add(Deadline).Unix())
	data := uniswapv3.EncodeExactInputSingle(uniswapv3.ExactInputSingleParams{
		TokenIn:          req.TokenIn.RoutingAddress(e.weth),
		TokenOut:         req.TokenOut.RoutingAddress(e.weth),
		Fee:              fee,
		Recipient:        recipient,
		Deadline:         deadline,
		AmountIn:         amountIn,
		AmountOutMinimum: minOut,
	})
	if unwrap {
		data, err = uniswapv3.EncodeMulticall(data, uniswapv3.EncodeUnwrapWETH9(minOut, e.wallet.Address()))
		if err != nil {
			return wallet.TxRequest{}, fmt.Errorf("%w: %w", ErrSwapFailed, err)
		}
	}

	tx := wallet.TxRequest{To: e.router, Data: data}
	if req.TokenIn.IsNative() {
		tx.Value = amountIn
	}

	params := e.gasParams(ctx, req.Gas)
	if params.GasLimit > 0 {
		tx.GasLimit = params.GasLimit
	}
	if params.MaxFeePerGas != nil && params.MaxFeePerGas.Sign() > 0 {
		tx.MaxFeePerGas = params.MaxFeePerGas
	}
	if params.MaxPriorityFeePerGas != nil && params.MaxPriorityFeePerGas.Sign() > 0 {
		tx.MaxPriorityFeePerGas = params.MaxPriorityFeePerGas
	}
	return tx, nil
}

func (e *Executor) gasParams(ctx context.Context, s gas.Settings) gas.Params {
	if !s.NeedsSuggestion() || e.fees == nil {
		return gas.Resolve(s, nil)
	}
	fees, err := e.fees.GetSuggestedGasFees(ctx)
	if err != nil {
		e.logger.Warn("gas suggestion unavailable, using wallet defaults", slog.String("error", err.Error()))
		return gas.Resolve(s, nil)
	}
	return gas.Resolve(s, fees)
}
