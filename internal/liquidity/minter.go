// Package liquidity prepares and submits Uniswap V3 position mints.
package liquidity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/approval"
	"github.com/gateway-fm/swapcore/internal/gas"
	"github.com/gateway-fm/swapcore/internal/metrics"
	"github.com/gateway-fm/swapcore/internal/storage"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/uniswapv3"
	"github.com/gateway-fm/swapcore/internal/wallet"
)

// ErrMintFailed is returned when the mint call cannot be built or submitted.
var ErrMintFailed = errors.New("mint failed")

// Deadline is how long a submitted mint stays valid.
const Deadline = 20 * time.Minute

// Options narrow a mint. Zero prices mean a full-range position; a zero fee
// means the 0.3% tier; zero slippage means the default.
type Options struct {
	MinPrice float64 `json:"minPrice,omitempty"`
	MaxPrice float64 `json:"maxPrice,omitempty"`
	FeeTier  uint32  `json:"feeTier,omitempty"`
	Slippage float64 `json:"slippage,omitempty"`
}

// PreparedMint is a fully computed mint ready to approve and submit.
type PreparedMint struct {
	Token0         token.Token         `json:"token0"`
	Token1         token.Token         `json:"token1"`
	Swapped        bool                `json:"swapped"`
	Fee            uint32              `json:"fee"`
	Ticks          uniswapv3.TickRange `json:"ticks"`
	FullRange      bool                `json:"fullRange"`
	Amount0Desired *big.Int            `json:"amount0Desired"`
	Amount1Desired *big.Int            `json:"amount1Desired"`
	Amount0Min     *big.Int            `json:"amount0Min"`
	Amount1Min     *big.Int            `json:"amount1Min"`
	// Value is the native amount attached to the mint.
	Value *big.Int `json:"value"`
}

// ApprovalNeed is the allowance state of one side of a mint.
type ApprovalNeed struct {
	Token     token.Token `json:"token"`
	Amount    *big.Int    `json:"amount"`
	Allowance *big.Int    `json:"allowance"`
	Needed    bool        `json:"needed"`
}

// Config holds configuration for the minter.
type Config struct {
	Approvals       *approval.Manager
	Wallet          wallet.Wallet
	PositionManager common.Address
	WETH            common.Address
	ChainID         int64
	// Confirmations waits for approval and mint receipts; optional for
	// callers that only use the individual steps.
	Confirmations Confirmer
	History       storage.HistoryStore // optional
	Metrics       *metrics.PrometheusMetrics
	Logger        *slog.Logger
	Now           func() time.Time
}

// Confirmer blocks until a transaction resolves.
type Confirmer interface {
	AwaitConfirmation(ctx context.Context, hash common.Hash) (storage.TxStatus, error)
}

// Minter prepares, approves and submits position mints.
type Minter struct {
	approvals     *approval.Manager
	wallet        wallet.Wallet
	pm            common.Address
	weth          common.Address
	chainID       int64
	confirmations Confirmer
	history       storage.HistoryStore
	metrics       *metrics.PrometheusMetrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewMinter creates a new minter.
func NewMinter(cfg Config) *Minter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Minter{
		approvals:     cfg.Approvals,
		wallet:        cfg.Wallet,
		pm:            cfg.PositionManager,
		weth:          cfg.WETH,
		chainID:       cfg.ChainID,
		confirmations: cfg.Confirmations,
		history:       cfg.History,
		metrics:       cfg.Metrics,
		logger:        logger,
		now:           now,
	}
}

// PrepareMint sorts the pair, derives the tick range and the slippage
// minimums. Prices are tokenB per tokenA as the user entered them.
func (m *Minter) PrepareMint(amountA, amountB float64, tokenA, tokenB token.Token, opts Options) (*PreparedMint, error) {
	fee := opts.FeeTier
	if fee == 0 {
		fee = uniswapv3.FeeMedium
	}
	if _, err := uniswapv3.TickSpacing(fee); err != nil {
		return nil, err
	}
	slippage := opts.Slippage
	if slippage == 0 {
		slippage = gas.DefaultSlippage
	}
	if slippage < gas.MinSlippage || slippage > gas.MaxSlippage {
		return nil, fmt.Errorf("%w: %v", gas.ErrInvalidSlippage, slippage)
	}

	pair, err := token.NewPair(tokenA, tokenB, m.weth)
	if err != nil {
		return nil, err
	}
	amount0, amount1 := token.ToUnits(amountA, tokenA.Decimals), token.ToUnits(amountB, tokenB.Decimals)
	if pair.Swapped {
		amount0, amount1 = amount1, amount0
	}

	p := &PreparedMint{
		Token0:         pair.Token0,
		Token1:         pair.Token1,
		Swapped:        pair.Swapped,
		Fee:            fee,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     token.MulPercentFloor(amount0, slippage),
		Amount1Min:     token.MulPercentFloor(amount1, slippage),
		Value:          new(big.Int),
	}

	if opts.MinPrice == 0 && opts.MaxPrice == 0 {
		p.FullRange = true
		p.Ticks, err = uniswapv3.FullRangeTicks(fee)
	} else {
		p.Ticks, err = uniswapv3.ComputeTicks(opts.MinPrice, opts.MaxPrice, fee, pair.Token0.Decimals, pair.Token1.Decimals, pair.Swapped)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case pair.Token0.IsNative():
		p.Value = new(big.Int).Set(amount0)
	case pair.Token1.IsNative():
		p.Value = new(big.Int).Set(amount1)
	}
	return p, nil
}

// GetApprovalRequirements compares each non-native side's allowance to the
// position manager against its desired amount.
func (m *Minter) GetApprovalRequirements(ctx context.Context, p *PreparedMint) []ApprovalNeed {
	owner := m.wallet.Address()
	sides := []struct {
		tok    token.Token
		amount *big.Int
	}{
		{p.Token0, p.Amount0Desired},
		{p.Token1, p.Amount1Desired},
	}

	var needs []ApprovalNeed
	for _, side := range sides {
		if side.tok.IsNative() {
			continue
		}
		state := m.approvals.NeedsApproval(ctx, owner, side.tok, m.pm, side.amount)
		needs = append(needs, ApprovalNeed{
			Token:     side.tok,
			Amount:    side.amount,
			Allowance: state.ApprovedUnits,
			Needed:    state.NeedsApproval,
		})
	}
	return needs
}

// ApproveAll submits the needed approvals one at a time. Exact approvals
// cover the desired amount; otherwise the allowance is unlimited. It stops
// at the first failure and returns the hashes submitted so far.
func (m *Minter) ApproveAll(ctx context.Context, needs []ApprovalNeed, approveExact bool, params gas.Params) ([]common.Hash, error) {
	var hashes []common.Hash
	for _, need := range needs {
		if !need.Needed {
			continue
		}
		hash, err := m.approvals.Approve(ctx, need.Token, m.pm, need.Amount, !approveExact, params)
		if err != nil {
			return hashes, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

// ExecuteMint submits the mint. With native value attached the call is
// bundled with refundETH so unused value returns to the sender.
func (m *Minter) ExecuteMint(ctx context.Context, p *PreparedMint, params gas.Params) (common.Hash, error) {
	data := uniswapv3.EncodeMintPosition(uniswapv3.MintParams{
		Token0:         p.Token0.RoutingAddress(m.weth),
		Token1:         p.Token1.RoutingAddress(m.weth),
		Fee:            p.Fee,
		TickLower:      p.Ticks.Lower,
		TickUpper:      p.Ticks.Upper,
		Amount0Desired: p.Amount0Desired,
		Amount1Desired: p.Amount1Desired,
		Amount0Min:     p.Amount0Min,
		Amount1Min:     p.Amount1Min,
		Recipient:      m.wallet.Address(),
		Deadline:       big.NewInt(m.now().Add(Deadline).Unix()),
	})

	tx := wallet.TxRequest{
		To:                   m.pm,
		Data:                 data,
		GasLimit:             params.GasLimit,
		MaxFeePerGas:         params.MaxFeePerGas,
		MaxPriorityFeePerGas: params.MaxPriorityFeePerGas,
	}
	if p.Value != nil && p.Value.Sign() > 0 {
		bundled, err := uniswapv3.EncodeMulticall(data, uniswapv3.EncodeRefundETH())
		if err != nil {
			return common.Hash{}, fmt.Errorf("%w: %w", ErrMintFailed, err)
		}
		tx.Data = bundled
		tx.Value = p.Value
	}

	if err := wallet.EnsureChain(ctx, m.wallet, m.chainID); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrMintFailed, err)
	}
	hash, err := m.wallet.SendTransaction(ctx, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrMintFailed, err)
	}

	m.logger.Info("mint submitted",
		slog.String("token0", p.Token0.String()),
		slog.String("token1", p.Token1.String()),
		slog.Uint64("fee", uint64(p.Fee)),
		slog.Int("tickLower", int(p.Ticks.Lower)),
		slog.Int("tickUpper", int(p.Ticks.Upper)),
		slog.String("hash", hash.Hex()),
	)
	return hash, nil
}
