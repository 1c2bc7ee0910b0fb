// Package approval checks and requests ERC-20 spending allowances.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/chain"
	"github.com/gateway-fm/swapcore/internal/gas"
	"github.com/gateway-fm/swapcore/internal/metrics"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/uniswapv3"
	"github.com/gateway-fm/swapcore/internal/wallet"
)

// ErrApprovalFailed is returned when an approve transaction cannot be built or submitted.
var ErrApprovalFailed = errors.New("approval failed")

// State is the allowance of one (token, spender) pair relative to an amount.
type State struct {
	ApprovedAmount float64  `json:"approvedAmount"`
	ApprovedUnits  *big.Int `json:"approvedUnits"`
	NeedsApproval  bool     `json:"needsApproval"`
}

// Config holds configuration for the approval manager.
type Config struct {
	Reader  chain.Reader
	Wallet  wallet.Wallet
	ChainID int64
	Metrics *metrics.PrometheusMetrics
	Logger  *slog.Logger
}

// Manager checks allowances and submits approve calls. It owns no state.
type Manager struct {
	reader  chain.Reader
	wallet  wallet.Wallet
	chainID int64
	metrics *metrics.PrometheusMetrics
	logger  *slog.Logger
}

// NewManager creates a new approval manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		reader:  cfg.Reader,
		wallet:  cfg.Wallet,
		chainID: cfg.ChainID,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// CheckApproval checks the connected wallet's allowance for spender.
func (m *Manager) CheckApproval(ctx context.Context, amount float64, tok token.Token, spender common.Address) State {
	return m.CheckApprovalFor(ctx, m.wallet.Address(), amount, tok, spender)
}

// CheckApprovalFor checks owner's allowance. Native assets never need
// approval. A failed read reports NeedsApproval so the caller approves
// rather than risk a reverted swap.
func (m *Manager) CheckApprovalFor(ctx context.Context, owner common.Address, amount float64, tok token.Token, spender common.Address) State {
	if tok.IsNative() {
		return State{ApprovedUnits: new(big.Int)}
	}
	return m.checkUnits(ctx, owner, tok, spender, token.ToUnits(amount, tok.Decimals))
}

func (m *Manager) checkUnits(ctx context.Context, owner common.Address, tok token.Token, spender common.Address, want *big.Int) State {
	if tok.IsNative() {
		return State{ApprovedUnits: new(big.Int)}
	}
	allowance, err := m.reader.GetAllowance(ctx, owner, spender, tok)
	if err != nil {
		m.logger.Warn("allowance read failed, assuming approval needed",
			slog.String("token", tok.String()),
			slog.String("spender", spender.Hex()),
			slog.String("error", err.Error()),
		)
		return State{ApprovedUnits: new(big.Int), NeedsApproval: want.Sign() > 0}
	}
	return State{
		ApprovedAmount: token.FromUnits(allowance, tok.Decimals),
		ApprovedUnits:  allowance,
		NeedsApproval:  want.Sign() > 0 && allowance.Cmp(want) < 0,
	}
}

// NeedsApproval reports whether owner must approve units of tok for spender.
func (m *Manager) NeedsApproval(ctx context.Context, owner common.Address, tok token.Token, spender common.Address, units *big.Int) State {
	return m.checkUnits(ctx, owner, tok, spender, units)
}

// RequestApproval approves exactly amount of tok for spender.
func (m *Manager) RequestApproval(ctx context.Context, amount float64, tok token.Token, spender common.Address, params gas.Params) (common.Hash, error) {
	return m.Approve(ctx, tok, spender, token.ToUnits(amount, tok.Decimals), false, params)
}

// Approve submits approve(spender, units), or an unlimited allowance when
// unlimited is set. Failures are returned, never retried.
func (m *Manager) Approve(ctx context.Context, tok token.Token, spender common.Address, units *big.Int, unlimited bool, params gas.Params) (hash common.Hash, err error) {
	defer func() { m.metrics.RecordApproval(err == nil) }()

	if tok.IsNative() {
		return common.Hash{}, fmt.Errorf("%w: native %s needs no approval", ErrApprovalFailed, tok)
	}
	amount := units
	if unlimited {
		amount = uniswapv3.MaxUint256
	}
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("%w: zero amount", ErrApprovalFailed)
	}

	if err := wallet.EnsureChain(ctx, m.wallet, m.chainID); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrApprovalFailed, err)
	}

	hash, err = m.wallet.SendTransaction(ctx, wallet.TxRequest{
		To:                   tok.Address,
		Data:                 uniswapv3.EncodeApprove(spender, amount),
		GasLimit:             params.GasLimit,
		MaxFeePerGas:         params.MaxFeePerGas,
		MaxPriorityFeePerGas: params.MaxPriorityFeePerGas,
	})
	if err != nil {
		m.logger.Error("approve failed",
			slog.String("token", tok.String()),
			slog.String("spender", spender.Hex()),
			slog.String("error", err.Error()),
		)
		return common.Hash{}, fmt.Errorf("%w: %w", ErrApprovalFailed, err)
	}

	m.logger.Info("approve submitted",
		slog.String("token", tok.String()),
		slog.String("spender", spender.Hex()),
		slog.Bool("unlimited", unlimited),
		slog.String("hash", hash.Hex()),
	)
	return hash, nil
}
