// Package staking reads and writes the staking and launch-list contracts.
package staking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/approval"
	"github.com/gateway-fm/swapcore/internal/chain"
	"github.com/gateway-fm/swapcore/internal/gas"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/uniswapv3"
	"github.com/gateway-fm/swapcore/internal/wallet"
)

var (
	ErrStakingFailed    = errors.New("staking transaction failed")
	ErrApprovalRequired = errors.New("stake token allowance too low")
	ErrNotEligible      = errors.New("address is not on the launch list")
	ErrNoLaunchList     = errors.New("no launch list contract configured")
)

// usdcDecimals is the precision of addressUsdcSpent.
const usdcDecimals = 6

// Eligibility is the launch-list standing of an address.
type Eligibility struct {
	OnLaunchList bool    `json:"onLaunchList"`
	UsdcSpent    float64 `json:"usdcSpent"`
	// CanClaim gates the claim and merge flows.
	CanClaim bool `json:"canClaim"`
}

// Position is an address's staked balance and pending rewards.
type Position struct {
	Staked float64 `json:"staked"`
	Earned float64 `json:"earned"`
}

// Config holds configuration for the staking client.
type Config struct {
	Reader     chain.Reader
	Wallet     wallet.Wallet
	Approvals  *approval.Manager
	Staking    common.Address
	LaunchList common.Address
	// StakeToken is deposited and withdrawn; rewards are paid in RewardToken.
	StakeToken  token.Token
	RewardToken token.Token
	ChainID     int64
	Logger      *slog.Logger
}

// Client wraps the staking contract.
type Client struct {
	reader      chain.Reader
	wallet      wallet.Wallet
	approvals   *approval.Manager
	staking     common.Address
	launchList  common.Address
	stakeToken  token.Token
	rewardToken token.Token
	chainID     int64
	logger      *slog.Logger
}

// New creates a staking client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reward := cfg.RewardToken
	if reward.Address == (common.Address{}) {
		reward = cfg.StakeToken
	}
	return &Client{
		reader:      cfg.Reader,
		wallet:      cfg.Wallet,
		approvals:   cfg.Approvals,
		staking:     cfg.Staking,
		launchList:  cfg.LaunchList,
		stakeToken:  cfg.StakeToken,
		rewardToken: reward,
		chainID:     cfg.ChainID,
		logger:      logger.With(slog.String("component", "staking")),
	}
}

func (c *Client) readUint(ctx context.Context, to common.Address, data []byte) (*big.Int, error) {
	out, err := c.reader.Call(ctx, to, data)
	if err != nil {
		return nil, err
	}
	return uniswapv3.DecodeUint256(out)
}

// GetPosition reads the staked balance and earned rewards of owner.
func (c *Client) GetPosition(ctx context.Context, owner common.Address) (Position, error) {
	staked, err := c.readUint(ctx, c.staking, EncodeBalanceOf(owner))
	if err != nil {
		return Position{}, fmt.Errorf("failed to read staked balance: %w", err)
	}
	earned, err := c.readUint(ctx, c.staking, EncodeEarned(owner))
	if err != nil {
		return Position{}, fmt.Errorf("failed to read earned rewards: %w", err)
	}
	return Position{
		Staked: token.FromUnits(staked, c.stakeToken.Decimals),
		Earned: token.FromUnits(earned, c.rewardToken.Decimals),
	}, nil
}

// GetEligibility reads the launch-list standing of owner.
func (c *Client) GetEligibility(ctx context.Context, owner common.Address) (Eligibility, error) {
	if c.launchList == (common.Address{}) {
		return Eligibility{}, ErrNoLaunchList
	}
	out, err := c.reader.Call(ctx, c.launchList, EncodeIsOnLaunchList(owner))
	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to read launch list: %w", err)
	}
	listed, err := uniswapv3.DecodeBool(out)
	if err != nil {
		return Eligibility{}, err
	}
	spent, err := c.readUint(ctx, c.launchList, EncodeAddressUsdcSpent(owner))
	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to read usdc spent: %w", err)
	}
	return Eligibility{
		OnLaunchList: listed,
		UsdcSpent:    token.FromUnits(spent, usdcDecimals),
		CanClaim:     listed,
	}, nil
}

// Deposit stakes amount of the stake token. The allowance must already cover it.
func (c *Client) Deposit(ctx context.Context, amount float64, params gas.Params) (common.Hash, error) {
	units := token.ToUnits(amount, c.stakeToken.Decimals)
	if units.Sign() == 0 {
		return common.Hash{}, fmt.Errorf("%w: zero amount", ErrStakingFailed)
	}
	if c.approvals != nil {
		st := c.approvals.NeedsApproval(ctx, c.wallet.Address(), c.stakeToken, c.staking, units)
		if st.NeedsApproval {
			return common.Hash{}, fmt.Errorf("%w: have %v, need %v", ErrApprovalRequired, st.ApprovedAmount, amount)
		}
	}
	return c.send(ctx, "deposit", EncodeDeposit(units), params)
}

// Withdraw unstakes amount of the stake token.
func (c *Client) Withdraw(ctx context.Context, amount float64, params gas.Params) (common.Hash, error) {
	units := token.ToUnits(amount, c.stakeToken.Decimals)
	if units.Sign() == 0 {
		return common.Hash{}, fmt.Errorf("%w: zero amount", ErrStakingFailed)
	}
	return c.send(ctx, "withdraw", EncodeWithdraw(units), params)
}

// Claim pays out earned rewards. Only launch-list addresses may claim.
func (c *Client) Claim(ctx context.Context, params gas.Params) (common.Hash, error) {
	if err := c.requireEligible(ctx); err != nil {
		return common.Hash{}, err
	}
	return c.send(ctx, "claim", EncodeClaim(), params)
}

// Reinvest restakes earned rewards. Same eligibility as Claim.
func (c *Client) Reinvest(ctx context.Context, params gas.Params) (common.Hash, error) {
	if err := c.requireEligible(ctx); err != nil {
		return common.Hash{}, err
	}
	return c.send(ctx, "reinvest", EncodeReinvest(), params)
}

func (c *Client) requireEligible(ctx context.Context) error {
	if c.launchList == (common.Address{}) {
		return nil
	}
	el, err := c.GetEligibility(ctx, c.wallet.Address())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStakingFailed, err)
	}
	if !el.CanClaim {
		return ErrNotEligible
	}
	return nil
}

func (c *Client) send(ctx context.Context, op string, data []byte, params gas.Params) (common.Hash, error) {
	if err := wallet.EnsureChain(ctx, c.wallet, c.chainID); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrStakingFailed, err)
	}
	hash, err := c.wallet.SendTransaction(ctx, wallet.TxRequest{
		To:                   c.staking,
		Data:                 data,
		GasLimit:             params.GasLimit,
		MaxFeePerGas:         params.MaxFeePerGas,
		MaxPriorityFeePerGas: params.MaxPriorityFeePerGas,
	})
	if err != nil {
		c.logger.Error("staking call failed", slog.String("op", op), slog.String("error", err.Error()))
		return common.Hash{}, fmt.Errorf("%w: %s: %w", ErrStakingFailed, op, err)
	}
	c.logger.Info("staking call submitted", slog.String("op", op), slog.String("hash", hash.Hex()))
	return hash, nil
}
