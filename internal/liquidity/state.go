package liquidity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/gas"
	"github.com/gateway-fm/swapcore/internal/storage"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/txstatus"
)

// State is a step of one mint attempt.
type State string

const (
	StateIdle              State = "idle"
	StatePreparing         State = "preparing"
	StateAwaitingApprovals State = "awaiting_approvals"
	StateMinting           State = "minting"
	StateConfirmed         State = "confirmed"
	StateFailed            State = "failed"
	StateTimedOut          State = "timed_out"
)

// Terminal reports whether no further transition follows.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateTimedOut
}

// MintRequest is one end-to-end mint.
type MintRequest struct {
	AmountA      float64
	AmountB      float64
	TokenA       token.Token
	TokenB       token.Token
	Options      Options
	ApproveExact bool
	Gas          gas.Params
	// OnState observes every transition, including the terminal one.
	OnState func(State)
}

// MintResult is the outcome of Mint.
type MintResult struct {
	State     State         `json:"state"`
	Prepared  *PreparedMint `json:"prepared,omitempty"`
	Approvals []common.Hash `json:"approvals,omitempty"`
	Hash      common.Hash   `json:"hash"`
	Err       error         `json:"-"`
}

// Mint runs Idle → Preparing → AwaitingApprovals → Minting → Confirmed,
// ending in Failed or TimedOut on error. Approvals are confirmed before the
// mint is sent so the position manager sees the allowance.
func (m *Minter) Mint(ctx context.Context, req MintRequest) MintResult {
	res := MintResult{State: StateIdle}
	move := func(s State) {
		res.State = s
		if s.Terminal() {
			m.metrics.RecordMint(string(s))
		}
		if req.OnState != nil {
			req.OnState(s)
		}
	}
	fail := func(err error) MintResult {
		res.Err = err
		if errors.Is(err, txstatus.ErrTimedOut) {
			move(StateTimedOut)
		} else {
			move(StateFailed)
		}
		m.logger.Warn("mint attempt ended",
			slog.String("state", string(res.State)),
			slog.String("error", err.Error()))
		return res
	}

	move(StatePreparing)
	p, err := m.PrepareMint(req.AmountA, req.AmountB, req.TokenA, req.TokenB, req.Options)
	if err != nil {
		return fail(err)
	}
	res.Prepared = p

	move(StateAwaitingApprovals)
	needs := m.GetApprovalRequirements(ctx, p)
	res.Approvals, err = m.ApproveAll(ctx, needs, req.ApproveExact, req.Gas)
	if err != nil {
		return fail(err)
	}
	for _, hash := range res.Approvals {
		if err := m.confirm(ctx, hash); err != nil {
			return fail(fmt.Errorf("approval %s: %w", hash.Hex(), err))
		}
	}

	move(StateMinting)
	res.Hash, err = m.ExecuteMint(ctx, p, req.Gas)
	if err != nil {
		return fail(err)
	}
	m.record(ctx, res.Hash, req)
	if err := m.confirm(ctx, res.Hash); err != nil {
		return fail(err)
	}

	move(StateConfirmed)
	return res
}

func (m *Minter) confirm(ctx context.Context, hash common.Hash) error {
	if m.confirmations == nil {
		return nil
	}
	status, err := m.confirmations.AwaitConfirmation(ctx, hash)
	if err != nil {
		return err
	}
	if status != storage.TxSuccess {
		return fmt.Errorf("%w: transaction %s %s", ErrMintFailed, hash.Hex(), status)
	}
	return nil
}

func (m *Minter) record(ctx context.Context, hash common.Hash, req MintRequest) {
	if m.history == nil {
		return
	}
	chainID, _ := m.wallet.ChainID(ctx)
	// AmountOut carries the second deposit for mints.
	err := m.history.AddTransaction(ctx, &storage.TxRecord{
		Hash:      hash.Hex(),
		Owner:     token.LowerHex(m.wallet.Address()),
		ChainID:   chainID,
		Kind:      storage.KindMint,
		Status:    storage.TxPending,
		TokenIn:   req.TokenA.String(),
		TokenOut:  req.TokenB.String(),
		AmountIn:  req.AmountA,
		AmountOut: req.AmountB,
		CreatedAt: m.now(),
	})
	if err != nil {
		m.logger.Error("failed to record mint", slog.String("hash", hash.Hex()), slog.String("error", err.Error()))
	}
}
