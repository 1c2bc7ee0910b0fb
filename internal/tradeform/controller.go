// Package tradeform drives one swap form session: debounced quoting,
// direction switching, full-balance fills and submission.
package tradeform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/approval"
	"github.com/gateway-fm/swapcore/internal/gas"
	"github.com/gateway-fm/swapcore/internal/pricefeed"
	"github.com/gateway-fm/swapcore/internal/quote"
	"github.com/gateway-fm/swapcore/internal/storage"
	"github.com/gateway-fm/swapcore/internal/swap"
	"github.com/gateway-fm/swapcore/internal/token"
)

// DefaultDebounce is the quiet period after an amount edit before quoting.
const DefaultDebounce = 800 * time.Millisecond

// FullBalanceDecimals is the precision full-balance amounts are floored to.
const FullBalanceDecimals = 6

// WarnInsufficientGas is set when the native balance cannot cover the gas reserve.
const WarnInsufficientGas = "insufficient native balance to cover network fee"

var (
	ErrClosed          = errors.New("form session closed")
	ErrBusy            = errors.New("submission already in flight")
	ErrNotReady        = errors.New("form has no quote to submit")
	ErrApprovalPending = errors.New("approval submitted but allowance not yet visible")
)

// Side identifies one of the two amount fields.
type Side int

const (
	// SideIn is the "allocate" field, the token being sold.
	SideIn Side = iota
	// SideOut is the "buy" field.
	SideOut
)

func (s Side) String() string {
	if s == SideOut {
		return "out"
	}
	return "in"
}

// Phase is the form's position in
// Idle → Quoting → Ready → Submitting → (Approving | Swapping) → Idle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseQuoting    Phase = "quoting"
	PhaseReady      Phase = "ready"
	PhaseSubmitting Phase = "submitting"
	PhaseApproving  Phase = "approving"
	PhaseSwapping   Phase = "swapping"
	PhaseError      Phase = "error"
)

// Snapshot is the read-only view state rendered by the UI.
type Snapshot struct {
	Phase         Phase       `json:"phase"`
	TokenIn       token.Token `json:"tokenIn"`
	TokenOut      token.Token `json:"tokenOut"`
	AmountIn      float64     `json:"amountIn"`
	AmountOut     float64     `json:"amountOut"`
	Edited        Side        `json:"edited"`
	Reverse       bool        `json:"reverse"`
	PriceImpact   float64     `json:"priceImpact"`
	NeedsApproval bool        `json:"needsApproval"`
	Warning       string      `json:"warning,omitempty"`
	Error         string      `json:"error,omitempty"`
	LastHash      string      `json:"lastHash,omitempty"`
	Generation    uint64      `json:"generation"`
}

// Quoter prices trades.
type Quoter interface {
	GetQuote(ctx context.Context, tokenIn, tokenOut token.Token, amountIn float64) (*quote.Quote, error)
	GetPriceImpact(ctx context.Context, tokenA, tokenB token.Token, amountIn float64) float64
}

// Approver checks and requests allowances.
type Approver interface {
	CheckApproval(ctx context.Context, amount float64, tok token.Token, spender common.Address) approval.State
	RequestApproval(ctx context.Context, amount float64, tok token.Token, spender common.Address, params gas.Params) (common.Hash, error)
}

// Swapper submits swaps.
type Swapper interface {
	ExecuteSwap(ctx context.Context, req swap.Request) (common.Hash, bool)
}

// BalanceReader reads wallet balances.
type BalanceReader interface {
	GetBalance(ctx context.Context, owner common.Address, tok token.Token) (*big.Int, error)
}

// Tracker registers submitted swaps for status polling.
type Tracker interface {
	Track(ctx context.Context, rec storage.TxRecord) error
}

// Confirmer blocks until a transaction resolves.
type Confirmer interface {
	AwaitConfirmation(ctx context.Context, hash common.Hash) (storage.TxStatus, error)
}

// Config holds configuration for a form session.
type Config struct {
	Owner     common.Address
	ChainID   int64
	Router    common.Address
	Quotes    Quoter
	Approvals Approver
	Swaps     Swapper
	Balances  BalanceReader
	Tracker   Tracker
	// Confirmations, when set, waits for an approval to mine before re-checking.
	Confirmations Confirmer
	Fees          pricefeed.Feed
	Gas           gas.Settings
	TokenIn       token.Token
	TokenOut      token.Token
	Debounce      time.Duration
	// OnChange receives a snapshot after every state change.
	OnChange func(Snapshot)
	Logger   *slog.Logger
}

// Controller is one form session. All methods are safe for concurrent use.
type Controller struct {
	owner         common.Address
	chainID       int64
	router        common.Address
	quotes        Quoter
	approvals     Approver
	swaps         Swapper
	balances      BalanceReader
	tracker       Tracker
	confirmations Confirmer
	fees          pricefeed.Feed
	debounce      time.Duration
	onChange      func(Snapshot)
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      Snapshot
	gas        gas.Settings
	timer      *time.Timer
	submitting bool
	closed     bool
}

// New creates a form session.
func New(cfg Config) (*Controller, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Gas == (gas.Settings{}) {
		cfg.Gas = gas.DefaultSettings()
	}
	if err := cfg.Gas.Validate(); err != nil {
		return nil, err
	}
	if cfg.Quotes == nil || cfg.Swaps == nil || cfg.Approvals == nil {
		return nil, errors.New("quotes, approvals and swaps are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		owner:         cfg.Owner,
		chainID:       cfg.ChainID,
		router:        cfg.Router,
		quotes:        cfg.Quotes,
		approvals:     cfg.Approvals,
		swaps:         cfg.Swaps,
		balances:      cfg.Balances,
		tracker:       cfg.Tracker,
		confirmations: cfg.Confirmations,
		fees:          cfg.Fees,
		debounce:      cfg.Debounce,
		onChange:      cfg.OnChange,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		state: Snapshot{
			Phase:    PhaseIdle,
			TokenIn:  cfg.TokenIn,
			TokenOut: cfg.TokenOut,
		},
		gas: cfg.Gas,
	}, nil
}

// Snapshot returns the current view state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetGasSettings replaces the session's gas settings.
func (c *Controller) SetGasSettings(s gas.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gas = s
	return nil
}

// GasSettings returns the session's gas settings.
func (c *Controller) GasSettings() gas.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gas
}

// EditAmount sets one field, clears the other and schedules a quote after
// the debounce period. Edits inside the window restart it, so a burst of
// edits issues a single request.
func (c *Controller) EditAmount(side Side, amount float64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.setAmountLocked(side, amount)
	c.stopTimerLocked()
	if amount > 0 {
		c.timer = time.AfterFunc(c.debounce, c.flush)
	}
	snap := c.state
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

func (c *Controller) setAmountLocked(side Side, amount float64) {
	if amount < 0 {
		amount = 0
	}
	c.state.Edited = side
	c.state.Reverse = side == SideOut
	c.state.Error = ""
	c.state.PriceImpact = 0
	if side == SideIn {
		c.state.AmountIn, c.state.AmountOut = amount, 0
	} else {
		c.state.AmountOut, c.state.AmountIn = amount, 0
	}
	if amount == 0 {
		c.state.Phase = PhaseIdle
	}
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// flush fires when the debounce window closes.
func (c *Controller) flush() {
	c.mu.Lock()
	c.timer = nil
	c.mu.Unlock()
	c.requote()
}

// SelectToken changes the token of one side. It is ignored while a quote
// is in flight. Picking the token already on the other side swaps the sides.
func (c *Controller) SelectToken(side Side, tok token.Token) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.state.Phase == PhaseQuoting {
		c.mu.Unlock()
		return false, nil
	}

	in, out := c.state.TokenIn, c.state.TokenOut
	switch {
	case side == SideIn && tok.Address == out.Address:
		in, out = out, in
	case side == SideOut && tok.Address == in.Address:
		in, out = out, in
	case side == SideIn:
		in = tok
	default:
		out = tok
	}
	c.state.TokenIn, c.state.TokenOut = in, out
	c.stopTimerLocked()

	// Re-quote from the field the user last typed into, keeping its amount.
	edited := c.editedAmountLocked()
	c.setAmountLocked(c.state.Edited, edited)
	snap := c.state
	c.mu.Unlock()

	c.notify(snap)
	if edited > 0 {
		c.requote()
	}
	return true, nil
}

func (c *Controller) editedAmountLocked() float64 {
	if c.state.Edited == SideOut {
		return c.state.AmountOut
	}
	return c.state.AmountIn
}

// SwitchDirection swaps the two sides, tokens and amounts alike, and
// re-quotes from the new input amount.
func (c *Controller) SwitchDirection() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stopTimerLocked()
	s := &c.state
	s.TokenIn, s.TokenOut = s.TokenOut, s.TokenIn
	s.AmountIn, s.AmountOut = s.AmountOut, s.AmountIn
	s.Edited = SideIn
	s.Reverse = false
	s.PriceImpact = 0
	s.Error = ""
	if s.AmountIn == 0 {
		s.Phase = PhaseIdle
	}
	requote := s.AmountIn > 0
	snap := c.state
	c.mu.Unlock()

	c.notify(snap)
	if requote {
		c.requote()
	}
	return nil
}

// UseFullBalance fills the input field with the wallet balance. For the
// native asset the estimated network fee plus 10% is held back; if the
// balance does not cover it the amount is 0 and a warning is set.
func (c *Controller) UseFullBalance(ctx context.Context) (float64, error) {
	if c.balances == nil {
		return 0, errors.New("no balance reader configured")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	tok := c.state.TokenIn
	settings := c.gas
	c.mu.Unlock()

	balance, err := c.balances.GetBalance(ctx, c.owner, tok)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}

	warning := ""
	units := balance
	if tok.IsNative() {
		reserve, err := c.gasReserve(ctx, settings)
		if err != nil {
			return 0, err
		}
		if balance.Cmp(reserve) <= 0 {
			units = new(big.Int)
			warning = WarnInsufficientGas
		} else {
			units = new(big.Int).Sub(balance, reserve)
		}
	}
	amount := token.Floor(token.FromUnits(units, tok.Decimals), FullBalanceDecimals)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	c.stopTimerLocked()
	c.setAmountLocked(SideIn, amount)
	c.state.Warning = warning
	snap := c.state
	c.mu.Unlock()

	c.notify(snap)
	if amount > 0 {
		c.requote()
	}
	return amount, nil
}

// gasReserve returns the network fee estimate plus a 10% buffer, in wei.
func (c *Controller) gasReserve(ctx context.Context, s gas.Settings) (*big.Int, error) {
	var fees *pricefeed.GasFees
	if s.NeedsSuggestion() && c.fees != nil {
		var err error
		if fees, err = c.fees.GetSuggestedGasFees(ctx); err != nil {
			return nil, fmt.Errorf("failed to fetch gas suggestion: %w", err)
		}
	}
	fee, err := gas.EstimateNetworkFee(gas.Resolve(s, fees))
	if err != nil {
		return nil, err
	}
	reserve := new(big.Int).Mul(fee, big.NewInt(11))
	return reserve.Quo(reserve, big.NewInt(10)), nil
}

// requote issues a quote for the current edited field. Only the response
// to the latest request is applied.
func (c *Controller) requote() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	s := c.state
	amount := c.editedAmountLocked()
	if amount <= 0 {
		c.mu.Unlock()
		return
	}
	c.state.Generation++
	gen := c.state.Generation
	c.state.Phase = PhaseQuoting
	snap := c.state
	c.mu.Unlock()
	c.notify(snap)

	var (
		q      *quote.Quote
		err    error
		impact float64
		needs  bool
	)
	if s.Reverse {
		q, err = c.quotes.GetQuote(c.ctx, s.TokenOut, s.TokenIn, amount)
		if err == nil {
			q = q.Reversed()
		}
	} else {
		q, err = c.quotes.GetQuote(c.ctx, s.TokenIn, s.TokenOut, amount)
	}
	if err == nil {
		amountIn := amount
		if q.Reverse {
			amountIn = q.AmountIn
		}
		impact = c.quotes.GetPriceImpact(c.ctx, s.TokenIn, s.TokenOut, amountIn)
		needs = c.approvals.CheckApproval(c.ctx, amountIn, s.TokenIn, c.router).NeedsApproval
	}

	c.mu.Lock()
	if c.closed || gen != c.state.Generation {
		c.mu.Unlock()
		c.logger.Debug("discarding stale quote", slog.Uint64("generation", gen))
		return
	}
	if err != nil {
		c.state.Phase = PhaseError
		c.state.Error = err.Error()
	} else {
		if q.Reverse {
			c.state.AmountIn = q.AmountIn
		} else {
			c.state.AmountOut = q.AmountOut
		}
		c.state.Phase = PhaseReady
		c.state.PriceImpact = impact
		c.state.NeedsApproval = needs
	}
	snap = c.state
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("quote failed",
			slog.String("in", s.TokenIn.String()),
			slog.String("out", s.TokenOut.String()),
			slog.Bool("reverse", s.Reverse),
			slog.String("error", err.Error()))
	}
	c.notify(snap)
}

// SubmitKind says what Submit did.
type SubmitKind string

const (
	SubmitApprove SubmitKind = "approve"
	SubmitSwap    SubmitKind = "swap"
)

// SubmitResult is the outcome of Submit.
type SubmitResult struct {
	Kind SubmitKind  `json:"kind"`
	Hash common.Hash `json:"hash"`
}

// Submit approves the input token if needed, otherwise swaps and registers
// the swap with the tracker. Only one submission runs at a time; a call made
// while another is in flight returns ErrBusy.
func (c *Controller) Submit(ctx context.Context) (SubmitResult, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return SubmitResult{}, ErrClosed
	}
	if c.submitting {
		c.mu.Unlock()
		return SubmitResult{}, ErrBusy
	}
	if c.state.Phase != PhaseReady {
		c.mu.Unlock()
		return SubmitResult{}, ErrNotReady
	}
	c.submitting = true
	c.stopTimerLocked()
	c.state.Phase = PhaseSubmitting
	c.state.Error = ""
	s := c.state
	settings := c.gas
	c.mu.Unlock()
	c.notify(s)

	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	st := c.approvals.CheckApproval(ctx, s.AmountIn, s.TokenIn, c.router)
	if st.NeedsApproval {
		return c.approve(ctx, s, settings)
	}
	return c.swap(ctx, s, settings)
}

// AwaitAllowance re-reads the input token allowance every interval until it
// covers the current amount. No transaction is sent. It returns
// ErrApprovalPending when timeout passes first.
func (c *Controller) AwaitAllowance(ctx context.Context, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		s := c.state
		c.mu.Unlock()

		st := c.approvals.CheckApproval(ctx, s.AmountIn, s.TokenIn, c.router)
		c.mu.Lock()
		c.state.NeedsApproval = st.NeedsApproval
		snap := c.state
		c.mu.Unlock()
		if !st.NeedsApproval {
			c.notify(snap)
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrApprovalPending
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Controller) approve(ctx context.Context, s Snapshot, settings gas.Settings) (SubmitResult, error) {
	c.setPhase(PhaseApproving, "")
	hash, err := c.approvals.RequestApproval(ctx, s.AmountIn, s.TokenIn, c.router, c.resolveGas(ctx, settings))
	if err != nil {
		c.setPhase(PhaseReady, err.Error())
		return SubmitResult{}, err
	}
	res := SubmitResult{Kind: SubmitApprove, Hash: hash}

	if c.confirmations != nil {
		status, err := c.confirmations.AwaitConfirmation(ctx, hash)
		if err != nil {
			c.setPhase(PhaseReady, err.Error())
			return res, err
		}
		if status != storage.TxSuccess {
			err := fmt.Errorf("%w: approval %s", approval.ErrApprovalFailed, status)
			c.setPhase(PhaseReady, err.Error())
			return res, err
		}
	}

	st := c.approvals.CheckApproval(ctx, s.AmountIn, s.TokenIn, c.router)
	c.mu.Lock()
	c.state.NeedsApproval = st.NeedsApproval
	c.state.LastHash = hash.Hex()
	c.mu.Unlock()
	if st.NeedsApproval {
		c.setPhase(PhaseReady, "")
		return res, ErrApprovalPending
	}
	c.setPhase(PhaseReady, "")
	return res, nil
}

func (c *Controller) swap(ctx context.Context, s Snapshot, settings gas.Settings) (SubmitResult, error) {
	c.setPhase(PhaseSwapping, "")
	hash, ok := c.swaps.ExecuteSwap(ctx, swap.Request{
		AmountIn:  s.AmountIn,
		AmountOut: s.AmountOut,
		TokenIn:   s.TokenIn,
		TokenOut:  s.TokenOut,
		Gas:       settings,
	})
	if !ok {
		c.setPhase(PhaseReady, swap.ErrSwapFailed.Error())
		return SubmitResult{}, swap.ErrSwapFailed
	}

	if c.tracker != nil {
		err := c.tracker.Track(ctx, storage.TxRecord{
			Hash:      hash.Hex(),
			Owner:     token.LowerHex(c.owner),
			ChainID:   c.chainID,
			Kind:      storage.KindSwap,
			TokenIn:   s.TokenIn.String(),
			TokenOut:  s.TokenOut.String(),
			AmountIn:  s.AmountIn,
			AmountOut: s.AmountOut,
			CreatedAt: time.Now(),
		})
		if err != nil {
			c.logger.Error("failed to track swap", slog.String("hash", hash.Hex()), slog.String("error", err.Error()))
		}
	}

	c.mu.Lock()
	c.state.Phase = PhaseIdle
	c.state.AmountIn, c.state.AmountOut = 0, 0
	c.state.PriceImpact = 0
	c.state.NeedsApproval = false
	c.state.LastHash = hash.Hex()
	snap := c.state
	c.mu.Unlock()
	c.notify(snap)

	return SubmitResult{Kind: SubmitSwap, Hash: hash}, nil
}

// resolveGas resolves settings for an approval. Swaps resolve their own.
func (c *Controller) resolveGas(ctx context.Context, s gas.Settings) gas.Params {
	if !s.NeedsSuggestion() || c.fees == nil {
		return gas.Resolve(s, nil)
	}
	fees, err := c.fees.GetSuggestedGasFees(ctx)
	if err != nil {
		return gas.Resolve(s, nil)
	}
	return gas.Resolve(s, fees)
}

func (c *Controller) setPhase(p Phase, errMsg string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state.Phase = p
	c.state.Error = errMsg
	snap := c.state
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Controller) notify(s Snapshot) {
	if c.onChange != nil {
		c.onChange(s)
	}
}

// Close tears the session down. Pending debounced edits are dropped and
// late responses no longer change state.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.cancel()
}
