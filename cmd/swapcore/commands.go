package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gateway-fm/swapcore/internal/gas"
	"github.com/gateway-fm/swapcore/internal/liquidity"
	"github.com/gateway-fm/swapcore/internal/pricefeed"
	"github.com/gateway-fm/swapcore/internal/staking"
	"github.com/gateway-fm/swapcore/internal/storage"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/tradeform"
)

var errNoSigner = errors.New("PRIVATE_KEY is required for this command")

// runCommand executes a one-shot subcommand against the configured chain.
func (a *app) runCommand(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "swapcore",
		Short: "Uniswap V3 quoting and trade execution",
		Long: `Without a subcommand swapcore serves the HTTP API. Subcommands run once
and exit.

Examples:
  swapcore quote --in 0xA0b8...eB48:6 --amount 100
  swapcore swap --in "" --out 0xA0b8...eB48:6 --amount 0.5
  swapcore mint --a 0xA0b8...eB48:6 --b "" --amount-a 100 --amount-b 0.03
  swapcore stake --action claim`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(a.quoteCommand(), a.swapCommand(), a.mintCommand(), a.stakeCommand())
	return root
}

func (a *app) requireSigner(*cobra.Command, []string) error {
	if a.wallet == nil {
		return errNoSigner
	}
	return nil
}

// parseToken reads "address[:decimals]". An empty address is the native
// asset; decimals default to 18.
func parseToken(s string, chainID int64) (token.Token, error) {
	addr, dec, _ := strings.Cut(s, ":")
	a, err := token.ParseAddress(addr)
	if err != nil {
		return token.Token{}, err
	}
	decimals := uint64(18)
	if dec != "" {
		if decimals, err = strconv.ParseUint(dec, 10, 8); err != nil {
			return token.Token{}, fmt.Errorf("invalid decimals %q: %w", dec, err)
		}
	}
	return token.Token{ChainID: chainID, Address: a, Decimals: uint8(decimals)}, nil
}

func (a *app) parsePair(inFlag, in, outFlag, out string) (token.Token, token.Token, error) {
	tokenIn, err := parseToken(in, a.cfg.ChainID)
	if err != nil {
		return token.Token{}, token.Token{}, fmt.Errorf("--%s: %w", inFlag, err)
	}
	tokenOut, err := parseToken(out, a.cfg.ChainID)
	if err != nil {
		return token.Token{}, token.Token{}, fmt.Errorf("--%s: %w", outFlag, err)
	}
	return tokenIn, tokenOut, nil
}

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	return s
}

func (a *app) quoteCommand() *cobra.Command {
	var (
		in, out string
		amount  float64
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap without sending anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tokenIn, tokenOut, err := a.parsePair("in", in, "out", out)
			if err != nil {
				return err
			}

			s := newSpinner("Quoting...")
			s.Start()
			q, err := a.quotes.GetQuote(ctx, tokenIn, tokenOut, amount)
			if err != nil {
				s.Stop()
				return err
			}
			impact := a.quotes.GetPriceImpact(ctx, tokenIn, tokenOut, amount)
			s.Stop()

			fmt.Printf("%v -> %s\n", amount, color.GreenString("%v", q.AmountOut))
			fmt.Printf("  fee tier     %.2f%%\n", float64(q.Fee)/10000)
			fmt.Printf("  pool         %s\n", color.CyanString(q.Pool.Hex()))
			fmt.Printf("  price impact %.2f%%\n", impact)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Input token as address[:decimals]; empty for native")
	cmd.Flags().StringVar(&out, "out", "", "Output token as address[:decimals]; empty for native")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Input amount in human units")
	return cmd
}

func (a *app) swapCommand() *cobra.Command {
	var (
		in, out string
		amount  float64
		reverse bool
		full    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:     "swap",
		Short:   "Quote, approve if needed, swap and wait for the receipt",
		PreRunE: a.requireSigner,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokenIn, tokenOut, err := a.parsePair("in", in, "out", out)
			if err != nil {
				return err
			}
			return a.swap(cmd.Context(), tokenIn, tokenOut, amount, reverse, full, timeout)
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Input token as address[:decimals]; empty for native")
	cmd.Flags().StringVar(&out, "out", "", "Output token as address[:decimals]; empty for native")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Amount in human units")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "Treat --amount as the desired output")
	cmd.Flags().BoolVar(&full, "max", false, "Sell the full balance, keeping a gas reserve for native input")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "How long to wait for the swap to resolve")
	return cmd
}

func (a *app) swap(ctx context.Context, tokenIn, tokenOut token.Token, amount float64, reverse, full bool, timeout time.Duration) error {
	form, err := tradeform.New(tradeform.Config{
		Owner:         a.wallet.Address(),
		ChainID:       a.cfg.ChainID,
		Router:        a.cfg.Router,
		Quotes:        a.quotes,
		Approvals:     a.approvals,
		Swaps:         a.swaps,
		Balances:      a.reader,
		Tracker:       a.tracker,
		Confirmations: a.tracker,
		Fees:          a.feed,
		Gas:           a.gasSettings(ctx),
		TokenIn:       tokenIn,
		TokenOut:      tokenOut,
		Debounce:      time.Millisecond,
		OnChange: func(s tradeform.Snapshot) {
			a.logger.Debug("form changed",
				"phase", string(s.Phase),
				"amountIn", s.AmountIn,
				"amountOut", s.AmountOut,
				"generation", s.Generation)
		},
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	defer form.Close()

	switch {
	case full:
		got, err := form.UseFullBalance(ctx)
		if err != nil {
			return err
		}
		if got == 0 {
			return fmt.Errorf("nothing to sell: %s", form.Snapshot().Warning)
		}
	case reverse:
		err = form.EditAmount(tradeform.SideOut, amount)
	default:
		err = form.EditAmount(tradeform.SideIn, amount)
	}
	if err != nil {
		return err
	}

	s := newSpinner("Quoting...")
	s.Start()
	snap, err := waitQuoted(ctx, form)
	s.Stop()
	if err != nil {
		return err
	}
	fmt.Printf("%v -> %s (impact %.2f%%)\n", snap.AmountIn, color.GreenString("%v", snap.AmountOut), snap.PriceImpact)

	events, unsubscribe := a.tracker.Subscribe(16)
	defer unsubscribe()

	var res tradeform.SubmitResult
	for {
		if snap.NeedsApproval {
			s = newSpinner("Approving...")
			s.Start()
		}
		res, err = form.Submit(ctx)
		s.Stop()
		if errors.Is(err, tradeform.ErrApprovalPending) {
			a.logger.Info("approval mined but allowance not yet visible", "hash", res.Hash.Hex())
			s = newSpinner("Waiting for allowance...")
			s.Start()
			err = form.AwaitAllowance(ctx, allowancePollInterval, allowanceTimeout)
			s.Stop()
			if err != nil {
				return fmt.Errorf("approval %s: %w", res.Hash.Hex(), err)
			}
			snap = form.Snapshot()
			continue
		}
		if err != nil {
			return err
		}
		if res.Kind == tradeform.SubmitSwap {
			break
		}
		snap = form.Snapshot()
		fmt.Printf("approved: %s\n", color.CyanString(res.Hash.Hex()))
	}
	fmt.Printf("swap sent: %s\n", color.CyanString(res.Hash.Hex()))

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s = newSpinner("Waiting for receipt...")
	s.Start()
	defer s.Stop()
	for {
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("swap %s still pending: %w", res.Hash.Hex(), waitCtx.Err())
		case ev, ok := <-events:
			if !ok {
				return errors.New("tracker closed")
			}
			if ev.Hash != res.Hash {
				continue
			}
			s.Stop()
			a.logger.Info("swap resolved",
				"hash", ev.Hash.Hex(),
				"status", ev.Status.String(),
				"block", ev.BlockNumber,
				"elapsed", ev.Elapsed)
			return printStatus("swap", ev.Status, ev.BlockNumber)
		}
	}
}

func printStatus(what string, status storage.TxStatus, block uint64) error {
	where := ""
	if block > 0 {
		where = fmt.Sprintf(" in block %d", block)
	}
	if status != storage.TxSuccess {
		color.Red("%s %s%s", what, status, where)
		return fmt.Errorf("%s %s", what, status)
	}
	color.Green("%s confirmed%s", what, where)
	return nil
}

// waitQuoted polls the form until the pending quote settles.
func waitQuoted(ctx context.Context, form *tradeform.Controller) (tradeform.Snapshot, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		s := form.Snapshot()
		switch {
		case s.Phase == tradeform.PhaseReady:
			return s, nil
		case s.Phase == tradeform.PhaseError:
			return s, errors.New(s.Error)
		case s.Phase == tradeform.PhaseIdle && s.Generation > 0:
			return s, errors.New("quote cleared")
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Allowance re-checks after an approval whose effect is not yet visible.
const (
	allowancePollInterval = 2 * time.Second
	allowanceTimeout      = time.Minute
)

// gasParams resolves the configured settings against a live suggestion.
func (a *app) gasParams(ctx context.Context) gas.Params {
	s := a.gasSettings(ctx)
	var fees *pricefeed.GasFees
	if s.NeedsSuggestion() {
		var err error
		if fees, err = a.feed.GetSuggestedGasFees(ctx); err != nil {
			a.logger.Warn("no gas suggestion, letting the wallet pick fees", "error", err)
		}
	}
	return gas.Resolve(s, fees)
}

func (a *app) mintCommand() *cobra.Command {
	var (
		tokA, tokB         string
		amountA, amountB   float64
		fee                uint32
		minPrice, maxPrice float64
		exact              bool
	)
	cmd := &cobra.Command{
		Use:     "mint",
		Short:   "Open a Uniswap V3 liquidity position",
		PreRunE: a.requireSigner,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tokenA, tokenB, err := a.parsePair("a", tokA, "b", tokB)
			if err != nil {
				return err
			}

			s := newSpinner(string(liquidity.StatePreparing))
			s.Start()
			defer s.Stop()
			res := a.minter.Mint(ctx, liquidity.MintRequest{
				AmountA: amountA,
				AmountB: amountB,
				TokenA:  tokenA,
				TokenB:  tokenB,
				Options: liquidity.Options{
					MinPrice: minPrice,
					MaxPrice: maxPrice,
					FeeTier:  fee,
					Slippage: a.gasSettings(ctx).Slippage,
				},
				ApproveExact: exact,
				Gas:          a.gasParams(ctx),
				OnState: func(st liquidity.State) {
					s.Lock()
					s.Suffix = " " + string(st)
					s.Unlock()
					a.logger.Info("mint state", "state", string(st))
				},
			})
			s.Stop()
			if res.Err != nil {
				color.Red("mint %s: %v", res.State, res.Err)
				return res.Err
			}
			color.Green("position minted: %s", res.Hash.Hex())
			fmt.Printf("  ticks [%d, %d], %d approvals\n", res.Prepared.Ticks.Lower, res.Prepared.Ticks.Upper, len(res.Approvals))
			return nil
		},
	}
	cmd.Flags().StringVar(&tokA, "a", "", "First token as address[:decimals]; empty for native")
	cmd.Flags().StringVar(&tokB, "b", "", "Second token as address[:decimals]; empty for native")
	cmd.Flags().Float64Var(&amountA, "amount-a", 0, "Amount of the first token")
	cmd.Flags().Float64Var(&amountB, "amount-b", 0, "Amount of the second token")
	cmd.Flags().Uint32Var(&fee, "fee", 3000, "Fee tier (100, 500, 3000, 10000)")
	cmd.Flags().Float64Var(&minPrice, "min-price", 0, "Lower price bound, b per a; leave both bounds 0 for full range")
	cmd.Flags().Float64Var(&maxPrice, "max-price", 0, "Upper price bound, b per a")
	cmd.Flags().BoolVar(&exact, "approve-exact", false, "Approve exact amounts instead of unlimited")
	return cmd
}

func (a *app) stakeCommand() *cobra.Command {
	var (
		action   string
		amount   float64
		decimals uint8
	)
	cmd := &cobra.Command{
		Use:     "stake",
		Short:   "Read or change a staking position",
		PreRunE: a.requireSigner,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Staking == (common.Address{}) {
				return errors.New("STAKING_ADDRESS is not configured")
			}
			stakeToken := token.Token{ChainID: a.cfg.ChainID, Address: a.cfg.StakeToken, Decimals: decimals}
			return a.stake(cmd.Context(), action, amount, stakeToken)
		},
	}
	cmd.Flags().StringVar(&action, "action", "position", "position, eligibility, approve, deposit, withdraw, claim or reinvest")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Amount of the stake token")
	cmd.Flags().Uint8Var(&decimals, "decimals", 18, "Stake token decimals")
	return cmd
}

func (a *app) stake(ctx context.Context, action string, amount float64, stakeToken token.Token) error {
	client := staking.New(staking.Config{
		Reader:     a.reader,
		Wallet:     a.wallet,
		Approvals:  a.approvals,
		Staking:    a.cfg.Staking,
		LaunchList: a.cfg.LaunchList,
		StakeToken: stakeToken,
		ChainID:    a.cfg.ChainID,
		Logger:     a.logger,
	})
	owner := a.wallet.Address()

	var (
		hash common.Hash
		err  error
	)
	switch action {
	case "position":
		pos, err := client.GetPosition(ctx, owner)
		if err != nil {
			return err
		}
		fmt.Printf("staked %v, earned %s\n", pos.Staked, color.GreenString("%v", pos.Earned))
		return nil
	case "eligibility":
		el, err := client.GetEligibility(ctx, owner)
		if err != nil {
			return err
		}
		fmt.Printf("on launch list: %t, USDC spent: %v\n", el.OnLaunchList, el.UsdcSpent)
		if el.CanClaim {
			color.Green("eligible to claim")
		} else {
			color.Yellow("not eligible to claim")
		}
		return nil
	case "approve":
		hash, err = a.approvals.RequestApproval(ctx, amount, stakeToken, a.cfg.Staking, a.gasParams(ctx))
	case "deposit":
		hash, err = client.Deposit(ctx, amount, a.gasParams(ctx))
	case "withdraw":
		hash, err = client.Withdraw(ctx, amount, a.gasParams(ctx))
	case "claim":
		hash, err = client.Claim(ctx, a.gasParams(ctx))
	case "reinvest":
		hash, err = client.Reinvest(ctx, a.gasParams(ctx))
	default:
		return fmt.Errorf("unknown stake action %q", action)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s sent: %s\n", action, color.CyanString(hash.Hex()))

	kind := storage.KindStake
	if action == "approve" {
		kind = storage.KindApprove
	}
	if err := a.store.AddTransaction(ctx, &storage.TxRecord{
		Hash:      hash.Hex(),
		Owner:     token.LowerHex(owner),
		ChainID:   a.cfg.ChainID,
		Kind:      kind,
		TokenIn:   stakeToken.String(),
		AmountIn:  amount,
		CreatedAt: time.Now(),
	}); err != nil {
		a.logger.Warn("failed to record transaction", "hash", hash.Hex(), "error", err)
	}

	s := newSpinner("Waiting for receipt...")
	s.Start()
	status, err := a.tracker.AwaitConfirmation(ctx, hash)
	s.Stop()
	if err != nil {
		return err
	}
	return printStatus(action, status, 0)
}
