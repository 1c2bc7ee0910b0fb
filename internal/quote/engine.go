// Package quote prices trades against Uniswap V3 pools.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/gateway-fm/swapcore/internal/chain"
	"github.com/gateway-fm/swapcore/internal/metrics"
	"github.com/gateway-fm/swapcore/internal/pricefeed"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/uniswapv3"
)

// ErrQuoteUnavailable is returned when no pool exists for the pair or the quoter reverts.
var ErrQuoteUnavailable = errors.New("quote unavailable")

const (
	// DisplayDecimals is the precision quoted amounts are truncated to.
	DisplayDecimals = 3

	// MinPriceImpact is the floor reported for any nonzero trade, in percent.
	MinPriceImpact = 0.01

	minTVL      = 100_000.0
	maxTVL      = 1_000_000_000.0
	fallbackTVL = 10_000_000.0
)

// Quote is the result of pricing a trade. It is never persisted.
type Quote struct {
	TokenIn        token.Token    `json:"tokenIn"`
	TokenOut       token.Token    `json:"tokenOut"`
	AmountIn       float64        `json:"amountIn"`
	AmountOut      float64        `json:"amountOut"`
	AmountInUnits  *big.Int       `json:"amountInUnits"`
	AmountOutUnits *big.Int       `json:"amountOutUnits"`
	Fee            uint32         `json:"fee"`
	Pool           common.Address `json:"pool"`
	// Reverse is set when the user edited the output field and AmountIn was solved for.
	Reverse bool `json:"reverse"`
}

// Reversed turns a quote of tokenOut→tokenIn, priced from the amount the user
// wants to receive, into the user's tokenIn→tokenOut trade. AmountIn then
// holds the solved input and Reverse is set.
func (q *Quote) Reversed() *Quote {
	return &Quote{
		TokenIn:        q.TokenOut,
		TokenOut:       q.TokenIn,
		AmountIn:       q.AmountOut,
		AmountOut:      q.AmountIn,
		AmountInUnits:  q.AmountOutUnits,
		AmountOutUnits: q.AmountInUnits,
		Fee:            q.Fee,
		Pool:           q.Pool,
		Reverse:        true,
	}
}

// Config holds configuration for the quote engine.
type Config struct {
	Reader   chain.Reader
	Quoter   common.Address
	WETH     common.Address
	Prices   pricefeed.Feed // optional; without it price impact uses the TVL fallback
	Currency string
	// FeeTiers are probed in order when resolving a pair's pool.
	FeeTiers     []uint32
	FeeCacheSize int
	Metrics      *metrics.PrometheusMetrics
	Logger       *slog.Logger
}

// Engine quotes trades. It holds no state besides a cache of resolved pools.
type Engine struct {
	reader   chain.Reader
	quoter   common.Address
	weth     common.Address
	prices   pricefeed.Feed
	currency string
	feeTiers []uint32
	pools    *lru.Cache[string, poolRef]
	metrics  *metrics.PrometheusMetrics
	logger   *slog.Logger
}

type poolRef struct {
	fee     uint32
	address common.Address
}

// NewEngine creates a new quote engine.
func NewEngine(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FeeCacheSize <= 0 {
		cfg.FeeCacheSize = 256
	}
	if len(cfg.FeeTiers) == 0 {
		cfg.FeeTiers = uniswapv3.FeeTiers
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	for _, fee := range cfg.FeeTiers {
		if _, err := uniswapv3.TickSpacing(fee); err != nil {
			return nil, err
		}
	}

	pools, err := lru.New[string, poolRef](cfg.FeeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool cache: %w", err)
	}

	return &Engine{
		reader:   cfg.Reader,
		quoter:   cfg.Quoter,
		weth:     cfg.WETH,
		prices:   cfg.Prices,
		currency: cfg.Currency,
		feeTiers: cfg.FeeTiers,
		pools:    pools,
		metrics:  cfg.Metrics,
		logger:   logger,
	}, nil
}

// WETH returns the wrapped native token address used for routing.
func (e *Engine) WETH() common.Address {
	return e.weth
}

// ResolvePool finds the canonical pool for a pair, probing fee tiers in
// order. Results are cached; pools are immutable once deployed.
func (e *Engine) ResolvePool(ctx context.Context, tokenA, tokenB token.Token) (uint32, common.Address, error) {
	a, b := tokenA.RoutingAddress(e.weth), tokenB.RoutingAddress(e.weth)
	if a == b {
		return 0, common.Address{}, fmt.Errorf("%w: %w", ErrQuoteUnavailable, token.ErrSameToken)
	}
	t0, t1 := uniswapv3.SortTokens(a, b)
	key := token.LowerHex(t0) + token.LowerHex(t1)
	if ref, ok := e.pools.Get(key); ok {
		return ref.fee, ref.address, nil
	}

	for _, fee := range e.feeTiers {
		addr := e.reader.GetPoolAddress(t0, t1, fee)
		exists, err := e.reader.PoolExists(ctx, addr)
		if err != nil {
			return 0, common.Address{}, err
		}
		if exists {
			e.pools.Add(key, poolRef{fee: fee, address: addr})
			return fee, addr, nil
		}
	}
	return 0, common.Address{}, fmt.Errorf("%w: %w for %s/%s", ErrQuoteUnavailable, chain.ErrPoolNotFound, tokenA, tokenB)
}

// GetQuote returns the output for an exact input, truncated to DisplayDecimals.
func (e *Engine) GetQuote(ctx context.Context, tokenIn, tokenOut token.Token, amountIn float64) (q *Quote, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		switch {
		case errors.Is(err, ErrQuoteUnavailable):
			status = "unavailable"
		case err != nil:
			status = "error"
		}
		e.metrics.RecordQuote(status, time.Since(start))
	}()

	fee, pool, err := e.ResolvePool(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	q = &Quote{
		TokenIn:       tokenIn,
		TokenOut:      tokenOut,
		AmountIn:      amountIn,
		AmountInUnits: token.ToUnits(amountIn, tokenIn.Decimals),
		Fee:           fee,
		Pool:          pool,
	}
	if q.AmountInUnits.Sign() == 0 {
		q.AmountOutUnits = new(big.Int)
		return q, nil
	}

	data := uniswapv3.EncodeQuoteExactInputSingle(
		tokenIn.RoutingAddress(e.weth),
		tokenOut.RoutingAddress(e.weth),
		fee,
		q.AmountInUnits,
	)
	out, err := e.reader.Call(ctx, e.quoter, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
	}
	amountOut, err := uniswapv3.DecodeUint256(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
	}

	q.AmountOutUnits = amountOut
	q.AmountOut = token.FromUnitsTruncated(amountOut, tokenOut.Decimals, DisplayDecimals)

	e.logger.Debug("quote",
		slog.String("in", tokenIn.String()),
		slog.String("out", tokenOut.String()),
		slog.Uint64("fee", uint64(fee)),
		slog.String("amountIn", q.AmountInUnits.String()),
		slog.String("amountOut", amountOut.String()),
	)
	return q, nil
}

// GetSpotPrice returns the pool mid price as tokenB per tokenA, rounded to
// tokenB's decimals. Any failure yields 0.
func (e *Engine) GetSpotPrice(ctx context.Context, tokenA, tokenB token.Token) float64 {
	_, pool, err := e.ResolvePool(ctx, tokenA, tokenB)
	if err != nil {
		e.logger.Debug("spot price: no pool", slog.String("error", err.Error()))
		return 0
	}
	state, err := e.reader.GetPoolState(ctx, pool)
	if err != nil {
		e.logger.Debug("spot price: pool state", slog.String("error", err.Error()))
		return 0
	}
	return SpotPrice(state.SqrtPriceX96, tokenA, tokenB, e.weth)
}

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// SpotPrice converts sqrtPriceX96 into a human price of tokenB in tokenA.
// (sqrtPriceX96 / 2^96)^2 is token1 per token0 in smallest units.
func SpotPrice(sqrtPriceX96 *big.Int, tokenA, tokenB token.Token, weth common.Address) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return 0
	}
	p, err := token.NewPair(tokenA, tokenB, weth)
	if err != nil {
		return 0
	}

	raw := new(big.Rat).SetFrac(new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96), q192)
	// human token1/token0 = raw * 10^(dec0 - dec1)
	raw.Mul(raw, new(big.Rat).SetFrac(token.Pow10(int(p.Token0.Decimals)), token.Pow10(int(p.Token1.Decimals))))
	if p.Swapped {
		raw.Inv(raw)
	}

	f, _ := new(big.Rat).SetFrac(roundRat(raw, int(tokenB.Decimals)), token.Pow10(int(tokenB.Decimals))).Float64()
	return f
}

// roundRat returns r*10^places rounded half up to an integer.
func roundRat(r *big.Rat, places int) *big.Int {
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(token.Pow10(places)))
	scaled.Add(scaled, big.NewRat(1, 2))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

// GetPriceImpact estimates the percentage impact of trading amountIn of tokenA
// into tokenB as amountIn / (TVL * 0.5) * 100, floored at MinPriceImpact.
// It never fails: missing pool or price data falls back to a fixed TVL.
func (e *Engine) GetPriceImpact(ctx context.Context, tokenA, tokenB token.Token, amountIn float64) float64 {
	if !(amountIn > 0) {
		return 0
	}

	var (
		liquidity *big.Int
		values    map[string]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, pool, err := e.ResolvePool(gctx, tokenA, tokenB)
		if err != nil {
			return err
		}
		state, err := e.reader.GetPoolState(gctx, pool)
		if err != nil {
			return err
		}
		liquidity = state.Liquidity
		return nil
	})
	if e.prices != nil {
		g.Go(func() error {
			ids := priceIDs(tokenA, tokenB)
			if len(ids) == 0 {
				return nil
			}
			v, err := e.prices.GetTokenValues(gctx, ids, e.currency)
			if err != nil {
				// Advisory: unknown prices push the TVL into the fallback.
				e.logger.Debug("price impact: token values", slog.String("error", err.Error()))
				return nil
			}
			values = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Debug("price impact: pool read failed, using fallback TVL", slog.String("error", err.Error()))
	}

	priceA := usdPrice(tokenA, values)
	priceB := usdPrice(tokenB, values)
	tvl := EstimateTVL(liquidity, priceA, priceB, tokenA.Decimals, tokenB.Decimals)

	tradeValue := amountIn
	if priceA > 0 {
		tradeValue = amountIn * priceA
	}
	// A trade value that underflows to 0 is still a nonzero trade.
	impact := max(PriceImpact(tradeValue, tvl), MinPriceImpact)
	e.metrics.RecordPriceImpact(impact)
	return impact
}

func priceIDs(tokens ...token.Token) []string {
	var ids []string
	for _, t := range tokens {
		if !t.Stable && t.PriceID != "" {
			ids = append(ids, t.PriceID)
		}
	}
	return ids
}

func usdPrice(t token.Token, values map[string]float64) float64 {
	if t.Stable {
		return 1
	}
	return values[t.PriceID]
}

// EstimateTVL approximates pool value in USD from its liquidity and the
// geometric mean of the two token prices, clamped to a sane range.
func EstimateTVL(liquidity *big.Int, priceA, priceB float64, decA, decB uint8) float64 {
	if liquidity == nil || liquidity.Sign() == 0 || !(priceA > 0) || !(priceB > 0) {
		return fallbackTVL
	}
	l, _ := new(big.Float).SetInt(liquidity).Float64()
	scale := math.Pow(10, float64(int(decA)+int(decB))/2)
	tvl := 2 * math.Sqrt(priceA*priceB) * l / scale
	if math.IsNaN(tvl) || tvl < minTVL || tvl > maxTVL {
		return fallbackTVL
	}
	return tvl
}

// PriceImpact applies the linear impact heuristic with its floor.
func PriceImpact(amount, tvl float64) float64 {
	if !(amount > 0) {
		return 0
	}
	if !(tvl > 0) {
		tvl = fallbackTVL
	}
	impact := amount / (tvl * 0.5) * 100
	return math.Max(impact, MinPriceImpact)
}
