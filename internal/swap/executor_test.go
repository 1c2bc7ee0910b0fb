package swap

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/gas"
	"github.com/gateway-fm/swapcore/internal/mocks"
	"github.com/gateway-fm/swapcore/internal/pricefeed"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/uniswapv3"
	"github.com/gateway-fm/swapcore/internal/wallet"
)

var (
	user   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	router = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc   = token.Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6, Symbol: "USDC"}
	vult   = token.Token{Address: common.HexToAddress("0xb788144DF611029C60b859DF47e79B7726C4DEBa"), Decimals: 18, Symbol: "VULT"}
	eth    = token.Token{Address: token.NativeAddress, Decimals: 18, Symbol: "ETH"}

	fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

type staticResolver struct {
	fee uint32
	err error
}

func (r staticResolver) ResolvePool(ctx context.Context, tokenA, tokenB token.Token) (uint32, common.Address, error) {
	return r.fee, common.Address{}, r.err
}

func newTestExecutor(w *mocks.WalletMock, pools PoolResolver, fees pricefeed.Feed) *Executor {
	return NewExecutor(Config{
		Pools:   pools,
		Wallet:  w,
		Router:  router,
		WETH:    weth,
		ChainID: 1,
		Fees:    fees,
		Now:     func() time.Time { return fixedNow },
	})
}

func deadline() *big.Int {
	return big.NewInt(fixedNow.Add(Deadline).Unix())
}

func TestMinimumOut(t *testing.T) {
	tests := []struct {
		amountOut float64
		slippage  float64
		want      string
	}{
		{950.123, 0.5, "945372385000000000000"},
		{950.123, 0.1, "949172877000000000000"},
		{950.123, 90, "95012300000000000000"},
		{1, 0.5, "995000000000000000"},
		{0, 0.5, "0"},
	}
	for _, tt := range tests {
		if got := MinimumOut(tt.amountOut, vult, tt.slippage); got.String() != tt.want {
			t.Errorf("MinimumOut(%v, %v) = %s, want %s", tt.amountOut, tt.slippage, got, tt.want)
		}
	}
}

func TestMinimumOut_SlippageBound(t *testing.T) {
	units := token.ToUnits(950.123, usdc.Decimals)
	for s := gas.MinSlippage; s <= gas.MaxSlippage; s += 0.7 {
		got := MinimumOut(950.123, usdc, s)

		// floor(units * (1 - s/100)) with s taken as its decimal literal
		exact := new(big.Rat).Mul(new(big.Rat).SetInt(units), new(big.Rat).Sub(big.NewRat(1, 1), new(big.Rat).Quo(token.Rat(s), big.NewRat(100, 1))))
		want := new(big.Int).Quo(exact.Num(), exact.Denom())
		if got.Cmp(want) != 0 {
			t.Fatalf("slippage %v: MinimumOut = %s, want %s", s, got, want)
		}
	}
}

func TestExecuteSwap_TokenToToken(t *testing.T) {
	w := &mocks.WalletMock{Addr: user, Chain: 1}
	e := newTestExecutor(w, staticResolver{fee: 3000}, nil)

	hash, ok := e.ExecuteSwap(context.Background(), Request{
		AmountIn:  1000,
		AmountOut: 950.123,
		TokenIn:   usdc,
		TokenOut:  vult,
		Gas:       gas.DefaultSettings(),
	})
	if !ok {
		t.Fatal("ExecuteSwap() ok = false")
	}
	if hash != mocks.HashN(1) {
		t.Errorf("hash = %s", hash.Hex())
	}

	tx := w.Transactions()[0]
	want := uniswapv3.EncodeExactInputSingle(uniswapv3.ExactInputSingleParams{
		TokenIn:          usdc.Address,
		TokenOut:         vult.Address,
		Fee:              3000,
		Recipient:        user,
		Deadline:         deadline(),
		AmountIn:         big.NewInt(1_000_000_000),
		AmountOutMinimum: MinimumOut(950.123, vult, 0.5),
	})
	if tx.To != router {
		t.Errorf("To = %s, want router", tx.To.Hex())
	}
	if !bytes.Equal(tx.Data, want) {
		t.Errorf("Data = %x\nwant  %x", tx.Data, want)
	}
	if tx.Value != nil {
		t.Errorf("Value = %s, want unset", tx.Value)
	}
	if tx.GasLimit != 0 || tx.MaxFeePerGas != nil || tx.MaxPriorityFeePerGas != nil {
		t.Errorf("gas overrides set: %d %v %v", tx.GasLimit, tx.MaxFeePerGas, tx.MaxPriorityFeePerGas)
	}
}

func TestExecuteSwap_NativeIn(t *testing.T) {
	w := &mocks.WalletMock{Addr: user, Chain: 1}
	e := newTestExecutor(w, staticResolver{fee: 500}, nil)

	if _, ok := e.ExecuteSwap(context.Background(), Request{
		AmountIn:  0.5,
		AmountOut: 1200,
		TokenIn:   eth,
		TokenOut:  usdc,
		Gas:       gas.DefaultSettings(),
	}); !ok {
		t.Fatal("ExecuteSwap() ok = false")
	}

	tx := w.Transactions()[0]
	if tx.Value == nil || tx.Value.String() != "500000000000000000" {
		t.Errorf("Value = %v, want 0.5 ETH", tx.Value)
	}
	if !bytes.Equal(tx.Data[:4], uniswapv3.SelectorExactInputSingle) {
		t.Errorf("selector = %x, want exactInputSingle", tx.Data[:4])
	}
	if got := common.BytesToAddress(tx.Data[4+12 : 4+32]); got != weth {
		t.Errorf("tokenIn = %s, want WETH", got.Hex())
	}
}

func TestExecuteSwap_NativeOutUnwraps(t *testing.T) {
	w := &mocks.WalletMock{Addr: user, Chain: 1}
	e := newTestExecutor(w, staticResolver{fee: 500}, nil)

	if _, ok := e.ExecuteSwap(context.Background(), Request{
		AmountIn:  1200,
		AmountOut: 0.5,
		TokenIn:   usdc,
		TokenOut:  eth,
		Gas:       gas.DefaultSettings(),
	}); !ok {
		t.Fatal("ExecuteSwap() ok = false")
	}

	tx := w.Transactions()[0]
	if tx.Value != nil {
		t.Errorf("Value = %s, want unset", tx.Value)
	}
	calls, err := uniswapv3.DecodeMulticall(tx.Data)
	if err != nil {
		t.Fatalf("DecodeMulticall() error = %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("multicall has %d calls, want 2", len(calls))
	}

	minOut := MinimumOut(0.5, eth, 0.5)
	wantSwap := uniswapv3.EncodeExactInputSingle(uniswapv3.ExactInputSingleParams{
		TokenIn:          usdc.Address,
		TokenOut:         weth,
		Fee:              500,
		Recipient:        router,
		Deadline:         deadline(),
		AmountIn:         big.NewInt(1_200_000_000),
		AmountOutMinimum: minOut,
	})
	if !bytes.Equal(calls[0], wantSwap) {
		t.Errorf("swap call = %x\nwant        %x", calls[0], wantSwap)
	}
	if want := uniswapv3.EncodeUnwrapWETH9(minOut, user); !bytes.Equal(calls[1], want) {
		t.Errorf("unwrap call = %x, want %x", calls[1], want)
	}
}

func TestExecuteSwap_GasOverrides(t *testing.T) {
	fees := &mocks.FeedMock{GasFees: &pricefeed.GasFees{
		Low:    pricefeed.GasTier{MaxFeePerGas: 10, MaxPriorityFeePerGas: 1},
		Medium: pricefeed.GasTier{MaxFeePerGas: 20, MaxPriorityFeePerGas: 1.5},
		High:   pricefeed.GasTier{MaxFeePerGas: 30, MaxPriorityFeePerGas: 2},
	}}

	tests := []struct {
		name     string
		settings gas.Settings
		fees     pricefeed.Feed
		limit    uint64
		maxFee   *big.Int
		tip      *big.Int
	}{
		{
			name:     "advanced is authoritative",
			settings: gas.Settings{Mode: gas.ModeAdvanced, Speed: gas.SpeedFast, Slippage: 1, GasLimit: 300_000, MaxFee: 42, MaxPriorityFee: 3},
			fees:     fees,
			limit:    300_000,
			maxFee:   big.NewInt(42e9),
			tip:      big.NewInt(3e9),
		},
		{
			name:     "basic takes the live tier",
			settings: gas.Settings{Mode: gas.ModeBasic, Speed: gas.SpeedFast, Slippage: 1},
			fees:     fees,
			maxFee:   big.NewInt(30e9),
			tip:      big.NewInt(2e9),
		},
		{
			name:     "basic without suggestion leaves defaults",
			settings: gas.Settings{Mode: gas.ModeBasic, Speed: gas.SpeedStandard, Slippage: 1},
			fees:     &mocks.FeedMock{GasErr: errors.New("throttled")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &mocks.WalletMock{Addr: user, Chain: 1}
			e := newTestExecutor(w, staticResolver{fee: 3000}, tt.fees)
			if _, ok := e.ExecuteSwap(context.Background(), Request{AmountIn: 1, AmountOut: 1, TokenIn: usdc, TokenOut: vult, Gas: tt.settings}); !ok {
				t.Fatal("ExecuteSwap() ok = false")
			}
			tx := w.Transactions()[0]
			if tx.GasLimit != tt.limit {
				t.Errorf("GasLimit = %d, want %d", tx.GasLimit, tt.limit)
			}
			if !equalOrNil(tx.MaxFeePerGas, tt.maxFee) {
				t.Errorf("MaxFeePerGas = %v, want %v", tx.MaxFeePerGas, tt.maxFee)
			}
			if !equalOrNil(tx.MaxPriorityFeePerGas, tt.tip) {
				t.Errorf("MaxPriorityFeePerGas = %v, want %v", tx.MaxPriorityFeePerGas, tt.tip)
			}
		})
	}
}

func equalOrNil(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func TestSwap_Failures(t *testing.T) {
	tests := []struct {
		name   string
		wallet *mocks.WalletMock
		pools  PoolResolver
		req    Request
	}{
		{
			name:   "no pool",
			wallet: &mocks.WalletMock{Addr: user, Chain: 1},
			pools:  staticResolver{err: errors.New("pool not found")},
			req:    Request{AmountIn: 1, AmountOut: 1, TokenIn: usdc, TokenOut: vult, Gas: gas.DefaultSettings()},
		},
		{
			name:   "rejected by wallet",
			wallet: &mocks.WalletMock{Addr: user, Chain: 1, SendErr: wallet.ErrRejected},
			pools:  staticResolver{fee: 3000},
			req:    Request{AmountIn: 1, AmountOut: 1, TokenIn: usdc, TokenOut: vult, Gas: gas.DefaultSettings()},
		},
		{
			name:   "wrong chain",
			wallet: &mocks.WalletMock{Addr: user, Chain: 10, SupportedChains: []int64{10}},
			pools:  staticResolver{fee: 3000},
			req:    Request{AmountIn: 1, AmountOut: 1, TokenIn: usdc, TokenOut: vult, Gas: gas.DefaultSettings()},
		},
		{
			name:   "slippage out of range",
			wallet: &mocks.WalletMock{Addr: user, Chain: 1},
			pools:  staticResolver{fee: 3000},
			req:    Request{AmountIn: 1, AmountOut: 1, TokenIn: usdc, TokenOut: vult, Gas: gas.Settings{Mode: gas.ModeBasic, Speed: gas.SpeedFast, Slippage: 95}},
		},
		{
			name:   "zero amount",
			wallet: &mocks.WalletMock{Addr: user, Chain: 1},
			pools:  staticResolver{fee: 3000},
			req:    Request{AmountIn: 0, AmountOut: 1, TokenIn: usdc, TokenOut: vult, Gas: gas.DefaultSettings()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(tt.wallet, tt.pools, nil)

			_, err := e.Swap(context.Background(), tt.req)
			if !errors.Is(err, ErrSwapFailed) {
				t.Errorf("Swap() error = %v, want ErrSwapFailed", err)
			}
			if hash, ok := e.ExecuteSwap(context.Background(), tt.req); ok || hash != (common.Hash{}) {
				t.Errorf("ExecuteSwap() = %s, %v, want no hash", hash.Hex(), ok)
			}
			if n := len(tt.wallet.Transactions()); n != 0 {
				t.Errorf("sent %d transactions, want 0", n)
			}
		})
	}
}
