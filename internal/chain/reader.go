// Package chain provides read-only access to token and pool state.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/gateway-fm/swapcore/internal/rpc"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/uniswapv3"
)

// ErrPoolNotFound is returned when no pool is deployed for a pair and fee.
var ErrPoolNotFound = errors.New("pool not found")

// ChainReadError wraps a failed RPC or contract read.
type ChainReadError struct {
	Op  string
	Err error
}

func (e *ChainReadError) Error() string {
	return fmt.Sprintf("chain read %s: %v", e.Op, e.Err)
}

func (e *ChainReadError) Unwrap() error {
	return e.Err
}

func readErr(op string, err error) error {
	return &ChainReadError{Op: op, Err: err}
}

// Reader is the read surface the quoting and approval paths depend on.
type Reader interface {
	// GetAllowance returns the ERC-20 allowance of owner for spender. Always 0 for the native asset.
	GetAllowance(ctx context.Context, owner, spender common.Address, tok token.Token) (*big.Int, error)

	// GetBalance returns the owner's balance in the token's smallest unit.
	GetBalance(ctx context.Context, owner common.Address, tok token.Token) (*big.Int, error)

	// GetPoolAddress derives the pool address for a pair and fee without touching the network.
	GetPoolAddress(tokenA, tokenB common.Address, fee uint32) common.Address

	// PoolExists reports whether code is deployed at the pool address.
	PoolExists(ctx context.Context, pool common.Address) (bool, error)

	// GetPoolState reads slot0, liquidity and the pool immutables.
	GetPoolState(ctx context.Context, pool common.Address) (*uniswapv3.PoolState, error)

	// Call runs an arbitrary read-only contract call.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Config holds configuration for the RPC-backed reader.
type Config struct {
	Client  rpc.Client
	Factory common.Address
	Logger  *slog.Logger
}

// RPCReader implements Reader over a JSON-RPC client.
type RPCReader struct {
	client  rpc.Client
	factory common.Address
	logger  *slog.Logger
}

var _ Reader = (*RPCReader)(nil)

// NewReader creates a new RPC-backed reader.
func NewReader(cfg Config) *RPCReader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCReader{
		client:  cfg.Client,
		factory: cfg.Factory,
		logger:  logger,
	}
}

// GetAllowance returns the current allowance.
func (r *RPCReader) GetAllowance(ctx context.Context, owner, spender common.Address, tok token.Token) (*big.Int, error) {
	if tok.IsNative() {
		return new(big.Int), nil
	}
	out, err := r.client.EthCall(ctx, tok.Address, uniswapv3.EncodeAllowance(owner, spender))
	if err != nil {
		return nil, readErr("allowance", err)
	}
	v, err := uniswapv3.DecodeUint256(out)
	if err != nil {
		return nil, readErr("allowance", err)
	}
	return v, nil
}

// GetBalance returns the native balance or the ERC-20 balanceOf.
func (r *RPCReader) GetBalance(ctx context.Context, owner common.Address, tok token.Token) (*big.Int, error) {
	if tok.IsNative() {
		bal, err := r.client.GetBalance(ctx, owner.Hex())
		if err != nil {
			return nil, readErr("balance", err)
		}
		return bal, nil
	}
	out, err := r.client.EthCall(ctx, tok.Address, uniswapv3.EncodeBalanceOf(owner))
	if err != nil {
		return nil, readErr("balanceOf", err)
	}
	v, err := uniswapv3.DecodeUint256(out)
	if err != nil {
		return nil, readErr("balanceOf", err)
	}
	return v, nil
}

// GetPoolAddress computes the CREATE2 pool address from the configured factory.
func (r *RPCReader) GetPoolAddress(tokenA, tokenB common.Address, fee uint32) common.Address {
	return uniswapv3.ComputePoolAddress(r.factory, tokenA, tokenB, fee)
}

// PoolExists checks for deployed code at the pool address.
func (r *RPCReader) PoolExists(ctx context.Context, pool common.Address) (bool, error) {
	code, err := r.client.GetCode(ctx, pool.Hex())
	if err != nil {
		return false, readErr("getCode", err)
	}
	return code != "" && code != "0x", nil
}

// GetPoolState reads the pool in a single batched request.
func (r *RPCReader) GetPoolState(ctx context.Context, pool common.Address) (*uniswapv3.PoolState, error) {
	selectors := [][]byte{
		uniswapv3.SelectorSlot0,
		uniswapv3.SelectorLiquidity,
		uniswapv3.SelectorFee,
		uniswapv3.SelectorToken0,
		uniswapv3.SelectorToken1,
	}
	calls := make([]rpc.BatchRequest, len(selectors))
	for i, sel := range selectors {
		calls[i] = rpc.BatchRequest{
			Method: "eth_call",
			Params: []interface{}{
				map[string]interface{}{"to": pool.Hex(), "data": hexutil.Encode(sel)},
				"latest",
			},
		}
	}

	responses, err := r.client.BatchCall(ctx, calls)
	if err != nil {
		return nil, readErr("poolState", err)
	}
	if len(responses) != len(calls) {
		return nil, readErr("poolState", fmt.Errorf("expected %d responses, got %d", len(calls), len(responses)))
	}

	results := make([][]byte, len(responses))
	for i, resp := range responses {
		if resp.Error != nil {
			return nil, readErr("poolState", resp.Error)
		}
		data, err := decodeHexResult(resp.Result)
		if err != nil {
			return nil, readErr("poolState", err)
		}
		if len(data) == 0 {
			return nil, readErr("poolState", fmt.Errorf("%w: %s", ErrPoolNotFound, pool.Hex()))
		}
		results[i] = data
	}

	state := &uniswapv3.PoolState{Address: pool}
	if state.SqrtPriceX96, state.Tick, err = uniswapv3.DecodeSlot0(results[0]); err != nil {
		return nil, readErr("slot0", err)
	}
	if state.Liquidity, err = uniswapv3.DecodeUint256(results[1]); err != nil {
		return nil, readErr("liquidity", err)
	}
	fee, err := uniswapv3.DecodeUint256(results[2])
	if err != nil {
		return nil, readErr("fee", err)
	}
	state.Fee = uint32(fee.Uint64())
	if state.Token0, err = uniswapv3.DecodeAddress(results[3]); err != nil {
		return nil, readErr("token0", err)
	}
	if state.Token1, err = uniswapv3.DecodeAddress(results[4]); err != nil {
		return nil, readErr("token1", err)
	}

	r.logger.Debug("pool state",
		slog.String("pool", pool.Hex()),
		slog.Int("tick", int(state.Tick)),
		slog.String("liquidity", state.Liquidity.String()),
	)
	return state, nil
}

// Call runs an eth_call and wraps failures.
func (r *RPCReader) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := r.client.EthCall(ctx, to, data)
	if err != nil {
		return nil, readErr("call", err)
	}
	return out, nil
}

func decodeHexResult(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call result: %w", err)
	}
	if s == "" || s == "0x" {
		return nil, nil
	}
	return hexutil.Decode(s)
}
