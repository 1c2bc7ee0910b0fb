// Package mocks holds hand-written test doubles for the swap core interfaces.
package mocks

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/chain"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/uniswapv3"
)

// ReaderMock is a chain.Reader backed by in-memory maps.
type ReaderMock struct {
	mu sync.Mutex

	Factory      common.Address
	Allowances   map[common.Address]*big.Int // by token address
	Balances     map[common.Address]*big.Int // by token address
	Pools        map[common.Address]*uniswapv3.PoolState
	AllowanceErr error
	BalanceErr   error
	PoolErr      error

	CallFunc func(to common.Address, data []byte) ([]byte, error)

	AllowanceCalls int
}

var _ chain.Reader = (*ReaderMock)(nil)

// AddPool registers a deployed pool for the pair and fee and returns its address.
func (m *ReaderMock) AddPool(tokenA, tokenB common.Address, fee uint32, state uniswapv3.PoolState) common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := uniswapv3.ComputePoolAddress(m.Factory, tokenA, tokenB, fee)
	if m.Pools == nil {
		m.Pools = make(map[common.Address]*uniswapv3.PoolState)
	}
	state.Address = addr
	state.Fee = fee
	state.Token0, state.Token1 = uniswapv3.SortTokens(tokenA, tokenB)
	m.Pools[addr] = &state
	return addr
}

// SetAllowance updates the allowance returned for tok.
func (m *ReaderMock) SetAllowance(tok common.Address, v *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Allowances == nil {
		m.Allowances = make(map[common.Address]*big.Int)
	}
	m.Allowances[tok] = v
}

// SetBalance updates the balance returned for tok.
func (m *ReaderMock) SetBalance(tok common.Address, v *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Balances == nil {
		m.Balances = make(map[common.Address]*big.Int)
	}
	m.Balances[tok] = v
}

// GetAllowance implements chain.Reader.
func (m *ReaderMock) GetAllowance(ctx context.Context, owner, spender common.Address, tok token.Token) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AllowanceCalls++
	if tok.IsNative() {
		return new(big.Int), nil
	}
	if m.AllowanceErr != nil {
		return nil, &chain.ChainReadError{Op: "allowance", Err: m.AllowanceErr}
	}
	if v, ok := m.Allowances[tok.Address]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// GetBalance implements chain.Reader.
func (m *ReaderMock) GetBalance(ctx context.Context, owner common.Address, tok token.Token) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return nil, &chain.ChainReadError{Op: "balance", Err: m.BalanceErr}
	}
	if v, ok := m.Balances[tok.Address]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// GetPoolAddress implements chain.Reader.
func (m *ReaderMock) GetPoolAddress(tokenA, tokenB common.Address, fee uint32) common.Address {
	return uniswapv3.ComputePoolAddress(m.Factory, tokenA, tokenB, fee)
}

// PoolExists implements chain.Reader.
func (m *ReaderMock) PoolExists(ctx context.Context, pool common.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PoolErr != nil {
		return false, &chain.ChainReadError{Op: "getCode", Err: m.PoolErr}
	}
	_, ok := m.Pools[pool]
	return ok, nil
}

// GetPoolState implements chain.Reader.
func (m *ReaderMock) GetPoolState(ctx context.Context, pool common.Address) (*uniswapv3.PoolState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PoolErr != nil {
		return nil, &chain.ChainReadError{Op: "poolState", Err: m.PoolErr}
	}
	state, ok := m.Pools[pool]
	if !ok {
		return nil, &chain.ChainReadError{Op: "poolState", Err: chain.ErrPoolNotFound}
	}
	cp := *state
	return &cp, nil
}

// Call implements chain.Reader.
func (m *ReaderMock) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if m.CallFunc != nil {
		return m.CallFunc(to, data)
	}
	panic("unimplemented")
}
