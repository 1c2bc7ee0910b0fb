package mocks

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/wallet"
)

// WalletMock records submitted transactions and hands out sequential hashes.
type WalletMock struct {
	mu sync.Mutex

	Addr  common.Address
	Chain int64

	// SupportedChains limits SwitchChain; empty means any chain is accepted.
	SupportedChains []int64
	// SendFunc, when set, decides the outcome of each submission.
	SendFunc func(req wallet.TxRequest) (common.Hash, error)
	SendErr  error

	Sent     []wallet.TxRequest
	Switches []int64
}

var _ wallet.Wallet = (*WalletMock)(nil)

// Address implements wallet.Wallet.
func (m *WalletMock) Address() common.Address {
	return m.Addr
}

// ChainID implements wallet.Wallet.
func (m *WalletMock) ChainID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Chain, nil
}

// SwitchChain implements wallet.Wallet.
func (m *WalletMock) SwitchChain(ctx context.Context, chainID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Switches = append(m.Switches, chainID)
	if len(m.SupportedChains) > 0 {
		found := false
		for _, id := range m.SupportedChains {
			found = found || id == chainID
		}
		if !found {
			return errors.New("unsupported chain")
		}
	}
	m.Chain = chainID
	return nil
}

// SendTransaction implements wallet.Wallet.
func (m *WalletMock) SendTransaction(ctx context.Context, req wallet.TxRequest) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendFunc != nil {
		hash, err := m.SendFunc(req)
		if err == nil {
			m.Sent = append(m.Sent, req)
		}
		return hash, err
	}
	if m.SendErr != nil {
		return common.Hash{}, m.SendErr
	}
	m.Sent = append(m.Sent, req)
	return HashN(len(m.Sent)), nil
}

// Transactions returns a copy of the submitted requests.
func (m *WalletMock) Transactions() []wallet.TxRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]wallet.TxRequest(nil), m.Sent...)
}

// HashN returns the deterministic hash WalletMock assigns to its n-th transaction.
func HashN(n int) common.Hash {
	var h common.Hash
	binary.BigEndian.PutUint64(h[24:], uint64(n))
	return h
}
