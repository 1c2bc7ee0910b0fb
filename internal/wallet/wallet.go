// Package wallet defines the signer capability the write paths depend on
// and a local private-key implementation.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrWrongChain is returned when the wallet is not, and could not be switched to, the required chain.
	ErrWrongChain = errors.New("wallet on wrong chain")
	// ErrRejected is returned when signing or submission is refused.
	ErrRejected = errors.New("transaction rejected")
)

// TxRequest describes a transaction to submit. Zero gas fields mean the
// wallet picks its own values.
type TxRequest struct {
	To                   common.Address
	Data                 []byte
	Value                *big.Int
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Wallet is a connected signer.
type Wallet interface {
	Address() common.Address
	ChainID(ctx context.Context) (int64, error)
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	SwitchChain(ctx context.Context, chainID int64) error
}

// EnsureChain switches w to want if needed. Failure to switch aborts with ErrWrongChain.
func EnsureChain(ctx context.Context, w Wallet, want int64) error {
	if want == 0 {
		return nil
	}
	got, err := w.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrongChain, err)
	}
	if got == want {
		return nil
	}
	if err := w.SwitchChain(ctx, want); err != nil {
		return fmt.Errorf("%w: on %d, want %d: %w", ErrWrongChain, got, want, err)
	}
	got, err = w.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrongChain, err)
	}
	if got != want {
		return fmt.Errorf("%w: on %d after switch, want %d", ErrWrongChain, got, want)
	}
	return nil
}
