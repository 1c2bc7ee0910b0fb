package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/swapcore/internal/rpc"
)

// LocalConfig holds configuration for a private-key wallet.
type LocalConfig struct {
	PrivateKey string               // hex, with or without 0x
	Clients    map[int64]rpc.Client // one RPC endpoint per reachable chain
	ChainID    int64                // initially selected chain
	// GasBufferPct is added on top of eth_estimateGas results.
	GasBufferPct uint64
	Logger       *slog.Logger
}

// LocalWallet signs EIP-1559 transactions with a local key.
type LocalWallet struct {
	key       *ecdsa.PrivateKey
	address   common.Address
	gasBuffer uint64
	logger    *slog.Logger

	mu      sync.Mutex
	chainID int64
	clients map[int64]rpc.Client
	nonces  map[int64]*nonceTracker
}

var _ Wallet = (*LocalWallet)(nil)

// NewLocalWallet creates a wallet from a hex private key.
func NewLocalWallet(cfg LocalConfig) (*LocalWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if _, ok := cfg.Clients[cfg.ChainID]; !ok {
		return nil, fmt.Errorf("no RPC client for initial chain %d", cfg.ChainID)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GasBufferPct == 0 {
		cfg.GasBufferPct = 20
	}

	nonces := make(map[int64]*nonceTracker, len(cfg.Clients))
	for id := range cfg.Clients {
		nonces[id] = &nonceTracker{}
	}

	return &LocalWallet{
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		gasBuffer: cfg.GasBufferPct,
		logger:    logger,
		chainID:   cfg.ChainID,
		clients:   cfg.Clients,
		nonces:    nonces,
	}, nil
}

// Address returns the signer address.
func (w *LocalWallet) Address() common.Address {
	return w.address
}

// ChainID returns the selected chain.
func (w *LocalWallet) ChainID(ctx context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

// SwitchChain selects another configured chain.
func (w *LocalWallet) SwitchChain(ctx context.Context, chainID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.clients[chainID]; !ok {
		return fmt.Errorf("no RPC endpoint configured for chain %d", chainID)
	}
	if w.chainID != chainID {
		w.logger.Info("switched chain", slog.Int64("from", w.chainID), slog.Int64("to", chainID))
	}
	w.chainID = chainID
	return nil
}

func (w *LocalWallet) current() (int64, rpc.Client, *nonceTracker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, w.clients[w.chainID], w.nonces[w.chainID]
}

// SendTransaction fills unset gas fields, signs and broadcasts req.
func (w *LocalWallet) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	chainID, client, nonces := w.current()

	if !nonces.isSynced() {
		pending, err := client.GetNonce(ctx, w.address.Hex())
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
		}
		nonces.observe(pending)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		est, err := client.EstimateGas(ctx, rpc.CallMsg{From: w.address, To: req.To, Data: req.Data, Value: value})
		if err != nil {
			return common.Hash{}, fmt.Errorf("%w: gas estimation failed: %w", ErrRejected, err)
		}
		gasLimit = est * (100 + w.gasBuffer) / 100
	}

	tip := req.MaxPriorityFeePerGas
	if tip == nil || tip.Sign() == 0 {
		suggested, err := client.GetMaxPriorityFee(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to fetch priority fee: %w", err)
		}
		tip = suggested
	}

	feeCap := req.MaxFeePerGas
	if feeCap == nil || feeCap.Sign() == 0 {
		baseFee, err := client.GetBaseFee(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to fetch base fee: %w", err)
		}
		// 2x base fee survives several full blocks of increases.
		feeCap = new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)
	}
	if tip.Cmp(feeCap) > 0 {
		tip = feeCap
	}

	n := nonces.reserve()
	defer n.Rollback()

	tx := newDynamicFeeTx(big.NewInt(chainID), n.Value(), req.To, value, gasLimit, tip, feeCap, req.Data)
	signer := types.LatestSignerForChainID(big.NewInt(chainID))
	signed, err := types.SignTx(tx, signer, w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to sign: %w", ErrRejected, err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	if err := client.SendRawTransaction(ctx, raw); err != nil {
		nonces.invalidate()
		return common.Hash{}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	n.Commit()

	w.logger.Debug("transaction sent",
		slog.String("hash", signed.Hash().Hex()),
		slog.String("to", req.To.Hex()),
		slog.Uint64("nonce", n.Value()),
		slog.Uint64("gas", gasLimit),
	)
	return signed.Hash(), nil
}

// newDynamicFeeTx builds an EIP-1559 transaction.
func newDynamicFeeTx(chainID *big.Int, nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasTipCap, gasFeeCap *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
}
