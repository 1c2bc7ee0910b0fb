package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/swapcore/internal/rpc"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// mockClient records raw transactions.
type mockClient struct {
	pendingNonce uint64
	nonceCalls   int
	estimate     uint64
	estimateErr  error
	sendErr      error
	sent         []*types.Transaction
}

var _ rpc.Client = (*mockClient)(nil)

func (m *mockClient) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	return nil, nil
}

func (m *mockClient) BatchCall(ctx context.Context, calls []rpc.BatchRequest) ([]rpc.BatchResponse, error) {
	return nil, nil
}

func (m *mockClient) EthCall(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return nil, nil
}

func (m *mockClient) SendRawTransaction(ctx context.Context, txRLP []byte) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(txRLP); err != nil {
		return err
	}
	m.sent = append(m.sent, tx)
	return nil
}

func (m *mockClient) GetChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (m *mockClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	m.nonceCalls++
	return m.pendingNonce, nil
}

func (m *mockClient) GetCode(ctx context.Context, address string) (string, error) {
	return "0x", nil
}

func (m *mockClient) GetBaseFee(ctx context.Context) (*big.Int, error) {
	return big.NewInt(10_000_000_000), nil
}

func (m *mockClient) GetMaxPriorityFee(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (m *mockClient) EstimateGas(ctx context.Context, msg rpc.CallMsg) (uint64, error) {
	return m.estimate, m.estimateErr
}

func (m *mockClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	return new(big.Int), nil
}

func (m *mockClient) GetTransactionReceipt(ctx context.Context, txHash string) (*rpc.TransactionReceipt, error) {
	return nil, nil
}

func newTestWallet(t *testing.T, clients map[int64]rpc.Client, chainID int64) *LocalWallet {
	t.Helper()
	w, err := NewLocalWallet(LocalConfig{PrivateKey: "0x" + testKey, Clients: clients, ChainID: chainID})
	if err != nil {
		t.Fatalf("NewLocalWallet() error = %v", err)
	}
	return w
}

func TestNewLocalWallet(t *testing.T) {
	w := newTestWallet(t, map[int64]rpc.Client{1: &mockClient{}}, 1)
	if w.Address() != testAddress {
		t.Errorf("Address() = %s, want %s", w.Address().Hex(), testAddress.Hex())
	}

	if _, err := NewLocalWallet(LocalConfig{PrivateKey: "zz", Clients: map[int64]rpc.Client{1: &mockClient{}}, ChainID: 1}); err == nil {
		t.Error("expected error for invalid key")
	}
	if _, err := NewLocalWallet(LocalConfig{PrivateKey: testKey, ChainID: 5}); err == nil {
		t.Error("expected error for missing client")
	}
}

func TestSendTransaction_FillsDefaults(t *testing.T) {
	client := &mockClient{pendingNonce: 7, estimate: 100_000}
	w := newTestWallet(t, map[int64]rpc.Client{1: client}, 1)
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")

	hash, err := w.SendTransaction(context.Background(), TxRequest{To: to, Data: []byte{1, 2, 3}, Value: big.NewInt(5)})
	if err != nil {
		t.Fatalf("SendTransaction() error = %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(client.sent))
	}
	tx := client.sent[0]
	if tx.Hash() != hash {
		t.Errorf("hash = %s, want %s", hash.Hex(), tx.Hash().Hex())
	}
	if tx.Nonce() != 7 {
		t.Errorf("nonce = %d, want 7", tx.Nonce())
	}
	if tx.Gas() != 120_000 {
		t.Errorf("gas = %d, want 120000 (estimate + 20%%)", tx.Gas())
	}
	if tx.GasTipCap().Int64() != 1_000_000_000 || tx.GasFeeCap().Int64() != 21_000_000_000 {
		t.Errorf("fees = %s/%s", tx.GasTipCap(), tx.GasFeeCap())
	}
	if tx.Value().Int64() != 5 || *tx.To() != to {
		t.Errorf("value/to = %s/%s", tx.Value(), tx.To().Hex())
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), tx)
	if err != nil || from != testAddress {
		t.Errorf("sender = %s, %v", from.Hex(), err)
	}
}

func TestSendTransaction_UsesOverrides(t *testing.T) {
	client := &mockClient{estimateErr: errors.New("should not estimate")}
	w := newTestWallet(t, map[int64]rpc.Client{1: client}, 1)

	_, err := w.SendTransaction(context.Background(), TxRequest{
		To:                   testAddress,
		GasLimit:             50_000,
		MaxFeePerGas:         big.NewInt(30e9),
		MaxPriorityFeePerGas: big.NewInt(2e9),
	})
	if err != nil {
		t.Fatalf("SendTransaction() error = %v", err)
	}
	tx := client.sent[0]
	if tx.Gas() != 50_000 || tx.GasFeeCap().Int64() != 30e9 || tx.GasTipCap().Int64() != 2e9 {
		t.Errorf("tx gas = %d fees = %s/%s", tx.Gas(), tx.GasFeeCap(), tx.GasTipCap())
	}
}

func TestSendTransaction_SequentialNonces(t *testing.T) {
	client := &mockClient{pendingNonce: 3, estimate: 21000}
	w := newTestWallet(t, map[int64]rpc.Client{1: client}, 1)

	for i := 0; i < 3; i++ {
		if _, err := w.SendTransaction(context.Background(), TxRequest{To: testAddress}); err != nil {
			t.Fatalf("SendTransaction() error = %v", err)
		}
	}
	for i, tx := range client.sent {
		if tx.Nonce() != uint64(3+i) {
			t.Errorf("tx %d nonce = %d, want %d", i, tx.Nonce(), 3+i)
		}
	}
	if client.nonceCalls != 1 {
		t.Errorf("GetNonce calls = %d, want 1", client.nonceCalls)
	}
}

func TestSendTransaction_RejectedRollsBackNonce(t *testing.T) {
	client := &mockClient{pendingNonce: 1, estimate: 21000, sendErr: errors.New("user denied")}
	w := newTestWallet(t, map[int64]rpc.Client{1: client}, 1)

	_, err := w.SendTransaction(context.Background(), TxRequest{To: testAddress})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("SendTransaction() error = %v, want ErrRejected", err)
	}

	client.sendErr = nil
	if _, err := w.SendTransaction(context.Background(), TxRequest{To: testAddress}); err != nil {
		t.Fatalf("SendTransaction() error = %v", err)
	}
	if got := client.sent[0].Nonce(); got != 1 {
		t.Errorf("nonce after rollback = %d, want 1", got)
	}
	if client.nonceCalls != 2 {
		t.Errorf("expected resync after failed send, GetNonce calls = %d", client.nonceCalls)
	}
}

func TestSendTransaction_EstimateFailure(t *testing.T) {
	client := &mockClient{estimateErr: errors.New("execution reverted")}
	w := newTestWallet(t, map[int64]rpc.Client{1: client}, 1)

	if _, err := w.SendTransaction(context.Background(), TxRequest{To: testAddress}); !errors.Is(err, ErrRejected) {
		t.Errorf("SendTransaction() error = %v, want ErrRejected", err)
	}
}

func TestEnsureChain(t *testing.T) {
	mainnet, base := &mockClient{estimate: 21000}, &mockClient{estimate: 21000}
	w := newTestWallet(t, map[int64]rpc.Client{1: mainnet, 8453: base}, 1)
	ctx := context.Background()

	if err := EnsureChain(ctx, w, 8453); err != nil {
		t.Fatalf("EnsureChain(8453) error = %v", err)
	}
	if id, _ := w.ChainID(ctx); id != 8453 {
		t.Errorf("ChainID() = %d, want 8453", id)
	}
	if _, err := w.SendTransaction(ctx, TxRequest{To: testAddress}); err != nil {
		t.Fatal(err)
	}
	if len(base.sent) != 1 || len(mainnet.sent) != 0 {
		t.Errorf("sent on wrong endpoint: base=%d mainnet=%d", len(base.sent), len(mainnet.sent))
	}
	if got := base.sent[0].ChainId().Int64(); got != 8453 {
		t.Errorf("tx chain id = %d, want 8453", got)
	}

	if err := EnsureChain(ctx, w, 10); !errors.Is(err, ErrWrongChain) {
		t.Errorf("EnsureChain(10) error = %v, want ErrWrongChain", err)
	}
	if id, _ := w.ChainID(ctx); id != 8453 {
		t.Errorf("failed switch changed chain to %d", id)
	}
	if err := EnsureChain(ctx, w, 0); err != nil {
		t.Errorf("EnsureChain(0) error = %v", err)
	}
}
