package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

const (
	alice = "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"
	bob   = "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestTxStatus(t *testing.T) {
	tests := []struct {
		status   TxStatus
		text     string
		resolved bool
	}{
		{TxPending, "pending", false},
		{TxSuccess, "success", true},
		{TxFailed, "failed", true},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.text {
			t.Errorf("String() = %q, want %q", got, tt.text)
		}
		if got := tt.status.Resolved(); got != tt.resolved {
			t.Errorf("%s.Resolved() = %v, want %v", tt.text, got, tt.resolved)
		}
		parsed, err := ParseTxStatus(tt.text)
		if err != nil || parsed != tt.status {
			t.Errorf("ParseTxStatus(%q) = %v, %v", tt.text, parsed, err)
		}
	}
	if _, err := ParseTxStatus("confirmed"); err == nil {
		t.Error("ParseTxStatus(confirmed) should fail")
	}
}

func TestTxStatus_JSON(t *testing.T) {
	data, err := json.Marshal(TxRecord{Hash: "0x1", Status: TxFailed})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got TxRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Status != TxFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if err := json.Unmarshal([]byte(`{"status":"weird"}`), &got); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestNewSQLiteStorage_InvalidPath(t *testing.T) {
	_, err := NewSQLiteStorage("/nonexistent/directory/that/should/not/exist/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestAddAndGetTransaction(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	rec := &TxRecord{
		Hash:      "0xABCDEF",
		Owner:     alice,
		ChainID:   1,
		Kind:      KindSwap,
		Status:    TxPending,
		TokenIn:   "USDC",
		TokenOut:  "VULT",
		AmountIn:  1000,
		AmountOut: 950.123,
		CreatedAt: time.Now(),
	}
	if err := storage.AddTransaction(ctx, rec); err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}

	got, err := storage.GetTransaction(ctx, "0xabcdef")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.Status != TxPending || got.Kind != KindSwap {
		t.Errorf("Status/Kind = %s/%s", got.Status, got.Kind)
	}
	if got.TokenOut != "VULT" || got.AmountOut != 950.123 {
		t.Errorf("TokenOut/AmountOut = %s/%v", got.TokenOut, got.AmountOut)
	}
	if got.ResolvedAt != nil {
		t.Errorf("ResolvedAt = %v, want nil", got.ResolvedAt)
	}

	// Duplicate adds keep the first record.
	dup := *rec
	dup.AmountIn = 1
	if err := storage.AddTransaction(ctx, &dup); err != nil {
		t.Fatalf("AddTransaction duplicate failed: %v", err)
	}
	got, _ = storage.GetTransaction(ctx, rec.Hash)
	if got.AmountIn != 1000 {
		t.Errorf("AmountIn = %v after duplicate add, want 1000", got.AmountIn)
	}
}

func TestGetTransaction_NotFound(t *testing.T) {
	storage := createTestStorage(t)

	got, err := storage.GetTransaction(context.Background(), "0xmissing")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestResolveTransaction_OncePerTransition(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	if err := storage.AddTransaction(ctx, &TxRecord{Hash: "0x01", Owner: alice, ChainID: 1, Kind: KindSwap}); err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}

	ok, err := storage.ResolveTransaction(ctx, "0x01", Resolution{Status: TxSuccess, BlockNumber: 42, GasUsed: 120_000})
	if err != nil || !ok {
		t.Fatalf("ResolveTransaction = %v, %v, want true", ok, err)
	}
	ok, err = storage.ResolveTransaction(ctx, "0x01", Resolution{Status: TxFailed})
	if err != nil || ok {
		t.Fatalf("second ResolveTransaction = %v, %v, want false", ok, err)
	}

	got, _ := storage.GetTransaction(ctx, "0x01")
	if got.Status != TxSuccess {
		t.Errorf("Status = %s, want success", got.Status)
	}
	if got.BlockNumber != 42 || got.GasUsed != 120_000 {
		t.Errorf("receipt fields = %d/%d", got.BlockNumber, got.GasUsed)
	}
	if got.ResolvedAt == nil {
		t.Error("ResolvedAt not set")
	}

	if _, err := storage.ResolveTransaction(ctx, "0x01", Resolution{Status: TxPending}); err == nil {
		t.Error("resolving to pending should fail")
	}
	if ok, _ := storage.ResolveTransaction(ctx, "0xmissing", Resolution{Status: TxFailed}); ok {
		t.Error("resolving unknown hash reported a write")
	}
}

func TestListTransactions(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, h := range []string{"0x01", "0x02", "0x03"} {
		rec := &TxRecord{Hash: h, Owner: alice, ChainID: 1, Kind: KindSwap, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := storage.AddTransaction(ctx, rec); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
	}
	if err := storage.AddTransaction(ctx, &TxRecord{Hash: "0x04", Owner: bob, ChainID: 1, Kind: KindApprove, CreatedAt: base}); err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}

	page, err := storage.ListTransactions(ctx, alice, 2, 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("Total = %d, want 3", page.Total)
	}
	if len(page.Transactions) != 2 {
		t.Fatalf("len = %d, want 2", len(page.Transactions))
	}
	if page.Transactions[0].Hash != "0x03" || page.Transactions[1].Hash != "0x02" {
		t.Errorf("order = %s, %s, want newest first", page.Transactions[0].Hash, page.Transactions[1].Hash)
	}

	empty, err := storage.ListTransactions(ctx, "0x0000000000000000000000000000000000000009", 10, 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if empty.Total != 0 || empty.Transactions == nil {
		t.Errorf("empty page = %+v", empty)
	}
}

func TestListPending(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	for _, h := range []string{"0x01", "0x02"} {
		if err := storage.AddTransaction(ctx, &TxRecord{Hash: h, Owner: alice, ChainID: 1, Kind: KindSwap}); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
	}
	if _, err := storage.ResolveTransaction(ctx, "0x01", Resolution{Status: TxFailed}); err != nil {
		t.Fatalf("ResolveTransaction failed: %v", err)
	}

	pending, err := storage.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Hash != "0x02" {
		t.Errorf("pending = %+v, want only 0x02", pending)
	}
}

func TestClearHistory(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	storage.AddTransaction(ctx, &TxRecord{Hash: "0x01", Owner: alice, ChainID: 1, Kind: KindSwap})
	storage.AddTransaction(ctx, &TxRecord{Hash: "0x02", Owner: alice, ChainID: 1, Kind: KindMint})
	storage.AddTransaction(ctx, &TxRecord{Hash: "0x03", Owner: bob, ChainID: 1, Kind: KindSwap})

	n, err := storage.ClearHistory(ctx, alice)
	if err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if got, _ := storage.GetTransaction(ctx, "0x03"); got == nil {
		t.Error("bob's record was removed")
	}
}

func TestPreferences(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	if _, ok, err := storage.GetPreference(ctx, PrefTheme); err != nil || ok {
		t.Fatalf("GetPreference(unset) = %v, %v", ok, err)
	}
	if err := storage.SetPreference(ctx, PrefTheme, "dark"); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}
	if err := storage.SetPreference(ctx, PrefTheme, "light"); err != nil {
		t.Fatalf("SetPreference overwrite failed: %v", err)
	}
	v, ok, err := storage.GetPreference(ctx, PrefTheme)
	if err != nil || !ok || v != "light" {
		t.Errorf("GetPreference = %q, %v, %v, want light", v, ok, err)
	}
}

func TestPreferenceJSON(t *testing.T) {
	storage := createTestStorage(t)
	ctx := context.Background()

	type settings struct {
		Mode     string  `json:"mode"`
		Slippage float64 `json:"slippage"`
	}

	var got settings
	if ok, err := GetPreferenceJSON(ctx, storage, PrefGasSettings, &got); err != nil || ok {
		t.Fatalf("GetPreferenceJSON(unset) = %v, %v", ok, err)
	}

	want := settings{Mode: "ADVANCED", Slippage: 1.5}
	if err := SetPreferenceJSON(ctx, storage, PrefGasSettings, want); err != nil {
		t.Fatalf("SetPreferenceJSON failed: %v", err)
	}
	if ok, err := GetPreferenceJSON(ctx, storage, PrefGasSettings, &got); err != nil || !ok {
		t.Fatalf("GetPreferenceJSON = %v, %v", ok, err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	storage.SetPreference(ctx, PrefGasSettings, "{broken")
	if _, err := GetPreferenceJSON(ctx, storage, PrefGasSettings, &got); err == nil {
		t.Error("expected error for corrupt JSON")
	}
}

func TestColumnExists(t *testing.T) {
	storage := createTestStorage(t)

	if !storage.columnExists("tx_history", "block_number") {
		t.Error("migrated column block_number missing")
	}
	if storage.columnExists("tx_history", "nope") {
		t.Error("unexpected column nope")
	}
	if storage.columnExists("tx_history; DROP TABLE tx_history", "hash") {
		t.Error("invalid identifier accepted")
	}
}
