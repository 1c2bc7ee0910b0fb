package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/rpc"
	"github.com/gateway-fm/swapcore/internal/token"
)

func TestParseToken(t *testing.T) {
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	tests := []struct {
		in       string
		wantAddr common.Address
		wantDec  uint8
		wantErr  bool
	}{
		{"", token.NativeAddress, 18, false},
		{usdc.Hex() + ":6", usdc, 6, false},
		{usdc.Hex(), usdc, 18, false},
		{usdc.Hex() + ":300", common.Address{}, 0, true},
		{"0x1234", common.Address{}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tok, err := parseToken(tt.in, 1)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseToken(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tok.Address != tt.wantAddr || tok.Decimals != tt.wantDec || tok.ChainID != 1 {
				t.Errorf("parseToken(%q) = %+v", tt.in, tok)
			}
		})
	}
}

func TestRPCHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID int `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"})
	}))
	defer srv.Close()

	cfg := rpc.DefaultClientConfig(srv.URL)
	cfg.MaxRetries = 0
	client := rpc.NewHTTPClient(cfg)

	if err := (rpcHealth{client: client, chainID: 1}).CheckRPC(context.Background()); err != nil {
		t.Errorf("CheckRPC on matching chain: %v", err)
	}
	if err := (rpcHealth{client: client, chainID: 10}).CheckRPC(context.Background()); err == nil {
		t.Error("CheckRPC on wrong chain succeeded")
	}
}
