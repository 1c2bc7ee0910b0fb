package token

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6, Symbol: "USDC", Stable: true}
	vult = Token{Address: common.HexToAddress("0xb788144DF611029C60b859DF47e79B7726C4DEBa"), Decimals: 18, Symbol: "VULT"}
	eth  = Token{Address: NativeAddress, Decimals: 18, Symbol: "ETH"}
)

func TestSort_CanonicalOrdering(t *testing.T) {
	for i := 0; i < 200; i++ {
		var a, b common.Address
		rand.Read(a[:])
		rand.Read(b[:])
		if a == b {
			continue
		}
		ta, tb := Token{Address: a}, Token{Address: b}

		t0, t1, swapped := Sort(ta, tb)
		lo0 := strings.ToLower(t0.Address.Hex())
		lo1 := strings.ToLower(t1.Address.Hex())
		if !(lo0 < lo1) {
			t.Fatalf("Sort(%s, %s) = (%s, %s), not ordered", a.Hex(), b.Hex(), t0.Address.Hex(), t1.Address.Hex())
		}
		wantSwapped := strings.ToLower(a.Hex()) > strings.ToLower(b.Hex())
		if swapped != wantSwapped {
			t.Fatalf("Sort(%s, %s) swapped = %v, want %v", a.Hex(), b.Hex(), swapped, wantSwapped)
		}
	}
}

func TestSort_MixedCaseChecksum(t *testing.T) {
	// Checksummed hex compares differently from lowercase hex for these two.
	a := Token{Address: common.HexToAddress("0xaAaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")}
	b := Token{Address: common.HexToAddress("0xBbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")}
	t0, _, swapped := Sort(b, a)
	if t0.Address != a.Address || !swapped {
		t.Errorf("Sort(b, a) token0 = %s swapped = %v, want %s true", t0.Address.Hex(), swapped, a.Address.Hex())
	}
}

func TestNewPair(t *testing.T) {
	tests := []struct {
		name        string
		in, out     Token
		wantSwapped bool
		wantToken0  string
		wantErr     error
	}{
		{name: "usdc to vult", in: usdc, out: vult, wantSwapped: false, wantToken0: "USDC"},
		{name: "vult to usdc", in: vult, out: usdc, wantSwapped: true, wantToken0: "USDC"},
		{name: "native sorts as wrapped", in: eth, out: usdc, wantSwapped: true, wantToken0: "USDC"},
		{name: "same token", in: usdc, out: usdc, wantErr: ErrSameToken},
		{name: "native and wrapped", in: eth, out: Token{Address: weth}, wantErr: ErrSameToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPair(tt.in, tt.out, weth)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewPair() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPair() error = %v", err)
			}
			if p.Swapped != tt.wantSwapped {
				t.Errorf("Swapped = %v, want %v", p.Swapped, tt.wantSwapped)
			}
			if p.Token0.Symbol != tt.wantToken0 {
				t.Errorf("Token0 = %s, want %s", p.Token0.Symbol, tt.wantToken0)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	if a, err := ParseAddress(""); err != nil || a != NativeAddress {
		t.Errorf("ParseAddress(\"\") = %s, %v", a.Hex(), err)
	}
	if _, err := ParseAddress("0x1234"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("ParseAddress(short) error = %v, want ErrInvalidAddress", err)
	}
	if a, err := ParseAddress(usdc.Address.Hex()); err != nil || a != usdc.Address {
		t.Errorf("ParseAddress(usdc) = %s, %v", a.Hex(), err)
	}
}

func TestIsNative(t *testing.T) {
	if !eth.IsNative() {
		t.Error("sentinel should be native")
	}
	if !(Token{}).IsNative() {
		t.Error("zero address should be native")
	}
	if usdc.IsNative() {
		t.Error("USDC should not be native")
	}
	if got := eth.RoutingAddress(weth); got != weth {
		t.Errorf("RoutingAddress() = %s, want WETH", got.Hex())
	}
}

func TestToUnits(t *testing.T) {
	tests := []struct {
		amount   float64
		decimals uint8
		want     string
	}{
		{1000, 6, "1000000000"},
		{0.1, 18, "100000000000000000"},
		{950.123, 18, "950123000000000000000"},
		{1.0000001, 6, "1000000"},
		{0, 18, "0"},
		{-1, 18, "0"},
	}
	for _, tt := range tests {
		if got := ToUnits(tt.amount, tt.decimals); got.String() != tt.want {
			t.Errorf("ToUnits(%v, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestFromUnitsTruncated(t *testing.T) {
	units, _ := new(big.Int).SetString("950123987000000000000", 10)
	if got := FromUnitsTruncated(units, 18, 3); got != 950.123 {
		t.Errorf("FromUnitsTruncated() = %v, want 950.123", got)
	}
	if got := FromUnitsTruncated(big.NewInt(1234), 2, 3); got != 12.34 {
		t.Errorf("FromUnitsTruncated() = %v, want 12.34", got)
	}
}

func TestFloor(t *testing.T) {
	tests := []struct {
		x      float64
		places int
		want   float64
	}{
		{0.989, 6, 0.989},
		{1.23456789, 6, 1.234567},
		{0.1 + 0.2, 6, 0.3},
		{5, 6, 5},
		{-0.0000015, 6, -0.000002},
	}
	for _, tt := range tests {
		if got := Floor(tt.x, tt.places); got != tt.want {
			t.Errorf("Floor(%v, %d) = %v, want %v", tt.x, tt.places, got, tt.want)
		}
	}
}

func TestMulPercentFloor(t *testing.T) {
	units := big.NewInt(950_123_000)
	for _, slippage := range []float64{0.1, 0.5, 1, 2.5, 49.99, 90} {
		got := MulPercentFloor(units, slippage)

		// floor(units * (1 - s/100)) computed independently in integer space
		bps := int64(slippage*100 + 0.5)
		want := new(big.Int).Mul(units, big.NewInt(10000-bps))
		want.Quo(want, big.NewInt(10000))
		if got.Cmp(want) != 0 {
			t.Errorf("MulPercentFloor(%s, %v) = %s, want %s", units, slippage, got, want)
		}
	}
}
