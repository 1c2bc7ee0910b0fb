package gas

import (
	"errors"
	"math/big"
	"testing"

	"github.com/gateway-fm/swapcore/internal/pricefeed"
)

var suggestions = &pricefeed.GasFees{
	Low:    pricefeed.GasTier{MaxFeePerGas: 10, MaxPriorityFeePerGas: 0.5},
	Medium: pricefeed.GasTier{MaxFeePerGas: 20, MaxPriorityFeePerGas: 1},
	High:   pricefeed.GasTier{MaxFeePerGas: 40, MaxPriorityFeePerGas: 2},
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e9))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr error
	}{
		{"defaults", DefaultSettings(), nil},
		{"slippage too low", Settings{Mode: ModeBasic, Slippage: 0.05}, ErrInvalidSlippage},
		{"slippage too high", Settings{Mode: ModeBasic, Slippage: 91}, ErrInvalidSlippage},
		{"slippage upper bound", Settings{Mode: ModeBasic, Slippage: 90}, nil},
		{"advanced missing fees", Settings{Mode: ModeAdvanced, Slippage: 1, GasLimit: 21000}, ErrMissingFields},
		{"advanced complete", Settings{Mode: ModeAdvanced, Slippage: 1, GasLimit: 21000, MaxFee: 30, MaxPriorityFee: 1}, nil},
		{"basic custom missing fees", Settings{Mode: ModeBasic, Speed: SpeedCustom, Slippage: 1}, ErrMissingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolve_Precedence(t *testing.T) {
	tests := []struct {
		name      string
		s         Settings
		fees      *pricefeed.GasFees
		wantMax   *big.Int
		wantTip   *big.Int
		wantLimit uint64
		wantUnset bool
	}{
		{
			name:    "basic fast uses high tier",
			s:       Settings{Mode: ModeBasic, Speed: SpeedFast, MaxFee: 999, MaxPriorityFee: 999},
			fees:    suggestions,
			wantMax: gwei(40),
			wantTip: gwei(2),
		},
		{
			name:    "basic slow uses low tier",
			s:       Settings{Mode: ModeBasic, Speed: SpeedSlow},
			fees:    suggestions,
			wantMax: gwei(10),
			wantTip: big.NewInt(500_000_000),
		},
		{
			name:    "basic standard uses medium tier",
			s:       Settings{Mode: ModeBasic, Speed: SpeedStandard},
			fees:    suggestions,
			wantMax: gwei(20),
			wantTip: gwei(1),
		},
		{
			name:      "advanced is authoritative",
			s:         Settings{Mode: ModeAdvanced, Speed: SpeedFast, GasLimit: 300000, MaxFee: 33, MaxPriorityFee: 3},
			fees:      suggestions,
			wantMax:   gwei(33),
			wantTip:   gwei(3),
			wantLimit: 300000,
		},
		{
			name:      "basic without suggestion leaves fees unset",
			s:         Settings{Mode: ModeBasic, Speed: SpeedFast},
			wantUnset: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Resolve(tt.s, tt.fees)
			if tt.wantUnset {
				if !p.IsZero() {
					t.Errorf("Resolve() = %+v, want zero params", p)
				}
				return
			}
			if p.MaxFeePerGas.Cmp(tt.wantMax) != 0 || p.MaxPriorityFeePerGas.Cmp(tt.wantTip) != 0 {
				t.Errorf("Resolve() fees = %s/%s, want %s/%s", p.MaxFeePerGas, p.MaxPriorityFeePerGas, tt.wantMax, tt.wantTip)
			}
			if p.GasLimit != tt.wantLimit {
				t.Errorf("GasLimit = %d, want %d", p.GasLimit, tt.wantLimit)
			}
		})
	}
}

func TestEstimateNetworkFee(t *testing.T) {
	// 500k gas at 20 gwei = 0.01 ETH
	fee, err := EstimateNetworkFee(Params{GasLimit: 500_000, MaxFeePerGas: gwei(20)})
	if err != nil {
		t.Fatalf("EstimateNetworkFee() error = %v", err)
	}
	if fee.String() != "10000000000000000" {
		t.Errorf("EstimateNetworkFee() = %s, want 1e16", fee)
	}

	fee, _ = EstimateNetworkFee(Params{MaxFeePerGas: gwei(1)})
	if fee.Uint64() != DefaultSwapGasLimit*1e9 {
		t.Errorf("default limit fee = %s", fee)
	}

	if _, err := EstimateNetworkFee(Params{}); !errors.Is(err, ErrNoSuggestion) {
		t.Errorf("EstimateNetworkFee(zero) error = %v", err)
	}
}

func TestGweiConversion(t *testing.T) {
	if got := GweiToWei(1.5); got.Int64() != 1_500_000_000 {
		t.Errorf("GweiToWei(1.5) = %s", got)
	}
	if got := WeiToGwei(big.NewInt(2_500_000_000)); got != 2.5 {
		t.Errorf("WeiToGwei() = %v", got)
	}
}
