// Package gas models user transaction settings and resolves them into
// concrete fee parameters.
package gas

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/gateway-fm/swapcore/internal/pricefeed"
	"github.com/gateway-fm/swapcore/internal/token"
)

// Mode selects how fee fields are determined.
type Mode string

const (
	// ModeBasic derives fees from the selected speed tier at submit time.
	ModeBasic Mode = "BASIC"
	// ModeAdvanced uses the user's gas limit and fee fields as-is.
	ModeAdvanced Mode = "ADVANCED"
)

// Speed is a named fee tier.
type Speed string

const (
	SpeedFast     Speed = "fast"
	SpeedStandard Speed = "standard"
	SpeedSlow     Speed = "slow"
	SpeedCustom   Speed = "custom"
)

// Slippage bounds in percent.
const (
	MinSlippage     = 0.1
	MaxSlippage     = 90.0
	DefaultSlippage = 0.5
)

// DefaultSwapGasLimit is used to estimate the network fee when no limit is set.
const DefaultSwapGasLimit uint64 = 250_000

var (
	ErrInvalidSlippage = errors.New("slippage out of range")
	ErrMissingFields   = errors.New("advanced gas settings require gas limit, max fee and priority fee")
	ErrNoSuggestion    = errors.New("no fee suggestion available")
)

// Settings are the user-editable transaction parameters. Fee fields are in gwei.
type Settings struct {
	Mode           Mode    `json:"mode"`
	Speed          Speed   `json:"speed"`
	Slippage       float64 `json:"slippage"`
	GasLimit       uint64  `json:"gasLimit,omitempty"`
	MaxFee         float64 `json:"maxFee,omitempty"`
	MaxPriorityFee float64 `json:"maxPriorityFee,omitempty"`
}

// DefaultSettings returns basic-mode standard-speed settings.
func DefaultSettings() Settings {
	return Settings{
		Mode:     ModeBasic,
		Speed:    SpeedStandard,
		Slippage: DefaultSlippage,
	}
}

// Validate checks slippage bounds and, in advanced mode, that all numeric fields are present.
func (s Settings) Validate() error {
	if s.Slippage < MinSlippage || s.Slippage > MaxSlippage {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidSlippage, s.Slippage, MinSlippage, MaxSlippage)
	}
	if s.userAuthoritative() && (s.GasLimit == 0 || s.MaxFee <= 0 || s.MaxPriorityFee <= 0) {
		return ErrMissingFields
	}
	switch s.Mode {
	case ModeBasic, ModeAdvanced:
	default:
		return fmt.Errorf("unknown gas mode %q", s.Mode)
	}
	return nil
}

func (s Settings) userAuthoritative() bool {
	return s.Mode == ModeAdvanced || s.Speed == SpeedCustom
}

// NeedsSuggestion reports whether Resolve takes fees from the live suggestion.
func (s Settings) NeedsSuggestion() bool {
	return !s.userAuthoritative()
}

// Params are resolved fee parameters in wei. Zero values mean "let the wallet decide".
type Params struct {
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// IsZero reports whether no override is set.
func (p Params) IsZero() bool {
	return p.GasLimit == 0 && isZero(p.MaxFeePerGas) && isZero(p.MaxPriorityFeePerGas)
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// Resolve applies the precedence rule: advanced (or custom) settings are
// authoritative; basic settings take both fee fields from the live
// suggestion for the selected speed. A nil suggestion in basic mode leaves
// fees unset.
func Resolve(s Settings, fees *pricefeed.GasFees) Params {
	if s.userAuthoritative() {
		return Params{
			GasLimit:             s.GasLimit,
			MaxFeePerGas:         GweiToWei(s.MaxFee),
			MaxPriorityFeePerGas: GweiToWei(s.MaxPriorityFee),
		}
	}
	p := Params{GasLimit: s.GasLimit}
	if fees == nil {
		return p
	}
	tier := TierFor(s.Speed, fees)
	p.MaxFeePerGas = GweiToWei(tier.MaxFeePerGas)
	p.MaxPriorityFeePerGas = GweiToWei(tier.MaxPriorityFeePerGas)
	return p
}

// TierFor maps a speed onto the suggestion tiers. Unknown speeds use medium.
func TierFor(speed Speed, fees *pricefeed.GasFees) pricefeed.GasTier {
	switch speed {
	case SpeedFast:
		return fees.High
	case SpeedSlow:
		return fees.Low
	default:
		return fees.Medium
	}
}

// EstimateNetworkFee returns gasLimit * maxFeePerGas in wei, the upper bound
// the sender may pay. It falls back to DefaultSwapGasLimit when no limit is set.
func EstimateNetworkFee(p Params) (*big.Int, error) {
	if isZero(p.MaxFeePerGas) {
		return nil, ErrNoSuggestion
	}
	limit := p.GasLimit
	if limit == 0 {
		limit = DefaultSwapGasLimit
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(limit), p.MaxFeePerGas), nil
}

// GweiToWei converts a gwei amount to wei, rounding down. Non-positive input yields 0.
func GweiToWei(gwei float64) *big.Int {
	return token.ToUnits(gwei, 9)
}

// WeiToGwei converts wei to gwei.
func WeiToGwei(wei *big.Int) float64 {
	return token.FromUnits(wei, 9)
}
