// Package token defines tradeable assets, canonical pair ordering and
// human/smallest-unit amount conversion.
package token

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAddress is the sentinel address used for the chain's native asset.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

var (
	ErrInvalidAddress = errors.New("invalid token address")
	ErrSameToken      = errors.New("tokenIn and tokenOut are equal")
)

// Token identifies a tradeable asset.
type Token struct {
	ChainID  int64          `json:"chainId"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	PriceID  string         `json:"priceId,omitempty"` // external price API id
	Stable   bool           `json:"stable,omitempty"`  // priced at 1.0 USD for impact estimates
}

// IsNative reports whether the token is the chain's native asset.
func (t Token) IsNative() bool {
	return t.Address == NativeAddress || t.Address == (common.Address{})
}

// RoutingAddress returns the address used on chain: the wrapped asset for
// the native token, the token's own address otherwise.
func (t Token) RoutingAddress(wrapped common.Address) common.Address {
	if t.IsNative() {
		return wrapped
	}
	return t.Address
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

// ParseAddress validates a 20-byte hex address. The empty string maps to the native sentinel.
func ParseAddress(s string) (common.Address, error) {
	if s == "" {
		return NativeAddress, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// Pair is a user-ordered token pair together with its canonical ordering.
type Pair struct {
	TokenIn  Token
	TokenOut Token

	Token0  Token
	Token1  Token
	Swapped bool // true when TokenIn is not Token0
}

// NewPair builds a pair, sorting by routing address so native tokens are
// ordered like their wrapped counterpart.
func NewPair(tokenIn, tokenOut Token, wrapped common.Address) (Pair, error) {
	a, b := tokenIn.RoutingAddress(wrapped), tokenOut.RoutingAddress(wrapped)
	if a == b {
		return Pair{}, ErrSameToken
	}
	p := Pair{TokenIn: tokenIn, TokenOut: tokenOut}
	if Less(a, b) {
		p.Token0, p.Token1 = tokenIn, tokenOut
	} else {
		p.Token0, p.Token1 = tokenOut, tokenIn
		p.Swapped = true
	}
	return p, nil
}

// Sort returns (token0, token1, swapped) ordered by lowercase address.
func Sort(a, b Token) (Token, Token, bool) {
	if Less(a.Address, b.Address) || a.Address == b.Address {
		return a, b, false
	}
	return b, a, true
}

// Less compares addresses case-insensitively. Comparing the raw bytes is
// equivalent to comparing the lowercase hex strings.
func Less(a, b common.Address) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

// LowerHex returns the lowercase hex form used for map keys and storage.
func LowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}
