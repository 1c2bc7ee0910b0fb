package token

import (
	"math/big"
	"strconv"
)

// Pow10 returns 10^n as *big.Int.
func Pow10(n int) *big.Int {
	if n < 0 {
		n = 0
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Rat converts a float to its shortest decimal representation as a rational,
// so 0.1 becomes exactly 1/10 rather than the nearest binary fraction.
func Rat(x float64) *big.Rat {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(x, 'f', -1, 64))
	if !ok {
		return new(big.Rat)
	}
	return r
}

// ToUnits converts a human amount into the token's smallest unit, rounding down.
func ToUnits(amount float64, decimals uint8) *big.Int {
	if amount <= 0 {
		return new(big.Int)
	}
	r := Rat(amount)
	r.Mul(r, new(big.Rat).SetInt(Pow10(int(decimals))))
	return new(big.Int).Quo(r.Num(), r.Denom())
}

// FromUnits converts smallest-unit amounts into a human float.
func FromUnits(units *big.Int, decimals uint8) float64 {
	if units == nil {
		return 0
	}
	r := new(big.Rat).SetFrac(units, Pow10(int(decimals)))
	f, _ := r.Float64()
	return f
}

// FromUnitsTruncated converts units to a human float truncated to places decimals.
func FromUnitsTruncated(units *big.Int, decimals uint8, places int) float64 {
	if units == nil {
		return 0
	}
	if int(decimals) > places {
		step := Pow10(int(decimals) - places)
		units = new(big.Int).Mul(new(big.Int).Quo(units, step), step)
	}
	return FromUnits(units, decimals)
}

// Floor truncates x toward negative infinity at the given number of decimals
// using decimal arithmetic, avoiding binary artifacts like 0.98899999.
func Floor(x float64, places int) float64 {
	r := Rat(x)
	scale := new(big.Rat).SetInt(Pow10(places))
	r.Mul(r, scale)
	q := new(big.Int)
	m := new(big.Int)
	q.DivMod(r.Num(), r.Denom(), m) // Euclidean: floors for positive denominators
	out := new(big.Rat).SetFrac(q, Pow10(places))
	f, _ := out.Float64()
	return f
}

// MulPercentFloor returns floor(units * (100 - pct) / 100) exactly.
func MulPercentFloor(units *big.Int, pct float64) *big.Int {
	factor := new(big.Rat).Sub(big.NewRat(100, 1), Rat(pct))
	factor.Quo(factor, big.NewRat(100, 1))
	r := new(big.Rat).Mul(new(big.Rat).SetInt(units), factor)
	if r.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(r.Num(), r.Denom())
}
