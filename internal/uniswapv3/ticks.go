package uniswapv3

import (
	"errors"
	"fmt"
	"math"
)

// Global tick bounds of the protocol.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	ErrUnsupportedFeeTier = errors.New("unsupported fee tier")
	ErrInvalidPriceRange  = errors.New("invalid price range")
)

var tickSpacings = map[uint32]int32{
	FeeLowest: 1,
	FeeLow:    10,
	FeeMedium: 60,
	FeeHigh:   200,
}

// TickSpacing returns the fixed tick spacing of a fee tier.
func TickSpacing(fee uint32) (int32, error) {
	s, ok := tickSpacings[fee]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedFeeTier, fee)
	}
	return s, nil
}

// TickRange is an aligned [Lower, Upper) position range.
type TickRange struct {
	Lower int32 `json:"tickLower"`
	Upper int32 `json:"tickUpper"`
}

// FullRangeTicks returns the widest spacing-aligned range for fee.
// The lower bound is rounded down and then stepped back inside MinTick,
// giving -887220/887220 for spacing 60.
func FullRangeTicks(fee uint32) (TickRange, error) {
	spacing, err := TickSpacing(fee)
	if err != nil {
		return TickRange{}, err
	}
	lo, hi := usableBounds(spacing)
	return TickRange{Lower: lo, Upper: hi}, nil
}

// usableBounds returns the smallest and largest multiples of spacing within the global bounds.
func usableBounds(spacing int32) (int32, int32) {
	lo := floorDiv(MinTick, spacing) * spacing
	if lo < MinTick {
		lo += spacing
	}
	hi := floorDiv(MaxTick, spacing) * spacing
	return lo, hi
}

// PriceToTick converts a human price (token1 per token0) into a raw,
// unaligned tick: floor(log(price * 10^(dec0-dec1)) / log(1.0001)).
func PriceToTick(price float64, dec0, dec1 uint8) (int32, error) {
	if !(price > 0) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: price %v", ErrInvalidPriceRange, price)
	}
	adjusted := price * math.Pow(10, float64(int(dec0)-int(dec1)))
	t := math.Floor(math.Log(adjusted) / math.Log(1.0001))
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, fmt.Errorf("%w: price %v", ErrInvalidPriceRange, price)
	}
	if t < float64(MinTick) {
		return MinTick, nil
	}
	if t > float64(MaxTick) {
		return MaxTick, nil
	}
	return int32(t), nil
}

// AlignTick rounds tick down to the nearest multiple of spacing.
func AlignTick(tick, spacing int32) int32 {
	return floorDiv(tick, spacing) * spacing
}

// ComputeTicks converts a [minPrice, maxPrice] range quoted in the user's
// order into canonical ticks. When the pair was swapped during sorting the
// prices are inverted, so 1/max becomes the lower bound and 1/min the upper.
func ComputeTicks(minPrice, maxPrice float64, fee uint32, dec0, dec1 uint8, swapped bool) (TickRange, error) {
	spacing, err := TickSpacing(fee)
	if err != nil {
		return TickRange{}, err
	}
	if !(minPrice > 0) || !(maxPrice > 0) || minPrice >= maxPrice {
		return TickRange{}, fmt.Errorf("%w: min %v max %v", ErrInvalidPriceRange, minPrice, maxPrice)
	}

	lowPrice, highPrice := minPrice, maxPrice
	if swapped {
		lowPrice, highPrice = 1/maxPrice, 1/minPrice
	}

	rawLower, err := PriceToTick(lowPrice, dec0, dec1)
	if err != nil {
		return TickRange{}, err
	}
	rawUpper, err := PriceToTick(highPrice, dec0, dec1)
	if err != nil {
		return TickRange{}, err
	}

	lo, hi := usableBounds(spacing)
	r := TickRange{
		Lower: clamp(AlignTick(rawLower, spacing), lo, hi),
		Upper: clamp(AlignTick(rawUpper, spacing), lo, hi),
	}
	if r.Lower >= r.Upper {
		return TickRange{}, fmt.Errorf("%w: ticks %d >= %d", ErrInvalidPriceRange, r.Lower, r.Upper)
	}
	return r, nil
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
