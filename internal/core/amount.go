package core

import "github.com/shopspring/decimal"

// AmountPolicy is the shared comparison and rounding policy for money.
// All monetary values are produced and compared through it; services never
// compare decimals directly.
//
// MoneyScale is the persisted precision of monetary columns, FxScale the
// precision of fx rates. Epsilon absorbs drift introduced by ratio-derived
// fx conversions and aggregated sums: magnitudes at or below it are treated
// as exactly zero.
type AmountPolicy struct {
	MoneyScale int32
	FxScale    int32
	Epsilon    decimal.Decimal
}

// DefaultAmountPolicy matches the persisted column precision: 6 decimal
// places for money, 10 for fx rates, 1e-6 tolerance.
func DefaultAmountPolicy() AmountPolicy {
	return AmountPolicy{
		MoneyScale: 6,
		FxScale:    10,
		Epsilon:    decimal.New(1, -6),
	}
}

// Normalize rounds x to the money scale and snaps near-zero values to zero.
func (p AmountPolicy) Normalize(x decimal.Decimal) decimal.Decimal {
	r := x.Round(p.MoneyScale)
	if r.Abs().LessThanOrEqual(p.Epsilon) {
		return decimal.Zero
	}
	return r
}

// NormalizeFx rounds a rate to the fx scale. Rates are never snapped to zero.
func (p AmountPolicy) NormalizeFx(x decimal.Decimal) decimal.Decimal {
	return x.Round(p.FxScale)
}

// Clamp bounds x to [lo, hi].
func (p AmountPolicy) Clamp(x, lo, hi decimal.Decimal) decimal.Decimal {
	if x.LessThan(lo) {
		return lo
	}
	if x.GreaterThan(hi) {
		return hi
	}
	return x
}

// Eq reports whether a and b are equal within epsilon.
func (p AmountPolicy) Eq(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(p.Epsilon)
}

// LtOrEq reports a ≤ b within epsilon (a may exceed b by at most epsilon).
func (p AmountPolicy) LtOrEq(a, b decimal.Decimal) bool {
	return a.Sub(b).LessThanOrEqual(p.Epsilon)
}

// IsZero reports whether x is zero within epsilon.
func (p AmountPolicy) IsZero(x decimal.Decimal) bool {
	return x.Abs().LessThanOrEqual(p.Epsilon)
}

// IsPositive reports whether x is strictly positive beyond epsilon.
func (p AmountPolicy) IsPositive(x decimal.Decimal) bool {
	return x.GreaterThan(p.Epsilon)
}

// Percent returns part/whole as a rounded percentage clamped to [0, 100].
// A whole at or below epsilon yields 0, never a division error.
func (p AmountPolicy) Percent(part, whole decimal.Decimal) int64 {
	if whole.LessThanOrEqual(p.Epsilon) {
		return 0
	}
	pct := part.Div(whole).Mul(decimal.NewFromInt(100)).Round(0)
	return p.Clamp(pct, decimal.Zero, decimal.NewFromInt(100)).IntPart()
}
