package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestAmountPolicy_Normalize(t *testing.T) {
	p := DefaultAmountPolicy()

	assert.True(t, p.Normalize(d("100.1234567")).Equal(d("100.123457")), "rounds to money scale")
	assert.True(t, p.Normalize(d("0.0000004")).Equal(decimal.Zero), "snaps sub-epsilon to zero")
	assert.True(t, p.Normalize(d("-0.0000004")).Equal(decimal.Zero), "snaps negative sub-epsilon to zero")
	assert.True(t, p.Normalize(d("0.00001")).Equal(d("0.00001")), "keeps values above epsilon")
}

func TestAmountPolicy_Comparisons(t *testing.T) {
	p := DefaultAmountPolicy()

	assert.True(t, p.Eq(d("100"), d("100.0000005")))
	assert.False(t, p.Eq(d("100"), d("100.01")))

	// a may exceed b by at most epsilon
	assert.True(t, p.LtOrEq(d("100.0000005"), d("100")))
	assert.True(t, p.LtOrEq(d("99"), d("100")))
	assert.False(t, p.LtOrEq(d("100.01"), d("100")))

	assert.True(t, p.IsZero(d("0.0000009")))
	assert.False(t, p.IsPositive(d("0.0000009")))
	assert.True(t, p.IsPositive(d("0.01")))
}

func TestAmountPolicy_Percent(t *testing.T) {
	p := DefaultAmountPolicy()

	assert.Equal(t, int64(50), p.Percent(d("50"), d("100")))
	assert.Equal(t, int64(0), p.Percent(d("50"), decimal.Zero), "zero denominator yields 0")
	assert.Equal(t, int64(100), p.Percent(d("150"), d("100")), "clamped to 100")
	assert.Equal(t, int64(0), p.Percent(d("-10"), d("100")), "clamped to 0")
	assert.Equal(t, int64(33), p.Percent(d("1"), d("3")))
}

func TestAmountPolicy_NormalizeFx(t *testing.T) {
	p := DefaultAmountPolicy()

	assert.True(t, p.NormalizeFx(d("35.123456789012")).Equal(d("35.1234567890")))
	// fx rates are never snapped to zero
	assert.True(t, p.NormalizeFx(d("0.0000000002")).Equal(d("0.0000000002")))
}
