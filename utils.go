package core

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func CalcValue(amount decimal.Decimal, price decimal.Decimal, weight *decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, nil
	}

	var weightedAmount decimal.Decimal
	if weight != nil {
		weightedAmount = amount.Mul(*weight)
	} else {
		weightedAmount = amount
	}

	value := weightedAmount.Mul(price)
	return value, nil
}

func CalcAmount(value decimal.Decimal, price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsZero() {
		return decimal.Zero, errors.New("price is zero")
	}
	return Div(value, price), nil
}

// Div divides and truncates to Precision digits.
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, Precision+2).Truncate(Precision)
}

// MulDiv computes a*b/c with a single truncation.
func MulDiv(a, b, c decimal.Decimal) decimal.Decimal {
	return Div(a.Mul(b), c)
}

// MulDivUp computes a*b/c rounded up at Precision digits.
func MulDivUp(a, b, c decimal.Decimal) decimal.Decimal {
	if c.IsZero() {
		return decimal.Zero
	}
	return a.Mul(b).DivRound(c, Precision+2).RoundUp(Precision)
}

// CalcFee splits amount into the fee and the remainder.
func CalcFee(amount, fee decimal.Decimal) (feeAmount decimal.Decimal, net decimal.Decimal) {
	if fee.IsZero() {
		return decimal.Zero, amount
	}
	feeAmount = amount.Mul(fee).Truncate(Precision)
	return feeAmount, amount.Sub(feeAmount)
}

// ToBps renders a fraction in basis points, truncated.
func ToBps(fraction decimal.Decimal) int64 {
	return fraction.Mul(BPS).IntPart()
}

func FromBps(bps int64) decimal.Decimal {
	return decimal.NewFromInt(bps).Div(BPS)
}
