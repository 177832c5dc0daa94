package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalcValue(t *testing.T) {
	tests := []struct {
		name     string
		amount   decimal.Decimal
		price    decimal.Decimal
		weight   *decimal.Decimal
		expected decimal.Decimal
	}{
		{
			name:     "normal",
			amount:   decimal.NewFromFloat(100),
			price:    decimal.NewFromFloat(2),
			weight:   decimalPtr(decimal.NewFromFloat(0.5)),
			expected: decimal.NewFromFloat(100),
		},
		{
			name:     "zero",
			amount:   decimal.Zero,
			price:    decimal.NewFromFloat(2),
			weight:   decimalPtr(decimal.NewFromFloat(0.5)),
			expected: decimal.Zero,
		},
		{
			name:     "nil",
			amount:   decimal.NewFromFloat(100),
			price:    decimal.NewFromFloat(2),
			weight:   nil,
			expected: decimal.NewFromFloat(200),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CalcValue(tt.amount, tt.price, tt.weight)
			assert.NoError(t, err)
			assert.True(t, result.Equal(tt.expected), "期望 %s，得到 %s", tt.expected, result)
		})
	}
}

func TestCalcAmount(t *testing.T) {
	tests := []struct {
		name     string
		value    decimal.Decimal
		price    decimal.Decimal
		expected decimal.Decimal
	}{
		{
			name:     "normal",
			value:    decimal.NewFromFloat(200),
			price:    decimal.NewFromFloat(2),
			expected: decimal.NewFromFloat(100),
		},
		{
			name:     "zero price",
			value:    decimal.NewFromFloat(200),
			price:    decimal.Zero,
			expected: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CalcAmount(tt.value, tt.price)
			if tt.price.IsZero() {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.True(t, result.Equal(tt.expected), "expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestDiv(t *testing.T) {
	tests := []struct {
		name     string
		a        decimal.Decimal
		b        decimal.Decimal
		expected decimal.Decimal
	}{
		{"exact", decimal.NewFromInt(10), decimal.NewFromInt(4), decimal.RequireFromString("2.5")},
		{"truncated", decimal.NewFromInt(2), decimal.NewFromInt(3), decimal.RequireFromString("0.666666666666666666")},
		{"zero divisor", decimal.NewFromInt(2), decimal.Zero, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Div(tt.a, tt.b)
			assert.True(t, result.Equal(tt.expected), "expected %s, got %s", tt.expected, result)
		})
	}
}

func TestMulDivUp(t *testing.T) {
	down := MulDiv(decimal.NewFromInt(2), decimal.NewFromInt(1), decimal.NewFromInt(3))
	up := MulDivUp(decimal.NewFromInt(2), decimal.NewFromInt(1), decimal.NewFromInt(3))
	assert.True(t, down.Equal(decimal.RequireFromString("0.666666666666666666")), "got %s", down)
	assert.True(t, up.Equal(decimal.RequireFromString("0.666666666666666667")), "got %s", up)
	assert.True(t, MulDivUp(ONE, ONE, decimal.Zero).IsZero())
}

func TestCalcFee(t *testing.T) {
	tests := []struct {
		name        string
		amount      decimal.Decimal
		fee         decimal.Decimal
		expectedFee decimal.Decimal
		expectedNet decimal.Decimal
	}{
		{"protocol fee", decimal.NewFromInt(4000), DEFAULT_PROTOCOL_FEE, decimal.NewFromInt(20), decimal.NewFromInt(3980)},
		{"withdraw 100", decimal.NewFromInt(100), DEFAULT_PROTOCOL_FEE, decimal.RequireFromString("0.5"), decimal.RequireFromString("99.5")},
		{"no fee", decimal.NewFromInt(100), decimal.Zero, decimal.Zero, decimal.NewFromInt(100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, net := CalcFee(tt.amount, tt.fee)
			assert.True(t, fee.Equal(tt.expectedFee), "expected fee %s, got %s", tt.expectedFee, fee)
			assert.True(t, net.Equal(tt.expectedNet), "expected net %s, got %s", tt.expectedNet, net)
			assert.True(t, fee.Add(net).Equal(tt.amount))
		})
	}
}

func TestBps(t *testing.T) {
	assert.Equal(t, int64(8000), ToBps(decimal.RequireFromString("0.8")))
	assert.Equal(t, int64(2010), ToBps(decimal.RequireFromString("0.20105")))
	assert.True(t, FromBps(50).Equal(DEFAULT_PROTOCOL_FEE))
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
