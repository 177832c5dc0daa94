package core

import (
	"github.com/shopspring/decimal"
)

// FeeSplitConfig parameterizes the share of leverage yield routed to the
// lending pool as a function of its utilization.
type FeeSplitConfig struct {
	URSlope1 decimal.Decimal `json:"urSlope1" yaml:"ur_slope1"`
	URSlope2 decimal.Decimal `json:"urSlope2" yaml:"ur_slope2"`
	URSlope3 decimal.Decimal `json:"urSlope3" yaml:"ur_slope3"`

	Split1Value decimal.Decimal `json:"split1Value" yaml:"split1_value"`
	Split2Value decimal.Decimal `json:"split2Value" yaml:"split2_value"`
	Split3Value decimal.Decimal `json:"split3Value" yaml:"split3_value"`
}

func DefaultFeeSplitConfig() FeeSplitConfig {
	return FeeSplitConfig{
		URSlope1:    decimal.RequireFromString("0.5"),
		URSlope2:    decimal.RequireFromString("0.7"),
		URSlope3:    decimal.RequireFromString("0.9"),
		Split1Value: decimal.RequireFromString("0.1"),
		Split2Value: decimal.RequireFromString("0.2"),
		Split3Value: decimal.RequireFromString("0.5"),
	}
}

func (c *FeeSplitConfig) RewardSplit(utilizationRatio decimal.Decimal) decimal.Decimal {
	switch {
	case utilizationRatio.LessThanOrEqual(c.URSlope1):
		return c.Split1Value
	case utilizationRatio.LessThanOrEqual(c.URSlope2):
		// (ur - s1) / (s2 - s1) * (v2 - v1) + v1
		return interpolate(utilizationRatio, c.URSlope1, c.URSlope2, c.Split1Value, c.Split2Value)
	case utilizationRatio.LessThanOrEqual(c.URSlope3):
		return interpolate(utilizationRatio, c.URSlope2, c.URSlope3, c.Split2Value, c.Split3Value)
	default:
		return c.Split3Value
	}
}

func interpolate(x, x0, x1, y0, y1 decimal.Decimal) decimal.Decimal {
	return MulDiv(x.Sub(x0), y1.Sub(y0), x1.Sub(x0)).Add(y0)
}

func (c *FeeSplitConfig) Validate() error {
	if !c.URSlope1.IsPositive() {
		return InvalidConfig
	}
	if !c.URSlope1.LessThan(c.URSlope2) || !c.URSlope2.LessThan(c.URSlope3) {
		return InvalidConfig
	}
	if c.URSlope3.GreaterThan(ONE) {
		return InvalidConfig
	}
	if c.Split1Value.IsNegative() {
		return InvalidConfig
	}
	if c.Split2Value.LessThan(c.Split1Value) || c.Split3Value.LessThan(c.Split2Value) {
		return InvalidConfig
	}
	if c.Split3Value.GreaterThan(ONE) {
		return InvalidConfig
	}
	return nil
}
