package core

import (
	"github.com/DomeLiquid/leverage/utils"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type PositionStatus uint8

const (
	PositionOpen PositionStatus = iota
	PositionWithdrawRequested
	PositionRedeemed
	PositionLiquidated
)

func (s PositionStatus) String() string {
	switch s {
	case PositionOpen:
		return "Open"
	case PositionWithdrawRequested:
		return "WithdrawRequested"
	case PositionRedeemed:
		return "Redeemed"
	case PositionLiquidated:
		return "Liquidated"
	default:
		return "Unknown"
	}
}

type (
	PositionKey struct {
		Owner string `json:"owner"`
		Asset string `json:"asset"`
	}

	// Position is one owner's leveraged exposure opened with one deposit
	// asset. Principal and Withdrawed are in underlying units, Shares in
	// yield-asset units.
	Position struct {
		Id    uuid.UUID `json:"id"`
		Owner string    `json:"owner"`
		Asset string    `json:"asset"`

		Principal          decimal.Decimal `json:"principal"`
		Debt               decimal.Decimal `json:"debt"`
		Deployed           decimal.Decimal `json:"deployed"`
		Shares             decimal.Decimal `json:"shares"`
		Withdrawed         decimal.Decimal `json:"withdrawed"`
		LeverageMultiplier int64           `json:"leverageMultiplier"`
		Dtv                decimal.Decimal `json:"dtv"`
		Status             PositionStatus  `json:"status"`

		// Unpaid is settled value still owed to the owner in the
		// underlying; UnpaidFee is the withdrawal fee not yet sent.
		Unpaid    decimal.Decimal `json:"unpaid"`
		UnpaidFee decimal.Decimal `json:"unpaidFee"`

		CreatedAt int64 `json:"createdAt"`
		UpdatedAt int64 `json:"updatedAt"`
	}
)

func PositionId(owner, asset string) uuid.UUID {
	return utils.GenUuidFromStrings(owner, asset)
}

func NewPosition(clk clock.Clock, owner, asset string) *Position {
	now := clk.Now().Unix()
	return &Position{
		Id:                 PositionId(owner, asset),
		Owner:              owner,
		Asset:              asset,
		Principal:          decimal.Zero,
		Debt:               decimal.Zero,
		Deployed:           decimal.Zero,
		Shares:             decimal.Zero,
		Withdrawed:         decimal.Zero,
		LeverageMultiplier: MIN_LEVERAGE,
		Dtv:                decimal.Zero,
		Status:             PositionOpen,
		Unpaid:             decimal.Zero,
		UnpaidFee:          decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (p *Position) Key() PositionKey {
	return PositionKey{Owner: p.Owner, Asset: p.Asset}
}

func (p *Position) Clone() *Position {
	c := *p
	return &c
}

func (p *Position) IsActive() bool {
	return p.Status == PositionOpen || p.Status == PositionWithdrawRequested
}

// Outstanding is the principal not yet settled.
func (p *Position) Outstanding() decimal.Decimal {
	return p.Principal.Sub(p.Withdrawed)
}

func (p *Position) Value(price decimal.Decimal) decimal.Decimal {
	value, _ := CalcValue(p.Shares, price, nil)
	return value
}

// Profit is the unrealized gain over the deployed cost basis; negative on
// loss.
func (p *Position) Profit(price decimal.Decimal) decimal.Decimal {
	return p.Value(price).Sub(p.Deployed)
}

// LenderCut is the part of unrealized profit owed to the lending pool.
func (p *Position) LenderCut(price, split decimal.Decimal) decimal.Decimal {
	profit := p.Profit(price)
	if !profit.IsPositive() {
		return decimal.Zero
	}
	return profit.Mul(split).Truncate(Precision)
}

// DTV is (Debt + LenderCut) / Value. A worthless position with debt is at 1.
func (p *Position) DTV(price, split decimal.Decimal) decimal.Decimal {
	value := p.Value(price)
	if !value.IsPositive() {
		if p.Debt.IsPositive() {
			return ONE
		}
		return decimal.Zero
	}
	return Div(p.Debt.Add(p.LenderCut(price, split)), value)
}

// Equity is what the owner would keep after repaying the lender.
func (p *Position) Equity(price, split decimal.Decimal) decimal.Decimal {
	equity := p.Value(price).Sub(p.Debt).Sub(p.LenderCut(price, split))
	if equity.IsNegative() {
		return decimal.Zero
	}
	return equity
}

func (p *Position) refreshLeverage() {
	outstanding := p.Outstanding()
	if !outstanding.IsPositive() {
		return
	}
	p.LeverageMultiplier = p.Deployed.Mul(HUNDRED).DivRound(outstanding, 0).IntPart()
}

// reset clears a redeemed position so it can be opened again. Unpaid
// settlements carry over.
func (p *Position) reset(now int64) {
	p.Principal = decimal.Zero
	p.Debt = decimal.Zero
	p.Deployed = decimal.Zero
	p.Shares = decimal.Zero
	p.Withdrawed = decimal.Zero
	p.LeverageMultiplier = MIN_LEVERAGE
	p.Dtv = decimal.Zero
	p.Status = PositionOpen
	p.UpdatedAt = now
}
