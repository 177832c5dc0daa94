package core

import (
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawRequest reserves principal of a position for withdrawal once its
// epoch has served the timelock. A pending request was made outside the
// request window and has no epoch yet.
type WithdrawRequest struct {
	Id         uuid.UUID       `json:"id"`
	PositionId uuid.UUID       `json:"positionId"`
	Owner      string          `json:"owner"`
	Asset      string          `json:"asset"`
	Amount     decimal.Decimal `json:"amount"`

	Epoch       uint64 `json:"epoch"`
	Pending     bool   `json:"pending"`
	Liquidation bool   `json:"liquidation"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

func NewWithdrawRequest(clk clock.Clock, position *Position, amount decimal.Decimal, epoch uint64, pending bool) *WithdrawRequest {
	now := clk.Now().Unix()
	return &WithdrawRequest{
		Id:         uuid.Must(uuid.NewV4()),
		PositionId: position.Id,
		Owner:      position.Owner,
		Asset:      position.Asset,
		Amount:     amount,
		Epoch:      epoch,
		Pending:    pending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func NewLiquidationRequest(clk clock.Clock, position *Position, epoch uint64) *WithdrawRequest {
	r := NewWithdrawRequest(clk, position, position.Outstanding(), epoch, false)
	r.Liquidation = true
	return r
}

func (r *WithdrawRequest) Clone() *WithdrawRequest {
	c := *r
	return &c
}

func (r *WithdrawRequest) Stamp(clk clock.Clock, epoch uint64) {
	r.Epoch = epoch
	r.Pending = false
	r.UpdatedAt = clk.Now().Unix()
}

func (r *WithdrawRequest) IsReady(epochs *EpochScheduler, timelock uint64) bool {
	return !r.Pending && epochs.IsReady(r.Epoch, timelock)
}
