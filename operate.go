package core

import (
	"context"
	"database/sql/driver"
	"encoding/json"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type ActionType uint8

const (
	ActionUnknown ActionType = iota
	ActionLendingDeposit
	ActionLendingWithdraw
	ActionBorrow
	ActionRepay
	ActionLeverageDeposit
	ActionWithdrawRequest
	ActionWithdrawRequestStamp
	ActionLeverageWithdraw
	ActionLiquidationRequest
	ActionLiquidation
	ActionNewEpoch
	ActionChangeConfig
	ActionClaimPayout
)

func (a ActionType) String() string {
	switch a {
	case ActionLendingDeposit:
		return "LendingDeposit"
	case ActionLendingWithdraw:
		return "LendingWithdraw"
	case ActionBorrow:
		return "Borrow"
	case ActionRepay:
		return "Repay"
	case ActionLeverageDeposit:
		return "LeverageDeposit"
	case ActionWithdrawRequest:
		return "WithdrawRequest"
	case ActionWithdrawRequestStamp:
		return "WithdrawRequestStamp"
	case ActionLeverageWithdraw:
		return "LeverageWithdraw"
	case ActionLiquidationRequest:
		return "LiquidationRequest"
	case ActionLiquidation:
		return "Liquidation"
	case ActionNewEpoch:
		return "NewEpoch"
	case ActionChangeConfig:
		return "ChangeConfig"
	case ActionClaimPayout:
		return "ClaimPayout"
	default:
		return "Unknown"
	}
}

type (
	OperateStore interface {
		CreateOperate(ctx context.Context, operate *Operate) error
		ListOperates(ctx context.Context, actor string, op ActionType, createdBeforeAt, limit int64) ([]Operate, error)
	}

	Operate struct {
		Id        string        `json:"id"`
		Actor     string        `json:"actor"`
		Op        ActionType    `json:"op"`
		Epoch     uint64        `json:"epoch"`
		Extra     OperateDetail `json:"extra"`
		CreatedAt int64         `json:"createdAt"`
	}

	OperateDetail struct {
		Type    ActionType     `json:"type"`
		Actor   string         `json:"actor"`
		Actions []ActionDetail `json:"actions"`
	}

	ActionDetail struct {
		Actor      string          `json:"actor"`
		ActionType ActionType      `json:"actionType"`
		Asset      string          `json:"asset"`
		Amount     decimal.Decimal `json:"amount"`
	}
)

func NewOperate(clk clock.Clock, actor string, epoch uint64, typ ActionType, actions ...ActionDetail) Operate {
	return Operate{
		Id:    uuid.Must(uuid.NewV4()).String(),
		Actor: actor,
		Op:    typ,
		Epoch: epoch,
		Extra: OperateDetail{
			Type:    typ,
			Actor:   actor,
			Actions: actions,
		},
		CreatedAt: clk.Now().Unix(),
	}
}

func NewActionDetail(actor string, typ ActionType, asset string, amount decimal.Decimal) ActionDetail {
	return ActionDetail{
		Actor:      actor,
		ActionType: typ,
		Asset:      asset,
		Amount:     amount,
	}
}

func (j OperateDetail) Value() (driver.Value, error) {
	valueString, err := json.Marshal(j)
	return string(valueString), err
}

func (j *OperateDetail) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Errorf("unsupported operate detail type %T", value)
	}
	return json.Unmarshal(raw, j)
}

// recordOperate journals op. A journal failure never undoes the operation.
func recordOperate(ctx context.Context, store OperateStore, log Log, op Operate) {
	if store == nil {
		return
	}
	if err := store.CreateOperate(ctx, &op); err != nil {
		log.Warn().Err(err).Str("op", op.Op.String()).Str("actor", op.Actor).Msg("record operate failed")
	}
}
