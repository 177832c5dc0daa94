package store

import (
	core "github.com/DomeLiquid/leverage"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Decimals are kept as text so sqlite never coerces them to floats.

type operate struct {
	Id        string          `gorm:"primaryKey;size:36"`
	Actor     string          `gorm:"size:255;index"`
	Op        core.ActionType `gorm:"index"`
	Epoch     uint64
	Extra     core.OperateDetail `gorm:"type:text"`
	CreatedAt int64              `gorm:"index;autoCreateTime:false"`
}

func (operate) TableName() string {
	return "operates"
}

// lendingPool is a single-row table holding the latest lending checkpoint.
type lendingPool struct {
	Id uint `gorm:"primaryKey;autoIncrement:false"`

	TotalShares       decimal.Decimal `gorm:"type:varchar(80)"`
	TotalDebt         decimal.Decimal `gorm:"type:varchar(80)"`
	UnderlyingBalance decimal.Decimal `gorm:"type:varchar(80)"`
	TotalBadDebt      decimal.Decimal `gorm:"type:varchar(80)"`
	TotalYield        decimal.Decimal `gorm:"type:varchar(80)"`

	DepositFee     decimal.Decimal     `gorm:"type:varchar(80)"`
	WithdrawFee    decimal.Decimal     `gorm:"type:varchar(80)"`
	FeeReceiver    string              `gorm:"size:255"`
	LeverageVault  string              `gorm:"size:255"`
	MaxUtilization decimal.Decimal     `gorm:"type:varchar(80)"`
	FeeSplit       core.FeeSplitConfig `gorm:"type:text;serializer:json"`

	Shares    core.ShareBook `gorm:"type:text"`
	UpdatedAt int64          `gorm:"autoUpdateTime:false"`
}

func (lendingPool) TableName() string {
	return "lending_pools"
}

func lendingPoolFrom(state *core.LendingPoolState) *lendingPool {
	return &lendingPool{
		Id:                singletonId,
		TotalShares:       state.TotalShares,
		TotalDebt:         state.TotalDebt,
		UnderlyingBalance: state.UnderlyingBalance,
		TotalBadDebt:      state.TotalBadDebt,
		TotalYield:        state.TotalYield,
		DepositFee:        state.DepositFee,
		WithdrawFee:       state.WithdrawFee,
		FeeReceiver:       state.FeeReceiver,
		LeverageVault:     state.LeverageVault,
		MaxUtilization:    state.MaxUtilization,
		FeeSplit:          state.FeeSplit,
		Shares:            state.Shares,
		UpdatedAt:         state.UpdatedAt,
	}
}

func (m *lendingPool) state() *core.LendingPoolState {
	shares := m.Shares
	if shares == nil {
		shares = core.ShareBook{}
	}
	return &core.LendingPoolState{
		TotalShares:       m.TotalShares,
		TotalDebt:         m.TotalDebt,
		UnderlyingBalance: m.UnderlyingBalance,
		TotalBadDebt:      m.TotalBadDebt,
		TotalYield:        m.TotalYield,
		DepositFee:        m.DepositFee,
		WithdrawFee:       m.WithdrawFee,
		FeeReceiver:       m.FeeReceiver,
		LeverageVault:     m.LeverageVault,
		MaxUtilization:    m.MaxUtilization,
		FeeSplit:          m.FeeSplit,
		Shares:            shares,
		UpdatedAt:         m.UpdatedAt,
	}
}

type leveragePool struct {
	Id uint `gorm:"primaryKey;autoIncrement:false"`

	DepositFee  decimal.Decimal `gorm:"type:varchar(80)"`
	WithdrawFee decimal.Decimal `gorm:"type:varchar(80)"`
	FeeReceiver string          `gorm:"size:255"`
	MaxDTV      decimal.Decimal `gorm:"column:max_dtv;type:varchar(80)"`
	MinDeposit  decimal.Decimal `gorm:"type:varchar(80)"`

	Epoch      uint64
	EpochStart int64
	UpdatedAt  int64 `gorm:"autoUpdateTime:false"`
}

func (leveragePool) TableName() string {
	return "leverage_pools"
}

type position struct {
	Id    uuid.UUID `gorm:"primaryKey;type:varchar(36)"`
	Owner string    `gorm:"size:255;uniqueIndex:idx_position_owner_asset"`
	Asset string    `gorm:"size:255;uniqueIndex:idx_position_owner_asset"`

	Principal          decimal.Decimal `gorm:"type:varchar(80)"`
	Debt               decimal.Decimal `gorm:"type:varchar(80)"`
	Deployed           decimal.Decimal `gorm:"type:varchar(80)"`
	Shares             decimal.Decimal `gorm:"type:varchar(80)"`
	Withdrawed         decimal.Decimal `gorm:"type:varchar(80)"`
	LeverageMultiplier int64
	Dtv                decimal.Decimal     `gorm:"type:varchar(80)"`
	Status             core.PositionStatus `gorm:"index"`
	Unpaid             decimal.Decimal     `gorm:"type:varchar(80);default:'0'"`
	UnpaidFee          decimal.Decimal     `gorm:"type:varchar(80);default:'0'"`

	CreatedAt int64 `gorm:"autoCreateTime:false"`
	UpdatedAt int64 `gorm:"autoUpdateTime:false"`
}

func (position) TableName() string {
	return "positions"
}

func positionFrom(p *core.Position) *position {
	return &position{
		Id:                 p.Id,
		Owner:              p.Owner,
		Asset:              p.Asset,
		Principal:          p.Principal,
		Debt:               p.Debt,
		Deployed:           p.Deployed,
		Shares:             p.Shares,
		Withdrawed:         p.Withdrawed,
		LeverageMultiplier: p.LeverageMultiplier,
		Dtv:                p.Dtv,
		Status:             p.Status,
		Unpaid:             p.Unpaid,
		UnpaidFee:          p.UnpaidFee,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func (m *position) position() *core.Position {
	return &core.Position{
		Id:                 m.Id,
		Owner:              m.Owner,
		Asset:              m.Asset,
		Principal:          m.Principal,
		Debt:               m.Debt,
		Deployed:           m.Deployed,
		Shares:             m.Shares,
		Withdrawed:         m.Withdrawed,
		LeverageMultiplier: m.LeverageMultiplier,
		Dtv:                m.Dtv,
		Status:             m.Status,
		Unpaid:             m.Unpaid,
		UnpaidFee:          m.UnpaidFee,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

type withdrawRequest struct {
	Id         uuid.UUID       `gorm:"primaryKey;type:varchar(36)"`
	PositionId uuid.UUID       `gorm:"type:varchar(36);uniqueIndex"`
	Owner      string          `gorm:"size:255;index"`
	Asset      string          `gorm:"size:255"`
	Amount     decimal.Decimal `gorm:"type:varchar(80)"`

	Epoch       uint64
	Pending     bool
	Liquidation bool

	CreatedAt int64 `gorm:"autoCreateTime:false"`
	UpdatedAt int64 `gorm:"autoUpdateTime:false"`
}

func (withdrawRequest) TableName() string {
	return "withdraw_requests"
}

func withdrawRequestFrom(r *core.WithdrawRequest) *withdrawRequest {
	return &withdrawRequest{
		Id:          r.Id,
		PositionId:  r.PositionId,
		Owner:       r.Owner,
		Asset:       r.Asset,
		Amount:      r.Amount,
		Epoch:       r.Epoch,
		Pending:     r.Pending,
		Liquidation: r.Liquidation,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (m *withdrawRequest) request() *core.WithdrawRequest {
	return &core.WithdrawRequest{
		Id:          m.Id,
		PositionId:  m.PositionId,
		Owner:       m.Owner,
		Asset:       m.Asset,
		Amount:      m.Amount,
		Epoch:       m.Epoch,
		Pending:     m.Pending,
		Liquidation: m.Liquidation,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
