package store

import (
	"context"

	core "github.com/DomeLiquid/leverage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const singletonId = 1

func (s *Store) SaveLendingState(ctx context.Context, state *core.LendingPoolState) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(lendingPoolFrom(state)).Error
}

func (s *Store) LoadLendingState(ctx context.Context) (*core.LendingPoolState, error) {
	var row lendingPool
	if err := s.db.WithContext(ctx).First(&row, singletonId).Error; err != nil {
		return nil, notFound(err)
	}
	return row.state(), nil
}

// SaveLeverageState replaces the stored positions and requests with state
// in one transaction.
func (s *Store) SaveLeverageState(ctx context.Context, state *core.LeveragePoolState) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pool := &leveragePool{
			Id:          singletonId,
			DepositFee:  state.DepositFee,
			WithdrawFee: state.WithdrawFee,
			FeeReceiver: state.FeeReceiver,
			MaxDTV:      state.MaxDTV,
			MinDeposit:  state.MinDeposit,
			Epoch:       state.Epoch,
			EpochStart:  state.EpochStart,
			UpdatedAt:   state.UpdatedAt,
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(pool).Error; err != nil {
			return err
		}

		if err := tx.Where("1 = 1").Delete(&withdrawRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&position{}).Error; err != nil {
			return err
		}

		if len(state.Positions) > 0 {
			rows := make([]*position, 0, len(state.Positions))
			for _, p := range state.Positions {
				rows = append(rows, positionFrom(p))
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		if len(state.Requests) > 0 {
			rows := make([]*withdrawRequest, 0, len(state.Requests))
			for _, r := range state.Requests {
				rows = append(rows, withdrawRequestFrom(r))
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) LoadLeverageState(ctx context.Context) (*core.LeveragePoolState, error) {
	db := s.db.WithContext(ctx)

	var pool leveragePool
	if err := db.First(&pool, singletonId).Error; err != nil {
		return nil, notFound(err)
	}
	var positions []position
	if err := db.Order("id").Find(&positions).Error; err != nil {
		return nil, err
	}
	var requests []withdrawRequest
	if err := db.Order("position_id").Find(&requests).Error; err != nil {
		return nil, err
	}

	state := &core.LeveragePoolState{
		DepositFee:  pool.DepositFee,
		WithdrawFee: pool.WithdrawFee,
		FeeReceiver: pool.FeeReceiver,
		MaxDTV:      pool.MaxDTV,
		MinDeposit:  pool.MinDeposit,
		Epoch:       pool.Epoch,
		EpochStart:  pool.EpochStart,
		Positions:   make([]*core.Position, 0, len(positions)),
		Requests:    make([]*core.WithdrawRequest, 0, len(requests)),
		UpdatedAt:   pool.UpdatedAt,
	}
	for i := range positions {
		state.Positions = append(state.Positions, positions[i].position())
	}
	for i := range requests {
		state.Requests = append(state.Requests, requests[i].request())
	}
	return state, nil
}

// Positions lists the stored positions of owner, or all when owner is
// empty.
func (s *Store) Positions(ctx context.Context, owner string) ([]*core.Position, error) {
	tx := s.db.WithContext(ctx).Order("id")
	if owner != "" {
		tx = tx.Where("owner = ?", owner)
	}
	var rows []position
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	positions := make([]*core.Position, 0, len(rows))
	for i := range rows {
		positions = append(positions, rows[i].position())
	}
	return positions, nil
}
