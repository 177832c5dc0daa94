package core

import (
	"context"

	"github.com/pkg/errors"
)

// StateStore persists pool checkpoints.
type StateStore interface {
	SaveLendingState(ctx context.Context, state *LendingPoolState) error
	LoadLendingState(ctx context.Context) (*LendingPoolState, error)
	SaveLeverageState(ctx context.Context, state *LeveragePoolState) error
	LoadLeverageState(ctx context.Context) (*LeveragePoolState, error)
}

// Checkpoint saves both pools as of one instant. The leverage pool lock is
// held while the lending pool is read so no cross-pool call interleaves.
func Checkpoint(ctx context.Context, store StateStore, lending *LendingPool, leverage *LeveragePool) error {
	leverage.mu.Lock()
	lendingState := lending.State()
	leverageState := leverage.stateLocked()
	leverage.mu.Unlock()

	if err := store.SaveLendingState(ctx, &lendingState); err != nil {
		return errors.Wrap(err, "save lending state")
	}
	if err := store.SaveLeverageState(ctx, &leverageState); err != nil {
		return errors.Wrap(err, "save leverage state")
	}
	return nil
}

// Recover loads the latest checkpoint into both pools. A store without a
// checkpoint leaves the pools untouched.
func Recover(ctx context.Context, store StateStore, lending *LendingPool, leverage *LeveragePool) error {
	lendingState, err := store.LoadLendingState(ctx)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		return errors.Wrap(err, "load lending state")
	}
	leverageState, err := store.LoadLeverageState(ctx)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		return errors.Wrap(err, "load leverage state")
	}

	if err := lending.Restore(*lendingState); err != nil {
		return err
	}
	return leverage.Restore(*leverageState)
}
