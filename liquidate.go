package core

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func sortKeys(keys []PositionKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Owner != keys[j].Owner {
			return keys[i].Owner < keys[j].Owner
		}
		return keys[i].Asset < keys[j].Asset
	})
}

// GetLiquidationUsers lists the active positions whose DTV is at or above
// MaxDTV at the current price.
func (p *LeveragePool) GetLiquidationUsers(ctx context.Context) ([]PositionKey, error) {
	price, err := p.price(ctx)
	if err != nil {
		return nil, err
	}
	split := p.lender.RewardSplit()

	p.mu.Lock()
	defer p.mu.Unlock()

	keys := []PositionKey{}
	for _, pos := range p.positions {
		if !pos.IsActive() {
			continue
		}
		pos.Dtv = pos.DTV(price, split)
		if pos.Dtv.GreaterThanOrEqual(p.maxDTV) {
			keys = append(keys, pos.Key())
		}
	}
	sortKeys(keys)
	return keys, nil
}

// LiquidationRequest puts every listed position into the liquidation queue
// at the current epoch, replacing any withdraw request of its owner. Either
// all positions qualify or nothing changes.
func (p *LeveragePool) LiquidationRequest(ctx context.Context, caller string, keys []PositionKey) error {
	if err := p.roles.Require(caller, RoleAdmin); err != nil {
		return err
	}
	if len(keys) == 0 {
		return errors.Wrap(ErrPositionNotFound, "no positions")
	}
	price, err := p.price(ctx)
	if err != nil {
		return err
	}
	split := p.lender.RewardSplit()

	p.mu.Lock()
	defer p.mu.Unlock()

	targets := make([]*Position, 0, len(keys))
	for _, key := range keys {
		pos, err := p.findPosition(key.Owner, key.Asset)
		if err != nil {
			return err
		}
		if dtv := pos.DTV(price, split); dtv.LessThan(p.maxDTV) {
			return errors.Wrapf(ErrPositionHealthy, "%s/%s dtv %s, max %s", key.Owner, key.Asset, dtv, p.maxDTV)
		}
		targets = append(targets, pos)
	}

	epoch := p.epochs.CurrentEpoch()
	for _, pos := range targets {
		req := NewLiquidationRequest(p.clk, pos, epoch)
		p.requests[pos.Id] = req
		pos.Status = PositionWithdrawRequested
		pos.Dtv = pos.DTV(price, split)
		pos.UpdatedAt = req.CreatedAt

		p.log.Warn().
			Str("owner", pos.Owner).
			Str("asset", pos.Asset).
			Stringer("dtv", pos.Dtv).
			Uint64("epoch", epoch).
			Msg("liquidation requested")
		p.record(ctx, caller, ActionLiquidationRequest, NewActionDetail(pos.Owner, ActionLiquidationRequest, pos.Asset, req.Amount))
	}
	p.updatedAt = p.clk.Now().Unix()
	return nil
}

// Liquidation force-unwinds every liquidation request that has served its
// timelock. Owners pay no withdrawal fee and absorb losses before the
// lender does. Each position settles on its own: one that fails keeps its
// request for the next run, and the first failure is returned with the
// results of the others.
func (p *LeveragePool) Liquidation(ctx context.Context, caller string) ([]*UnwindResult, error) {
	if err := p.roles.Require(caller, RoleAdmin); err != nil {
		return nil, err
	}
	if _, err := p.price(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ready := []*Position{}
	for id, req := range p.requests {
		if req.Liquidation && req.IsReady(p.epochs, p.timelock) {
			ready = append(ready, p.positions[id])
		}
	}
	if len(ready) == 0 {
		return nil, errors.Wrapf(ErrRequestNotReady, "no liquidation ready at epoch %d", p.epochs.CurrentEpoch())
	}
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].Id.String() < ready[j].Id.String()
	})

	var failed error
	results := make([]*UnwindResult, 0, len(ready))
	for _, pos := range ready {
		result, err := p.settleLocked(ctx, pos, pos.Outstanding(), decimal.Zero, true)
		if err != nil {
			p.log.Error().Err(err).Str("owner", pos.Owner).Str("asset", pos.Asset).Msg("liquidation failed")
			if failed == nil {
				failed = errors.Wrapf(err, "liquidate %s/%s", pos.Owner, pos.Asset)
			}
			continue
		}
		if result.Shortfall.IsPositive() {
			p.log.Warn().
				Str("owner", pos.Owner).
				Str("asset", pos.Asset).
				Stringer("shortfall", result.Shortfall).
				Msg("liquidation left bad debt")
		}
		results = append(results, result)
	}
	return results, failed
}
