package core

import (
	"context"
	"sort"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	LeveragePoolConfig struct {
		// Asset is the underlying the pool borrows and deploys; it must match
		// the lender's.
		Asset           string
		Account         string
		SupportedAssets []string

		DepositFee             decimal.Decimal
		WithdrawFee            decimal.Decimal
		FeeReceiver            string
		MaxDTV                 decimal.Decimal
		MinDeposit             decimal.Decimal
		WithdrawEpochsTimelock uint64
	}

	LeveragePoolState struct {
		DepositFee  decimal.Decimal `json:"depositFee"`
		WithdrawFee decimal.Decimal `json:"withdrawFee"`
		FeeReceiver string          `json:"feeReceiver"`
		MaxDTV      decimal.Decimal `json:"maxDtv"`
		MinDeposit  decimal.Decimal `json:"minDeposit"`

		Epoch      uint64 `json:"epoch"`
		EpochStart int64  `json:"epochStart"`

		Positions []*Position        `json:"positions"`
		Requests  []*WithdrawRequest `json:"requests"`
		UpdatedAt int64              `json:"updatedAt"`
	}

	Rewards struct {
		UserRewards   decimal.Decimal `json:"userRewards"`
		LenderRewards decimal.Decimal `json:"lenderRewards"`
		TotalDTV      decimal.Decimal `json:"totalDtv"`
	}

	VaultInfo struct {
		Shares     decimal.Decimal `json:"shares"`
		Withdrawed decimal.Decimal `json:"withdrawed"`
	}

	// UnwindResult describes one settled slice of a position.
	UnwindResult struct {
		PositionId  uuid.UUID       `json:"positionId"`
		Owner       string          `json:"owner"`
		Asset       string          `json:"asset"`
		Principal   decimal.Decimal `json:"principal"`
		Shares      decimal.Decimal `json:"shares"`
		Value       decimal.Decimal `json:"value"`
		Debt        decimal.Decimal `json:"debt"`
		Repaid      decimal.Decimal `json:"repaid"`
		Refund      decimal.Decimal `json:"refund"`
		Shortfall   decimal.Decimal `json:"shortfall"`
		Fee         decimal.Decimal `json:"fee"`
		Payout      decimal.Decimal `json:"payout"`
		Deferred    decimal.Decimal `json:"deferred"`
		Liquidation bool            `json:"liquidation"`
	}
)

func DefaultLeveragePoolConfig(asset, account string) LeveragePoolConfig {
	return LeveragePoolConfig{
		Asset:                  asset,
		Account:                account,
		DepositFee:             DEFAULT_PROTOCOL_FEE,
		WithdrawFee:            DEFAULT_PROTOCOL_FEE,
		MaxDTV:                 DEFAULT_MAX_DTV,
		MinDeposit:             DEFAULT_MIN_DEPOSIT,
		WithdrawEpochsTimelock: DEFAULT_WITHDRAW_EPOCHS_TIMELOCK,
	}
}

func (c *LeveragePoolConfig) Validate() error {
	if c.Asset == "" || c.Account == "" {
		return InvalidConfig
	}
	if !validFee(c.DepositFee) || !validFee(c.WithdrawFee) {
		return InvalidConfig
	}
	if (c.DepositFee.IsPositive() || c.WithdrawFee.IsPositive()) && c.FeeReceiver == "" {
		return InvalidConfig
	}
	if !validMaxDTV(c.MaxDTV) {
		return InvalidConfig
	}
	if c.MinDeposit.IsNegative() {
		return InvalidConfig
	}
	return nil
}

func validMaxDTV(maxDTV decimal.Decimal) bool {
	return maxDTV.IsPositive() && maxDTV.LessThanOrEqual(ONE)
}

// LeveragePool opens leveraged positions in a yield asset with liquidity
// borrowed from a Lender and settles withdrawals through an epoch-gated
// request queue.
type LeveragePool struct {
	log      Log
	clk      clock.Clock
	ledger   Ledger
	swapper  Swapper
	roles    *Roles
	operates OperateStore
	lender   Lender
	yield    YieldAsset
	epochs   *EpochScheduler

	asset     string
	account   string
	supported map[string]bool
	timelock  uint64

	mu          sync.Mutex
	depositFee  decimal.Decimal
	withdrawFee decimal.Decimal
	feeReceiver string
	maxDTV      decimal.Decimal
	minDeposit  decimal.Decimal
	positions   map[uuid.UUID]*Position
	requests    map[uuid.UUID]*WithdrawRequest // by position id
	updatedAt   int64
}

func NewLeveragePool(ledger Ledger, swapper Swapper, lender Lender, yield YieldAsset, epochs *EpochScheduler, roles *Roles, cfg LeveragePoolConfig, opts ...OptionFunc) (*LeveragePool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lender.Asset() != cfg.Asset || yield.Asset() != cfg.Asset {
		return nil, errors.Wrapf(InvalidConfig, "underlying mismatch: pool %s, lender %s, yield %s", cfg.Asset, lender.Asset(), yield.Asset())
	}
	o := newPoolOptions(opts...)

	supported := map[string]bool{cfg.Asset: true}
	for _, asset := range cfg.SupportedAssets {
		supported[asset] = true
	}

	return &LeveragePool{
		log:         o.log,
		clk:         o.clk,
		ledger:      ledger,
		swapper:     swapper,
		roles:       roles,
		operates:    o.operates,
		lender:      lender,
		yield:       yield,
		epochs:      epochs,
		asset:       cfg.Asset,
		account:     cfg.Account,
		supported:   supported,
		timelock:    cfg.WithdrawEpochsTimelock,
		depositFee:  cfg.DepositFee,
		withdrawFee: cfg.WithdrawFee,
		feeReceiver: cfg.FeeReceiver,
		maxDTV:      cfg.MaxDTV,
		minDeposit:  cfg.MinDeposit,
		positions:   make(map[uuid.UUID]*Position),
		requests:    make(map[uuid.UUID]*WithdrawRequest),
		updatedAt:   o.clk.Now().Unix(),
	}, nil
}

func (p *LeveragePool) Account() string {
	return p.account
}

func (p *LeveragePool) Asset() string {
	return p.asset
}

func (p *LeveragePool) WithdrawEpochsTimelock() uint64 {
	return p.timelock
}

func (p *LeveragePool) price(ctx context.Context) (decimal.Decimal, error) {
	price, err := p.yield.CurrentPrice(ctx)
	if err != nil {
		if errors.Is(err, ErrOracleUnavailable) {
			return decimal.Zero, err
		}
		return decimal.Zero, errors.Wrapf(ErrOracleUnavailable, "%v", err)
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrOracleUnavailable, "price %s", price)
	}
	return price, nil
}

// GTokenPrice is the current yield-asset share price in the underlying.
func (p *LeveragePool) GTokenPrice(ctx context.Context) (decimal.Decimal, error) {
	return p.price(ctx)
}

func (p *LeveragePool) CurrentEpoch() uint64 {
	return p.epochs.CurrentEpoch()
}

func (p *LeveragePool) record(ctx context.Context, actor string, typ ActionType, actions ...ActionDetail) {
	recordOperate(ctx, p.operates, p.log, NewOperate(p.clk, actor, p.epochs.CurrentEpoch(), typ, actions...))
}

func (p *LeveragePool) findPosition(owner, asset string) (*Position, error) {
	pos, ok := p.positions[PositionId(owner, asset)]
	if !ok || !pos.IsActive() {
		return nil, errors.Wrapf(ErrPositionNotFound, "%s/%s", owner, asset)
	}
	return pos, nil
}

// Deposit opens or tops up the position of caller in asset. leverage is
// the total exposure in percent: 300 borrows twice the net deposit.
func (p *LeveragePool) Deposit(ctx context.Context, caller, asset string, amount decimal.Decimal, leverage int64) (*Position, error) {
	if !amount.IsPositive() {
		return nil, errors.Wrapf(ErrInvalidAmount, "deposit %s %s", amount, asset)
	}
	if !p.supported[asset] {
		return nil, errors.Wrap(ErrUnsupportedAsset, asset)
	}
	if leverage < MIN_LEVERAGE || leverage > MAX_LEVERAGE {
		return nil, errors.Wrapf(ErrInvalidLeverage, "leverage %d", leverage)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if amount.LessThan(p.minDeposit) {
		return nil, errors.Wrapf(ErrNotEnoughAmount, "deposit %s below minimum %s", amount, p.minDeposit)
	}

	id := PositionId(caller, asset)
	if req, ok := p.requests[id]; ok && req.Liquidation {
		return nil, errors.Wrapf(ErrPositionClosed, "%s/%s is being liquidated", caller, asset)
	}
	pos, ok := p.positions[id]
	if !ok {
		pos = NewPosition(p.clk, caller, asset)
	}
	if pos.Status == PositionLiquidated {
		return nil, errors.Wrapf(ErrPositionClosed, "%s/%s was liquidated", caller, asset)
	}

	price, err := p.price(ctx)
	if err != nil {
		return nil, err
	}
	split := p.lender.RewardSplit()

	fee, net := CalcFee(amount, p.depositFee)
	quoted, err := p.swapper.Quote(ctx, asset, p.asset, net)
	if err != nil {
		return nil, err
	}
	borrow := quoted.Mul(decimal.NewFromInt(leverage - MIN_LEVERAGE)).Div(HUNDRED).Truncate(Precision)

	next := pos.Clone()
	if next.Status == PositionRedeemed {
		next.reset(p.clk.Now().Unix())
	}
	prospective := next.Clone()
	prospective.Debt = prospective.Debt.Add(borrow)
	prospective.Deployed = prospective.Deployed.Add(quoted).Add(borrow)
	prospective.Shares = prospective.Shares.Add(Div(quoted.Add(borrow), price))
	if dtv := prospective.DTV(price, split); dtv.GreaterThanOrEqual(p.maxDTV) {
		return nil, errors.Wrapf(ErrThresholdBreach, "dtv %s after deposit, max %s", dtv, p.maxDTV)
	}

	var undo undoStack
	if err := p.ledger.Transfer(ctx, asset, caller, p.account, amount); err != nil {
		return nil, err
	}
	undo.push(func(ctx context.Context) error {
		return p.ledger.Transfer(ctx, asset, p.account, caller, amount)
	})

	feeReceiver := p.feeReceiver
	if err := p.ledger.Transfer(ctx, asset, p.account, feeReceiver, fee); err != nil {
		undo.unwind(ctx, p.log)
		return nil, err
	}
	undo.push(func(ctx context.Context) error {
		return p.ledger.Transfer(ctx, asset, feeReceiver, p.account, fee)
	})

	received, err := p.swapper.Swap(ctx, p.account, asset, p.asset, net)
	if err != nil {
		undo.unwind(ctx, p.log)
		return nil, err
	}
	undo.push(func(ctx context.Context) error {
		_, err := p.swapper.Swap(ctx, p.account, p.asset, asset, received)
		return err
	})

	if borrow.IsPositive() {
		if err := p.lender.Borrow(ctx, p.account, borrow); err != nil {
			undo.unwind(ctx, p.log)
			return nil, err
		}
		undo.push(func(ctx context.Context) error {
			_, err := p.lender.Repay(ctx, p.account, borrow, borrow)
			return err
		})
	}

	deployed := received.Add(borrow)
	shares, err := p.yield.Deposit(ctx, p.account, deployed)
	if err != nil {
		undo.unwind(ctx, p.log)
		return nil, err
	}

	next.Principal = next.Principal.Add(received)
	next.Debt = next.Debt.Add(borrow)
	next.Deployed = next.Deployed.Add(deployed)
	next.Shares = next.Shares.Add(shares)
	next.refreshLeverage()
	next.Dtv = next.DTV(price, split)
	next.UpdatedAt = p.clk.Now().Unix()
	p.positions[id] = next
	p.updatedAt = next.UpdatedAt

	p.log.Info().
		Str("owner", caller).
		Str("asset", asset).
		Stringer("amount", amount).
		Stringer("fee", fee).
		Stringer("borrow", borrow).
		Stringer("shares", shares).
		Int64("leverage", leverage).
		Stringer("dtv", next.Dtv).
		Msg("leverage deposit")
	p.record(ctx, caller, ActionLeverageDeposit,
		NewActionDetail(caller, ActionLeverageDeposit, asset, amount),
		NewActionDetail(p.account, ActionBorrow, p.asset, borrow))
	return next.Clone(), nil
}

// AvailableWithdrawRequestAmount is the principal of owner in asset that is
// neither settled nor already requested.
func (p *LeveragePool) AvailableWithdrawRequestAmount(owner, asset string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, err := p.findPosition(owner, asset)
	if err != nil {
		return decimal.Zero
	}
	return p.availableLocked(pos)
}

func (p *LeveragePool) availableLocked(pos *Position) decimal.Decimal {
	available := pos.Outstanding()
	if req, ok := p.requests[pos.Id]; ok {
		available = available.Sub(req.Amount)
	}
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// MakeWithdrawRequest queues amount of principal for withdrawal. Inside the
// request window it is stamped with the current epoch, otherwise it waits
// as pending until MakeWithdrawRequestOfPending runs.
func (p *LeveragePool) MakeWithdrawRequest(ctx context.Context, caller, asset string, amount decimal.Decimal) (*WithdrawRequest, error) {
	if !amount.IsPositive() {
		return nil, errors.Wrapf(ErrNotEnoughAmount, "request %s %s", amount, asset)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, err := p.findPosition(caller, asset)
	if err != nil {
		return nil, err
	}
	if _, ok := p.requests[pos.Id]; ok {
		return nil, errors.Wrapf(ErrRequestExists, "%s/%s", caller, asset)
	}
	if available := p.availableLocked(pos); amount.GreaterThan(available) {
		return nil, errors.Wrapf(ErrNotEnoughAmount, "request %s, available %s", amount, available)
	}

	pending := !p.epochs.InRequestWindow()
	req := NewWithdrawRequest(p.clk, pos, amount, p.epochs.CurrentEpoch(), pending)
	p.requests[pos.Id] = req
	pos.Status = PositionWithdrawRequested
	pos.UpdatedAt = req.CreatedAt
	p.updatedAt = req.CreatedAt

	p.log.Info().
		Str("owner", caller).
		Str("asset", asset).
		Stringer("amount", amount).
		Uint64("epoch", req.Epoch).
		Bool("pending", pending).
		Msg("withdraw request")
	p.record(ctx, caller, ActionWithdrawRequest, NewActionDetail(caller, ActionWithdrawRequest, asset, amount))
	return req.Clone(), nil
}

// HasPendingRequestNow reports whether pending requests exist and the
// request window is open to stamp them.
func (p *LeveragePool) HasPendingRequestNow() bool {
	if !p.epochs.InRequestWindow() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, req := range p.requests {
		if req.Pending {
			return true
		}
	}
	return false
}

// MakeWithdrawRequestOfPending stamps every pending request with the current
// epoch and returns how many were stamped.
func (p *LeveragePool) MakeWithdrawRequestOfPending(ctx context.Context) (int, error) {
	if !p.epochs.InRequestWindow() {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	epoch := p.epochs.CurrentEpoch()
	stamped := 0
	for _, req := range p.requests {
		if !req.Pending {
			continue
		}
		req.Stamp(p.clk, epoch)
		stamped++
		p.record(ctx, req.Owner, ActionWithdrawRequestStamp, NewActionDetail(req.Owner, ActionWithdrawRequestStamp, req.Asset, req.Amount))
	}
	if stamped > 0 {
		p.updatedAt = p.clk.Now().Unix()
		p.log.Info().Int("count", stamped).Uint64("epoch", epoch).Msg("pending withdraw requests stamped")
	}
	return stamped, nil
}

func (p *LeveragePool) readyRequest(pos *Position) (*WithdrawRequest, error) {
	req, ok := p.requests[pos.Id]
	if !ok {
		return nil, errors.Wrapf(ErrRequestNotFound, "%s/%s", pos.Owner, pos.Asset)
	}
	if req.Liquidation {
		return nil, errors.Wrapf(ErrPositionClosed, "%s/%s is being liquidated", pos.Owner, pos.Asset)
	}
	if !req.IsReady(p.epochs, p.timelock) {
		return nil, errors.Wrapf(ErrRequestNotReady, "request epoch %d, current %d, timelock %d", req.Epoch, p.epochs.CurrentEpoch(), p.timelock)
	}
	return req, nil
}

// WithdrawStableCoin settles amount of requested principal and pays the
// owner's part in asset. The request is consumed whole.
func (p *LeveragePool) WithdrawStableCoin(ctx context.Context, caller, asset string, amount decimal.Decimal) (*UnwindResult, error) {
	if !amount.IsPositive() {
		return nil, errors.Wrapf(ErrInvalidAmount, "withdraw %s %s", amount, asset)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, err := p.findPosition(caller, asset)
	if err != nil {
		return nil, err
	}
	req, err := p.readyRequest(pos)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(req.Amount) {
		return nil, errors.Wrapf(ErrNotEnoughAmount, "withdraw %s, requested %s", amount, req.Amount)
	}

	return p.settleLocked(ctx, pos, amount, p.withdrawFee, false)
}

// Redeem settles the requested principal that shares of the yield asset
// represent.
func (p *LeveragePool) Redeem(ctx context.Context, caller, asset string, shares decimal.Decimal) (*UnwindResult, error) {
	if !shares.IsPositive() {
		return nil, errors.Wrapf(ErrInvalidAmount, "redeem %s shares", shares)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, err := p.findPosition(caller, asset)
	if err != nil {
		return nil, err
	}
	req, err := p.readyRequest(pos)
	if err != nil {
		return nil, err
	}
	if shares.GreaterThan(pos.Shares) {
		return nil, errors.Wrapf(ErrNotEnoughAmount, "redeem %s of %s shares", shares, pos.Shares)
	}

	amount := MulDiv(shares, pos.Outstanding(), pos.Shares)
	if shares.Equal(pos.Shares) {
		amount = pos.Outstanding()
	}
	if amount.Sub(req.Amount).GreaterThan(EMPTY_BALANCE_THRESHOLD) {
		return nil, errors.Wrapf(ErrNotEnoughAmount, "redeem %s of principal, requested %s", amount, req.Amount)
	}
	if amount.GreaterThan(req.Amount) {
		amount = req.Amount
	}

	return p.settleLocked(ctx, pos, amount, p.withdrawFee, false)
}

// settleLocked unwinds principal of pos, drops its request and updates
// its status.
func (p *LeveragePool) settleLocked(ctx context.Context, pos *Position, principal, feeRate decimal.Decimal, liquidation bool) (*UnwindResult, error) {
	result, err := p.unwindLocked(ctx, pos, principal, feeRate, liquidation)
	if err != nil {
		return nil, err
	}

	delete(p.requests, pos.Id)
	switch {
	case liquidation:
		pos.Status = PositionLiquidated
	case !pos.Outstanding().IsPositive():
		pos.Status = PositionRedeemed
	default:
		pos.Status = PositionOpen
	}

	typ := ActionLeverageWithdraw
	if liquidation {
		typ = ActionLiquidation
	}
	p.record(ctx, pos.Owner, typ,
		NewActionDetail(pos.Owner, typ, pos.Asset, result.Payout),
		NewActionDetail(p.account, ActionRepay, p.asset, result.Repaid))
	return result, nil
}

// unwindLocked redeems the share of pos backing principal, repays the
// lender its debt plus the profit and pays the rest to the owner. The
// lender never gets more than the slice is worth; what it is short is
// written off on its side. Nothing changes unless the lender leg lands;
// after it the slice is committed and a payout that fails stays
// claimable on the position.
func (p *LeveragePool) unwindLocked(ctx context.Context, pos *Position, principal, feeRate decimal.Decimal, liquidation bool) (*UnwindResult, error) {
	outstanding := pos.Outstanding()
	if !outstanding.IsPositive() || principal.GreaterThan(outstanding) {
		return nil, errors.Wrapf(ErrNotEnoughAmount, "unwind %s of %s", principal, outstanding)
	}

	price, err := p.price(ctx)
	if err != nil {
		return nil, err
	}

	full := principal.Equal(outstanding)
	shares, debt, cost := pos.Shares, pos.Debt, pos.Deployed
	if !full {
		shares = MulDiv(pos.Shares, principal, outstanding)
		debt = MulDiv(pos.Debt, principal, outstanding)
		cost = MulDiv(pos.Deployed, principal, outstanding)
	}

	var undo undoStack
	value := decimal.Zero
	if shares.IsPositive() {
		value, err = p.yield.Redeem(ctx, p.account, shares)
		if err != nil {
			return nil, err
		}
		undo.push(func(ctx context.Context) error {
			_, err := p.yield.Deposit(ctx, p.account, value)
			return err
		})
	}

	profit := value.Sub(cost)
	repay := decimal.Min(debt, value)
	if profit.IsPositive() {
		repay = debt.Add(profit)
	}
	refund := decimal.Zero
	if debt.IsPositive() || repay.IsPositive() {
		refund, err = p.lender.Repay(ctx, p.account, debt, repay)
		if err != nil {
			undo.unwind(ctx, p.log)
			return nil, err
		}
	}

	remainder := value.Sub(repay).Add(refund)
	fee, net := CalcFee(remainder, feeRate)
	if full {
		pos.Shares = decimal.Zero
		pos.Debt = decimal.Zero
		pos.Deployed = decimal.Zero
	} else {
		pos.Shares = pos.Shares.Sub(shares)
		pos.Debt = pos.Debt.Sub(debt)
		pos.Deployed = pos.Deployed.Sub(cost)
	}
	pos.Withdrawed = pos.Withdrawed.Add(principal)
	pos.Unpaid = pos.Unpaid.Add(net)
	pos.UnpaidFee = pos.UnpaidFee.Add(fee)
	pos.Dtv = pos.DTV(price, p.lender.RewardSplit())
	pos.UpdatedAt = p.clk.Now().Unix()
	p.updatedAt = pos.UpdatedAt

	payout, err := p.payLocked(ctx, pos)
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("owner", pos.Owner).
			Str("asset", pos.Asset).
			Stringer("unpaid", pos.Unpaid).
			Msg("payout deferred")
	}

	shortfall := decimal.Zero
	if debt.GreaterThan(repay) {
		shortfall = debt.Sub(repay)
	}
	result := &UnwindResult{
		PositionId:  pos.Id,
		Owner:       pos.Owner,
		Asset:       pos.Asset,
		Principal:   principal,
		Shares:      shares,
		Value:       value,
		Debt:        debt,
		Repaid:      repay,
		Refund:      refund,
		Shortfall:   shortfall,
		Fee:         fee,
		Payout:      payout,
		Deferred:    pos.Unpaid,
		Liquidation: liquidation,
	}

	p.log.Info().
		Str("owner", pos.Owner).
		Str("asset", pos.Asset).
		Stringer("principal", principal).
		Stringer("value", value).
		Stringer("repaid", repay).
		Stringer("refund", refund).
		Stringer("payout", payout).
		Bool("liquidation", liquidation).
		Msg("position unwound")
	return result, nil
}

// payLocked sends the unpaid fee and settlement of pos. Each leg is
// cleared only once it lands.
func (p *LeveragePool) payLocked(ctx context.Context, pos *Position) (decimal.Decimal, error) {
	if pos.UnpaidFee.IsPositive() {
		if err := p.ledger.Transfer(ctx, p.asset, p.account, p.feeReceiver, pos.UnpaidFee); err != nil {
			return decimal.Zero, errors.Wrap(err, "withdraw fee")
		}
		pos.UnpaidFee = decimal.Zero
	}
	if !pos.Unpaid.IsPositive() {
		return decimal.Zero, nil
	}

	out, err := p.swapper.Swap(ctx, p.account, p.asset, pos.Asset, pos.Unpaid)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "payout swap")
	}
	if err := p.ledger.Transfer(ctx, pos.Asset, p.account, pos.Owner, out); err != nil {
		if _, uerr := p.swapper.Swap(ctx, p.account, pos.Asset, p.asset, out); uerr != nil {
			p.log.Error().Err(uerr).Msg("compensation failed")
		}
		return decimal.Zero, errors.Wrap(err, "payout transfer")
	}
	pos.Unpaid = decimal.Zero
	return out, nil
}

// ClaimPayout sends what earlier settlements of the caller's position in
// asset could not pay out.
func (p *LeveragePool) ClaimPayout(ctx context.Context, caller, asset string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[PositionId(caller, asset)]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrPositionNotFound, "%s/%s", caller, asset)
	}
	if !pos.Unpaid.IsPositive() && !pos.UnpaidFee.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrNotEnoughAmount, "%s/%s has nothing to claim", caller, asset)
	}

	paid, err := p.payLocked(ctx, pos)
	if err != nil {
		return decimal.Zero, err
	}
	pos.UpdatedAt = p.clk.Now().Unix()
	p.updatedAt = pos.UpdatedAt

	p.log.Info().Str("owner", caller).Str("asset", asset).Stringer("paid", paid).Msg("payout claimed")
	p.record(ctx, caller, ActionClaimPayout, NewActionDetail(caller, ActionClaimPayout, asset, paid))
	return paid, nil
}

// UpdateDTV refreshes the cached DTV of every active position.
func (p *LeveragePool) UpdateDTV(ctx context.Context) error {
	price, err := p.price(ctx)
	if err != nil {
		return err
	}
	split := p.lender.RewardSplit()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pos := range p.positions {
		if pos.IsActive() {
			pos.Dtv = pos.DTV(price, split)
		}
	}
	return nil
}

func (p *LeveragePool) PositionDTV(ctx context.Context, owner, asset string) (decimal.Decimal, error) {
	price, err := p.price(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	split := p.lender.RewardSplit()

	p.mu.Lock()
	defer p.mu.Unlock()
	pos, err := p.findPosition(owner, asset)
	if err != nil {
		return decimal.Zero, err
	}
	return pos.DTV(price, split), nil
}

// TotalDTV is the DTV of all active positions taken together.
func (p *LeveragePool) TotalDTV(ctx context.Context) (decimal.Decimal, error) {
	rewards, err := p.GetTotalRewards(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return rewards.TotalDTV, nil
}

// GetTotalRewards splits the unrealized profit of all active positions
// between owners and the lender.
func (p *LeveragePool) GetTotalRewards(ctx context.Context) (*Rewards, error) {
	price, err := p.price(ctx)
	if err != nil {
		return nil, err
	}
	split := p.lender.RewardSplit()

	p.mu.Lock()
	defer p.mu.Unlock()

	profit, lender, debt, value := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, pos := range p.positions {
		if !pos.IsActive() {
			continue
		}
		if pp := pos.Profit(price); pp.IsPositive() {
			profit = profit.Add(pp)
		}
		lender = lender.Add(pos.LenderCut(price, split))
		debt = debt.Add(pos.Debt)
		value = value.Add(pos.Value(price))
	}

	total := decimal.Zero
	switch {
	case value.IsPositive():
		total = Div(debt.Add(lender), value)
	case debt.IsPositive():
		total = ONE
	}
	return &Rewards{
		UserRewards:   profit.Sub(lender),
		LenderRewards: lender,
		TotalDTV:      total,
	}, nil
}

// MaxWithdrawAmountOf is what owner would keep across all positions if
// they were unwound at the current price.
func (p *LeveragePool) MaxWithdrawAmountOf(ctx context.Context, owner string) (decimal.Decimal, error) {
	price, err := p.price(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	split := p.lender.RewardSplit()

	p.mu.Lock()
	defer p.mu.Unlock()

	total := decimal.Zero
	for _, pos := range p.positions {
		if pos.Owner == owner && pos.IsActive() {
			total = total.Add(pos.Equity(price, split))
		}
	}
	return total, nil
}

func (p *LeveragePool) VaultInfoOf(owner, asset string) VaultInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[PositionId(owner, asset)]
	if !ok {
		return VaultInfo{Shares: decimal.Zero, Withdrawed: decimal.Zero}
	}
	return VaultInfo{Shares: pos.Shares, Withdrawed: pos.Withdrawed}
}

func (p *LeveragePool) Position(owner, asset string) (*Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[PositionId(owner, asset)]
	if !ok {
		return nil, errors.Wrapf(ErrPositionNotFound, "%s/%s", owner, asset)
	}
	return pos.Clone(), nil
}

func (p *LeveragePool) WithdrawRequestOf(owner, asset string) (*WithdrawRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, ok := p.requests[PositionId(owner, asset)]
	if !ok {
		return nil, errors.Wrapf(ErrRequestNotFound, "%s/%s", owner, asset)
	}
	return req.Clone(), nil
}

func (p *LeveragePool) sum(field func(pos *Position) decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := decimal.Zero
	for _, pos := range p.positions {
		if pos.IsActive() {
			total = total.Add(field(pos))
		}
	}
	return total
}

// TotalShares is the yield-asset balance held for all positions.
func (p *LeveragePool) TotalShares() decimal.Decimal {
	return p.sum(func(pos *Position) decimal.Decimal { return pos.Shares })
}

func (p *LeveragePool) TotalDebtToLend() decimal.Decimal {
	return p.sum(func(pos *Position) decimal.Decimal { return pos.Debt })
}

func (p *LeveragePool) TotalDepositAmount() decimal.Decimal {
	return p.sum(func(pos *Position) decimal.Decimal { return pos.Outstanding() })
}

// TryAdvanceEpoch starts the next epoch once the current one has elapsed.
func (p *LeveragePool) TryAdvanceEpoch(ctx context.Context) bool {
	if !p.epochs.TryAdvance() {
		return false
	}
	epoch := p.epochs.CurrentEpoch()
	p.log.Info().Uint64("epoch", epoch).Msg("new epoch")
	p.record(ctx, "", ActionNewEpoch)
	return true
}

func (p *LeveragePool) ForceNewEpoch(ctx context.Context, caller string) (uint64, error) {
	if err := p.roles.Require(caller, RoleOwner|RoleAdmin); err != nil {
		return 0, err
	}
	epoch := p.epochs.ForceNewEpoch()
	p.log.Info().Str("caller", caller).Uint64("epoch", epoch).Msg("forced new epoch")
	p.record(ctx, caller, ActionNewEpoch)
	return epoch, nil
}

func (p *LeveragePool) ChangeProtocolFee(ctx context.Context, caller, receiver string, depositFee, withdrawFee decimal.Decimal) error {
	if err := p.roles.Require(caller, RoleOwner); err != nil {
		return err
	}
	if !validFee(depositFee) || !validFee(withdrawFee) {
		return errors.Wrapf(InvalidConfig, "protocol fee %s/%s", depositFee, withdrawFee)
	}
	if receiver == "" && (depositFee.IsPositive() || withdrawFee.IsPositive()) {
		return errors.Wrap(InvalidConfig, "fee receiver required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeReceiver = receiver
	p.depositFee = depositFee
	p.withdrawFee = withdrawFee
	p.updatedAt = p.clk.Now().Unix()

	p.log.Info().Str("receiver", receiver).Stringer("depositFee", depositFee).Stringer("withdrawFee", withdrawFee).Msg("leverage protocol fee changed")
	p.record(ctx, caller, ActionChangeConfig)
	return nil
}

func (p *LeveragePool) ChangeMaxDTV(ctx context.Context, caller string, maxDTV decimal.Decimal) error {
	if err := p.roles.Require(caller, RoleOwner); err != nil {
		return err
	}
	if !validMaxDTV(maxDTV) {
		return errors.Wrapf(InvalidConfig, "max dtv %s", maxDTV)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxDTV = maxDTV
	p.updatedAt = p.clk.Now().Unix()

	p.record(ctx, caller, ActionChangeConfig)
	return nil
}

func (p *LeveragePool) MaxDTV() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxDTV
}

// State snapshots the pool, positions and requests ordered by id.
func (p *LeveragePool) State() LeveragePoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *LeveragePool) stateLocked() LeveragePoolState {
	state := LeveragePoolState{
		DepositFee:  p.depositFee,
		WithdrawFee: p.withdrawFee,
		FeeReceiver: p.feeReceiver,
		MaxDTV:      p.maxDTV,
		MinDeposit:  p.minDeposit,
		Epoch:       p.epochs.CurrentEpoch(),
		EpochStart:  p.epochs.EpochStart(),
		Positions:   make([]*Position, 0, len(p.positions)),
		Requests:    make([]*WithdrawRequest, 0, len(p.requests)),
		UpdatedAt:   p.updatedAt,
	}
	for _, pos := range p.positions {
		state.Positions = append(state.Positions, pos.Clone())
	}
	for _, req := range p.requests {
		state.Requests = append(state.Requests, req.Clone())
	}
	sort.Slice(state.Positions, func(i, j int) bool {
		return state.Positions[i].Id.String() < state.Positions[j].Id.String()
	})
	sort.Slice(state.Requests, func(i, j int) bool {
		return state.Requests[i].PositionId.String() < state.Requests[j].PositionId.String()
	})
	return state
}

// Restore replaces the pool state and the epoch clock with a checkpoint.
func (p *LeveragePool) Restore(state LeveragePoolState) error {
	if !validFee(state.DepositFee) || !validFee(state.WithdrawFee) || !validMaxDTV(state.MaxDTV) {
		return InvalidConfig
	}

	positions := make(map[uuid.UUID]*Position, len(state.Positions))
	for _, pos := range state.Positions {
		positions[pos.Id] = pos.Clone()
	}
	requests := make(map[uuid.UUID]*WithdrawRequest, len(state.Requests))
	for _, req := range state.Requests {
		if _, ok := positions[req.PositionId]; !ok {
			return errors.Wrapf(ErrPositionNotFound, "request %s", req.Id)
		}
		requests[req.PositionId] = req.Clone()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.depositFee = state.DepositFee
	p.withdrawFee = state.WithdrawFee
	p.feeReceiver = state.FeeReceiver
	p.maxDTV = state.MaxDTV
	p.minDeposit = state.MinDeposit
	p.positions = positions
	p.requests = requests
	p.updatedAt = state.UpdatedAt
	p.epochs.Restore(state.Epoch, state.EpochStart)
	return nil
}
