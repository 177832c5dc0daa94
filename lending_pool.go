package core

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	// Lender is the lending pool as seen by the leverage pool.
	Lender interface {
		Asset() string
		Borrow(ctx context.Context, caller string, amount decimal.Decimal) error
		Repay(ctx context.Context, caller string, debt, amount decimal.Decimal) (decimal.Decimal, error)
		RewardSplit() decimal.Decimal
	}

	LendingPoolConfig struct {
		// Asset is the underlying stablecoin the pool accounts in.
		Asset           string
		Account         string
		SupportedAssets []string

		DepositFee     decimal.Decimal
		WithdrawFee    decimal.Decimal
		FeeReceiver    string
		MaxUtilization decimal.Decimal
		FeeSplit       FeeSplitConfig
	}

	LendingPoolState struct {
		TotalShares       decimal.Decimal `json:"totalShares"`
		TotalDebt         decimal.Decimal `json:"totalDebt"`
		UnderlyingBalance decimal.Decimal `json:"underlyingBalance"`
		TotalBadDebt      decimal.Decimal `json:"totalBadDebt"`
		TotalYield        decimal.Decimal `json:"totalYield"`

		DepositFee     decimal.Decimal `json:"depositFee"`
		WithdrawFee    decimal.Decimal `json:"withdrawFee"`
		FeeReceiver    string          `json:"feeReceiver"`
		LeverageVault  string          `json:"leverageVault"`
		MaxUtilization decimal.Decimal `json:"maxUtilization"`
		FeeSplit       FeeSplitConfig  `json:"feeSplit"`

		Shares    ShareBook `json:"shares"`
		UpdatedAt int64     `json:"updatedAt"`
	}

	// ShareBook maps an owner to its lending pool shares.
	ShareBook map[string]decimal.Decimal
)

func DefaultLendingPoolConfig(asset, account string) LendingPoolConfig {
	return LendingPoolConfig{
		Asset:          asset,
		Account:        account,
		DepositFee:     DEFAULT_PROTOCOL_FEE,
		WithdrawFee:    DEFAULT_PROTOCOL_FEE,
		MaxUtilization: DEFAULT_MAX_UTILIZATION,
		FeeSplit:       DefaultFeeSplitConfig(),
	}
}

func (c *LendingPoolConfig) Validate() error {
	if c.Asset == "" || c.Account == "" {
		return InvalidConfig
	}
	if !validFee(c.DepositFee) || !validFee(c.WithdrawFee) {
		return InvalidConfig
	}
	if (c.DepositFee.IsPositive() || c.WithdrawFee.IsPositive()) && c.FeeReceiver == "" {
		return InvalidConfig
	}
	if !c.MaxUtilization.IsPositive() || c.MaxUtilization.GreaterThan(ONE) {
		return InvalidConfig
	}
	return c.FeeSplit.Validate()
}

// validFee accepts fractions in [0, 1).
func validFee(fee decimal.Decimal) bool {
	return !fee.IsNegative() && fee.LessThan(ONE)
}

func (b ShareBook) Clone() ShareBook {
	c := make(ShareBook, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

func (b ShareBook) Value() (driver.Value, error) {
	valueString, err := json.Marshal(b)
	return string(valueString), err
}

func (b *ShareBook) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Errorf("unsupported share book type %T", value)
	}
	return json.Unmarshal(raw, b)
}

func (s LendingPoolState) Clone() LendingPoolState {
	c := s
	c.Shares = s.Shares.Clone()
	return c
}

// LendingPool holds stablecoin deposits, issues proportional shares and
// lends to a single registered leverage vault.
type LendingPool struct {
	log      Log
	clk      clock.Clock
	ledger   Ledger
	swapper  Swapper
	roles    *Roles
	operates OperateStore

	asset     string
	account   string
	supported map[string]bool

	mu    sync.Mutex
	state LendingPoolState
}

func NewLendingPool(ledger Ledger, swapper Swapper, roles *Roles, cfg LendingPoolConfig, opts ...OptionFunc) (*LendingPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newPoolOptions(opts...)

	supported := map[string]bool{cfg.Asset: true}
	for _, asset := range cfg.SupportedAssets {
		supported[asset] = true
	}

	return &LendingPool{
		log:       o.log,
		clk:       o.clk,
		ledger:    ledger,
		swapper:   swapper,
		roles:     roles,
		operates:  o.operates,
		asset:     cfg.Asset,
		account:   cfg.Account,
		supported: supported,
		state: LendingPoolState{
			DepositFee:     cfg.DepositFee,
			WithdrawFee:    cfg.WithdrawFee,
			FeeReceiver:    cfg.FeeReceiver,
			MaxUtilization: cfg.MaxUtilization,
			FeeSplit:       cfg.FeeSplit,
			Shares:         ShareBook{},
			UpdatedAt:      o.clk.Now().Unix(),
		},
	}, nil
}

func (p *LendingPool) Asset() string {
	return p.asset
}

func (p *LendingPool) Account() string {
	return p.account
}

func (p *LendingPool) IsSupported(asset string) bool {
	return p.supported[asset]
}

func (p *LendingPool) totalAssets() decimal.Decimal {
	return p.state.UnderlyingBalance.Add(p.state.TotalDebt)
}

func (p *LendingPool) previewShares(assets decimal.Decimal) decimal.Decimal {
	if p.state.TotalShares.IsZero() {
		return assets
	}
	return MulDiv(assets, p.state.TotalShares, p.totalAssets())
}

func (p *LendingPool) previewSharesUp(assets decimal.Decimal) decimal.Decimal {
	if p.state.TotalShares.IsZero() {
		return assets
	}
	return MulDivUp(assets, p.state.TotalShares, p.totalAssets())
}

func (p *LendingPool) previewAssets(shares decimal.Decimal) decimal.Decimal {
	if p.state.TotalShares.IsZero() {
		return shares
	}
	return MulDiv(shares, p.totalAssets(), p.state.TotalShares)
}

func (p *LendingPool) utilization() decimal.Decimal {
	return Div(p.state.TotalDebt, p.totalAssets())
}

func (p *LendingPool) touch() {
	p.state.UpdatedAt = p.clk.Now().Unix()
}

// Deposit deposits the underlying asset itself.
func (p *LendingPool) Deposit(ctx context.Context, caller string, amount decimal.Decimal, receiver string) (decimal.Decimal, error) {
	return p.DepositStableCoin(ctx, caller, p.asset, amount, receiver)
}

// DepositStableCoin takes the deposit fee in asset, swaps the rest into the
// underlying and credits receiver with the minted shares.
func (p *LendingPool) DepositStableCoin(ctx context.Context, caller, asset string, amount decimal.Decimal, receiver string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "deposit %s %s", amount, asset)
	}
	if !p.IsSupported(asset) {
		return decimal.Zero, errors.Wrap(ErrUnsupportedAsset, asset)
	}
	if receiver == "" {
		receiver = caller
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fee, net := CalcFee(amount, p.state.DepositFee)
	quoted, err := p.swapper.Quote(ctx, asset, p.asset, net)
	if err != nil {
		return decimal.Zero, err
	}
	if !p.previewShares(quoted).IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "deposit %s %s mints no shares", amount, asset)
	}

	var undo undoStack
	if err := p.ledger.Transfer(ctx, asset, caller, p.account, amount); err != nil {
		return decimal.Zero, err
	}
	undo.push(func(ctx context.Context) error {
		return p.ledger.Transfer(ctx, asset, p.account, caller, amount)
	})

	feeReceiver := p.state.FeeReceiver
	if err := p.ledger.Transfer(ctx, asset, p.account, feeReceiver, fee); err != nil {
		undo.unwind(ctx, p.log)
		return decimal.Zero, err
	}
	undo.push(func(ctx context.Context) error {
		return p.ledger.Transfer(ctx, asset, feeReceiver, p.account, fee)
	})

	received, err := p.swapper.Swap(ctx, p.account, asset, p.asset, net)
	if err != nil {
		undo.unwind(ctx, p.log)
		return decimal.Zero, err
	}

	shares := p.previewShares(received)
	p.state.Shares[receiver] = p.state.Shares[receiver].Add(shares)
	p.state.TotalShares = p.state.TotalShares.Add(shares)
	p.state.UnderlyingBalance = p.state.UnderlyingBalance.Add(received)
	p.touch()

	p.log.Info().
		Str("caller", caller).
		Str("receiver", receiver).
		Str("asset", asset).
		Stringer("amount", amount).
		Stringer("fee", fee).
		Stringer("shares", shares).
		Msg("lending deposit")
	recordOperate(ctx, p.operates, p.log, NewOperate(p.clk, caller, 0, ActionLendingDeposit,
		NewActionDetail(receiver, ActionLendingDeposit, asset, amount)))
	return shares, nil
}

// RedeemStableCoin burns shares of owner and pays the underlying they are
// worth, net of the withdrawal fee, to receiver in asset.
func (p *LendingPool) RedeemStableCoin(ctx context.Context, caller, asset string, shares decimal.Decimal, receiver, owner string) (decimal.Decimal, error) {
	if !shares.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "redeem %s shares", shares)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.withdrawLocked(ctx, caller, asset, shares, p.previewAssets(shares), receiver, owner)
}

// WithdrawStableCoin burns as many shares of owner as amount of underlying
// is worth and returns the shares burned.
func (p *LendingPool) WithdrawStableCoin(ctx context.Context, caller, asset string, amount decimal.Decimal, receiver, owner string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "withdraw %s %s", amount, asset)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	shares := p.previewSharesUp(amount)
	balance := p.state.Shares[owner]
	if shares.GreaterThan(balance) && shares.Sub(balance).LessThan(EMPTY_BALANCE_THRESHOLD) {
		shares = balance
	}
	if _, err := p.withdrawLocked(ctx, caller, asset, shares, amount, receiver, owner); err != nil {
		return decimal.Zero, err
	}
	return shares, nil
}

func (p *LendingPool) withdrawLocked(ctx context.Context, caller, asset string, shares, gross decimal.Decimal, receiver, owner string) (decimal.Decimal, error) {
	if caller != owner {
		return decimal.Zero, errors.Wrapf(ErrUnauthorized, "%s withdraws for %s", caller, owner)
	}
	if !p.IsSupported(asset) {
		return decimal.Zero, errors.Wrap(ErrUnsupportedAsset, asset)
	}
	if receiver == "" {
		receiver = owner
	}
	if balance := p.state.Shares[owner]; shares.GreaterThan(balance) {
		return decimal.Zero, errors.Wrapf(ErrNotEnoughAmount, "%s holds %s shares, needs %s", owner, balance, shares)
	}
	if gross.GreaterThan(p.state.UnderlyingBalance) {
		return decimal.Zero, errors.Wrapf(ErrNotEnoughAmount, "pool liquidity %s, requested %s", p.state.UnderlyingBalance, gross)
	}
	if !gross.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "%s shares are worth nothing", shares)
	}

	fee, net := CalcFee(gross, p.state.WithdrawFee)

	var undo undoStack
	out, err := p.swapper.Swap(ctx, p.account, p.asset, asset, net)
	if err != nil {
		return decimal.Zero, err
	}
	undo.push(func(ctx context.Context) error {
		_, err := p.swapper.Swap(ctx, p.account, asset, p.asset, out)
		return err
	})

	feeReceiver := p.state.FeeReceiver
	if err := p.ledger.Transfer(ctx, p.asset, p.account, feeReceiver, fee); err != nil {
		undo.unwind(ctx, p.log)
		return decimal.Zero, err
	}
	undo.push(func(ctx context.Context) error {
		return p.ledger.Transfer(ctx, p.asset, feeReceiver, p.account, fee)
	})

	if err := p.ledger.Transfer(ctx, asset, p.account, receiver, out); err != nil {
		undo.unwind(ctx, p.log)
		return decimal.Zero, err
	}

	p.state.Shares[owner] = p.state.Shares[owner].Sub(shares)
	if p.state.Shares[owner].IsZero() {
		delete(p.state.Shares, owner)
	}
	p.state.TotalShares = p.state.TotalShares.Sub(shares)
	p.state.UnderlyingBalance = p.state.UnderlyingBalance.Sub(gross)
	p.touch()

	p.log.Info().
		Str("owner", owner).
		Str("receiver", receiver).
		Str("asset", asset).
		Stringer("shares", shares).
		Stringer("gross", gross).
		Stringer("fee", fee).
		Msg("lending withdraw")
	recordOperate(ctx, p.operates, p.log, NewOperate(p.clk, caller, 0, ActionLendingWithdraw,
		NewActionDetail(receiver, ActionLendingWithdraw, asset, out)))
	return out, nil
}

// Borrow lends amount of the underlying to the registered leverage vault.
func (p *LendingPool) Borrow(ctx context.Context, caller string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrapf(ErrInvalidAmount, "borrow %s", amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireVault(caller); err != nil {
		return err
	}
	if amount.GreaterThan(p.state.UnderlyingBalance) {
		return errors.Wrapf(ErrNotEnoughAmount, "borrow %s, liquidity %s", amount, p.state.UnderlyingBalance)
	}
	limit := p.totalAssets().Mul(p.state.MaxUtilization)
	if p.state.TotalDebt.Add(amount).GreaterThan(limit) {
		return errors.Wrapf(ErrNotEnoughAmount, "borrow %s exceeds utilization limit %s", amount, p.state.MaxUtilization)
	}

	if err := p.ledger.Transfer(ctx, p.asset, p.account, caller, amount); err != nil {
		return err
	}
	p.state.UnderlyingBalance = p.state.UnderlyingBalance.Sub(amount)
	p.state.TotalDebt = p.state.TotalDebt.Add(amount)
	p.touch()

	p.log.Info().Stringer("amount", amount).Stringer("totalDebt", p.state.TotalDebt).Msg("borrow")
	recordOperate(ctx, p.operates, p.log, NewOperate(p.clk, caller, 0, ActionBorrow,
		NewActionDetail(caller, ActionBorrow, p.asset, amount)))
	return nil
}

// Repay takes amount of the underlying from the vault against debt of
// principal. Anything above debt is yield: the pool keeps the fee-split
// share and returns the rest, which is also the return value. Paying less
// than debt writes the difference off as bad debt.
func (p *LendingPool) Repay(ctx context.Context, caller string, debt, amount decimal.Decimal) (decimal.Decimal, error) {
	if debt.IsNegative() || amount.IsNegative() || (debt.IsZero() && amount.IsZero()) {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "repay %s against %s", amount, debt)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireVault(caller); err != nil {
		return decimal.Zero, err
	}
	if debt.GreaterThan(p.state.TotalDebt) {
		if debt.Sub(p.state.TotalDebt).GreaterThan(EMPTY_BALANCE_THRESHOLD) {
			return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "repay %s, outstanding %s", debt, p.state.TotalDebt)
		}
		debt = p.state.TotalDebt
	}

	split := p.state.FeeSplit.RewardSplit(p.utilization())
	toPool, refund, shortfall := decimal.Zero, decimal.Zero, decimal.Zero
	if amount.GreaterThan(debt) {
		excess := amount.Sub(debt)
		toPool = excess.Mul(split).Truncate(Precision)
		refund = excess.Sub(toPool)
	} else {
		shortfall = debt.Sub(amount)
	}

	if err := p.ledger.Transfer(ctx, p.asset, caller, p.account, amount); err != nil {
		return decimal.Zero, err
	}
	if err := p.ledger.Transfer(ctx, p.asset, p.account, caller, refund); err != nil {
		if uerr := p.ledger.Transfer(ctx, p.asset, p.account, caller, amount); uerr != nil {
			p.log.Error().Err(uerr).Msg("compensation failed")
		}
		return decimal.Zero, err
	}

	p.state.TotalDebt = p.state.TotalDebt.Sub(debt)
	p.state.UnderlyingBalance = p.state.UnderlyingBalance.Add(amount).Sub(refund)
	p.state.TotalYield = p.state.TotalYield.Add(toPool)
	p.state.TotalBadDebt = p.state.TotalBadDebt.Add(shortfall)
	p.touch()

	p.log.Info().
		Stringer("debt", debt).
		Stringer("amount", amount).
		Stringer("split", split).
		Stringer("yield", toPool).
		Stringer("refund", refund).
		Msg("repay")
	if shortfall.IsPositive() {
		p.log.Warn().Stringer("shortfall", shortfall).Stringer("totalBadDebt", p.state.TotalBadDebt).Msg("bad debt written off")
	}
	recordOperate(ctx, p.operates, p.log, NewOperate(p.clk, caller, 0, ActionRepay,
		NewActionDetail(caller, ActionRepay, p.asset, amount)))
	return refund, nil
}

func (p *LendingPool) requireVault(caller string) error {
	if p.state.LeverageVault == "" {
		return ErrLenderNotSet
	}
	if caller != p.state.LeverageVault {
		return errors.Wrapf(ErrUnauthorized, "%s is not the leverage vault", caller)
	}
	return nil
}

// UtilizationRate is TotalDebt / (UnderlyingBalance + TotalDebt).
func (p *LendingPool) UtilizationRate() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.utilization()
}

func (p *LendingPool) UtilizationRateBps() int64 {
	return ToBps(p.UtilizationRate())
}

func (p *LendingPool) RewardSplit() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.FeeSplit.RewardSplit(p.utilization())
}

// PriceOfWater is the underlying value of one share.
func (p *LendingPool) PriceOfWater() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.TotalShares.IsZero() {
		return ONE
	}
	return Div(p.totalAssets(), p.state.TotalShares)
}

func (p *LendingPool) BalanceOf(owner string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Shares[owner]
}

// AssetsOf values the shares of owner in the underlying.
func (p *LendingPool) AssetsOf(owner string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.previewAssets(p.state.Shares[owner])
}

func (p *LendingPool) TotalSupply() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.TotalShares
}

func (p *LendingPool) BalanceOfUnderlying() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.UnderlyingBalance
}

func (p *LendingPool) TotalDebt() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.TotalDebt
}

func (p *LendingPool) TotalBadDebt() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.TotalBadDebt
}

func (p *LendingPool) TotalYield() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.TotalYield
}

// MaxBorrowable is the most a single Borrow can take right now.
func (p *LendingPool) MaxBorrowable() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	room := p.totalAssets().Mul(p.state.MaxUtilization).Sub(p.state.TotalDebt)
	if room.GreaterThan(p.state.UnderlyingBalance) {
		room = p.state.UnderlyingBalance
	}
	if room.IsNegative() {
		return decimal.Zero
	}
	return room
}

func (p *LendingPool) ChangeProtocolFee(ctx context.Context, caller, receiver string, depositFee, withdrawFee decimal.Decimal) error {
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
	p.state.FeeReceiver = receiver
	p.state.DepositFee = depositFee
	p.state.WithdrawFee = withdrawFee
	p.touch()

	p.log.Info().Str("receiver", receiver).Stringer("depositFee", depositFee).Stringer("withdrawFee", withdrawFee).Msg("lending protocol fee changed")
	recordOperate(ctx, p.operates, p.log, NewOperate(p.clk, caller, 0, ActionChangeConfig))
	return nil
}

func (p *LendingPool) ChangeLeverageVault(ctx context.Context, caller, vault string) error {
	if err := p.roles.Require(caller, RoleOwner); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.TotalDebt.IsPositive() && vault != p.state.LeverageVault {
		return errors.Wrapf(ErrOutstandingDebt, "%s owed by %s", p.state.TotalDebt, p.state.LeverageVault)
	}
	p.state.LeverageVault = vault
	p.touch()

	p.log.Info().Str("vault", vault).Msg("leverage vault changed")
	recordOperate(ctx, p.operates, p.log, NewOperate(p.clk, caller, 0, ActionChangeConfig))
	return nil
}

func (p *LendingPool) ChangeFeeSplit(ctx context.Context, caller string, cfg FeeSplitConfig) error {
	if err := p.roles.Require(caller, RoleOwner); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.FeeSplit = cfg
	p.touch()

	recordOperate(ctx, p.operates, p.log, NewOperate(p.clk, caller, 0, ActionChangeConfig))
	return nil
}

func (p *LendingPool) ChangeMaxUtilization(ctx context.Context, caller string, maxUtilization decimal.Decimal) error {
	if err := p.roles.Require(caller, RoleOwner); err != nil {
		return err
	}
	if !maxUtilization.IsPositive() || maxUtilization.GreaterThan(ONE) {
		return errors.Wrapf(InvalidConfig, "max utilization %s", maxUtilization)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.MaxUtilization = maxUtilization
	p.touch()

	recordOperate(ctx, p.operates, p.log, NewOperate(p.clk, caller, 0, ActionChangeConfig))
	return nil
}

func (p *LendingPool) State() LendingPoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Restore replaces the pool state with a checkpoint.
func (p *LendingPool) Restore(state LendingPoolState) error {
	if !validFee(state.DepositFee) || !validFee(state.WithdrawFee) {
		return InvalidConfig
	}
	if !state.MaxUtilization.IsPositive() || state.MaxUtilization.GreaterThan(ONE) {
		return InvalidConfig
	}
	if err := state.FeeSplit.Validate(); err != nil {
		return err
	}
	if state.TotalShares.IsNegative() || state.TotalDebt.IsNegative() || state.UnderlyingBalance.IsNegative() {
		return errors.Wrap(MathError, "negative lending state")
	}

	state = state.Clone()
	if state.Shares == nil {
		state.Shares = ShareBook{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	return nil
}
