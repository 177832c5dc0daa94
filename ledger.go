package core

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	// Ledger moves stablecoins between accounts. Each call is exactly-once
	// and fails without effect on insufficient balance.
	Ledger interface {
		Transfer(ctx context.Context, asset, from, to string, amount decimal.Decimal) error
		BalanceOf(ctx context.Context, asset, account string) (decimal.Decimal, error)
	}

	// Swapper converts between supported stablecoins held by account.
	Swapper interface {
		Quote(ctx context.Context, assetIn, assetOut string, amountIn decimal.Decimal) (decimal.Decimal, error)
		Swap(ctx context.Context, account, assetIn, assetOut string, amountIn decimal.Decimal) (decimal.Decimal, error)
	}
)

type ledgerKey struct {
	asset   string
	account string
}

// MemoryLedger is an in-process Ledger with explicit minting.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[ledgerKey]decimal.Decimal
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[ledgerKey]decimal.Decimal)}
}

func (l *MemoryLedger) Transfer(ctx context.Context, asset, from, to string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.Wrapf(ErrInvalidAmount, "transfer %s %s", amount, asset)
	}
	if amount.IsZero() || from == to {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromKey := ledgerKey{asset, from}
	balance := l.balances[fromKey]
	if balance.LessThan(amount) {
		return errors.Wrapf(ErrNotEnoughAmount, "%s holds %s %s, needs %s", from, balance, asset, amount)
	}
	l.balances[fromKey] = balance.Sub(amount)
	toKey := ledgerKey{asset, to}
	l.balances[toKey] = l.balances[toKey].Add(amount)
	return nil
}

func (l *MemoryLedger) BalanceOf(ctx context.Context, asset, account string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[ledgerKey{asset, account}], nil
}

func (l *MemoryLedger) Mint(asset, account string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{asset, account}
	l.balances[key] = l.balances[key].Add(amount)
}

func (l *MemoryLedger) Burn(asset, account string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{asset, account}
	balance := l.balances[key]
	if balance.LessThan(amount) {
		return errors.Wrapf(ErrNotEnoughAmount, "burn %s %s from %s", amount, asset, account)
	}
	l.balances[key] = balance.Sub(amount)
	return nil
}

// Supply sums every balance held in asset.
func (l *MemoryLedger) Supply(asset string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for key, balance := range l.balances {
		if key.asset == asset {
			total = total.Add(balance)
		}
	}
	return total
}

// ParSwapper treats every supported stablecoin as worth exactly one unit
// of every other.
type ParSwapper struct {
	ledger *MemoryLedger
}

func NewParSwapper(ledger *MemoryLedger) *ParSwapper {
	return &ParSwapper{ledger: ledger}
}

func (s *ParSwapper) Quote(ctx context.Context, assetIn, assetOut string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	return amountIn, nil
}

func (s *ParSwapper) Swap(ctx context.Context, account, assetIn, assetOut string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if assetIn == assetOut || amountIn.IsZero() {
		return amountIn, nil
	}
	if err := s.ledger.Burn(assetIn, account, amountIn); err != nil {
		return decimal.Zero, err
	}
	s.ledger.Mint(assetOut, account, amountIn)
	return amountIn, nil
}

// undoStack holds compensations for ledger steps already applied within
// one operation. They run newest first.
type undoStack []func(ctx context.Context) error

func (u *undoStack) push(f func(ctx context.Context) error) {
	*u = append(*u, f)
}

func (u undoStack) unwind(ctx context.Context, log Log) {
	for i := len(u) - 1; i >= 0; i-- {
		if err := u[i](ctx); err != nil {
			log.Error().Err(err).Msg("compensation failed")
		}
	}
}
