package core

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	// PriceOracle reports the value of one yield-asset share in underlying
	// units.
	PriceOracle interface {
		CurrentPrice(ctx context.Context) (decimal.Decimal, error)
	}

	// YieldAsset is the external vault the leverage pool deploys into.
	// Deposit pulls assets from `from` and returns the minted shares,
	// Redeem burns shares and pays the assets to `to`.
	YieldAsset interface {
		PriceOracle
		Asset() string
		Deposit(ctx context.Context, from string, assets decimal.Decimal) (decimal.Decimal, error)
		Redeem(ctx context.Context, to string, shares decimal.Decimal) (decimal.Decimal, error)
	}
)

// GToken is an in-memory yield vault whose share price is set by hand.
// Redemptions above what the vault holds are covered by minting, which
// stands in for yield accrued off-ledger.
type GToken struct {
	ledger  *MemoryLedger
	asset   string
	account string

	mu          sync.RWMutex
	price       decimal.Decimal
	totalShares decimal.Decimal
}

func NewGToken(ledger *MemoryLedger, asset, account string, price decimal.Decimal) *GToken {
	return &GToken{
		ledger:  ledger,
		asset:   asset,
		account: account,
		price:   price,
	}
}

func (g *GToken) Asset() string {
	return g.asset
}

func (g *GToken) SetPrice(price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.price = price
}

func (g *GToken) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.price.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrOracleUnavailable, "gToken price %s", g.price)
	}
	return g.price, nil
}

func (g *GToken) TotalShares() decimal.Decimal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.totalShares
}

func (g *GToken) Deposit(ctx context.Context, from string, assets decimal.Decimal) (decimal.Decimal, error) {
	price, err := g.CurrentPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	shares, err := CalcAmount(assets, price)
	if err != nil {
		return decimal.Zero, err
	}
	if err := g.ledger.Transfer(ctx, g.asset, from, g.account, assets); err != nil {
		return decimal.Zero, err
	}

	g.mu.Lock()
	g.totalShares = g.totalShares.Add(shares)
	g.mu.Unlock()
	return shares, nil
}

func (g *GToken) Redeem(ctx context.Context, to string, shares decimal.Decimal) (decimal.Decimal, error) {
	price, err := g.CurrentPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if shares.GreaterThan(g.totalShares) {
		return decimal.Zero, errors.Wrapf(ErrNotEnoughAmount, "redeem %s of %s gToken shares", shares, g.totalShares)
	}

	assets, _ := CalcValue(shares, price, nil)
	assets = assets.Truncate(Precision)
	held, _ := g.ledger.BalanceOf(ctx, g.asset, g.account)
	if held.LessThan(assets) {
		g.ledger.Mint(g.asset, g.account, assets.Sub(held))
	}
	if err := g.ledger.Transfer(ctx, g.asset, g.account, to, assets); err != nil {
		return decimal.Zero, err
	}
	g.totalShares = g.totalShares.Sub(shares)
	return assets, nil
}
