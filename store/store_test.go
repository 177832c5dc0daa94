package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	core "github.com/DomeLiquid/leverage"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.Must(uuid.NewV4())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func assertDecimal(t *testing.T, expected, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, expected.Equal(actual), "期望 %s，得到 %s", expected, actual)
}

type pools struct {
	clk      *clock.Mock
	ledger   *core.MemoryLedger
	lending  *core.LendingPool
	leverage *core.LeveragePool
}

func newPools(t *testing.T, operates core.OperateStore) *pools {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := core.NewMemoryLedger()
	swapper := core.NewParSwapper(ledger)
	roles := core.NewRoles("ceo", "keeper")

	lendingCfg := core.DefaultLendingPoolConfig("DAI", "water")
	lendingCfg.SupportedAssets = []string{"USDC"}
	lendingCfg.FeeReceiver = "treasury"
	lending, err := core.NewLendingPool(ledger, swapper, roles, lendingCfg, core.WithClock(clk), core.WithOperateStore(operates))
	require.NoError(t, err)
	require.NoError(t, lending.ChangeLeverageVault(context.Background(), "ceo", "whiskey"))

	gToken := core.NewGToken(ledger, "DAI", "gdai", core.ONE)
	epochs := core.NewEpochScheduler(clk, core.DEFAULT_EPOCH_LENGTH, core.DEFAULT_WITHDRAW_REQUEST_WINDOW)
	leverageCfg := core.DefaultLeveragePoolConfig("DAI", "whiskey")
	leverageCfg.SupportedAssets = []string{"USDC"}
	leverageCfg.FeeReceiver = "treasury"
	leverage, err := core.NewLeveragePool(ledger, swapper, lending, gToken, epochs, roles, leverageCfg, core.WithClock(clk), core.WithOperateStore(operates))
	require.NoError(t, err)

	return &pools{clk: clk, ledger: ledger, lending: lending, leverage: leverage}
}

func TestOperates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	p := newPools(t, s)

	p.ledger.Mint("DAI", "alice", decimal.NewFromInt(1000))
	_, err := p.lending.Deposit(ctx, "alice", decimal.NewFromInt(600), "alice")
	require.NoError(t, err)
	p.clk.Add(time.Minute)
	_, err = p.lending.Deposit(ctx, "alice", decimal.NewFromInt(400), "alice")
	require.NoError(t, err)

	all, err := s.ListOperates(ctx, "", core.ActionUnknown, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3) // vault registration plus two deposits

	deposits, err := s.ListOperates(ctx, "alice", core.ActionLendingDeposit, 0, 0)
	require.NoError(t, err)
	require.Len(t, deposits, 2)
	assert.Greater(t, deposits[0].CreatedAt, deposits[1].CreatedAt)
	require.Len(t, deposits[0].Extra.Actions, 1)
	assert.True(t, decimal.NewFromInt(400).Equal(deposits[0].Extra.Actions[0].Amount))

	older, err := s.ListOperates(ctx, "alice", core.ActionLendingDeposit, deposits[0].CreatedAt, 0)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, deposits[1].Id, older[0].Id)

	limited, err := s.ListOperates(ctx, "", core.ActionUnknown, 0, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLoadWithoutCheckpoint(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.LoadLendingState(ctx)
	assert.ErrorIs(t, err, core.ErrRecordNotFound)
	_, err = s.LoadLeverageState(ctx)
	assert.ErrorIs(t, err, core.ErrRecordNotFound)

	p := newPools(t, nil)
	require.NoError(t, core.Recover(ctx, s, p.lending, p.leverage))
	assert.True(t, p.lending.TotalSupply().IsZero())
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	p := newPools(t, s)

	p.ledger.Mint("DAI", "lender", decimal.NewFromInt(10000))
	_, err := p.lending.Deposit(ctx, "lender", decimal.NewFromInt(10000), "lender")
	require.NoError(t, err)
	p.ledger.Mint("USDC", "alice", decimal.NewFromInt(1000))
	_, err = p.leverage.Deposit(ctx, "alice", "USDC", decimal.NewFromInt(1000), 300)
	require.NoError(t, err)
	_, err = p.leverage.MakeWithdrawRequest(ctx, "alice", "USDC", decimal.NewFromInt(100))
	require.NoError(t, err)

	require.NoError(t, core.Checkpoint(ctx, s, p.lending, p.leverage))
	// a second checkpoint overwrites the first
	require.NoError(t, core.Checkpoint(ctx, s, p.lending, p.leverage))

	restored := newPools(t, nil)
	require.NoError(t, core.Recover(ctx, s, restored.lending, restored.leverage))

	want, got := p.lending.State(), restored.lending.State()
	assertDecimal(t, want.TotalShares, got.TotalShares)
	assertDecimal(t, want.TotalDebt, got.TotalDebt)
	assertDecimal(t, want.UnderlyingBalance, got.UnderlyingBalance)
	assertDecimal(t, want.DepositFee, got.DepositFee)
	assertDecimal(t, want.FeeSplit.Split2Value, got.FeeSplit.Split2Value)
	assertDecimal(t, want.Shares["lender"], got.Shares["lender"])
	assert.Equal(t, want.LeverageVault, got.LeverageVault)
	assert.Equal(t, want.UpdatedAt, got.UpdatedAt)

	wantLeverage, gotLeverage := p.leverage.State(), restored.leverage.State()
	assert.Equal(t, wantLeverage.Epoch, gotLeverage.Epoch)
	assert.Equal(t, wantLeverage.EpochStart, gotLeverage.EpochStart)
	assertDecimal(t, wantLeverage.MaxDTV, gotLeverage.MaxDTV)
	require.Len(t, gotLeverage.Positions, 1)
	require.Len(t, gotLeverage.Requests, 1)
	wantPos, gotPos := wantLeverage.Positions[0], gotLeverage.Positions[0]
	assert.Equal(t, wantPos.Id, gotPos.Id)
	assertDecimal(t, wantPos.Principal, gotPos.Principal)
	assertDecimal(t, wantPos.Debt, gotPos.Debt)
	assertDecimal(t, wantPos.Shares, gotPos.Shares)
	assertDecimal(t, wantPos.Dtv, gotPos.Dtv)
	assertDecimal(t, wantPos.Unpaid, gotPos.Unpaid)
	assertDecimal(t, wantPos.UnpaidFee, gotPos.UnpaidFee)
	assert.Equal(t, wantLeverage.Requests[0].Id, gotLeverage.Requests[0].Id)
	assert.True(t, restored.lending.TotalDebt().Equal(p.leverage.TotalDebtToLend()))

	req, err := restored.leverage.WithdrawRequestOf("alice", "USDC")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(req.Amount))

	positions, err := s.Positions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, core.PositionWithdrawRequested, positions[0].Status)
	assert.EqualValues(t, 300, positions[0].LeverageMultiplier)

	none, err := s.Positions(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, none)
}
