package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDAI  = "DAI"
	testUSDC = "USDC"

	testOwner       = "ceo"
	testAdmin       = "keeper"
	testFeeReceiver = "treasury"

	testLendingAccount  = "water"
	testLeverageAccount = "whiskey"
	testVaultAccount    = "gdai"
)

type testEnv struct {
	ctx      context.Context
	clk      *clock.Mock
	ledger   *MemoryLedger
	swapper  *flakySwapper
	gToken   *GToken
	epochs   *EpochScheduler
	roles    *Roles
	operates *memoryOperateStore
	lending  *LendingPool
	leverage *LeveragePool
}

// newTestEnv wires both pools over one in-memory ledger with no lending
// fees, no leverage deposit fee and the 0.5% leverage withdrawal fee.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	ledger := NewMemoryLedger()
	swapper := &flakySwapper{ParSwapper: NewParSwapper(ledger)}
	roles := NewRoles(testOwner, testAdmin)
	operates := &memoryOperateStore{}

	lendingCfg := DefaultLendingPoolConfig(testDAI, testLendingAccount)
	lendingCfg.SupportedAssets = []string{testUSDC}
	lendingCfg.DepositFee = decimal.Zero
	lendingCfg.WithdrawFee = decimal.Zero
	lendingCfg.FeeReceiver = testFeeReceiver
	lending, err := NewLendingPool(ledger, swapper, roles, lendingCfg, WithClock(clk), WithOperateStore(operates))
	require.NoError(t, err)
	require.NoError(t, lending.ChangeLeverageVault(ctx, testOwner, testLeverageAccount))

	gToken := NewGToken(ledger, testDAI, testVaultAccount, ONE)
	epochs := NewEpochScheduler(clk, DEFAULT_EPOCH_LENGTH, DEFAULT_WITHDRAW_REQUEST_WINDOW)

	leverageCfg := DefaultLeveragePoolConfig(testDAI, testLeverageAccount)
	leverageCfg.SupportedAssets = []string{testUSDC}
	leverageCfg.DepositFee = decimal.Zero
	leverageCfg.FeeReceiver = testFeeReceiver
	leverage, err := NewLeveragePool(ledger, swapper, lending, gToken, epochs, roles, leverageCfg, WithClock(clk), WithOperateStore(operates))
	require.NoError(t, err)

	return &testEnv{
		ctx:      ctx,
		clk:      clk,
		ledger:   ledger,
		swapper:  swapper,
		gToken:   gToken,
		epochs:   epochs,
		roles:    roles,
		operates: operates,
		lending:  lending,
		leverage: leverage,
	}
}

func (e *testEnv) fund(account, asset, amount string) {
	e.ledger.Mint(asset, account, d(amount))
}

// seedLending deposits amount of DAI into the lending pool from a fresh lender.
func (e *testEnv) seedLending(t *testing.T, amount string) {
	t.Helper()
	e.fund("lender", testDAI, amount)
	_, err := e.lending.Deposit(e.ctx, "lender", d(amount), "lender")
	require.NoError(t, err)
}

func (e *testEnv) advanceEpochs(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		e.clk.Add(DEFAULT_EPOCH_LENGTH)
		require.True(t, e.leverage.TryAdvanceEpoch(e.ctx))
	}
}

func (e *testEnv) balance(account, asset string) decimal.Decimal {
	balance, _ := e.ledger.BalanceOf(e.ctx, asset, account)
	return balance
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	if !assert.True(t, expected.Equal(actual), "期望 %s，得到 %s", expected, actual) && len(msgAndArgs) > 0 {
		t.Log(msgAndArgs...)
	}
}

var errSwapUnavailable = errors.New("swap unavailable")

// flakySwapper fails every swap into failTo.
type flakySwapper struct {
	*ParSwapper
	failTo string
}

func (s *flakySwapper) Swap(ctx context.Context, account, assetIn, assetOut string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if s.failTo != "" && assetOut == s.failTo {
		return decimal.Zero, errSwapUnavailable
	}
	return s.ParSwapper.Swap(ctx, account, assetIn, assetOut, amountIn)
}

type memoryOperateStore struct {
	mu       sync.Mutex
	operates []Operate
}

func (s *memoryOperateStore) CreateOperate(ctx context.Context, operate *Operate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operates = append(s.operates, *operate)
	return nil
}

func (s *memoryOperateStore) ListOperates(ctx context.Context, actor string, op ActionType, createdBeforeAt, limit int64) ([]Operate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Operate
	for _, o := range s.operates {
		if (actor == "" || o.Actor == actor) && (op == ActionUnknown || o.Op == op) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memoryOperateStore) count(op ActionType) int {
	list, _ := s.ListOperates(context.Background(), "", op, 0, 0)
	return len(list)
}
