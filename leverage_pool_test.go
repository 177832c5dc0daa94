package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeverageScenario(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "4000")

	pos, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("4000"), 300)
	require.NoError(t, err)
	assertDecimal(t, d("4000"), pos.Principal)
	assertDecimal(t, d("8000"), pos.Debt)
	assertDecimal(t, d("12000"), pos.Deployed)
	assertDecimal(t, d("12000"), pos.Shares)
	assert.Equal(t, int64(300), pos.LeverageMultiplier)
	assertDecimal(t, Div(d("8000"), d("12000")), pos.Dtv)

	assertDecimal(t, d("8000"), env.lending.TotalDebt())
	assertDecimal(t, d("2000"), env.lending.BalanceOfUnderlying())
	assertDecimal(t, d("0.8"), env.lending.UtilizationRate())
	assertDecimal(t, d("12000"), env.balance(testVaultAccount, testDAI))
	assertDecimal(t, d("4000"), env.leverage.AvailableWithdrawRequestAmount("user", testUSDC))
	assertDecimal(t, d("8000"), env.leverage.TotalDebtToLend())
	assertDecimal(t, d("4000"), env.leverage.TotalDepositAmount())
	assertDecimal(t, d("12000"), env.leverage.TotalShares())

	req, err := env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("100"))
	require.NoError(t, err)
	assert.False(t, req.Pending)
	assert.Equal(t, uint64(0), req.Epoch)
	assertDecimal(t, d("3900"), env.leverage.AvailableWithdrawRequestAmount("user", testUSDC))

	_, err = env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("100"))
	assert.ErrorIs(t, err, ErrRequestNotReady)
	env.advanceEpochs(t, 2)
	_, err = env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("100"))
	assert.ErrorIs(t, err, ErrRequestNotReady)
	env.advanceEpochs(t, 1)

	result, err := env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("100"))
	require.NoError(t, err)
	assertDecimal(t, d("99.5"), result.Payout)
	assertDecimal(t, d("0.5"), result.Fee)
	assertDecimal(t, d("200"), result.Repaid)
	assertDecimal(t, d("99.5"), env.balance("user", testUSDC))
	assertDecimal(t, d("0.5"), env.balance(testFeeReceiver, testDAI))
	assertDecimal(t, d("7800"), env.lending.TotalDebt())
	assertDecimal(t, d("2200"), env.lending.BalanceOfUnderlying())

	pos, err = env.leverage.Position("user", testUSDC)
	require.NoError(t, err)
	assert.Equal(t, PositionOpen, pos.Status)
	assertDecimal(t, d("100"), pos.Withdrawed)
	assertDecimal(t, d("7800"), pos.Debt)
	assertDecimal(t, d("11700"), pos.Shares)
	assertDecimal(t, d("3900"), env.leverage.AvailableWithdrawRequestAmount("user", testUSDC))

	info := env.leverage.VaultInfoOf("user", testUSDC)
	assertDecimal(t, d("11700"), info.Shares)
	assertDecimal(t, d("100"), info.Withdrawed)

	_, err = env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("100"))
	assert.ErrorIs(t, err, ErrRequestNotFound)

	// nothing minted or burned at a flat price
	assertDecimal(t, d("14000"), env.ledger.Supply(testDAI).Add(env.ledger.Supply(testUSDC)))
	assert.Equal(t, 1, env.operates.count(ActionLeverageWithdraw))
}

func TestLeverageDepositUtilizationCap(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.lending.ChangeProtocolFee(env.ctx, testOwner, testFeeReceiver, DEFAULT_PROTOCOL_FEE, DEFAULT_PROTOCOL_FEE))
	require.NoError(t, env.leverage.ChangeProtocolFee(env.ctx, testOwner, testFeeReceiver, DEFAULT_PROTOCOL_FEE, DEFAULT_PROTOCOL_FEE))
	env.fund("lender", testUSDC, "10000")
	_, err := env.lending.DepositStableCoin(env.ctx, "lender", testUSDC, d("10000"), "lender")
	require.NoError(t, err)

	env.fund("user1", testUSDC, "10000")
	_, err = env.leverage.Deposit(env.ctx, "user1", testUSDC, d("10000"), 300)
	assert.ErrorIs(t, err, ErrNotEnoughAmount)
	_, err = env.leverage.Deposit(env.ctx, "user1", testUSDC, d("4100"), 300)
	assert.ErrorIs(t, err, ErrNotEnoughAmount)
	assertDecimal(t, d("10000"), env.balance("user1", testUSDC))
	assertDecimal(t, d("50"), env.balance(testFeeReceiver, testUSDC))
	assert.True(t, env.lending.TotalDebt().IsZero())

	env.fund("user3", testUSDC, "4000")
	pos, err := env.leverage.Deposit(env.ctx, "user3", testUSDC, d("4000"), 300)
	require.NoError(t, err)
	assertDecimal(t, d("7960"), pos.Debt)
	assertDecimal(t, d("3980"), pos.Principal)
	assertDecimal(t, d("70"), env.balance(testFeeReceiver, testUSDC))
	assertDecimal(t, d("0.8"), env.lending.UtilizationRate())
}

func TestLeverageDepositRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "1000")

	tests := []struct {
		name     string
		asset    string
		amount   decimal.Decimal
		leverage int64
		err      error
	}{
		{"zero amount", testUSDC, decimal.Zero, 200, ErrInvalidAmount},
		{"below minimum", testUSDC, d("0.5"), 200, ErrNotEnoughAmount},
		{"leverage too low", testUSDC, d("100"), 99, ErrInvalidLeverage},
		{"leverage too high", testUSDC, d("100"), 301, ErrInvalidLeverage},
		{"unsupported asset", "BTC", d("100"), 200, ErrUnsupportedAsset},
		{"insufficient balance", testUSDC, d("1001"), 200, ErrNotEnoughAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.leverage.Deposit(env.ctx, "user", tt.asset, tt.amount, tt.leverage)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assertDecimal(t, d("1000"), env.balance("user", testUSDC))
	assert.True(t, env.lending.TotalDebt().IsZero())
}

func TestLeverageDepositThresholdBreach(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "1000")

	err := env.leverage.ChangeMaxDTV(env.ctx, testAdmin, d("0.6"))
	assert.ErrorIs(t, err, ErrUnauthorized)
	require.NoError(t, env.leverage.ChangeMaxDTV(env.ctx, testOwner, d("0.6")))

	_, err = env.leverage.Deposit(env.ctx, "user", testUSDC, d("1000"), 300)
	assert.ErrorIs(t, err, ErrThresholdBreach)
	assert.Equal(t, KindThresholdBreach, KindOf(err))

	pos, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("1000"), 200)
	require.NoError(t, err)
	assertDecimal(t, d("0.5"), pos.Dtv)
}

func TestLeverageProfitSharedWithLender(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	for _, user := range []string{"alice", "bob"} {
		env.fund(user, testUSDC, "500")
		_, err := env.leverage.Deposit(env.ctx, user, testUSDC, d("500"), 300)
		require.NoError(t, err)
	}
	assertDecimal(t, d("0.2"), env.lending.UtilizationRate())
	assertDecimal(t, d("0.1"), env.lending.RewardSplit())

	env.gToken.SetPrice(d("1.1"))

	rewards, err := env.leverage.GetTotalRewards(env.ctx)
	require.NoError(t, err)
	assertDecimal(t, d("30"), rewards.LenderRewards)
	assertDecimal(t, d("270"), rewards.UserRewards)
	assertDecimal(t, Div(d("2030"), d("3300")), rewards.TotalDTV)

	totalDTV, err := env.leverage.TotalDTV(env.ctx)
	require.NoError(t, err)
	assertDecimal(t, rewards.TotalDTV, totalDTV)

	dtv, err := env.leverage.PositionDTV(env.ctx, "alice", testUSDC)
	require.NoError(t, err)
	assertDecimal(t, Div(d("1015"), d("1650")), dtv)

	equity, err := env.leverage.MaxWithdrawAmountOf(env.ctx, "alice")
	require.NoError(t, err)
	assertDecimal(t, d("635"), equity)

	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "alice", testUSDC, d("500"))
	require.NoError(t, err)
	env.advanceEpochs(t, int(env.leverage.WithdrawEpochsTimelock()))

	result, err := env.leverage.WithdrawStableCoin(env.ctx, "alice", testUSDC, d("500"))
	require.NoError(t, err)
	assertDecimal(t, d("1650"), result.Value)
	assertDecimal(t, d("1150"), result.Repaid)
	assertDecimal(t, d("135"), result.Refund)
	assertDecimal(t, d("3.175"), result.Fee)
	assertDecimal(t, d("631.825"), result.Payout)
	assertDecimal(t, d("631.825"), env.balance("alice", testUSDC))

	assertDecimal(t, d("15"), env.lending.TotalYield())
	assertDecimal(t, d("1000"), env.lending.TotalDebt())
	assert.True(t, env.lending.PriceOfWater().GreaterThan(ONE))

	pos, err := env.leverage.Position("alice", testUSDC)
	require.NoError(t, err)
	assert.Equal(t, PositionRedeemed, pos.Status)
	assert.True(t, env.leverage.AvailableWithdrawRequestAmount("alice", testUSDC).IsZero())
	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "alice", testUSDC, d("1"))
	assert.ErrorIs(t, err, ErrPositionNotFound)

	info := env.leverage.VaultInfoOf("alice", testUSDC)
	assert.True(t, info.Shares.IsZero())
	assertDecimal(t, d("500"), info.Withdrawed)

	assertDecimal(t, d("500"), env.leverage.TotalDepositAmount())
	assertDecimal(t, d("1000"), env.leverage.TotalDebtToLend())
	assertDecimal(t, d("1500"), env.leverage.TotalShares())
}

func TestLeverageReopenAfterRedeem(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "300")

	_, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("100"), 200)
	require.NoError(t, err)
	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("100"))
	require.NoError(t, err)
	env.advanceEpochs(t, 3)
	_, err = env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("100"))
	require.NoError(t, err)

	pos, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("200"), 150)
	require.NoError(t, err)
	assert.Equal(t, PositionOpen, pos.Status)
	assertDecimal(t, d("200"), pos.Principal)
	assertDecimal(t, d("100"), pos.Debt)
	assert.True(t, pos.Withdrawed.IsZero())
	assert.Equal(t, int64(150), pos.LeverageMultiplier)
}

func TestLeverageTopUpBlendsLeverage(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "200")

	_, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("100"), 300)
	require.NoError(t, err)
	pos, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("100"), 100)
	require.NoError(t, err)
	assertDecimal(t, d("200"), pos.Principal)
	assertDecimal(t, d("200"), pos.Debt)
	assert.Equal(t, int64(200), pos.LeverageMultiplier)
}

func TestWithdrawRequestOutsideWindowIsPending(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "1000")
	_, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("1000"), 200)
	require.NoError(t, err)

	env.clk.Add(49 * time.Hour)
	req, err := env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("100"))
	require.NoError(t, err)
	assert.True(t, req.Pending)
	assert.False(t, env.leverage.HasPendingRequestNow())
	n, err := env.leverage.MakeWithdrawRequestOfPending(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	env.clk.Add(23 * time.Hour)
	require.True(t, env.leverage.TryAdvanceEpoch(env.ctx))
	assert.True(t, env.leverage.HasPendingRequestNow())

	n, err = env.leverage.MakeWithdrawRequestOfPending(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, env.leverage.HasPendingRequestNow())

	req, err = env.leverage.WithdrawRequestOf("user", testUSDC)
	require.NoError(t, err)
	assert.False(t, req.Pending)
	assert.Equal(t, uint64(1), req.Epoch)

	env.advanceEpochs(t, 2)
	_, err = env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("100"))
	assert.ErrorIs(t, err, ErrRequestNotReady)
	env.advanceEpochs(t, 1)
	_, err = env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("100"))
	require.NoError(t, err)
}

func TestPendingRequestNeverReady(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "1000")
	_, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("1000"), 100)
	require.NoError(t, err)

	env.clk.Add(50 * time.Hour)
	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("100"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := env.leverage.ForceNewEpoch(env.ctx, testAdmin)
		require.NoError(t, err)
	}
	_, err = env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("100"))
	assert.ErrorIs(t, err, ErrRequestNotReady)
}

func TestWithdrawRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")

	_, err := env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("1"))
	assert.ErrorIs(t, err, ErrPositionNotFound)

	env.fund("user", testUSDC, "1000")
	_, err = env.leverage.Deposit(env.ctx, "user", testUSDC, d("1000"), 100)
	require.NoError(t, err)

	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, decimal.Zero)
	assert.ErrorIs(t, err, ErrNotEnoughAmount)
	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("1001"))
	assert.ErrorIs(t, err, ErrNotEnoughAmount)

	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("600"))
	require.NoError(t, err)
	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("100"))
	assert.ErrorIs(t, err, ErrRequestExists)
	assertDecimal(t, d("400"), env.leverage.AvailableWithdrawRequestAmount("user", testUSDC))

	pos, err := env.leverage.Position("user", testUSDC)
	require.NoError(t, err)
	assert.Equal(t, PositionWithdrawRequested, pos.Status)

	env.advanceEpochs(t, 3)
	_, err = env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("601"))
	assert.ErrorIs(t, err, ErrNotEnoughAmount)

	result, err := env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("300"))
	require.NoError(t, err)
	assertDecimal(t, d("298.5"), result.Payout)
	assert.True(t, result.Repaid.IsZero())

	// the rest of the request is released
	assertDecimal(t, d("700"), env.leverage.AvailableWithdrawRequestAmount("user", testUSDC))
	_, err = env.leverage.WithdrawRequestOf("user", testUSDC)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestRedeemShares(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "1000")
	_, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("1000"), 200)
	require.NoError(t, err)

	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("1000"))
	require.NoError(t, err)
	_, err = env.leverage.Redeem(env.ctx, "user", testUSDC, d("1000"))
	assert.ErrorIs(t, err, ErrRequestNotReady)
	env.advanceEpochs(t, 3)

	_, err = env.leverage.Redeem(env.ctx, "user", testUSDC, d("3000"))
	assert.ErrorIs(t, err, ErrNotEnoughAmount)

	result, err := env.leverage.Redeem(env.ctx, "user", testUSDC, d("1000"))
	require.NoError(t, err)
	assertDecimal(t, d("500"), result.Principal)
	assertDecimal(t, d("1000"), result.Value)
	assertDecimal(t, d("500"), result.Repaid)
	assertDecimal(t, d("497.5"), result.Payout)

	pos, err := env.leverage.Position("user", testUSDC)
	require.NoError(t, err)
	assert.Equal(t, PositionOpen, pos.Status)
	assertDecimal(t, d("500"), pos.Withdrawed)
	assertDecimal(t, d("1000"), pos.Shares)
	assertDecimal(t, d("500"), pos.Debt)
}

func TestOracleUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "1000")
	env.gToken.SetPrice(decimal.Zero)

	_, err := env.leverage.GTokenPrice(env.ctx)
	assert.Equal(t, KindOracleUnavailable, KindOf(err))

	_, err = env.leverage.Deposit(env.ctx, "user", testUSDC, d("1000"), 200)
	assert.ErrorIs(t, err, ErrOracleUnavailable)
	assertDecimal(t, d("1000"), env.balance("user", testUSDC))

	_, err = env.leverage.GetTotalRewards(env.ctx)
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestForceNewEpochRequiresRole(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.leverage.ForceNewEpoch(env.ctx, "mallory")
	assert.ErrorIs(t, err, ErrUnauthorized)

	epoch, err := env.leverage.ForceNewEpoch(env.ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)
	assert.Equal(t, uint64(1), env.leverage.CurrentEpoch())
	assert.False(t, env.leverage.TryAdvanceEpoch(env.ctx))
	assert.Equal(t, 1, env.operates.count(ActionNewEpoch))
}

func TestLeverageStateRestore(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "1000")
	_, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("1000"), 300)
	require.NoError(t, err)
	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("250"))
	require.NoError(t, err)
	env.advanceEpochs(t, 2)

	state := env.leverage.State()
	require.Len(t, state.Positions, 1)
	require.Len(t, state.Requests, 1)
	assert.Equal(t, uint64(2), state.Epoch)

	other := newTestEnv(t)
	require.NoError(t, other.leverage.Restore(state))
	assert.Equal(t, uint64(2), other.leverage.CurrentEpoch())
	assertDecimal(t, d("750"), other.leverage.AvailableWithdrawRequestAmount("user", testUSDC))
	assertDecimal(t, d("2000"), other.leverage.TotalDebtToLend())

	req, err := other.leverage.WithdrawRequestOf("user", testUSDC)
	require.NoError(t, err)
	assertDecimal(t, d("250"), req.Amount)

	state.Requests[0].PositionId = PositionId("ghost", testUSDC)
	assert.ErrorIs(t, other.leverage.Restore(state), ErrPositionNotFound)
}

func TestLeveragePayoutDeferredWhenSwapFails(t *testing.T) {
	env := newTestEnv(t)
	env.seedLending(t, "10000")
	env.fund("user", testUSDC, "1000")
	_, err := env.leverage.Deposit(env.ctx, "user", testUSDC, d("1000"), 300)
	require.NoError(t, err)
	_, err = env.leverage.MakeWithdrawRequest(env.ctx, "user", testUSDC, d("100"))
	require.NoError(t, err)
	env.advanceEpochs(t, 3)

	_, err = env.leverage.ClaimPayout(env.ctx, "user", testUSDC)
	assert.ErrorIs(t, err, ErrNotEnoughAmount)

	env.swapper.failTo = testUSDC
	result, err := env.leverage.WithdrawStableCoin(env.ctx, "user", testUSDC, d("100"))
	require.NoError(t, err)
	assertDecimal(t, d("200"), result.Repaid)
	assertDecimal(t, d("0.5"), result.Fee)
	assert.True(t, result.Payout.IsZero())
	assertDecimal(t, d("99.5"), result.Deferred)
	assert.True(t, env.balance("user", testUSDC).IsZero())
	assertDecimal(t, d("0.5"), env.balance(testFeeReceiver, testDAI))

	// the lender leg and the position stay in step
	assertDecimal(t, d("1800"), env.lending.TotalDebt())
	assertDecimal(t, d("1800"), env.leverage.TotalDebtToLend())
	assertDecimal(t, d("2700"), env.gToken.TotalShares())
	pos, err := env.leverage.Position("user", testUSDC)
	require.NoError(t, err)
	assertDecimal(t, d("1800"), pos.Debt)
	assertDecimal(t, d("2700"), pos.Shares)
	assertDecimal(t, d("100"), pos.Withdrawed)
	assertDecimal(t, d("99.5"), pos.Unpaid)
	_, err = env.leverage.WithdrawRequestOf("user", testUSDC)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	_, err = env.leverage.ClaimPayout(env.ctx, "user", testUSDC)
	assert.ErrorIs(t, err, errSwapUnavailable)
	_, err = env.leverage.ClaimPayout(env.ctx, "bob", testUSDC)
	assert.ErrorIs(t, err, ErrPositionNotFound)

	env.swapper.failTo = ""
	paid, err := env.leverage.ClaimPayout(env.ctx, "user", testUSDC)
	require.NoError(t, err)
	assertDecimal(t, d("99.5"), paid)
	assertDecimal(t, d("99.5"), env.balance("user", testUSDC))
	assert.Equal(t, 1, env.operates.count(ActionClaimPayout))

	_, err = env.leverage.ClaimPayout(env.ctx, "user", testUSDC)
	assert.ErrorIs(t, err, ErrNotEnoughAmount)
	assertDecimal(t, d("11000"), env.ledger.Supply(testDAI).Add(env.ledger.Supply(testUSDC)))
}

func TestLeverageWithdrawConservesDeposits(t *testing.T) {
	type deposit struct {
		user     string
		amount   string
		leverage int64
	}
	deposits := []deposit{
		{"alice", "1000", 300},
		{"bob", "400", 150},
		{"carol", "250", 100},
	}

	tests := []struct {
		name  string
		price string
	}{
		{"at par", "1"},
		{"premium", "1.25"},
		{"discount", "0.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.seedLending(t, "100000")
			require.NoError(t, env.leverage.ChangeProtocolFee(env.ctx, testOwner, testFeeReceiver, decimal.Zero, decimal.Zero))
			env.gToken.SetPrice(d(tt.price))

			total := decimal.Zero
			for _, dep := range deposits {
				env.fund(dep.user, testUSDC, dep.amount)
				_, err := env.leverage.Deposit(env.ctx, dep.user, testUSDC, d(dep.amount), dep.leverage)
				require.NoError(t, err)
				_, err = env.leverage.MakeWithdrawRequest(env.ctx, dep.user, testUSDC, d(dep.amount))
				require.NoError(t, err)
				total = total.Add(d(dep.amount))
			}
			env.advanceEpochs(t, 3)

			withdrawn := decimal.Zero
			for _, dep := range deposits {
				result, err := env.leverage.WithdrawStableCoin(env.ctx, dep.user, testUSDC, d(dep.amount))
				require.NoError(t, err)
				assert.True(t, result.Deferred.IsZero())
				withdrawn = withdrawn.Add(env.balance(dep.user, testUSDC))
			}

			assertDecimal(t, total, withdrawn)
			assert.True(t, env.lending.TotalDebt().IsZero())
			assert.True(t, env.lending.TotalBadDebt().IsZero())
			assert.True(t, env.balance(testFeeReceiver, testDAI).IsZero())
			assert.True(t, env.leverage.TotalShares().IsZero())
		})
	}
}
