package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Precision is the number of fractional digits kept after a division.
	Precision int32 = 18

	MIN_LEVERAGE = 100
	MAX_LEVERAGE = 300

	DEFAULT_EPOCH_LENGTH             = 72 * time.Hour
	DEFAULT_WITHDRAW_REQUEST_WINDOW  = 48 * time.Hour
	DEFAULT_WITHDRAW_EPOCHS_TIMELOCK = 3

	DEFAULT_PENDING_DRAIN_SCHEDULE = "0 */8 * * *"
)

var (
	ONE     = decimal.NewFromInt(1)
	HUNDRED = decimal.NewFromInt(100)
	BPS     = decimal.NewFromInt(10_000)

	EMPTY_BALANCE_THRESHOLD = decimal.New(1, -12)

	DEFAULT_PROTOCOL_FEE    = decimal.RequireFromString("0.005")
	DEFAULT_MAX_UTILIZATION = decimal.RequireFromString("0.8")
	DEFAULT_MAX_DTV         = decimal.RequireFromString("0.9")
	DEFAULT_MIN_DEPOSIT     = decimal.NewFromInt(1)
)
