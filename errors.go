package core

import (
	"github.com/pkg/errors"
)

type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindInvalidAmount
	KindInsufficientAmount
	KindRequestNotReady
	KindUnauthorized
	KindThresholdBreach
	KindOracleUnavailable
	KindNotFound
	KindInvalidState
	KindInvalidConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidAmount:
		return "InvalidAmount"
	case KindInsufficientAmount:
		return "InsufficientAmount"
	case KindRequestNotReady:
		return "RequestNotReady"
	case KindUnauthorized:
		return "Unauthorized"
	case KindThresholdBreach:
		return "ThresholdBreach"
	case KindOracleUnavailable:
		return "OracleUnavailable"
	case KindNotFound:
		return "NotFound"
	case KindInvalidState:
		return "InvalidState"
	case KindInvalidConfig:
		return "InvalidConfig"
	default:
		return "Unknown"
	}
}

var (
	ErrInvalidAmount     = errors.New("InvalidAmount")
	ErrInvalidLeverage   = errors.New("InvalidLeverage")
	ErrNotEnoughAmount   = errors.New("NotEnoughAmount")
	ErrRequestNotReady   = errors.New("RequestNotReady")
	ErrUnauthorized      = errors.New("Unauthorized")
	ErrThresholdBreach   = errors.New("ThresholdBreach")
	ErrOracleUnavailable = errors.New("OracleUnavailable")

	ErrPositionNotFound = errors.New("position not found")
	ErrRequestNotFound  = errors.New("withdraw request not found")
	ErrUnsupportedAsset = errors.New("unsupported asset")
	ErrRecordNotFound   = errors.New("record not found")

	ErrRequestExists   = errors.New("withdraw request already outstanding")
	ErrPositionClosed  = errors.New("position closed")
	ErrPositionHealthy = errors.New("position below liquidation threshold")
	ErrLenderNotSet    = errors.New("leverage vault not registered")
	ErrOutstandingDebt = errors.New("outstanding debt")

	InvalidConfig = errors.New("invalid config")
	MathError     = errors.New("math error")
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrInvalidLeverage, KindInvalidAmount},
	{ErrNotEnoughAmount, KindInsufficientAmount},
	{ErrRequestNotReady, KindRequestNotReady},
	{ErrUnauthorized, KindUnauthorized},
	{ErrThresholdBreach, KindThresholdBreach},
	{ErrOracleUnavailable, KindOracleUnavailable},
	{ErrPositionNotFound, KindNotFound},
	{ErrRequestNotFound, KindNotFound},
	{ErrRecordNotFound, KindNotFound},
	{ErrUnsupportedAsset, KindInvalidState},
	{ErrRequestExists, KindInvalidState},
	{ErrPositionClosed, KindInvalidState},
	{ErrPositionHealthy, KindInvalidState},
	{ErrLenderNotSet, KindInvalidState},
	{ErrOutstandingDebt, KindInvalidState},
	{InvalidConfig, KindInvalidConfig},
	{MathError, KindInvalidState},
}

// KindOf classifies err by the first sentinel found in its chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindUnknown
}
