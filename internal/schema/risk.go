package schema

// RiskReason explains a risk decision.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonMaxDrawdown
	RiskReasonDailyLoss
	RiskReasonWeeklyLoss
	RiskReasonConsecutiveLosses
	RiskReasonDailyTrades
	RiskReasonHalted
	RiskReasonZeroQuantity
	RiskReasonInvalidSignal
)

// RiskReasons lists every reason in declaration order.
var RiskReasons = []RiskReason{
	RiskReasonNone,
	RiskReasonMaxDrawdown,
	RiskReasonDailyLoss,
	RiskReasonWeeklyLoss,
	RiskReasonConsecutiveLosses,
	RiskReasonDailyTrades,
	RiskReasonHalted,
	RiskReasonZeroQuantity,
	RiskReasonInvalidSignal,
}

func (r RiskReason) String() string {
	switch r {
	case RiskReasonNone:
		return "none"
	case RiskReasonMaxDrawdown:
		return "max_drawdown"
	case RiskReasonDailyLoss:
		return "daily_loss"
	case RiskReasonWeeklyLoss:
		return "weekly_loss"
	case RiskReasonConsecutiveLosses:
		return "consecutive_losses"
	case RiskReasonDailyTrades:
		return "daily_trades"
	case RiskReasonHalted:
		return "halted"
	case RiskReasonZeroQuantity:
		return "zero_quantity"
	case RiskReasonInvalidSignal:
		return "invalid_signal"
	default:
		return "unknown"
	}
}

// RiskAction is the outcome of a risk decision.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
)

func (a RiskAction) String() string {
	switch a {
	case RiskActionAllow:
		return "allow"
	case RiskActionDeny:
		return "deny"
	default:
		return "unknown"
	}
}
