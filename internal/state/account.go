package state

import (
	"time"

	"github.com/yanun0323/errors"

	"apolo/pkg/exception"
)

// RiskState is the risk tier of the account.
type RiskState string

const (
	RiskNormal    RiskState = "NORMAL"
	RiskDefensive RiskState = "DEFENSIVE"
	RiskHalt      RiskState = "HALT"
)

// Tier maps the state to 0 normal, 1 defensive, 2 halt.
func (s RiskState) Tier() int {
	switch s {
	case RiskDefensive:
		return 1
	case RiskHalt:
		return 2
	default:
		return 0
	}
}

const (
	// DefensiveDrawdown is the drawdown above which the account turns defensive.
	DefensiveDrawdown = 0.04
	// HaltDrawdown is the drawdown above which the account halts.
	HaltDrawdown = 0.08

	// DefaultEquity seeds the account when no snapshot exists.
	DefaultEquity = 100000.0
)

// DeriveRiskState is the only mapping from drawdown to risk tier.
func DeriveRiskState(drawdownPct float64) RiskState {
	switch {
	case drawdownPct > HaltDrawdown:
		return RiskHalt
	case drawdownPct > DefensiveDrawdown:
		return RiskDefensive
	default:
		return RiskNormal
	}
}

// AccountState is one append-only snapshot of the global account. The current state is
// always the most recent snapshot by timestamp.
type AccountState struct {
	Timestamp         time.Time
	Equity            float64
	Balance           float64
	RiskState         RiskState
	DrawdownPct       float64
	HighWaterMark     float64
	DailyTradesCount  int
	DailyPnL          float64
	WeeklyPnL         float64
	ConsecutiveLosses int
}

// Initial synthesizes the NORMAL state used before any snapshot exists.
func Initial(equity float64, now time.Time) AccountState {
	if equity <= 0 {
		equity = DefaultEquity
	}
	return AccountState{
		Timestamp:     now.UTC(),
		Equity:        equity,
		Balance:       equity,
		RiskState:     RiskNormal,
		HighWaterMark: equity,
	}
}

// Validate rejects snapshots whose risk tier disagrees with their drawdown.
func (a AccountState) Validate() error {
	if want := DeriveRiskState(a.DrawdownPct); a.RiskState != want {
		return errors.Wrapf(exception.ErrRiskInconsistentState,
			"drawdown: %.4f, risk state: %s, expected: %s", a.DrawdownPct, a.RiskState, want)
	}
	if a.DailyTradesCount < 0 || a.ConsecutiveLosses < 0 {
		return errors.Wrapf(exception.ErrInvalidArgument,
			"daily trades: %d, consecutive losses: %d", a.DailyTradesCount, a.ConsecutiveLosses)
	}
	return nil
}
