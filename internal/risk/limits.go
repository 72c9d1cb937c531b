package risk

import (
	"github.com/yanun0323/errors"

	"apolo/internal/state"
	"apolo/pkg/exception"
)

// Limits holds the configured admission and sizing limits.
type Limits struct {
	MaxDrawdownPct       float64 `yaml:"maxDrawdownPct"`
	DailyMaxLossPct      float64 `yaml:"dailyMaxLossPct"`
	WeeklyMaxLossPct     float64 `yaml:"weeklyMaxLossPct"`
	MaxConsecutiveLosses int     `yaml:"maxConsecutiveLosses"`
	DailyMaxTrades       int     `yaml:"dailyMaxTrades"`

	NormalRiskPct    float64 `yaml:"normalRiskPct"`
	DefensiveRiskPct float64 `yaml:"defensiveRiskPct"`

	// InitialEquity seeds the account when the repository is empty.
	InitialEquity float64 `yaml:"initialEquity"`
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxDrawdownPct:       0.08,
		DailyMaxLossPct:      0.02,
		WeeklyMaxLossPct:     0.05,
		MaxConsecutiveLosses: 3,
		DailyMaxTrades:       3,
		NormalRiskPct:        0.02,
		DefensiveRiskPct:     0.01,
		InitialEquity:        state.DefaultEquity,
	}
}

// Validate rejects percentages outside (0, 1), counts below one and a non-positive
// initial equity.
func (l Limits) Validate() error {
	for name, pct := range map[string]float64{
		"maxDrawdownPct":   l.MaxDrawdownPct,
		"dailyMaxLossPct":  l.DailyMaxLossPct,
		"weeklyMaxLossPct": l.WeeklyMaxLossPct,
		"normalRiskPct":    l.NormalRiskPct,
		"defensiveRiskPct": l.DefensiveRiskPct,
	} {
		if pct <= 0 || pct >= 1 {
			return errors.Wrapf(exception.ErrRiskInvalidLimits, "%s: %v", name, pct)
		}
	}
	if l.MaxConsecutiveLosses < 1 || l.DailyMaxTrades < 1 {
		return errors.Wrapf(exception.ErrRiskInvalidLimits,
			"max consecutive losses: %d, daily max trades: %d", l.MaxConsecutiveLosses, l.DailyMaxTrades)
	}
	if l.InitialEquity <= 0 {
		return errors.Wrapf(exception.ErrRiskInvalidLimits, "initial equity: %v", l.InitialEquity)
	}
	return nil
}

// riskPct is the fraction of equity put at risk per trade in the given tier.
func (l Limits) riskPct(rs state.RiskState) float64 {
	switch rs {
	case state.RiskNormal:
		return l.NormalRiskPct
	case state.RiskDefensive:
		return l.DefensiveRiskPct
	default:
		return 0
	}
}
