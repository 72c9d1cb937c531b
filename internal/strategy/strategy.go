// Package strategy turns market data snapshots into trade signals.
//
// Evaluators are pure and stateless between ticks. A Runner binds one evaluator to the bus.
package strategy

import (
	"slices"
	"time"

	"github.com/yanun0323/errors"

	"apolo/internal/pricing"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

const (
	BullPutSpread  = "BULL_PUT_SPREAD"
	BearCallSpread = "BEAR_CALL_SPREAD"
	IronCondor     = "IRON_CONDOR"
	CashSecuredPut = "CASH_SECURED_PUT"
)

// Names lists every known strategy.
var Names = []string{BullPutSpread, BearCallSpread, IronCondor, CashSecuredPut}

const contractMultiplier = 100.0

// Evaluator decides whether a market snapshot warrants a signal.
type Evaluator interface {
	Name() string
	Evaluate(md schema.MarketData) (schema.Signal, bool)
}

// Params tunes one evaluator. Offsets are fractions of spot.
type Params struct {
	Enabled bool     `yaml:"enabled"`
	Symbols []string `yaml:"symbols"`

	MinIVRank float64 `yaml:"minIvRank"`
	MaxADX    float64 `yaml:"maxAdx"`

	ShortOffset float64 `yaml:"shortOffset"`
	LongOffset  float64 `yaml:"longOffset"`

	// Credit is the proxy net credit used without chain data.
	Credit float64 `yaml:"credit"`
	// CreditPct is the proxy credit as a fraction of strike, used when Credit is zero.
	CreditPct float64 `yaml:"creditPct"`
	// RiskPerUnit fixes the per-contract risk instead of deriving it from strikes.
	RiskPerUnit float64 `yaml:"riskPerUnit"`

	DTE          int     `yaml:"dte"`
	RiskFreeRate float64 `yaml:"riskFreeRate"`
}

// DefaultParams returns the documented defaults of a strategy.
func DefaultParams(name string) (Params, error) {
	p := Params{Enabled: true, DTE: 35, RiskFreeRate: 0.05}
	switch name {
	case BullPutSpread:
		p.MinIVRank = 30
		p.ShortOffset, p.LongOffset = 0.95, 0.90
		p.Credit = 1.50
	case BearCallSpread:
		p.MinIVRank = 20
		p.ShortOffset, p.LongOffset = 1.05, 1.10
		p.Credit = 1.50
	case IronCondor:
		p.MaxADX = 20
		p.ShortOffset, p.LongOffset = 0.05, 0.10
		p.Credit = 3.00
		p.RiskPerUnit = 200
	case CashSecuredPut:
		p.MinIVRank = 20
		p.ShortOffset = 0.95
		p.CreditPct = 0.01
	default:
		return Params{}, errors.Wrapf(exception.ErrInvalidArgument, "unknown strategy: %s", name)
	}
	return p, nil
}

// New builds the evaluator registered under name.
func New(name string, p Params) (Evaluator, error) {
	switch name {
	case BullPutSpread:
		return NewBullPutSpread(p), nil
	case BearCallSpread:
		return NewBearCallSpread(p), nil
	case IronCondor:
		return NewIronCondor(p), nil
	case CashSecuredPut:
		return NewCashSecuredPut(p), nil
	default:
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "unknown strategy: %s", name)
	}
}

func (p Params) watches(symbol string) bool {
	return len(p.Symbols) == 0 || slices.Contains(p.Symbols, symbol)
}

// expiration is the chain expiration when known, else the DTE proxy.
func (p Params) expiration(md schema.MarketData) time.Time {
	if md.Chain != nil && !md.Chain.Expiration.IsZero() {
		return md.Chain.Expiration
	}
	return md.Timestamp.AddDate(0, 0, p.DTE)
}

// shortDelta models the delta of the short leg when the snapshot carries enough data.
func (p Params) shortDelta(md schema.MarketData, strike float64, typ schema.OptionType) float64 {
	if md.Chain == nil || md.Chain.Expiration.IsZero() || md.IV <= 0 || md.Timestamp.IsZero() {
		return 0
	}
	days := md.Chain.Expiration.Sub(md.Timestamp).Hours() / 24
	if days <= 0 {
		return 0
	}
	return pricing.ComputeGreeks(md.Price, strike, pricing.YearsUntil(days), p.RiskFreeRate, md.IV, typ).Delta
}
