package ledger

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// TradeStatus tracks the lifecycle of a trade.
type TradeStatus string

const (
	TradeOpen     TradeStatus = "OPEN"
	TradeClosed   TradeStatus = "CLOSED"
	TradeRejected TradeStatus = "REJECTED"
	TradeError    TradeStatus = "ERROR"
)

// Terminal reports whether no further transition is allowed.
func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeClosed, TradeRejected, TradeError:
		return true
	default:
		return false
	}
}

// Transition validates a status change. Only OPEN trades move, and only to a terminal status.
func Transition(from, to TradeStatus) error {
	if from != TradeOpen || !to.Terminal() {
		return errors.Wrapf(exception.ErrTradeInvalidTransition, "from: %s, to: %s", from, to)
	}
	return nil
}

// Trade aggregates the legs of one filled order. Money fields are per-contract prices except
// PnL, Commission and MaxRisk which are totals. PnL, ExitDebit and ExitTime are only set once
// the trade is CLOSED.
type Trade struct {
	ID           string
	StrategyType string
	Symbol       string
	Side         schema.Side
	Quantity     int
	EntryTime    time.Time
	ExitTime     time.Time
	Status       TradeStatus
	EntryCredit  float64
	ExitDebit    float64
	PnL          float64
	Commission   float64
	MaxRisk      float64
	OrderID      string
	SignalID     string
	Legs         []Leg
}

// Leg is one option contract of a trade.
type Leg struct {
	OptionSymbol string
	Side         schema.Side
	Strike       float64
	Expiration   time.Time
	OptionType   schema.OptionType
	EntryPrice   float64
	ExitPrice    float64
}

// OptionSymbol formats a contract identifier such as SPY_260408_P_425.
func OptionSymbol(underlying string, exp time.Time, typ schema.OptionType, strike float64) string {
	strikeText := strconv.FormatFloat(math.Round(strike*100)/100, 'f', -1, 64)
	code := "X"
	if typ != "" {
		code = string(typ)[:1]
	}
	return fmt.Sprintf("%s_%s_%s_%s", underlying, exp.UTC().Format("060102"), code, strikeText)
}

// RealizedPnL is the net result of closing at exitDebit per contract. It is computed in
// decimal so cent prices do not pick up binary rounding.
func (t Trade) RealizedPnL(exitDebit float64) float64 {
	pnl := decimal.NewFromFloat(t.EntryCredit).
		Sub(decimal.NewFromFloat(exitDebit)).
		Mul(decimal.NewFromInt(int64(t.Quantity) * contractMultiplier)).
		Sub(decimal.NewFromFloat(t.Commission))
	f, _ := pnl.Float64()
	return f
}

// ProfitTargetReached reports whether buying back at currentDebit captures at least 80% of
// the entry credit.
func ProfitTargetReached(t Trade, currentDebit float64) bool {
	if t.Status != TradeOpen || t.EntryCredit <= 0 {
		return false
	}
	return currentDebit <= t.EntryCredit*profitTargetDebitPct
}

const (
	contractMultiplier   = 100.0
	profitTargetDebitPct = 0.20
)

// maxRisk estimates the worst-case loss of the legs for quantity contracts: the strike
// notional for a lone short put, otherwise the widest vertical less the credit.
func maxRisk(legs []Leg, credit float64, quantity int) float64 {
	if len(legs) == 1 && legs[0].Side == schema.SideSell && legs[0].OptionType == schema.OptionPut {
		return legs[0].Strike * contractMultiplier * float64(quantity)
	}
	width := 0.0
	for _, typ := range []schema.OptionType{schema.OptionPut, schema.OptionCall} {
		lo, hi := 0.0, 0.0
		for _, l := range legs {
			if l.OptionType != typ {
				continue
			}
			if lo == 0 || l.Strike < lo {
				lo = l.Strike
			}
			if l.Strike > hi {
				hi = l.Strike
			}
		}
		width = max(width, hi-lo)
	}
	if width <= credit {
		return 0
	}
	return (width - credit) * contractMultiplier * float64(quantity)
}
