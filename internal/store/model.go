package store

import (
	"time"

	"github.com/shopspring/decimal"

	"apolo/internal/ledger"
	"apolo/internal/schema"
	"apolo/internal/state"
)

type accountStateModel struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	Timestamp   time.Time `gorm:"not null"`
	TimestampNs int64     `gorm:"index;not null"`

	Equity        decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Balance       decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	HighWaterMark decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	DailyPnL      decimal.Decimal `gorm:"column:daily_pnl;type:numeric(20,6);not null"`
	WeeklyPnL     decimal.Decimal `gorm:"column:weekly_pnl;type:numeric(20,6);not null"`

	// Drawdown stays a float so the derived risk state survives the round trip exactly.
	DrawdownPct       float64 `gorm:"not null"`
	RiskState         string  `gorm:"size:16;not null"`
	DailyTradesCount  int     `gorm:"not null"`
	ConsecutiveLosses int     `gorm:"not null"`
}

func (accountStateModel) TableName() string {
	return "account_states"
}

func newAccountStateModel(s state.AccountState) accountStateModel {
	ts := s.Timestamp.UTC()
	return accountStateModel{
		Timestamp:         ts,
		TimestampNs:       ts.UnixNano(),
		Equity:            decimal.NewFromFloat(s.Equity),
		Balance:           decimal.NewFromFloat(s.Balance),
		HighWaterMark:     decimal.NewFromFloat(s.HighWaterMark),
		DailyPnL:          decimal.NewFromFloat(s.DailyPnL),
		WeeklyPnL:         decimal.NewFromFloat(s.WeeklyPnL),
		DrawdownPct:       s.DrawdownPct,
		RiskState:         string(s.RiskState),
		DailyTradesCount:  s.DailyTradesCount,
		ConsecutiveLosses: s.ConsecutiveLosses,
	}
}

func (m accountStateModel) domain() state.AccountState {
	return state.AccountState{
		Timestamp:         time.Unix(0, m.TimestampNs).UTC(),
		Equity:            m.Equity.InexactFloat64(),
		Balance:           m.Balance.InexactFloat64(),
		RiskState:         state.RiskState(m.RiskState),
		DrawdownPct:       m.DrawdownPct,
		HighWaterMark:     m.HighWaterMark.InexactFloat64(),
		DailyTradesCount:  m.DailyTradesCount,
		DailyPnL:          m.DailyPnL.InexactFloat64(),
		WeeklyPnL:         m.WeeklyPnL.InexactFloat64(),
		ConsecutiveLosses: m.ConsecutiveLosses,
	}
}

type tradeModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	StrategyType string    `gorm:"size:32;not null"`
	Symbol       string    `gorm:"size:16;index;not null"`
	Side         string    `gorm:"size:8;not null"`
	Quantity     int       `gorm:"not null"`
	EntryTime    time.Time `gorm:"not null"`
	EntryTimeNs  int64     `gorm:"index;not null"`
	ExitTime     *time.Time
	Status       string `gorm:"size:16;index;not null"`

	EntryCredit decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	ExitDebit   decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	PnL         decimal.Decimal `gorm:"column:pnl;type:numeric(20,6);not null"`
	Commission  decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	MaxRisk     decimal.Decimal `gorm:"type:numeric(20,6);not null"`

	OrderID  string `gorm:"size:64;index"`
	SignalID string `gorm:"size:64"`

	Legs []legModel `gorm:"foreignKey:TradeID;constraint:OnDelete:CASCADE"`
}

func (tradeModel) TableName() string {
	return "trades"
}

type legModel struct {
	ID           uint64              `gorm:"primaryKey;autoIncrement"`
	TradeID      string              `gorm:"size:64;index;not null"`
	Seq          int                 `gorm:"not null"`
	OptionSymbol string              `gorm:"size:64;not null"`
	Side         string              `gorm:"size:8;not null"`
	Strike       decimal.Decimal     `gorm:"type:numeric(20,6);not null"`
	Expiration   time.Time           `gorm:"not null"`
	OptionType   string              `gorm:"size:8;not null"`
	EntryPrice   decimal.Decimal     `gorm:"type:numeric(20,6);not null"`
	ExitPrice    decimal.NullDecimal `gorm:"type:numeric(20,6)"`
}

func (legModel) TableName() string {
	return "legs"
}

func newTradeModel(t ledger.Trade) tradeModel {
	entry := t.EntryTime.UTC()
	m := tradeModel{
		ID:           t.ID,
		StrategyType: t.StrategyType,
		Symbol:       t.Symbol,
		Side:         string(t.Side),
		Quantity:     t.Quantity,
		EntryTime:    entry,
		EntryTimeNs:  entry.UnixNano(),
		Status:       string(t.Status),
		EntryCredit:  decimal.NewFromFloat(t.EntryCredit),
		ExitDebit:    decimal.NewFromFloat(t.ExitDebit),
		PnL:          decimal.NewFromFloat(t.PnL),
		Commission:   decimal.NewFromFloat(t.Commission),
		MaxRisk:      decimal.NewFromFloat(t.MaxRisk),
		OrderID:      t.OrderID,
		SignalID:     t.SignalID,
		Legs:         newLegModels(t.ID, t.Legs),
	}
	if !t.ExitTime.IsZero() {
		exit := t.ExitTime.UTC()
		m.ExitTime = &exit
	}
	return m
}

func newLegModels(tradeID string, legs []ledger.Leg) []legModel {
	out := make([]legModel, 0, len(legs))
	for i, l := range legs {
		m := legModel{
			TradeID:      tradeID,
			Seq:          i,
			OptionSymbol: l.OptionSymbol,
			Side:         string(l.Side),
			Strike:       decimal.NewFromFloat(l.Strike),
			Expiration:   l.Expiration.UTC(),
			OptionType:   string(l.OptionType),
			EntryPrice:   decimal.NewFromFloat(l.EntryPrice),
		}
		if l.ExitPrice != 0 {
			m.ExitPrice = decimal.NewNullDecimal(decimal.NewFromFloat(l.ExitPrice))
		}
		out = append(out, m)
	}
	return out
}

func (m tradeModel) domain() ledger.Trade {
	t := ledger.Trade{
		ID:           m.ID,
		StrategyType: m.StrategyType,
		Symbol:       m.Symbol,
		Side:         schema.Side(m.Side),
		Quantity:     m.Quantity,
		EntryTime:    time.Unix(0, m.EntryTimeNs).UTC(),
		Status:       ledger.TradeStatus(m.Status),
		EntryCredit:  m.EntryCredit.InexactFloat64(),
		ExitDebit:    m.ExitDebit.InexactFloat64(),
		PnL:          m.PnL.InexactFloat64(),
		Commission:   m.Commission.InexactFloat64(),
		MaxRisk:      m.MaxRisk.InexactFloat64(),
		OrderID:      m.OrderID,
		SignalID:     m.SignalID,
	}
	if m.ExitTime != nil {
		t.ExitTime = m.ExitTime.UTC()
	}
	for _, l := range m.Legs {
		leg := ledger.Leg{
			OptionSymbol: l.OptionSymbol,
			Side:         schema.Side(l.Side),
			Strike:       l.Strike.InexactFloat64(),
			Expiration:   l.Expiration.UTC(),
			OptionType:   schema.OptionType(l.OptionType),
			EntryPrice:   l.EntryPrice.InexactFloat64(),
		}
		if l.ExitPrice.Valid {
			leg.ExitPrice = l.ExitPrice.Decimal.InexactFloat64()
		}
		t.Legs = append(t.Legs, leg)
	}
	return t
}
