package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"apolo/internal/bus"
	"apolo/internal/risk"
	"apolo/internal/schema"
	"apolo/internal/state"
	"apolo/pkg/exception"
)

// HandlerName identifies the ledger on the bus.
const HandlerName = "ledger"

// AccountUpdater appends account snapshots. *risk.Gate implements it.
type AccountUpdater interface {
	ApplyUpdate(ctx context.Context, u risk.AccountUpdate) (state.AccountState, error)
}

// Config wires the ledger.
type Config struct {
	Bus      bus.Broker
	Store    TradeStore
	Accounts AccountUpdater
	Now      func() time.Time
}

// Ledger records fills as trades and feeds their effects back into the account state.
type Ledger struct {
	store     TradeStore
	accounts  AccountUpdater
	positions *PositionBook
	now       func() time.Time
}

// New creates a ledger subscribed to fills. Open trades already in the store seed the
// position book.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Bus == nil || cfg.Store == nil || cfg.Accounts == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "ledger dependencies")
	}
	l := &Ledger{
		store:     cfg.Store,
		accounts:  cfg.Accounts,
		positions: NewPositionBook(),
		now:       cfg.Now,
	}
	if l.now == nil {
		l.now = time.Now
	}

	open, err := cfg.Store.ListTrades(ctx, TradeOpen)
	if err != nil {
		return nil, errors.Wrap(err, "list open trades")
	}
	l.positions.Reset(open)

	if err := cfg.Bus.Subscribe(schema.KindOrderFill, HandlerName, l.OnFill); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Positions() *PositionBook {
	return l.positions
}

// OnFill opens a trade for the fill, charges its commission and counts it toward the daily
// trade limit.
func (l *Ledger) OnFill(ctx context.Context, e schema.Event) error {
	fill, err := schema.ParseOrderFill(e.Payload)
	if err != nil {
		return errors.Wrap(err, "parse order fill")
	}
	t, err := l.Record(ctx, fill)
	if err != nil {
		return err
	}
	logs.Infof("ledger: open trade %s %s %s, quantity: %d, credit: %.2f, position: %d",
		t.ID, t.StrategyType, t.Symbol, t.Quantity, t.EntryCredit, l.positions.Position(t.Symbol))
	return nil
}

// Record persists fill as an OPEN trade and applies its account effects. When the account
// update fails the trade is left in ERROR and its position is released.
func (l *Ledger) Record(ctx context.Context, fill schema.OrderFill) (Trade, error) {
	if len(fill.Legs) == 0 {
		return Trade{}, errors.Wrapf(exception.ErrTradeNoLegs, "order: %s", fill.OrderID)
	}
	if fill.FilledQuantity < 1 {
		return Trade{}, errors.Wrapf(exception.ErrOrderInvalidQuantity, "order: %s, quantity: %d", fill.OrderID, fill.FilledQuantity)
	}

	entry := fill.Timestamp
	if entry.IsZero() {
		entry = l.now()
	}
	legs := make([]Leg, 0, len(fill.Legs))
	for _, leg := range fill.Legs {
		legs = append(legs, Leg{
			OptionSymbol: OptionSymbol(fill.Symbol, leg.Expiration, leg.OptionType, leg.Strike),
			Side:         leg.Side,
			Strike:       leg.Strike,
			Expiration:   leg.Expiration,
			OptionType:   leg.OptionType,
		})
	}
	// Multi-leg fills are net priced; only a single leg carries its own price.
	if len(legs) == 1 {
		legs[0].EntryPrice = fill.FillPrice
	}

	t := Trade{
		ID:           uuid.NewString(),
		StrategyType: fill.StrategyName,
		Symbol:       fill.Symbol,
		Side:         fill.Side,
		Quantity:     fill.FilledQuantity,
		EntryTime:    entry.UTC(),
		Status:       TradeOpen,
		EntryCredit:  fill.FillPrice,
		Commission:   fill.Commission,
		MaxRisk:      maxRisk(legs, fill.FillPrice, fill.FilledQuantity),
		OrderID:      fill.OrderID,
		SignalID:     fill.SignalID,
		Legs:         legs,
	}
	if err := l.store.CreateTrade(ctx, t); err != nil {
		return Trade{}, errors.Wrap(err, "create trade")
	}
	l.positions.Open(t.Symbol, t.Side, t.Quantity)

	if _, err := l.accounts.ApplyUpdate(ctx, risk.AccountUpdate{
		PnLChange: -fill.Commission,
		NewTrades: 1,
	}); err != nil {
		l.positions.Close(t.Symbol, t.Side, t.Quantity)
		t.Status = TradeError
		if uerr := l.store.UpdateTrade(ctx, t); uerr != nil {
			logs.Errorf("ledger: mark trade %s as %s after failed account update, err: %+v", t.ID, TradeError, uerr)
		}
		return Trade{}, errors.Wrapf(err, "apply fill of order %s", fill.OrderID)
	}
	return t, nil
}

// CloseTrade buys back trade id at exitDebit per contract and realizes its result. When the
// account update fails the trade is restored as OPEN.
func (l *Ledger) CloseTrade(ctx context.Context, id string, exitDebit float64) (Trade, error) {
	t, err := l.store.GetTrade(ctx, id)
	if err != nil {
		return Trade{}, err
	}
	if err := Transition(t.Status, TradeClosed); err != nil {
		return Trade{}, err
	}
	if exitDebit < 0 {
		return Trade{}, errors.Wrapf(exception.ErrOrderInvalidPrice, "exit debit: %v", exitDebit)
	}

	prev := clone(t)
	t.Status = TradeClosed
	t.ExitTime = l.now().UTC()
	t.ExitDebit = exitDebit
	t.PnL = t.RealizedPnL(exitDebit)
	if len(t.Legs) == 1 {
		t.Legs[0].ExitPrice = exitDebit
	}
	if err := l.store.UpdateTrade(ctx, t); err != nil {
		return Trade{}, errors.Wrap(err, "update trade")
	}
	l.positions.Close(t.Symbol, t.Side, t.Quantity)

	// Commission was charged when the trade opened.
	if _, err := l.accounts.ApplyUpdate(ctx, risk.AccountUpdate{
		PnLChange: t.PnL + t.Commission,
		Realized:  true,
		TradePnL:  t.PnL,
	}); err != nil {
		l.positions.Open(t.Symbol, t.Side, t.Quantity)
		if uerr := l.store.UpdateTrade(ctx, prev); uerr != nil {
			logs.Errorf("ledger: reopen trade %s after failed account update, err: %+v", t.ID, uerr)
		}
		return Trade{}, errors.Wrapf(err, "apply close of trade %s", t.ID)
	}
	logs.Infof("ledger: close trade %s %s, exit debit: %.2f, pnl: %.2f", t.ID, t.Symbol, exitDebit, t.PnL)
	return t, nil
}

// MarkTrade moves an OPEN trade to REJECTED or ERROR without touching the account.
func (l *Ledger) MarkTrade(ctx context.Context, id string, status TradeStatus) (Trade, error) {
	if status != TradeRejected && status != TradeError {
		return Trade{}, errors.Wrapf(exception.ErrTradeInvalidTransition, "mark as: %s", status)
	}
	t, err := l.store.GetTrade(ctx, id)
	if err != nil {
		return Trade{}, err
	}
	if err := Transition(t.Status, status); err != nil {
		return Trade{}, err
	}
	t.Status = status
	if err := l.store.UpdateTrade(ctx, t); err != nil {
		return Trade{}, errors.Wrap(err, "update trade")
	}
	l.positions.Close(t.Symbol, t.Side, t.Quantity)
	logs.Warnf("ledger: mark trade %s %s as %s", t.ID, t.Symbol, status)
	return t, nil
}

// CloseAtTarget closes every open trade of symbol whose profit target is met at currentDebit.
func (l *Ledger) CloseAtTarget(ctx context.Context, symbol string, currentDebit func(Trade) float64) ([]Trade, error) {
	open, err := l.store.ListTrades(ctx, TradeOpen)
	if err != nil {
		return nil, err
	}
	var closed []Trade
	for _, t := range open {
		if t.Symbol != symbol {
			continue
		}
		debit := currentDebit(t)
		if !ProfitTargetReached(t, debit) {
			continue
		}
		c, err := l.CloseTrade(ctx, t.ID, debit)
		if err != nil {
			return closed, err
		}
		closed = append(closed, c)
	}
	return closed, nil
}
