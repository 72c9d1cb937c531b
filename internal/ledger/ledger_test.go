package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apolo/internal/bus"
	"apolo/internal/risk"
	"apolo/internal/schema"
	"apolo/internal/state"
	"apolo/pkg/exception"
)

var (
	testNow = time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	testExp = time.Date(2026, 4, 8, 20, 0, 0, 0, time.UTC)
)

type fixture struct {
	bus    *bus.Bus
	repo   *state.MemoryRepository
	store  *MemoryTradeStore
	ledger *Ledger
	errs   []schema.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		bus:   bus.New(bus.Config{}),
		repo:  state.NewMemoryRepository(),
		store: NewMemoryTradeStore(),
	}
	require.NoError(t, f.bus.Subscribe(schema.KindError, "capture", func(ctx context.Context, e schema.Event) error {
		f.errs = append(f.errs, e)
		return nil
	}))
	clock := func() time.Time { return testNow }
	gate, err := risk.NewGate(risk.Config{Limits: risk.DefaultLimits(), Repository: f.repo, Bus: f.bus, Now: clock})
	require.NoError(t, err)
	l, err := New(ctx, Config{Bus: f.bus, Store: f.store, Accounts: gate, Now: clock})
	require.NoError(t, err)
	f.ledger = l
	return f
}

func bullPutFill(orderID string, qty int, price float64) schema.OrderFill {
	return schema.OrderFill{
		OrderID:      orderID,
		SignalID:     "sig-" + orderID,
		StrategyName: "BULL_PUT_SPREAD",
		Symbol:       "SPY",
		Side:         schema.SideSell,
		Legs: []schema.Leg{
			{Side: schema.SideSell, OptionType: schema.OptionPut, Strike: 425, Expiration: testExp},
			{Side: schema.SideBuy, OptionType: schema.OptionPut, Strike: 405, Expiration: testExp},
		},
		FilledQuantity: qty,
		FillPrice:      price,
		Commission:     1.05 * float64(qty),
		Timestamp:      testNow,
	}
}

func (f *fixture) fill(t *testing.T, fill schema.OrderFill) Trade {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.bus.Publish(ctx, schema.NewEvent(schema.KindOrderFill, fill.Payload())))
	require.Empty(t, f.errs)
	trades, err := f.store.ListTrades(ctx, TradeOpen)
	require.NoError(t, err)
	for _, tr := range trades {
		if tr.OrderID == fill.OrderID {
			return tr
		}
	}
	require.FailNow(t, "trade not recorded", fill.OrderID)
	return Trade{}
}

func (f *fixture) latest(t *testing.T) state.AccountState {
	t.Helper()
	s, ok, err := f.repo.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	return s
}

func TestOnFillOpensTrade(t *testing.T) {
	f := newFixture(t)
	tr := f.fill(t, bullPutFill("o-1", 2, 1.5))

	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, TradeOpen, tr.Status)
	assert.Equal(t, "BULL_PUT_SPREAD", tr.StrategyType)
	assert.Equal(t, 2, tr.Quantity)
	assert.Equal(t, 1.5, tr.EntryCredit)
	assert.InDelta(t, 2.1, tr.Commission, 1e-9)
	assert.InDelta(t, (20-1.5)*100*2, tr.MaxRisk, 1e-9)
	assert.Equal(t, "sig-o-1", tr.SignalID)
	assert.True(t, testNow.Equal(tr.EntryTime))
	assert.Zero(t, tr.PnL)
	assert.True(t, tr.ExitTime.IsZero())
	require.Len(t, tr.Legs, 2)
	assert.Equal(t, "SPY_260408_P_425", tr.Legs[0].OptionSymbol)
	assert.Equal(t, "SPY_260408_P_405", tr.Legs[1].OptionSymbol)

	assert.Equal(t, -2, f.ledger.Positions().Position("SPY"))

	s := f.latest(t)
	assert.Equal(t, 1, s.DailyTradesCount)
	assert.InDelta(t, 100000-2.1, s.Equity, 1e-9)
	assert.InDelta(t, -2.1, s.DailyPnL, 1e-9)
	assert.Zero(t, s.ConsecutiveLosses)
	assert.Equal(t, state.RiskNormal, s.RiskState)
}

func TestCloseTradeWithProfit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := f.fill(t, bullPutFill("o-1", 2, 1.5))

	closed, err := f.ledger.CloseTrade(ctx, tr.ID, 0.3)
	require.NoError(t, err)
	assert.Equal(t, TradeClosed, closed.Status)
	assert.InDelta(t, 237.9, closed.PnL, 1e-9)
	assert.Equal(t, 0.3, closed.ExitDebit)
	assert.False(t, closed.ExitTime.IsZero())
	assert.Zero(t, f.ledger.Positions().Position("SPY"))

	stored, err := f.store.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, TradeClosed, stored.Status)

	s := f.latest(t)
	assert.InDelta(t, 100000-2.1+240, s.Equity, 1e-9)
	assert.Zero(t, s.ConsecutiveLosses)
	assert.InDelta(t, 100237.9, s.HighWaterMark, 1e-9)

	_, err = f.ledger.CloseTrade(ctx, tr.ID, 0.3)
	require.ErrorIs(t, err, exception.ErrTradeInvalidTransition)
}

func TestCloseTradeWithLossCountsConsecutiveLosses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i, id := range []string{"o-1", "o-2"} {
		tr := f.fill(t, bullPutFill(id, 1, 1.5))
		closed, err := f.ledger.CloseTrade(ctx, tr.ID, 2.5)
		require.NoError(t, err)
		assert.InDelta(t, -101.05, closed.PnL, 1e-9)
		assert.Equal(t, i+1, f.latest(t).ConsecutiveLosses)
	}
}

func TestMarkTrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := f.fill(t, bullPutFill("o-1", 1, 1.5))
	equity := f.latest(t).Equity

	_, err := f.ledger.MarkTrade(ctx, tr.ID, TradeClosed)
	require.ErrorIs(t, err, exception.ErrTradeInvalidTransition)

	marked, err := f.ledger.MarkTrade(ctx, tr.ID, TradeRejected)
	require.NoError(t, err)
	assert.Equal(t, TradeRejected, marked.Status)
	assert.Zero(t, marked.PnL)
	assert.Zero(t, f.ledger.Positions().Count())
	assert.Equal(t, equity, f.latest(t).Equity)

	_, err = f.ledger.MarkTrade(ctx, tr.ID, TradeError)
	require.ErrorIs(t, err, exception.ErrTradeInvalidTransition)
	_, err = f.ledger.CloseTrade(ctx, tr.ID, 0.1)
	require.ErrorIs(t, err, exception.ErrTradeInvalidTransition)

	_, err = f.ledger.CloseTrade(ctx, "missing", 0.1)
	require.ErrorIs(t, err, exception.ErrTradeNotFound)
}

func TestFillWithoutLegsIsAHandlerFailure(t *testing.T) {
	f := newFixture(t)
	fill := bullPutFill("o-1", 1, 1.5)
	fill.Legs = nil
	require.NoError(t, f.bus.Publish(context.Background(), schema.NewEvent(schema.KindOrderFill, fill.Payload())))

	require.Len(t, f.errs, 1)
	assert.Equal(t, HandlerName, f.errs[0].Payload[schema.KeyOriginHandler])
	trades, err := f.store.ListTrades(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestTransition(t *testing.T) {
	statuses := []TradeStatus{TradeOpen, TradeClosed, TradeRejected, TradeError}
	for _, from := range statuses {
		for _, to := range statuses {
			err := Transition(from, to)
			if from == TradeOpen && to != TradeOpen {
				assert.NoErrorf(t, err, "%s -> %s", from, to)
			} else {
				assert.ErrorIsf(t, err, exception.ErrTradeInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestProfitTargetReached(t *testing.T) {
	tr := Trade{Status: TradeOpen, EntryCredit: 1.5}
	assert.True(t, ProfitTargetReached(tr, 0.3))
	assert.True(t, ProfitTargetReached(tr, 0.1))
	assert.False(t, ProfitTargetReached(tr, 0.31))

	tr.Status = TradeClosed
	assert.False(t, ProfitTargetReached(tr, 0.1))
}

func TestCloseAtTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	winner := f.fill(t, bullPutFill("o-1", 1, 2.0))
	f.fill(t, bullPutFill("o-2", 1, 1.0))

	closed, err := f.ledger.CloseAtTarget(ctx, "SPY", func(Trade) float64 { return 0.3 })
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, winner.ID, closed[0].ID)

	open, err := f.store.ListTrades(ctx, TradeOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "o-2", open[0].OrderID)
}

func TestListTradesOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTradeStore()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateTrade(ctx, Trade{
			ID:        id,
			Status:    TradeOpen,
			EntryTime: testNow.Add(time.Duration(i) * time.Minute),
		}))
	}
	c, err := store.GetTrade(ctx, "c")
	require.NoError(t, err)
	c.Status = TradeClosed
	require.NoError(t, store.UpdateTrade(ctx, c))

	all, err := store.ListTrades(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	open, err := store.ListTrades(ctx, TradeOpen)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "b", open[0].ID)

	require.Error(t, store.CreateTrade(ctx, Trade{ID: "a"}))
	require.ErrorIs(t, store.UpdateTrade(ctx, Trade{ID: "z"}), exception.ErrTradeNotFound)
}

func TestOptionSymbol(t *testing.T) {
	assert.Equal(t, "SPY_260408_P_425", OptionSymbol("SPY", testExp, schema.OptionPut, 425))
	assert.Equal(t, "SPY_260408_C_427.5", OptionSymbol("SPY", testExp, schema.OptionCall, 427.5))
	assert.Equal(t, "QQQ_260408_P_400", OptionSymbol("QQQ", testExp, schema.OptionPut, 400))
}

func TestModelDebit(t *testing.T) {
	tr := Trade{Legs: []Leg{
		{Side: schema.SideSell, OptionType: schema.OptionPut, Strike: 425, Expiration: testExp},
		{Side: schema.SideBuy, OptionType: schema.OptionPut, Strike: 405, Expiration: testExp},
	}}

	// Expired legs are worth intrinsic value.
	assert.InDelta(t, 20, ModelDebit(tr, 400, 0.2, 0.05, testExp.Add(time.Hour)), 1e-9)
	assert.Zero(t, ModelDebit(tr, 450, 0.2, 0.05, testExp.Add(time.Hour)))

	live := ModelDebit(tr, 450, 0.2, 0.05, testNow)
	assert.Greater(t, live, 0.0)
	assert.Less(t, live, 20.0)
}

func TestPositionBookReset(t *testing.T) {
	b := NewPositionBook()
	b.Open("SPY", schema.SideSell, 2)
	b.Open("QQQ", schema.SideBuy, 1)
	assert.Equal(t, 2, b.Count())

	b.Reset([]Trade{
		{Symbol: "IWM", Side: schema.SideSell, Quantity: 3},
		{Symbol: "IWM", Side: schema.SideSell, Quantity: 1},
	})
	assert.Equal(t, 1, b.Count())
	assert.Equal(t, -4, b.Position("IWM"))
	assert.Zero(t, b.Position("SPY"))
}

type flakyAccounts struct {
	next AccountUpdater
	fail bool
}

func (a *flakyAccounts) ApplyUpdate(ctx context.Context, u risk.AccountUpdate) (state.AccountState, error) {
	if a.fail {
		return state.AccountState{}, errors.New("account store unavailable")
	}
	return a.next.ApplyUpdate(ctx, u)
}

func newFlakyLedger(t *testing.T) (*Ledger, *MemoryTradeStore, *state.MemoryRepository, *flakyAccounts) {
	t.Helper()
	b := bus.New(bus.Config{})
	repo := state.NewMemoryRepository()
	store := NewMemoryTradeStore()
	clock := func() time.Time { return testNow }
	gate, err := risk.NewGate(risk.Config{Limits: risk.DefaultLimits(), Repository: repo, Bus: b, Now: clock})
	require.NoError(t, err)
	accounts := &flakyAccounts{next: gate}
	l, err := New(context.Background(), Config{Bus: b, Store: store, Accounts: accounts, Now: clock})
	require.NoError(t, err)
	return l, store, repo, accounts
}

func TestRecordReleasesTradeWhenAccountUpdateFails(t *testing.T) {
	ctx := context.Background()
	l, store, repo, accounts := newFlakyLedger(t)
	accounts.fail = true

	_, err := l.Record(ctx, bullPutFill("o-1", 2, 1.5))
	require.Error(t, err)

	open, err := store.ListTrades(ctx, TradeOpen)
	require.NoError(t, err)
	assert.Empty(t, open)
	failed, err := store.ListTrades(ctx, TradeError)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "o-1", failed[0].OrderID)
	assert.Zero(t, l.Positions().Position("SPY"))

	_, ok, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloseTradeRestoresTradeWhenAccountUpdateFails(t *testing.T) {
	ctx := context.Background()
	l, store, repo, accounts := newFlakyLedger(t)

	tr, err := l.Record(ctx, bullPutFill("o-1", 2, 1.5))
	require.NoError(t, err)
	before, _, err := repo.Latest(ctx)
	require.NoError(t, err)

	accounts.fail = true
	_, err = l.CloseTrade(ctx, tr.ID, 0.3)
	require.Error(t, err)

	stored, err := store.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, TradeOpen, stored.Status)
	assert.Zero(t, stored.PnL)
	assert.True(t, stored.ExitTime.IsZero())
	assert.Equal(t, -2, l.Positions().Position("SPY"))

	after, _, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Equity, after.Equity)

	accounts.fail = false
	closed, err := l.CloseTrade(ctx, tr.ID, 0.3)
	require.NoError(t, err)
	assert.Equal(t, TradeClosed, closed.Status)
}

func TestRealizedPnLIsExactInCents(t *testing.T) {
	tr := Trade{EntryCredit: 1.1, Quantity: 3, Commission: 3.15}
	assert.Equal(t, 236.85, tr.RealizedPnL(0.3))
	assert.Equal(t, -3.15, tr.RealizedPnL(1.1))
}
