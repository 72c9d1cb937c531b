package risk

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apolo/internal/bus"
	"apolo/internal/schema"
	"apolo/internal/state"
)

var testNow = time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

type fixture struct {
	bus    *bus.Bus
	repo   *state.MemoryRepository
	gate   *Gate
	orders []schema.OrderRequest
	errs   []schema.Event
}

func newFixture(t *testing.T, seed ...state.AccountState) *fixture {
	t.Helper()
	f := &fixture{
		bus:  bus.New(bus.Config{}),
		repo: state.NewMemoryRepository(seed...),
	}
	require.NoError(t, f.bus.Subscribe(schema.KindOrderRequest, "capture", func(ctx context.Context, e schema.Event) error {
		req, err := schema.ParseOrderRequest(e.Payload)
		require.NoError(t, err)
		f.orders = append(f.orders, req)
		return nil
	}))
	require.NoError(t, f.bus.Subscribe(schema.KindError, "capture", func(ctx context.Context, e schema.Event) error {
		f.errs = append(f.errs, e)
		return nil
	}))
	gate, err := NewGate(Config{
		Limits:     DefaultLimits(),
		Repository: f.repo,
		Bus:        f.bus,
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)
	f.gate = gate
	return f
}

func signal(riskPerUnit float64) schema.Signal {
	return schema.Signal{
		ID:           "sig-1",
		StrategyName: "BullPutSpread",
		Symbol:       "SPY",
		Side:         schema.SideSell,
		Legs: []schema.Leg{
			{Side: schema.SideSell, OptionType: schema.OptionPut, Strike: 427.5, Expiration: testNow.AddDate(0, 0, 35)},
			{Side: schema.SideBuy, OptionType: schema.OptionPut, Strike: 405, Expiration: testNow.AddDate(0, 0, 35)},
		},
		LimitPrice:  1.5,
		RiskPerUnit: riskPerUnit,
	}
}

func (f *fixture) publish(t *testing.T, sig schema.Signal) {
	t.Helper()
	require.NoError(t, f.bus.Publish(context.Background(), schema.NewEvent(schema.KindSignal, sig.Payload())))
}

func accountWith(mutate func(*state.AccountState)) state.AccountState {
	s := state.Initial(100000, testNow.Add(-time.Hour))
	mutate(&s)
	s.RiskState = state.DeriveRiskState(s.DrawdownPct)
	return s
}

func TestGateSizingNormal(t *testing.T) {
	f := newFixture(t)
	f.publish(t, signal(1000))

	require.Len(t, f.orders, 1)
	req := f.orders[0]
	assert.Equal(t, 2, req.Quantity)
	assert.Equal(t, "SPY", req.Symbol)
	assert.Equal(t, "sig-1", req.SignalID)
	assert.Equal(t, schema.OrderTypeLimit, req.OrderType)
	assert.Equal(t, 1.5, req.Price)
	assert.Len(t, req.Legs, 2)
	assert.Empty(t, f.errs)
}

func TestGateSizingDefensive(t *testing.T) {
	f := newFixture(t, accountWith(func(s *state.AccountState) {
		s.Equity = 95000
		s.DrawdownPct = 0.05
	}))
	f.publish(t, signal(300))

	require.Len(t, f.orders, 1)
	assert.Equal(t, 3, f.orders[0].Quantity)
}

func TestGateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*state.AccountState)
		risk   float64
		reason schema.RiskReason
	}{
		{"drawdown above limit", func(s *state.AccountState) { s.Equity = 91000; s.DrawdownPct = 0.09 }, 100, schema.RiskReasonMaxDrawdown},
		{"daily loss", func(s *state.AccountState) { s.DailyPnL = -2001 }, 100, schema.RiskReasonDailyLoss},
		{"weekly loss", func(s *state.AccountState) { s.WeeklyPnL = -5001 }, 100, schema.RiskReasonWeeklyLoss},
		{"consecutive losses", func(s *state.AccountState) { s.ConsecutiveLosses = 3 }, 100, schema.RiskReasonConsecutiveLosses},
		{"consecutive losses with zero drawdown", func(s *state.AccountState) { s.ConsecutiveLosses = 3; s.DrawdownPct = 0 }, 1, schema.RiskReasonConsecutiveLosses},
		{"daily trades", func(s *state.AccountState) { s.DailyTradesCount = 3 }, 100, schema.RiskReasonDailyTrades},
		{"quantity rounds to zero", func(s *state.AccountState) {}, 2001, schema.RiskReasonZeroQuantity},
		{"non positive risk per unit", func(s *state.AccountState) {}, 0, schema.RiskReasonInvalidSignal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, accountWith(tc.mutate))

			d, err := f.gate.Decide(context.Background(), signal(tc.risk))
			require.NoError(t, err)
			assert.Equal(t, schema.RiskActionDeny, d.Action)
			assert.Equal(t, tc.reason, d.Reason)

			f.publish(t, signal(tc.risk))
			assert.Empty(t, f.orders)
			assert.Empty(t, f.errs)
		})
	}
}

func TestGateHaltForcesZeroSizing(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDrawdownPct = 0.5
	f := newFixture(t, accountWith(func(s *state.AccountState) { s.Equity = 90000; s.DrawdownPct = 0.1 }))
	f.gate.limits = limits

	d, err := f.gate.Decide(context.Background(), signal(1))
	require.NoError(t, err)
	assert.Equal(t, schema.RiskReasonHalted, d.Reason)
}

func TestGateMalformedSignalBecomesErrorEvent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bus.Publish(context.Background(), schema.NewEvent(schema.KindSignal, schema.Payload{
		schema.KeyStrategyName: "BullPutSpread",
	})))
	assert.Empty(t, f.orders)
	require.Len(t, f.errs, 1)
	assert.Equal(t, HandlerName, f.errs[0].Payload[schema.KeyOriginHandler])
}

func TestApplyUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.gate.ApplyUpdate(ctx, AccountUpdate{PnLChange: -5.25, NewTrades: 1})
	require.NoError(t, err)
	assert.InDelta(t, 99994.75, s.Equity, 1e-9)
	assert.Equal(t, 1, s.DailyTradesCount)
	assert.Equal(t, 0, s.ConsecutiveLosses)
	assert.Equal(t, 100000.0, s.HighWaterMark)
	assert.Equal(t, state.RiskNormal, s.RiskState)

	s, err = f.gate.UpdateAccountState(ctx, 95000, -4994.75)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, s.DrawdownPct, 1e-9)
	assert.Equal(t, state.RiskDefensive, s.RiskState)
	assert.Equal(t, 1, s.ConsecutiveLosses)
	assert.InDelta(t, -5000, s.DailyPnL, 1e-9)
	assert.InDelta(t, -5000, s.WeeklyPnL, 1e-9)

	s, err = f.gate.UpdateAccountState(ctx, 91000, -4000)
	require.NoError(t, err)
	assert.Equal(t, state.RiskHalt, s.RiskState)
	assert.Equal(t, 2, s.ConsecutiveLosses)

	s, err = f.gate.UpdateAccountState(ctx, 105000, 14000)
	require.NoError(t, err)
	assert.Equal(t, state.RiskNormal, s.RiskState)
	assert.Equal(t, 0, s.ConsecutiveLosses)
	assert.Equal(t, 105000.0, s.HighWaterMark)
	assert.Zero(t, s.DrawdownPct)

	s, err = f.gate.UpdateAccountState(ctx, 100800, -4200)
	require.NoError(t, err)
	assert.InDelta(t, 0.04, s.DrawdownPct, 1e-9)
	assert.Equal(t, state.RiskNormal, s.RiskState)

	history := f.repo.History()
	require.Len(t, history, 5)
	for i, snap := range history {
		assert.NoError(t, snap.Validate())
		assert.Equal(t, state.DeriveRiskState(snap.DrawdownPct), snap.RiskState)
		if i > 0 {
			assert.True(t, snap.Timestamp.After(history[i-1].Timestamp))
		}
	}
}

func TestLossesThenRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for range 3 {
		_, err := f.gate.UpdateAccountState(ctx, 0, -10)
		require.NoError(t, err)
	}
	f.publish(t, signal(1000))
	assert.Empty(t, f.orders)
}

func TestRollover(t *testing.T) {
	ctx := context.Background()
	// Wednesday
	seed := accountWith(func(s *state.AccountState) {
		s.DailyPnL = -300
		s.WeeklyPnL = -900
		s.DailyTradesCount = 3
		s.ConsecutiveLosses = 2
	})
	f := newFixture(t, seed)

	rolled, err := f.gate.Rollover(ctx, seed.Timestamp.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, rolled)

	thursday := seed.Timestamp.Add(24 * time.Hour)
	rolled, err = f.gate.Rollover(ctx, thursday)
	require.NoError(t, err)
	require.True(t, rolled)
	s, err := f.gate.Current(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.DailyPnL)
	assert.Zero(t, s.DailyTradesCount)
	assert.Equal(t, -900.0, s.WeeklyPnL)
	assert.Equal(t, 2, s.ConsecutiveLosses)

	nextMonday := seed.Timestamp.AddDate(0, 0, 5)
	rolled, err = f.gate.Rollover(ctx, nextMonday)
	require.NoError(t, err)
	require.True(t, rolled)
	s, err = f.gate.Current(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.WeeklyPnL)
}

func TestRolloverWithoutHistory(t *testing.T) {
	f := newFixture(t)
	rolled, err := f.gate.Rollover(context.Background(), testNow)
	require.NoError(t, err)
	assert.False(t, rolled)
	assert.Empty(t, f.repo.History())
}

func TestCalendarUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC and 23:00 UTC on March 4 are different New York days.
	a := time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)
	assert.True(t, SameTradingDay(time.UTC, a, b))
	assert.False(t, SameTradingDay(ny, a, b))
	assert.True(t, SameTradingWeek(ny, a, b))
}

func TestLimitsValidate(t *testing.T) {
	require.NoError(t, DefaultLimits().Validate())

	l := DefaultLimits()
	l.NormalRiskPct = 0
	assert.Error(t, l.Validate())

	l = DefaultLimits()
	l.DailyMaxTrades = 0
	assert.Error(t, l.Validate())
}

func TestSetLimits(t *testing.T) {
	f := newFixture(t)

	l := DefaultLimits()
	l.NormalRiskPct = 0.01
	require.NoError(t, f.gate.SetLimits(l))
	assert.Equal(t, 0.01, f.gate.Limits().NormalRiskPct)

	f.publish(t, signal(1000))
	require.Len(t, f.orders, 1)
	assert.Equal(t, 1, f.orders[0].Quantity)

	bad := DefaultLimits()
	bad.MaxDrawdownPct = 2
	assert.Error(t, f.gate.SetLimits(bad))
	assert.Equal(t, 0.01, f.gate.Limits().NormalRiskPct)
}
