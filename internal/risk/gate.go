package risk

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"apolo/internal/bus"
	"apolo/internal/obs"
	"apolo/internal/schema"
	"apolo/internal/state"
	"apolo/pkg/exception"
)

// HandlerName identifies the gate on the bus.
const HandlerName = "risk.gate"

// Config wires the gate.
type Config struct {
	Limits     Limits
	Repository state.Repository
	Bus        bus.Broker
	Metrics    *obs.Metrics

	// Location defines trading day boundaries for Rollover. Defaults to UTC.
	Location *time.Location
	// Now overrides the clock used to stamp snapshots.
	Now func() time.Time
}

// Decision is the outcome of one admission check.
type Decision struct {
	Action   schema.RiskAction
	Reason   schema.RiskReason
	Quantity int
	State    state.AccountState
}

// AccountUpdate describes a change to the account.
type AccountUpdate struct {
	// Equity is the new account equity. Non-positive means previous equity plus PnLChange.
	Equity    float64
	PnLChange float64
	NewTrades int

	// Realized marks a closed trade. Its net result TradePnL drives the consecutive loss
	// counter.
	Realized bool
	TradePnL float64
}

// Gate admits signals and sizes orders against the latest account state. The only state it
// holds is its limits; every decision can be replayed from the account-state history.
type Gate struct {
	mu      sync.Mutex
	limits  Limits
	repo    state.Repository
	bus     bus.Broker
	metrics *obs.Metrics
	loc     *time.Location
	now     func() time.Time
}

// NewGate creates a gate and subscribes it to signals.
func NewGate(cfg Config) (*Gate, error) {
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	if cfg.Repository == nil {
		return nil, exception.ErrRiskNilRepository
	}
	if cfg.Bus == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "risk gate bus")
	}
	g := &Gate{
		limits:  cfg.Limits,
		repo:    cfg.Repository,
		bus:     cfg.Bus,
		metrics: cfg.Metrics,
		loc:     cfg.Location,
		now:     cfg.Now,
	}
	if g.loc == nil {
		g.loc = time.UTC
	}
	if g.now == nil {
		g.now = time.Now
	}
	if err := cfg.Bus.Subscribe(schema.KindSignal, HandlerName, g.OnSignal); err != nil {
		return nil, err
	}
	return g, nil
}

// Limits returns the limits in force.
func (g *Gate) Limits() Limits {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limits
}

// SetLimits swaps the limits used by subsequent decisions.
func (g *Gate) SetLimits(l Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	g.limits = l
	g.mu.Unlock()
	logs.Infof("risk: limits updated, max drawdown: %.4f, daily max trades: %d", l.MaxDrawdownPct, l.DailyMaxTrades)
	return nil
}

// Current returns the latest account state, or the initial NORMAL state when none exists.
func (g *Gate) Current(ctx context.Context) (state.AccountState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, _, err := g.current(ctx)
	return s, err
}

func (g *Gate) current(ctx context.Context) (state.AccountState, bool, error) {
	s, ok, err := g.repo.Latest(ctx)
	if err != nil {
		return state.AccountState{}, false, errors.Wrap(err, "load account state")
	}
	if !ok {
		return state.Initial(g.limits.InitialEquity, g.now()), false, nil
	}
	return s, true, nil
}

// OnSignal admits or rejects one Signal event. Admitted signals are published as an
// OrderRequest sized by the gate. Rejections are terminal and publish nothing.
func (g *Gate) OnSignal(ctx context.Context, e schema.Event) error {
	sig, err := schema.ParseSignal(e.Payload)
	if err != nil {
		g.metrics.IncRiskDecision(schema.RiskActionDeny, schema.RiskReasonInvalidSignal)
		return errors.Wrap(err, "parse signal")
	}

	start := time.Now()
	d, err := g.Decide(ctx, sig)
	g.metrics.ObserveRiskEval(time.Since(start))
	if err != nil {
		return err
	}
	g.metrics.IncRiskDecision(d.Action, d.Reason)

	if d.Action != schema.RiskActionAllow {
		logs.Infof("risk: reject %s %s, reason: %s, state: %s, drawdown: %.4f",
			sig.StrategyName, sig.Symbol, d.Reason, d.State.RiskState, d.State.DrawdownPct)
		return nil
	}

	req := schema.OrderRequest{
		SignalID:     sig.ID,
		StrategyName: sig.StrategyName,
		Symbol:       sig.Symbol,
		Side:         sig.Side,
		Quantity:     d.Quantity,
		OrderType:    schema.OrderTypeLimit,
		Price:        sig.LimitPrice,
		Legs:         sig.Legs,
	}
	if err := req.Validate(); err != nil {
		return err
	}
	logs.Infof("risk: approve %s %s, quantity: %d, price: %.2f", sig.StrategyName, sig.Symbol, req.Quantity, req.Price)

	// Published outside the lock: downstream handlers call back into ApplyUpdate.
	return g.bus.Publish(ctx, schema.NewEvent(schema.KindOrderRequest, req.Payload()))
}

// Decide runs the admission checks and sizing for sig without publishing anything.
func (g *Gate) Decide(ctx context.Context, sig schema.Signal) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, _, err := g.current(ctx)
	if err != nil {
		return Decision{}, err
	}
	return g.decide(s, sig), nil
}

func (g *Gate) decide(s state.AccountState, sig schema.Signal) Decision {
	d := Decision{Action: schema.RiskActionDeny, State: s}
	l := g.limits

	switch {
	case s.DrawdownPct > l.MaxDrawdownPct:
		d.Reason = schema.RiskReasonMaxDrawdown
	case s.DailyPnL < -(s.Equity * l.DailyMaxLossPct):
		d.Reason = schema.RiskReasonDailyLoss
	case s.WeeklyPnL < -(s.Equity * l.WeeklyMaxLossPct):
		d.Reason = schema.RiskReasonWeeklyLoss
	case s.ConsecutiveLosses >= l.MaxConsecutiveLosses:
		d.Reason = schema.RiskReasonConsecutiveLosses
	case s.DailyTradesCount >= l.DailyMaxTrades:
		d.Reason = schema.RiskReasonDailyTrades
	}
	if d.Reason != schema.RiskReasonNone {
		return d
	}

	pct := l.riskPct(s.RiskState)
	if pct <= 0 {
		d.Reason = schema.RiskReasonHalted
		return d
	}
	if sig.RiskPerUnit <= 0 || math.IsNaN(sig.RiskPerUnit) {
		d.Reason = schema.RiskReasonInvalidSignal
		return d
	}

	qty := int(math.Floor(s.Equity * pct / sig.RiskPerUnit))
	if qty <= 0 {
		d.Reason = schema.RiskReasonZeroQuantity
		return d
	}

	d.Action = schema.RiskActionAllow
	d.Quantity = qty
	return d
}

// UpdateAccountState appends a snapshot for a realized result.
func (g *Gate) UpdateAccountState(ctx context.Context, equity, pnlChange float64) (state.AccountState, error) {
	return g.ApplyUpdate(ctx, AccountUpdate{Equity: equity, PnLChange: pnlChange, Realized: true, TradePnL: pnlChange})
}

// ApplyUpdate recomputes drawdown against the high-water mark, derives the risk state and
// appends the resulting snapshot.
func (g *Gate) ApplyUpdate(ctx context.Context, u AccountUpdate) (state.AccountState, error) {
	if u.NewTrades < 0 {
		return state.AccountState{}, errors.Wrapf(exception.ErrInvalidArgument, "new trades: %d", u.NewTrades)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prev, exists, err := g.current(ctx)
	if err != nil {
		return state.AccountState{}, err
	}

	equity := u.Equity
	if equity <= 0 {
		equity = prev.Equity + u.PnLChange
	}
	hwm := max(prev.HighWaterMark, equity, g.limits.InitialEquity)
	drawdown := 0.0
	if hwm > 0 {
		drawdown = (hwm - equity) / hwm
	}

	losses := prev.ConsecutiveLosses
	if u.Realized {
		switch {
		case u.TradePnL < 0:
			losses++
		case u.TradePnL > 0:
			losses = 0
		}
	}

	next := state.AccountState{
		Timestamp:         g.stamp(prev, exists),
		Equity:            equity,
		Balance:           equity,
		RiskState:         state.DeriveRiskState(drawdown),
		DrawdownPct:       drawdown,
		HighWaterMark:     hwm,
		DailyTradesCount:  prev.DailyTradesCount + u.NewTrades,
		DailyPnL:          prev.DailyPnL + u.PnLChange,
		WeeklyPnL:         prev.WeeklyPnL + u.PnLChange,
		ConsecutiveLosses: losses,
	}
	if err := g.repo.Append(ctx, next); err != nil {
		return state.AccountState{}, errors.Wrap(err, "append account state")
	}

	g.metrics.SetAccount(next.Equity, next.DrawdownPct, next.RiskState.Tier())
	if next.RiskState != prev.RiskState {
		logs.Warnf("risk: state %s -> %s, equity: %.2f, drawdown: %.4f",
			prev.RiskState, next.RiskState, next.Equity, next.DrawdownPct)
	}
	return next, nil
}

// Rollover resets the daily accumulators when the trading day changed since the latest
// snapshot, and the weekly accumulator when the ISO week changed. It reports whether a new
// snapshot was appended.
func (g *Gate) Rollover(ctx context.Context, now time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, exists, err := g.current(ctx)
	if err != nil || !exists {
		return false, err
	}

	sameDay := SameTradingDay(g.loc, prev.Timestamp, now)
	sameWeek := SameTradingWeek(g.loc, prev.Timestamp, now)
	if sameDay && sameWeek {
		return false, nil
	}

	next := prev
	next.Timestamp = now.UTC()
	if !next.Timestamp.After(prev.Timestamp) {
		next.Timestamp = prev.Timestamp.Add(time.Microsecond)
	}
	if !sameDay {
		next.DailyPnL = 0
		next.DailyTradesCount = 0
	}
	if !sameWeek {
		next.WeeklyPnL = 0
	}
	if err := g.repo.Append(ctx, next); err != nil {
		return false, errors.Wrap(err, "append rollover state")
	}
	logs.Infof("risk: rollover at %s, new day: %t, new week: %t", DayOpen(g.loc, now).Format(time.DateOnly), !sameDay, !sameWeek)
	return true, nil
}

// stamp returns a timestamp strictly after prev so the new snapshot becomes the latest.
func (g *Gate) stamp(prev state.AccountState, exists bool) time.Time {
	now := g.now().UTC()
	if exists && !now.After(prev.Timestamp) {
		return prev.Timestamp.Add(time.Microsecond)
	}
	return now
}
