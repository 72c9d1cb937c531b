/*
Core assembles the decision loop.

# Module
  - in-memory bus: carries market data, signals, order requests, fills and errors
  - strategy runners: one stateless evaluator per enabled strategy
  - risk gate: admits and sizes signals against the latest account state
  - execution: paper executor, or the slippage simulator when backtesting
  - ledger: records fills as trades and feeds account updates back into the gate

# Source
 1. synthetic market data from the generator (cmd/trader)
 2. historical bars from the backtest feed (cmd/tools/backtest)

# Produce
  - account-state snapshots and trades in the configured stores
*/
package core

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"apolo/internal/backtest"
	"apolo/internal/bus"
	"apolo/internal/execution"
	"apolo/internal/ledger"
	"apolo/internal/marketdata"
	"apolo/internal/obs"
	"apolo/internal/ops"
	"apolo/internal/risk"
	"apolo/internal/state"
	"apolo/internal/strategy"
	"apolo/pkg/exception"
)

// fallbackIV values open trades when the latest mark carries no implied volatility.
const fallbackIV = 0.2

// Options configures New.
type Options struct {
	Loaded  ops.Loaded
	Metrics *obs.Metrics
	Stores  Stores

	// Backtest replaces the configured executor with the backtest simulator and drives
	// every clock from the feed. The bus is always synchronous in that mode.
	Backtest bool
	// Now overrides the wall clock outside backtests.
	Now func() time.Time
}

// Pipeline is a fully subscribed decision loop.
type Pipeline struct {
	Bus     *bus.Bus
	Gate    *risk.Gate
	Runners []*strategy.Runner
	Ledger  *ledger.Ledger
	Marks   *marketdata.Marks

	// Executor is nil in backtests.
	Executor execution.Executor
	// Feed and Simulator are only set in backtests.
	Feed      *backtest.Feed
	Simulator *backtest.Simulator

	queue *bus.QueueDispatcher
	now   func() time.Time
	rate  float64
}

// New wires every component onto a fresh bus. Subscription order is strategies, risk
// gate, execution, ledger, so a synchronous publish walks the loop depth-first.
func New(ctx context.Context, opt Options) (*Pipeline, error) {
	if opt.Stores.Accounts == nil || opt.Stores.Trades == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "pipeline stores")
	}
	file := opt.Loaded.File

	busCfg := bus.Config{Metrics: opt.Metrics}
	var queue *bus.QueueDispatcher
	if file.Bus.Dispatcher == ops.DispatcherQueue && !opt.Backtest {
		queue = bus.NewQueueDispatcher(file.Bus.QueueSize)
		busCfg.Dispatcher = queue
	}
	p := &Pipeline{
		Bus:   bus.New(busCfg),
		queue: queue,
		now:   opt.Now,
		rate:  file.Market.RiskFree,
	}
	if p.now == nil {
		p.now = time.Now
	}

	var err error
	if opt.Backtest {
		if p.Feed, err = backtest.NewFeed(p.Bus); err != nil {
			return nil, err
		}
		p.now = p.Feed.Now
	}

	if p.Marks, err = marketdata.NewMarks(p.Bus); err != nil {
		return nil, err
	}
	if p.Runners, err = strategy.Build(p.Bus, opt.Loaded.Strategies, opt.Metrics); err != nil {
		return nil, errors.Wrap(err, "build strategies")
	}
	p.Gate, err = risk.NewGate(risk.Config{
		Limits:     opt.Loaded.Limits,
		Repository: opt.Stores.Accounts,
		Bus:        p.Bus,
		Metrics:    opt.Metrics,
		Location:   opt.Loaded.Location,
		Now:        p.now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create risk gate")
	}

	if opt.Backtest {
		p.Simulator, err = backtest.NewSimulator(backtest.SimulatorConfig{
			Bus:                   p.Bus,
			Metrics:               opt.Metrics,
			Slippage:              file.Execution.Slippage,
			Latency:               file.Execution.Latency,
			CommissionPerContract: file.Execution.CommissionPerContract,
			Clock:                 p.now,
		})
	} else {
		p.Executor, err = execution.New(opt.Loaded.Mode, execution.Config{
			Bus:                   p.Bus,
			Metrics:               opt.Metrics,
			CommissionPerContract: file.Execution.CommissionPerContract,
			Now:                   p.now,
		})
	}
	if err != nil {
		return nil, errors.Wrap(err, "create executor")
	}

	p.Ledger, err = ledger.New(ctx, ledger.Config{
		Bus:      p.Bus,
		Store:    opt.Stores.Trades,
		Accounts: p.Gate,
		Now:      p.now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create ledger")
	}

	logs.Infof("core: pipeline ready, strategies: %d, backtest: %t, dispatcher: %s",
		len(p.Runners), opt.Backtest, file.Bus.Dispatcher)
	return p, nil
}

// Run drains the queue dispatcher until ctx is done. It returns at once with the
// synchronous dispatcher.
func (p *Pipeline) Run(ctx context.Context) {
	if p.queue == nil {
		return
	}
	p.queue.Run(ctx)
}

// Close stops the queue dispatcher from accepting events.
func (p *Pipeline) Close() {
	if p.queue != nil {
		p.queue.Close()
	}
}

// ManageOpenTrades revalues open trades against the latest marks and closes those whose
// profit target is reached. It returns the number of closed trades.
func (p *Pipeline) ManageOpenTrades(ctx context.Context) (int, error) {
	now := p.now()
	closed := 0
	for _, symbol := range p.Marks.Symbols() {
		md, _ := p.Marks.Get(symbol)
		iv := md.IV
		if iv <= 0 {
			iv = fallbackIV
		}
		trades, err := p.Ledger.CloseAtTarget(ctx, symbol, func(t ledger.Trade) float64 {
			return ledger.ModelDebit(t, md.Price, iv, p.rate, now)
		})
		closed += len(trades)
		if err != nil {
			return closed, errors.Wrapf(err, "close %s at target", symbol)
		}
	}
	return closed, nil
}

// Rollover resets the account period accumulators at now.
func (p *Pipeline) Rollover(ctx context.Context, now time.Time) error {
	_, err := p.Gate.Rollover(ctx, now)
	return err
}

// WriteSnapshot exports the latest account state to path.
func (p *Pipeline) WriteSnapshot(ctx context.Context, path string) (state.AccountState, error) {
	s, err := p.Gate.Current(ctx)
	if err != nil {
		return state.AccountState{}, err
	}
	if err := state.WriteSnapshot(path, s); err != nil {
		return state.AccountState{}, err
	}
	return s, nil
}
