// Package backtest replays a price series through the pipeline with simulated fills.
package backtest

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"apolo/pkg/exception"
)

// Hook runs between bars at the simulated time of the bar just replayed.
type Hook func(ctx context.Context, bar Bar) error

// Engine drives a Feed bar by bar. Strategies, the risk gate and the ledger react on the
// bus; the engine only advances time.
type Engine struct {
	feed      *Feed
	simulator *Simulator

	// Before runs ahead of each bar, typically the account period rollover.
	Before Hook
	// After runs once the bar and everything it triggered has been handled.
	After Hook
}

// Report summarises a run.
type Report struct {
	Bars  int
	Fills int
	Start time.Time
	End   time.Time
}

func NewEngine(feed *Feed, simulator *Simulator) (*Engine, error) {
	if feed == nil || simulator == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "backtest engine")
	}
	return &Engine{feed: feed, simulator: simulator}, nil
}

// Run replays bars in order and stops at the first error or when ctx is done.
func (e *Engine) Run(ctx context.Context, bars []Bar) (Report, error) {
	logs.Infof("backtest: start, bars: %d", len(bars))
	fillsBefore := e.simulator.Fills()
	report := Report{}
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if e.Before != nil {
			if err := e.Before(ctx, bar); err != nil {
				return report, errors.Wrapf(err, "before bar %s", bar.Time)
			}
		}
		if err := e.feed.Publish(ctx, bar); err != nil {
			return report, errors.Wrapf(err, "publish bar %s", bar.Time)
		}
		if e.After != nil {
			if err := e.After(ctx, bar); err != nil {
				return report, errors.Wrapf(err, "after bar %s", bar.Time)
			}
		}
		if report.Bars == 0 {
			report.Start = bar.Time
		}
		report.End = bar.Time
		report.Bars++
		report.Fills = e.simulator.Fills() - fillsBefore
	}
	logs.Infof("backtest: complete, bars: %d, fills: %d", report.Bars, report.Fills)
	return report, nil
}
