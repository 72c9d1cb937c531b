package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/yanun0323/logs"

	"apolo/internal/backtest"
	"apolo/internal/core"
	"apolo/internal/ledger"
	"apolo/internal/obs"
	"apolo/internal/ops"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults when empty)")
	csvPath := flag.String("csv", "", "Bar CSV (time,close[,symbol,ivrank,adx,iv]); a linear series when empty")
	symbol := flag.String("symbol", backtest.DefaultSymbol, "Symbol for bars without one")
	start := flag.String("start", "2026-03-02T14:30:00Z", "Linear series start (RFC3339)")
	end := flag.String("end", "", "Linear series end (RFC3339, default: start + 390m)")
	interval := flag.Duration("interval", time.Minute, "Linear series bar interval")
	persist := flag.Bool("persist", false, "Write account states and trades to the configured database")
	snapshot := flag.String("snapshot", "", "Write the final account state to this file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bars, err := loadBars(*csvPath, *symbol, *start, *end, *interval)
	if err != nil {
		logs.Errorf("backtest: load bars, err: %+v", err)
		os.Exit(1)
	}
	if err := run(ctx, *configPath, bars, *persist, *snapshot); err != nil {
		logs.Errorf("backtest: %+v", err)
		os.Exit(1)
	}
}

func loadBars(csvPath, symbol, start, end string, interval time.Duration) ([]backtest.Bar, error) {
	if csvPath != "" {
		return backtest.ReadCSV(csvPath, symbol)
	}
	from, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return nil, err
	}
	cfg := backtest.DefaultLinear(from)
	cfg.Symbol = symbol
	cfg.Interval = interval
	if end != "" {
		if cfg.End, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, err
		}
	}
	return backtest.Linear(cfg)
}

func run(ctx context.Context, configPath string, bars []backtest.Bar, persist bool, snapshot string) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}

	stores := core.MemoryStores()
	if persist {
		if stores, err = core.OpenStores(ctx, loaded); err != nil {
			return err
		}
		defer stores.Close()
	}

	pipeline, err := core.New(ctx, core.Options{
		Loaded:   loaded,
		Metrics:  obs.NewMetrics(),
		Stores:   stores,
		Backtest: true,
	})
	if err != nil {
		return err
	}
	engine, err := backtest.NewEngine(pipeline.Feed, pipeline.Simulator)
	if err != nil {
		return err
	}
	engine.Before = func(ctx context.Context, bar backtest.Bar) error {
		return pipeline.Rollover(ctx, bar.Time)
	}
	closed := 0
	engine.After = func(ctx context.Context, bar backtest.Bar) error {
		n, err := pipeline.ManageOpenTrades(ctx)
		closed += n
		return err
	}

	report, err := engine.Run(ctx, bars)
	if err != nil {
		return err
	}

	account, err := pipeline.Gate.Current(ctx)
	if err != nil {
		return err
	}
	open, err := stores.Trades.ListTrades(ctx, ledger.TradeOpen)
	if err != nil {
		return err
	}
	fmt.Printf("bars=%d from=%s to=%s\n", report.Bars, report.Start.Format(time.RFC3339), report.End.Format(time.RFC3339))
	fmt.Printf("fills=%d closed=%d open=%d\n", report.Fills, closed, len(open))
	fmt.Printf("equity=%.2f drawdown=%.4f risk=%s daily_pnl=%.2f weekly_pnl=%.2f consecutive_losses=%d\n",
		account.Equity, account.DrawdownPct, account.RiskState, account.DailyPnL, account.WeeklyPnL, account.ConsecutiveLosses)

	if snapshot != "" {
		if _, err := pipeline.WriteSnapshot(ctx, snapshot); err != nil {
			return err
		}
		fmt.Printf("snapshot=%s\n", snapshot)
	}
	return nil
}
