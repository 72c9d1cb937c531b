package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
	_ "time/tzdata"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"apolo/internal/chaos"
	"apolo/internal/core"
	"apolo/internal/marketdata"
	"apolo/internal/obs"
	"apolo/internal/ops"
)

type runtimeConfig struct {
	v atomic.Value
}

func newRuntimeConfig(loaded ops.Loaded) *runtimeConfig {
	var rc runtimeConfig
	rc.v.Store(loaded)
	return &rc
}

func (r *runtimeConfig) Load() ops.Loaded {
	return r.v.Load().(ops.Loaded)
}

func (r *runtimeConfig) Update(loaded ops.Loaded) {
	r.v.Store(loaded)
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults when empty)")
	envPath := flag.String("env", ".env", "Path to .env file")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	ticks := flag.Int("ticks", -1, "Stop after this many market rounds (-1 keeps market.ticks)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *envPath, *configReload, *ticks); err != nil {
		logs.Errorf("trader: %+v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, envPath string, configReload time.Duration, ticks int) error {
	if err := ops.LoadEnv(envPath); err != nil {
		return err
	}
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if ticks >= 0 {
		loaded.File.Market.Ticks = ticks
	}
	runtime := newRuntimeConfig(loaded)

	if loaded.File.Profiling.Enabled {
		profiler, err := startProfiler(loaded.File.Profiling)
		if err != nil {
			return err
		}
		defer func() {
			if err := profiler.Stop(); err != nil {
				logs.Errorf("trader: stop profiler, err: %+v", err)
			}
		}()
	}

	metrics := obs.NewMetrics()
	if loaded.File.Metrics.Enabled {
		srv := serveMetrics(loaded.File.Metrics.Addr, metrics)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	stores, err := core.OpenStores(ctx, loaded)
	if err != nil {
		return err
	}
	defer stores.Close()

	pipeline, err := core.New(ctx, core.Options{Loaded: loaded, Metrics: metrics, Stores: stores})
	if err != nil {
		return err
	}
	defer pipeline.Close()
	go pipeline.Run(ctx)

	generator, err := marketdata.NewGenerator(loaded.Generator)
	if err != nil {
		return err
	}
	var source marketdata.Source = generator
	if !loaded.File.Market.Chain {
		source = marketdata.QuotesOnly(generator)
	}
	if cfg := loaded.File.Market.Chaos; cfg.Enabled() {
		if source, err = chaos.Wrap(source, cfg); err != nil {
			return err
		}
		logs.Warnf("trader: market data chaos enabled, quote fail: %.2f, chain fail: %.2f, max delay: %s",
			cfg.QuoteFailRate, cfg.ChainFailRate, cfg.MaxDelay)
	}
	publisher, err := marketdata.NewPublisher(source, pipeline.Bus, metrics)
	if err != nil {
		return err
	}

	if configPath != "" && configReload > 0 {
		go watchConfig(ctx, configPath, configReload, func(next ops.Loaded) {
			if err := pipeline.Gate.SetLimits(next.Limits); err != nil {
				logs.Errorf("trader: apply reloaded limits, err: %+v", err)
				return
			}
			runtime.Update(next)
		})
	}

	loopErr := loop(ctx, runtime, pipeline, publisher, generator.Symbols())

	if path := loaded.File.State.SnapshotPath; path != "" {
		s, err := pipeline.WriteSnapshot(context.Background(), path)
		if err != nil {
			logs.Errorf("trader: write snapshot %s, err: %+v", path, err)
		} else {
			logs.Infof("trader: snapshot written to %s, equity: %.2f, risk state: %s", path, s.Equity, s.RiskState)
		}
	}
	return loopErr
}

// loop ticks every symbol once per interval until shutdown or the configured round count.
func loop(ctx context.Context, runtime *runtimeConfig, pipeline *core.Pipeline, publisher *marketdata.Publisher, symbols []string) error {
	interval := runtime.Load().File.Market.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		if err := pipeline.Rollover(ctx, time.Now()); err != nil {
			logs.Errorf("trader: rollover, err: %+v", err)
		}
		if err := publisher.TickAll(ctx, symbols); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		closed, err := pipeline.ManageOpenTrades(ctx)
		if err != nil {
			logs.Errorf("trader: manage open trades, err: %+v", err)
		} else if closed > 0 {
			logs.Infof("trader: round %d closed %d trades at profit target", round, closed)
		}

		cfg := runtime.Load().File.Market
		if cfg.Ticks > 0 && round >= cfg.Ticks {
			logs.Infof("trader: completed %d rounds", round)
			return nil
		}
		if cfg.Interval != interval {
			interval = cfg.Interval
			ticker.Reset(interval)
			logs.Infof("trader: market interval changed to %s", interval)
		}

		select {
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func watchConfig(ctx context.Context, path string, interval time.Duration, update func(ops.Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Errorf("trader: config stat failed, err: %+v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			loaded, err := ops.Load(path)
			if err != nil {
				logs.Errorf("trader: config reload failed, err: %+v", err)
				continue
			}
			update(loaded)
			logs.Infof("trader: config reloaded: %s", path)
		}
	}
}

func serveMetrics(addr string, metrics *obs.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logs.Infof("trader: serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("trader: metrics server, err: %+v", err)
		}
	}()
	return srv
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Tags: map[string]string{
			"env": "local",
		},
		Logger: profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Infof("pyroscope: "+format, args...) }
func (profilerLogger) Debugf(_ string, _ ...interface{})          {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf("pyroscope: "+format, args...) }
