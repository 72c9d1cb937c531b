package ops

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gopkg.in/yaml.v3"

	"apolo/internal/backtest"
	"apolo/internal/chaos"
	"apolo/internal/execution"
	"apolo/internal/marketdata"
	"apolo/internal/risk"
	"apolo/internal/strategy"
	"apolo/pkg/conn"
	"apolo/pkg/exception"
)

// Environment variables that override the file.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvExecutionMode = "EXECUTION_MODE"
	EnvMetricsAddr   = "METRICS_ADDR"
)

// MemoryDatabaseURL keeps account states and trades in process memory.
const MemoryDatabaseURL = "memory://"

// Dispatcher names.
const (
	DispatcherSync  = "sync"
	DispatcherQueue = "queue"
)

// FileConfig mirrors the YAML config layout.
type FileConfig struct {
	Risk       risk.Limits          `yaml:"risk"`
	Execution  ExecutionConfig      `yaml:"execution"`
	Strategies map[string]yaml.Node `yaml:"strategies"`
	Market     MarketConfig         `yaml:"market"`
	Database   DatabaseConfig       `yaml:"database"`
	Metrics    MetricsConfig        `yaml:"metrics"`
	Profiling  ProfilingConfig      `yaml:"profiling"`
	Calendar   CalendarConfig       `yaml:"calendar"`
	Bus        BusConfig            `yaml:"bus"`
	State      StateConfig          `yaml:"state"`
}

// ExecutionConfig selects the execution stage. Slippage and Latency only apply to the
// backtest simulator.
type ExecutionConfig struct {
	Mode                  string        `yaml:"mode"`
	CommissionPerContract float64       `yaml:"commissionPerContract"`
	Slippage              float64       `yaml:"slippage"`
	Latency               time.Duration `yaml:"latency"`
}

// MarketConfig drives the synthetic market data loop.
type MarketConfig struct {
	Interval time.Duration `yaml:"interval"`
	// Ticks stops the loop after that many rounds. Zero runs until shutdown.
	Ticks int  `yaml:"ticks"`
	Chain bool `yaml:"chain"`

	Instruments []marketdata.Instrument `yaml:"instruments"`
	Seed        uint64                  `yaml:"seed"`
	Drift       float64                 `yaml:"drift"`
	Noise       float64                 `yaml:"noise"`
	IV          float64                 `yaml:"iv"`
	IVRankStart float64                 `yaml:"ivRankStart"`
	IVRankStep  float64                 `yaml:"ivRankStep"`
	ADXLow      float64                 `yaml:"adxLow"`
	ADXHigh     float64                 `yaml:"adxHigh"`
	Strikes     int                     `yaml:"strikes"`
	StrikeStep  float64                 `yaml:"strikeStep"`
	Spread      float64                 `yaml:"spread"`
	DTE         int                     `yaml:"dte"`
	RiskFree    float64                 `yaml:"riskFree"`

	// Chaos injects quote and chain faults into the generator.
	Chaos chaos.Config `yaml:"chaos"`
}

type DatabaseConfig struct {
	URL         string `yaml:"url"`
	AutoMigrate bool   `yaml:"autoMigrate"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ProfilingConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ServerAddress   string `yaml:"serverAddress"`
	ApplicationName string `yaml:"applicationName"`
}

// CalendarConfig defines where trading days and weeks start.
type CalendarConfig struct {
	Timezone string `yaml:"timezone"`
}

type BusConfig struct {
	Dispatcher string `yaml:"dispatcher"`
	QueueSize  int    `yaml:"queueSize"`
}

// StateConfig controls the account snapshot file written on shutdown.
type StateConfig struct {
	SnapshotPath string `yaml:"snapshotPath"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	File FileConfig

	Limits     risk.Limits
	Mode       execution.Mode
	Strategies map[string]strategy.Params
	Generator  marketdata.GeneratorConfig
	Location   *time.Location

	// Database is nil when the in-memory repositories are configured.
	Database *conn.Option
}

// Default returns the file config used when no file is given.
func Default() FileConfig {
	gen := marketdata.DefaultGeneratorConfig()
	return FileConfig{
		Risk: risk.DefaultLimits(),
		Execution: ExecutionConfig{
			Mode:                  string(execution.ModePaper),
			CommissionPerContract: execution.DefaultCommission,
			Slippage:              backtest.DefaultSlippage,
			Latency:               backtest.DefaultLatency,
		},
		Market: MarketConfig{
			Interval:    time.Second,
			Chain:       true,
			Instruments: gen.Instruments,
			Seed:        gen.Seed,
			Drift:       gen.Drift,
			Noise:       gen.Noise,
			IV:          gen.IV,
			IVRankStart: gen.IVRankStart,
			IVRankStep:  gen.IVRankStep,
			ADXLow:      gen.ADXLow,
			ADXHigh:     gen.ADXHigh,
			Strikes:     gen.Strikes,
			StrikeStep:  gen.StrikeStep,
			Spread:      gen.Spread,
			DTE:         gen.DTE,
			RiskFree:    gen.RiskFree,
		},
		Database: DatabaseConfig{
			URL:         conn.DefaultURL,
			AutoMigrate: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Profiling: ProfilingConfig{
			ServerAddress:   "http://localhost:4040",
			ApplicationName: "apolo.trader",
		},
		Calendar: CalendarConfig{Timezone: "America/New_York"},
		Bus: BusConfig{
			Dispatcher: DispatcherSync,
			QueueSize:  1024,
		},
	}
}

// LoadEnv loads key=value pairs from the given .env files into the process environment.
// Missing files are skipped; variables already set win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "load env file %s", path)
		}
		logs.Infof("ops: loaded env file %s", path)
	}
	return nil
}

// Load reads a YAML config file over the defaults, applies env overrides and resolves it.
// An empty path resolves the defaults.
func Load(path string) (Loaded, error) {
	cfg, err := Read(path)
	if err != nil {
		return Loaded{}, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg.Resolve()
}

// Read decodes a YAML config file over Default without env overrides.
func Read(path string) (FileConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return FileConfig{}, errors.Wrapf(err, "open config %s", path)
	}
	defer file.Close()

	if err := Decode(file, &cfg); err != nil {
		return FileConfig{}, errors.Wrapf(err, "decode config %s", path)
	}
	return cfg, nil
}

// Decode reads YAML from r into cfg. Fields absent from the document keep their values and
// unknown fields are rejected.
func Decode(r io.Reader, cfg *FileConfig) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides file values with the environment.
func (c *FileConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseURL); ok && strings.TrimSpace(v) != "" {
		c.Database.URL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvExecutionMode); ok && strings.TrimSpace(v) != "" {
		c.Execution.Mode = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvMetricsAddr); ok && strings.TrimSpace(v) != "" {
		c.Metrics.Addr = strings.TrimSpace(v)
	}
}

// Resolve validates the file config and builds the runtime values.
func (c FileConfig) Resolve() (Loaded, error) {
	if err := c.Validate(); err != nil {
		return Loaded{}, err
	}
	mode, err := execution.ParseMode(c.Execution.Mode)
	if err != nil {
		return Loaded{}, invalid(err, "execution.mode")
	}
	params, err := c.strategies()
	if err != nil {
		return Loaded{}, err
	}
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return Loaded{}, invalid(err, "calendar.timezone")
	}

	var db *conn.Option
	if c.Database.URL != MemoryDatabaseURL {
		opt, err := conn.ParseURL(c.Database.URL)
		if err != nil {
			return Loaded{}, invalid(err, "database.url")
		}
		db = &opt
	}

	return Loaded{
		File:       c,
		Limits:     c.Risk,
		Mode:       mode,
		Strategies: params,
		Generator:  c.Market.generator(),
		Location:   loc,
		Database:   db,
	}, nil
}

// Validate checks value ranges.
func (c FileConfig) Validate() error {
	if err := c.Risk.Validate(); err != nil {
		return invalid(err, "risk")
	}

	e := c.Execution
	if e.CommissionPerContract < 0 {
		return errors.Wrapf(exception.ErrConfigInvalid, "execution.commissionPerContract: %v", e.CommissionPerContract)
	}
	if e.Slippage < 0 || e.Slippage >= 1 {
		return errors.Wrapf(exception.ErrConfigInvalid, "execution.slippage: %v", e.Slippage)
	}
	if e.Latency < 0 {
		return errors.Wrapf(exception.ErrConfigInvalid, "execution.latency: %s", e.Latency)
	}

	m := c.Market
	if m.Interval <= 0 {
		return errors.Wrapf(exception.ErrConfigInvalid, "market.interval: %s", m.Interval)
	}
	if m.Ticks < 0 {
		return errors.Wrapf(exception.ErrConfigInvalid, "market.ticks: %d", m.Ticks)
	}
	if len(m.Instruments) == 0 {
		return errors.Wrap(exception.ErrConfigInvalid, "market.instruments is empty")
	}
	seen := make(map[string]struct{}, len(m.Instruments))
	for _, inst := range m.Instruments {
		if inst.Symbol == "" || inst.BasePrice <= 0 {
			return errors.Wrapf(exception.ErrConfigInvalid, "market.instruments: %+v", inst)
		}
		if _, ok := seen[inst.Symbol]; ok {
			return errors.Wrapf(exception.ErrConfigInvalid, "market.instruments: duplicate %s", inst.Symbol)
		}
		seen[inst.Symbol] = struct{}{}
	}
	if m.IV <= 0 || m.Strikes < 1 || m.StrikeStep <= 0 || m.DTE < 1 {
		return errors.Wrapf(exception.ErrConfigInvalid,
			"market iv: %v, strikes: %d, strikeStep: %v, dte: %d", m.IV, m.Strikes, m.StrikeStep, m.DTE)
	}
	if m.ADXLow > m.ADXHigh {
		return errors.Wrapf(exception.ErrConfigInvalid, "market adxLow %v > adxHigh %v", m.ADXLow, m.ADXHigh)
	}
	if err := m.Chaos.Validate(); err != nil {
		return errors.Wrap(err, "market.chaos")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.Wrap(exception.ErrConfigInvalid, "metrics.addr is empty")
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return errors.Wrap(exception.ErrConfigInvalid, "profiling.serverAddress is empty")
	}

	switch c.Bus.Dispatcher {
	case DispatcherSync:
	case DispatcherQueue:
		if c.Bus.QueueSize < 1 {
			return errors.Wrapf(exception.ErrConfigInvalid, "bus.queueSize: %d", c.Bus.QueueSize)
		}
	default:
		return errors.Wrapf(exception.ErrConfigInvalid, "bus.dispatcher: %s", c.Bus.Dispatcher)
	}
	return nil
}

// strategies decodes each configured section over the strategy defaults. Strategies that
// are not configured keep their defaults.
func (c FileConfig) strategies() (map[string]strategy.Params, error) {
	out := make(map[string]strategy.Params, len(strategy.Names))
	for _, name := range strategy.Names {
		p, err := strategy.DefaultParams(name)
		if err != nil {
			return nil, err
		}
		out[name] = p
	}
	for name, node := range c.Strategies {
		p, ok := out[name]
		if !ok {
			return nil, errors.Wrapf(exception.ErrConfigInvalid, "strategies: unknown strategy %s", name)
		}
		if err := node.Decode(&p); err != nil {
			return nil, invalid(err, "strategies."+name)
		}
		out[name] = p
	}
	return out, nil
}

func (m MarketConfig) generator() marketdata.GeneratorConfig {
	return marketdata.GeneratorConfig{
		Instruments: m.Instruments,
		Drift:       m.Drift,
		Noise:       m.Noise,
		Seed:        m.Seed,
		IVRankStart: m.IVRankStart,
		IVRankStep:  m.IVRankStep,
		ADXLow:      m.ADXLow,
		ADXHigh:     m.ADXHigh,
		IV:          m.IV,
		Strikes:     m.Strikes,
		StrikeStep:  m.StrikeStep,
		Spread:      m.Spread,
		DTE:         m.DTE,
		RiskFree:    m.RiskFree,
	}
}

func invalid(err error, field string) error {
	return errors.Wrapf(exception.ErrConfigInvalid, "%s: %v", field, err)
}
