package marketdata

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"apolo/internal/pricing"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// Instrument is one underlying served by the generator.
type Instrument struct {
	Symbol    string  `yaml:"symbol"`
	BasePrice float64 `yaml:"basePrice"`
}

// GeneratorConfig controls the synthetic series.
type GeneratorConfig struct {
	Instruments []Instrument

	// Drift is the per-tick relative price change; Noise scales a uniform random shock.
	Drift float64
	Noise float64
	Seed  uint64

	// IVRank starts at IVRankStart and advances by IVRankStep per tick, wrapping at 100.
	IVRankStart float64
	IVRankStep  float64
	// ADX oscillates between ADXLow and ADXHigh.
	ADXLow  float64
	ADXHigh float64
	IV      float64

	Strikes    int
	StrikeStep float64
	Spread     float64
	DTE        int
	RiskFree   float64

	Now func() time.Time
}

// DefaultGeneratorConfig mirrors the approved symbol list with plausible prices.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Instruments: []Instrument{
			{Symbol: "SPY", BasePrice: 450},
			{Symbol: "QQQ", BasePrice: 380},
			{Symbol: "IWM", BasePrice: 200},
			{Symbol: "MSFT", BasePrice: 410},
			{Symbol: "AAPL", BasePrice: 190},
			{Symbol: "NVDA", BasePrice: 480},
			{Symbol: "AMD", BasePrice: 160},
			{Symbol: "TSLA", BasePrice: 240},
		},
		Drift:       0,
		Noise:       0.005,
		Seed:        1,
		IVRankStart: 25,
		IVRankStep:  3,
		ADXLow:      12,
		ADXHigh:     32,
		IV:          0.22,
		Strikes:     10,
		StrikeStep:  5,
		Spread:      0.05,
		DTE:         35,
		RiskFree:    0.05,
	}
}

type series struct {
	base  float64
	price float64
	tick  int
}

// Generator is a deterministic synthetic Source.
type Generator struct {
	mu     sync.Mutex
	cfg    GeneratorConfig
	rng    *rand.Rand
	series map[string]*series
}

// NewGenerator creates a generator for cfg.Instruments.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if len(cfg.Instruments) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "generator has no instruments")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StrikeStep <= 0 {
		cfg.StrikeStep = 1
	}
	if cfg.IV <= 0 {
		cfg.IV = 0.2
	}
	if cfg.DTE <= 0 {
		cfg.DTE = 35
	}
	g := &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		series: make(map[string]*series, len(cfg.Instruments)),
	}
	for _, inst := range cfg.Instruments {
		if inst.Symbol == "" || inst.BasePrice <= 0 {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "instrument: %+v", inst)
		}
		g.series[inst.Symbol] = &series{base: inst.BasePrice, price: inst.BasePrice}
	}
	return g, nil
}

// Symbols returns the served symbols in configuration order.
func (g *Generator) Symbols() []string {
	out := make([]string, 0, len(g.cfg.Instruments))
	for _, inst := range g.cfg.Instruments {
		out = append(out, inst.Symbol)
	}
	return out
}

// Quote advances symbol by one tick.
func (g *Generator) Quote(ctx context.Context, symbol string) (Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.series[symbol]
	if !ok {
		return Quote{}, errors.Wrapf(exception.ErrMarketDataUnknownSym, "symbol: %s", symbol)
	}
	if s.tick > 0 {
		shock := 0.0
		if g.cfg.Noise > 0 {
			shock = (g.rng.Float64()*2 - 1) * g.cfg.Noise
		}
		s.price = math.Max(0.01, s.price*(1+g.cfg.Drift+shock))
	}
	q := Quote{
		Symbol:    symbol,
		Price:     math.Round(s.price*100) / 100,
		IVRank:    math.Mod(g.cfg.IVRankStart+g.cfg.IVRankStep*float64(s.tick), 100),
		ADX:       g.adx(s.tick),
		IV:        g.cfg.IV,
		Timestamp: g.cfg.Now().UTC(),
	}
	s.tick++
	return q, nil
}

// adx is a triangle wave over a 20 tick period.
func (g *Generator) adx(tick int) float64 {
	const period = 20
	phase := float64(tick%period) / (period / 2)
	if phase > 1 {
		phase = 2 - phase
	}
	return g.cfg.ADXLow + (g.cfg.ADXHigh-g.cfg.ADXLow)*phase
}

// Chain builds a single-expiration chain around the last quoted price, priced with
// Black-Scholes at the configured volatility.
func (g *Generator) Chain(ctx context.Context, symbol string) (schema.OptionChain, error) {
	g.mu.Lock()
	s, ok := g.series[symbol]
	var spot float64
	if ok {
		spot = s.price
	}
	g.mu.Unlock()
	if !ok {
		return schema.OptionChain{}, errors.Wrapf(exception.ErrMarketDataUnknownSym, "symbol: %s", symbol)
	}
	if g.cfg.Strikes <= 0 {
		return schema.OptionChain{}, errors.Wrapf(exception.ErrMarketDataNoChain, "symbol: %s", symbol)
	}

	now := g.cfg.Now().UTC()
	y, m, d := now.AddDate(0, 0, g.cfg.DTE).Date()
	exp := time.Date(y, m, d, 20, 0, 0, 0, time.UTC)
	years := pricing.YearsUntil(exp.Sub(now).Hours() / 24)

	step := g.cfg.StrikeStep
	atm := math.Round(spot/step) * step
	chain := schema.OptionChain{Expiration: exp}
	for i := -g.cfg.Strikes; i <= g.cfg.Strikes; i++ {
		strike := atm + float64(i)*step
		if strike <= 0 {
			continue
		}
		chain.Puts = append(chain.Puts, g.row(spot, strike, years, schema.OptionPut))
		chain.Calls = append(chain.Calls, g.row(spot, strike, years, schema.OptionCall))
	}
	return chain, nil
}

func (g *Generator) row(spot, strike, years float64, typ schema.OptionType) schema.ChainRow {
	theo := pricing.ComputeGreeks(spot, strike, years, g.cfg.RiskFree, g.cfg.IV, typ).TheoreticalPrice
	half := g.cfg.Spread / 2
	bid := math.Max(0, round2(theo-half))
	return schema.ChainRow{
		Strike: strike,
		Bid:    bid,
		Ask:    round2(theo + half),
		Last:   round2(theo),
		IV:     g.cfg.IV,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
