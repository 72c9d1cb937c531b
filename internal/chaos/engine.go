// Package chaos injects market data faults so the unavailable-data paths run outside tests.
package chaos

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"apolo/internal/marketdata"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// Config controls fault injection. Rates are probabilities in [0, 1].
type Config struct {
	Seed          uint64        `yaml:"seed"`
	QuoteFailRate float64       `yaml:"quoteFailRate"`
	ChainFailRate float64       `yaml:"chainFailRate"`
	MaxDelay      time.Duration `yaml:"maxDelay"`
}

// Enabled reports whether any fault is configured.
func (c Config) Enabled() bool {
	return c.QuoteFailRate > 0 || c.ChainFailRate > 0 || c.MaxDelay > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.QuoteFailRate < 0 || c.QuoteFailRate > 1 {
		return errors.Wrapf(exception.ErrConfigInvalid, "quoteFailRate must be between 0 and 1: %v", c.QuoteFailRate)
	}
	if c.ChainFailRate < 0 || c.ChainFailRate > 1 {
		return errors.Wrapf(exception.ErrConfigInvalid, "chainFailRate must be between 0 and 1: %v", c.ChainFailRate)
	}
	if c.MaxDelay < 0 {
		return errors.Wrapf(exception.ErrConfigInvalid, "maxDelay must be >= 0: %s", c.MaxDelay)
	}
	return nil
}

// Source wraps a marketdata.Source and fails or delays its lookups at random.
type Source struct {
	next marketdata.Source
	cfg  Config

	mu  sync.Mutex
	rng *rand.Rand
}

var _ marketdata.Source = (*Source)(nil)

// Wrap creates a faulty view of next.
func Wrap(next marketdata.Source, cfg Config) (*Source, error) {
	if next == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "chaos source")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UTC().UnixNano())
	}
	return &Source{
		next: next,
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1|1)),
	}, nil
}

// Quote delays, then fails with exception.ErrMarketDataUnavailable at QuoteFailRate. A
// dropped quote still advances the wrapped source.
func (s *Source) Quote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	if err := s.delay(ctx); err != nil {
		return marketdata.Quote{}, err
	}
	q, err := s.next.Quote(ctx, symbol)
	if err != nil {
		return q, err
	}
	if s.hit(s.cfg.QuoteFailRate) {
		return marketdata.Quote{}, errors.Wrapf(exception.ErrMarketDataUnavailable, "chaos: drop quote %s", symbol)
	}
	return q, nil
}

// Chain fails with exception.ErrMarketDataNoChain at ChainFailRate.
func (s *Source) Chain(ctx context.Context, symbol string) (schema.OptionChain, error) {
	if s.hit(s.cfg.ChainFailRate) {
		return schema.OptionChain{}, errors.Wrapf(exception.ErrMarketDataNoChain, "chaos: drop chain %s", symbol)
	}
	return s.next.Chain(ctx, symbol)
}

func (s *Source) hit(rate float64) bool {
	if rate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < rate
}

func (s *Source) delay(ctx context.Context) error {
	if s.cfg.MaxDelay <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	d := time.Duration(s.rng.Int64N(s.cfg.MaxDelay.Nanoseconds() + 1))
	s.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
