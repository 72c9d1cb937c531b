package backtest

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"apolo/internal/bus"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// DefaultSymbol is used for bars that do not name an underlying.
const DefaultSymbol = "SPY"

// Bar is one historical close with the indicators the evaluators read.
type Bar struct {
	Time   time.Time
	Symbol string
	Close  float64
	IVRank float64
	ADX    float64
	IV     float64
}

func (b Bar) marketData() schema.MarketData {
	symbol := b.Symbol
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return schema.MarketData{
		Symbol:    symbol,
		Price:     b.Close,
		IVRank:    b.IVRank,
		ADX:       b.ADX,
		IV:        b.IV,
		Timestamp: b.Time,
	}
}

// Feed replays bars as MarketData events and keeps the simulated clock.
type Feed struct {
	bus bus.Broker

	mu  sync.RWMutex
	now time.Time
}

func NewFeed(b bus.Broker) (*Feed, error) {
	if b == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "backtest feed bus")
	}
	return &Feed{bus: b}, nil
}

// Now returns the time of the bar being replayed, or the zero time before the first bar.
func (f *Feed) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// Publish advances the clock to bar.Time and publishes its MarketData event.
func (f *Feed) Publish(ctx context.Context, bar Bar) error {
	if bar.Close <= 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "bar %s close: %v", bar.Time, bar.Close)
	}
	f.mu.Lock()
	if bar.Time.Before(f.now) {
		f.mu.Unlock()
		return errors.Wrapf(exception.ErrInvalidArgument, "bar %s is before %s", bar.Time, f.now)
	}
	f.now = bar.Time
	f.mu.Unlock()

	e := schema.NewEvent(schema.KindMarketData, bar.marketData().Payload())
	e.CreatedAt = bar.Time
	return f.bus.Publish(ctx, e)
}
