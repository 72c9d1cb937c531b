package marketdata

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"apolo/internal/bus"
	"apolo/internal/obs"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// Publisher turns source snapshots into MarketData events.
type Publisher struct {
	source  Source
	bus     bus.Broker
	metrics *obs.Metrics
}

func NewPublisher(source Source, b bus.Broker, metrics *obs.Metrics) (*Publisher, error) {
	if source == nil || b == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "market data publisher")
	}
	return &Publisher{source: source, bus: b, metrics: metrics}, nil
}

// Tick publishes one MarketData event for symbol. A missing quote publishes nothing; a
// missing chain publishes the quote alone so evaluators use their proxies. Neither is
// returned as an error.
func (p *Publisher) Tick(ctx context.Context, symbol string) error {
	q, err := p.source.Quote(ctx, symbol)
	if err != nil {
		p.metrics.IncDataUnavailable("quote")
		logs.Errorf("marketdata: quote %s unavailable, err: %+v", symbol, err)
		return nil
	}

	md := schema.MarketData{
		Symbol:    q.Symbol,
		Price:     q.Price,
		IVRank:    q.IVRank,
		ADX:       q.ADX,
		IV:        q.IV,
		Timestamp: q.Timestamp,
	}
	chain, err := p.source.Chain(ctx, symbol)
	if err != nil {
		p.metrics.IncDataUnavailable("chain")
		logs.Errorf("marketdata: chain %s unavailable, publish without chain, err: %+v", symbol, err)
	} else {
		md.Chain = &chain
	}

	return p.bus.Publish(ctx, schema.NewEvent(schema.KindMarketData, md.Payload()))
}

// TickAll publishes one event per symbol in order and stops at the first publish error.
func (p *Publisher) TickAll(ctx context.Context, symbols []string) error {
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Tick(ctx, symbol); err != nil {
			return err
		}
	}
	return nil
}
