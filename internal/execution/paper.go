package execution

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"apolo/internal/bus"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// Paper fills every valid order immediately at its limit price. It does not model partial
// fills, rejections or slippage.
type Paper struct {
	cfg Config
	bus bus.Broker
}

// NewPaper creates a paper executor subscribed to order requests.
func NewPaper(cfg Config) (*Paper, error) {
	if cfg.Bus == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "paper executor bus")
	}
	cfg.defaults()
	p := &Paper{cfg: cfg, bus: cfg.Bus}
	if err := cfg.Bus.Subscribe(schema.KindOrderRequest, HandlerName, p.OnOrderRequest); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Paper) Mode() Mode {
	return ModePaper
}

func (p *Paper) OnOrderRequest(ctx context.Context, e schema.Event) error {
	req, err := schema.ParseOrderRequest(e.Payload)
	if err != nil {
		return errors.Wrap(err, "parse order request")
	}
	fill, err := p.Fill(req)
	if err != nil {
		return err
	}
	p.cfg.Metrics.IncOrder(string(ModePaper))
	p.cfg.Metrics.IncFill(string(ModePaper))
	logs.Infof("execution: paper fill %s %s, order: %s, quantity: %d, price: %.2f",
		fill.StrategyName, fill.Symbol, fill.OrderID, fill.FilledQuantity, fill.FillPrice)
	return p.bus.Publish(ctx, schema.NewEvent(schema.KindOrderFill, fill.Payload()))
}

// Fill validates req and synthesizes its fill.
func (p *Paper) Fill(req schema.OrderRequest) (schema.OrderFill, error) {
	if err := req.Validate(); err != nil {
		return schema.OrderFill{}, err
	}
	if req.Price < 0 {
		return schema.OrderFill{}, errors.Wrapf(exception.ErrOrderInvalidPrice, "symbol: %s, price: %v", req.Symbol, req.Price)
	}
	return schema.OrderFill{
		OrderID:        p.cfg.NewID(),
		SignalID:       req.SignalID,
		StrategyName:   req.StrategyName,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Legs:           req.Legs,
		FilledQuantity: req.Quantity,
		FillPrice:      req.Price,
		Commission:     p.cfg.CommissionPerContract * float64(req.Quantity),
		Timestamp:      p.cfg.Now().UTC(),
	}, nil
}
