package backtest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"apolo/internal/bus"
	"apolo/internal/execution"
	"apolo/internal/obs"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// HandlerName identifies the simulator on the bus.
const HandlerName = "backtest.execution"

// metricsMode labels simulator orders and fills.
const metricsMode = "BACKTEST"

const (
	DefaultSlippage = 0.01
	DefaultLatency  = 200 * time.Millisecond
)

type SimulatorConfig struct {
	Bus     bus.Broker
	Metrics *obs.Metrics

	// Slippage moves the fill price against the order: buys pay more, sells receive less.
	Slippage float64
	// Latency is added to the clock to stamp fills.
	Latency               time.Duration
	CommissionPerContract float64

	// Clock is the simulated time, usually Feed.Now.
	Clock func() time.Time
	NewID func() string
}

func (c *SimulatorConfig) defaults() {
	if c.Slippage < 0 {
		c.Slippage = 0
	}
	if c.Latency <= 0 {
		c.Latency = DefaultLatency
	}
	if c.CommissionPerContract <= 0 {
		c.CommissionPerContract = execution.DefaultCommission
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
}

// Simulator stands in for the exchange during a backtest. Every valid order is filled in
// full with slippage and latency applied.
type Simulator struct {
	cfg   SimulatorConfig
	fills atomic.Int64
}

// NewSimulator creates a simulator subscribed to order requests.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Bus == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "backtest simulator bus")
	}
	cfg.defaults()
	s := &Simulator{cfg: cfg}
	if err := cfg.Bus.Subscribe(schema.KindOrderRequest, HandlerName, s.OnOrderRequest); err != nil {
		return nil, err
	}
	return s, nil
}

// Fills returns the number of fills published.
func (s *Simulator) Fills() int {
	return int(s.fills.Load())
}

func (s *Simulator) OnOrderRequest(ctx context.Context, e schema.Event) error {
	req, err := schema.ParseOrderRequest(e.Payload)
	if err != nil {
		return errors.Wrap(err, "parse order request")
	}
	s.cfg.Metrics.IncOrder(metricsMode)
	fill, err := s.Fill(req)
	if err != nil {
		return err
	}
	s.fills.Add(1)
	s.cfg.Metrics.IncFill(metricsMode)
	logs.Infof("backtest: fill %s %s %s, quantity: %d, limit: %.2f, price: %.4f",
		fill.StrategyName, fill.Side, fill.Symbol, fill.FilledQuantity, req.Price, fill.FillPrice)

	fe := schema.NewEvent(schema.KindOrderFill, fill.Payload())
	fe.CreatedAt = fill.Timestamp
	return s.cfg.Bus.Publish(ctx, fe)
}

// Fill validates req and synthesizes its simulated fill.
func (s *Simulator) Fill(req schema.OrderRequest) (schema.OrderFill, error) {
	if err := req.Validate(); err != nil {
		return schema.OrderFill{}, err
	}
	if req.Price < 0 {
		return schema.OrderFill{}, errors.Wrapf(exception.ErrOrderInvalidPrice, "symbol: %s, price: %v", req.Symbol, req.Price)
	}
	return schema.OrderFill{
		OrderID:        s.cfg.NewID(),
		SignalID:       req.SignalID,
		StrategyName:   req.StrategyName,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Legs:           req.Legs,
		FilledQuantity: req.Quantity,
		FillPrice:      Slipped(req.Side, req.Price, s.cfg.Slippage),
		Commission:     s.cfg.CommissionPerContract * float64(req.Quantity),
		Timestamp:      s.cfg.Clock().Add(s.cfg.Latency).UTC(),
	}, nil
}

// Slipped applies slippage to price for an order on side.
func Slipped(side schema.Side, price, slippage float64) float64 {
	if side == schema.SideBuy {
		return price * (1 + slippage)
	}
	return price * (1 - slippage)
}
