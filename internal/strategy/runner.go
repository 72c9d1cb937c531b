package strategy

import (
	"context"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"apolo/internal/bus"
	"apolo/internal/obs"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// Runner feeds MarketData events to one evaluator and publishes its signals.
type Runner struct {
	eval    Evaluator
	bus     bus.Broker
	metrics *obs.Metrics
}

// NewRunner subscribes eval to MarketData on b.
func NewRunner(b bus.Broker, eval Evaluator, metrics *obs.Metrics) (*Runner, error) {
	if b == nil || eval == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "strategy runner")
	}
	r := &Runner{eval: eval, bus: b, metrics: metrics}
	if err := b.Subscribe(schema.KindMarketData, "strategy."+eval.Name(), r.OnMarketData); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) Name() string {
	return r.eval.Name()
}

func (r *Runner) OnMarketData(ctx context.Context, e schema.Event) error {
	md, err := schema.ParseMarketData(e.Payload)
	if err != nil {
		return errors.Wrap(err, "parse market data")
	}
	if md.Timestamp.IsZero() {
		md.Timestamp = e.CreatedAt
	}

	sig, ok := r.eval.Evaluate(md)
	if !ok {
		return nil
	}
	sig.ID = uuid.NewString()

	r.metrics.IncSignal(sig.StrategyName)
	logs.Infof("strategy: %s signal %s, limit: %.2f, risk per unit: %.2f, legs: %d",
		sig.StrategyName, sig.Symbol, sig.LimitPrice, sig.RiskPerUnit, len(sig.Legs))
	return r.bus.Publish(ctx, schema.NewEvent(schema.KindSignal, sig.Payload()))
}

// Build creates a runner per enabled strategy in params, in the order of Names.
func Build(b bus.Broker, params map[string]Params, metrics *obs.Metrics) ([]*Runner, error) {
	runners := make([]*Runner, 0, len(params))
	for _, name := range Names {
		p, ok := params[name]
		if !ok || !p.Enabled {
			continue
		}
		eval, err := New(name, p)
		if err != nil {
			return nil, err
		}
		r, err := NewRunner(b, eval, metrics)
		if err != nil {
			return nil, err
		}
		runners = append(runners, r)
	}
	return runners, nil
}
