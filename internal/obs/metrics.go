package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"apolo/internal/schema"
)

const namespace = "apolo"

// Metrics collects pipeline counters on a private registry. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	queueDrops      prometheus.Counter
	signals         *prometheus.CounterVec
	riskDecisions   *prometheus.CounterVec
	orders          *prometheus.CounterVec
	fills           *prometheus.CounterVec
	dataUnavailable *prometheus.CounterVec

	equity   prometheus.Gauge
	drawdown prometheus.Gauge
	riskTier prometheus.Gauge

	riskEvalLatency prometheus.Histogram
}

// NewMetrics allocates a metrics container with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published on the bus",
		}, []string{"kind"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Subscriber failures contained by the bus",
		}, []string{"kind", "handler"}),
		queueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_drops_total",
			Help:      "Events rejected by a full or closed dispatch queue",
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals emitted by strategy evaluators",
		}, []string{"strategy"}),
		riskDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_decisions_total",
			Help:      "Risk gate decisions split by action and reason",
		}, []string{"action", "reason"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order requests received by execution",
		}, []string{"mode"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Order fills emitted by execution",
		}, []string{"mode"}),
		dataUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_data_unavailable_total",
			Help:      "Quote or chain lookups that failed",
		}, []string{"what"}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_equity",
			Help:      "Equity of the latest account snapshot",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_drawdown_ratio",
			Help:      "Drawdown of the latest account snapshot",
		}),
		riskTier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_risk_tier",
			Help:      "Risk tier of the latest account snapshot (0 normal, 1 defensive, 2 halt)",
		}),
		riskEvalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_eval_seconds",
			Help:      "Risk gate evaluation latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
	m.registry.MustRegister(
		m.events,
		m.handlerFailures,
		m.queueDrops,
		m.signals,
		m.riskDecisions,
		m.orders,
		m.fills,
		m.dataUnavailable,
		m.equity,
		m.drawdown,
		m.riskTier,
		m.riskEvalLatency,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent counts a published event.
func (m *Metrics) ObserveEvent(kind schema.Kind) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind.String()).Inc()
}

// IncHandlerFailure counts a contained subscriber failure.
func (m *Metrics) IncHandlerFailure(kind schema.Kind, handler string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(kind.String(), handler).Inc()
}

// IncQueueDrop records a rejected enqueue.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	m.queueDrops.Inc()
}

// IncSignal counts a signal emitted by strategy.
func (m *Metrics) IncSignal(strategy string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(strategy).Inc()
}

// IncRiskDecision counts a risk decision.
func (m *Metrics) IncRiskDecision(action schema.RiskAction, reason schema.RiskReason) {
	if m == nil {
		return
	}
	m.riskDecisions.WithLabelValues(action.String(), reason.String()).Inc()
}

// IncOrder counts an order request received in mode.
func (m *Metrics) IncOrder(mode string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(mode).Inc()
}

// IncFill counts a fill emitted in mode.
func (m *Metrics) IncFill(mode string) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(mode).Inc()
}

// IncDataUnavailable counts a failed quote or chain lookup.
func (m *Metrics) IncDataUnavailable(what string) {
	if m == nil {
		return
	}
	m.dataUnavailable.WithLabelValues(what).Inc()
}

// SetAccount publishes the latest account snapshot figures.
func (m *Metrics) SetAccount(equity, drawdown float64, tier int) {
	if m == nil {
		return
	}
	m.equity.Set(equity)
	m.drawdown.Set(drawdown)
	m.riskTier.Set(float64(tier))
}

// ObserveRiskEval measures risk evaluation latency.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.riskEvalLatency.Observe(d.Seconds())
}
