package schema

import (
	"time"
)

// Kind defines the category of an event flowing through the bus.
type Kind uint16

const (
	KindUnknown Kind = iota
	KindMarketData
	KindSignal
	KindOrderRequest
	KindOrderFill
	KindRiskCheck
	KindSystemStatus
	KindError
)

// Kinds lists every routable kind in declaration order.
var Kinds = []Kind{
	KindMarketData,
	KindSignal,
	KindOrderRequest,
	KindOrderFill,
	KindRiskCheck,
	KindSystemStatus,
	KindError,
}

func (k Kind) String() string {
	switch k {
	case KindMarketData:
		return "MARKET_DATA"
	case KindSignal:
		return "SIGNAL"
	case KindOrderRequest:
		return "ORDER_REQUEST"
	case KindOrderFill:
		return "ORDER_FILL"
	case KindRiskCheck:
		return "RISK_CHECK"
	case KindSystemStatus:
		return "SYSTEM_STATUS"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether the kind can be routed.
func (k Kind) Valid() bool {
	return k > KindUnknown && k <= KindError
}

// Event is the unit passed through the bus. Events are transient and never persisted.
type Event struct {
	Kind      Kind
	Payload   Payload
	CreatedAt time.Time
	Seq       uint64
}

// NewEvent builds an event with a private deep copy of payload, so later writes to the
// caller's maps and slices never reach subscribers.
func NewEvent(kind Kind, payload Payload) Event {
	return Event{
		Kind:      kind,
		Payload:   payload.Clone(),
		CreatedAt: time.Now().UTC(),
	}
}

// Get returns the raw value stored under key.
func (e Event) Get(key string) (any, bool) {
	v, ok := e.Payload[key]
	return v, ok
}

func (e Event) String() string {
	return "<Event kind=" + e.Kind.String() + " createdAt=" + e.CreatedAt.Format(time.RFC3339Nano) + ">"
}
