package schema

import (
	"time"

	"github.com/yanun0323/errors"

	"apolo/pkg/exception"
)

// Side describes the direction of an order, a spread, or a single leg.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OptionType is PUT or CALL.
type OptionType string

const (
	OptionPut  OptionType = "PUT"
	OptionCall OptionType = "CALL"
)

// OrderType describes order type. Only limit orders are produced by the gate.
type OrderType string

const (
	OrderTypeLimit OrderType = "LIMIT"
)

// Leg is one option contract of a multi-leg structure.
type Leg struct {
	Side       Side
	OptionType OptionType
	Strike     float64
	Expiration time.Time
}

// Payload encodes the leg with contract field names.
func (l Leg) Payload() Payload {
	return Payload{
		KeySide:       string(l.Side),
		KeyOptionType: string(l.OptionType),
		KeyStrike:     l.Strike,
		KeyExpiration: l.Expiration,
	}
}

// ParseLeg decodes a leg payload.
func ParseLeg(p Payload) (Leg, error) {
	side, err := p.String(KeySide)
	if err != nil {
		return Leg{}, err
	}
	typ, err := p.String(KeyOptionType)
	if err != nil {
		return Leg{}, err
	}
	strike, err := p.Float(KeyStrike)
	if err != nil {
		return Leg{}, err
	}
	return Leg{
		Side:       Side(side),
		OptionType: OptionType(typ),
		Strike:     strike,
		Expiration: p.TimeOr(KeyExpiration, time.Time{}),
	}, nil
}

func legsPayload(legs []Leg) []Payload {
	out := make([]Payload, len(legs))
	for i, leg := range legs {
		out[i] = leg.Payload()
	}
	return out
}

func parseLegs(p Payload) ([]Leg, error) {
	if !p.Has(KeyLegs) {
		return nil, nil
	}
	raw, err := p.List(KeyLegs)
	if err != nil {
		return nil, err
	}
	legs := make([]Leg, 0, len(raw))
	for i, item := range raw {
		leg, err := ParseLeg(item)
		if err != nil {
			return nil, errors.Wrapf(err, "leg %d", i)
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// Signal is the payload for KindSignal. Signals are never mutated after emission.
type Signal struct {
	ID           string
	StrategyName string
	Symbol       string
	Side         Side
	Legs         []Leg
	LimitPrice   float64
	RiskPerUnit  float64

	// ShortDelta is the modeled delta of the short leg, zero when unknown.
	ShortDelta float64
}

func (s Signal) Payload() Payload {
	p := Payload{
		KeyStrategyName: s.StrategyName,
		KeySymbol:       s.Symbol,
		KeySide:         string(s.Side),
		KeyLegs:         legsPayload(s.Legs),
		KeyLimitPrice:   s.LimitPrice,
		KeyRiskPerUnit:  s.RiskPerUnit,
	}
	if s.ID != "" {
		p[KeyID] = s.ID
	}
	if s.ShortDelta != 0 {
		p[KeyShortDelta] = s.ShortDelta
	}
	return p
}

// ParseSignal decodes a signal payload.
func ParseSignal(p Payload) (Signal, error) {
	symbol, err := p.String(KeySymbol)
	if err != nil {
		return Signal{}, err
	}
	riskPerUnit, err := p.Float(KeyRiskPerUnit)
	if err != nil {
		return Signal{}, err
	}
	legs, err := parseLegs(p)
	if err != nil {
		return Signal{}, err
	}
	return Signal{
		ID:           p.StringOr(KeyID, ""),
		StrategyName: p.StringOr(KeyStrategyName, ""),
		Symbol:       symbol,
		Side:         Side(p.StringOr(KeySide, string(SideSell))),
		Legs:         legs,
		LimitPrice:   p.FloatOr(KeyLimitPrice, 0),
		RiskPerUnit:  riskPerUnit,
		ShortDelta:   p.FloatOr(KeyShortDelta, 0),
	}, nil
}

// OrderRequest is the payload for KindOrderRequest. Quantity is always the gate's sizing decision.
type OrderRequest struct {
	SignalID     string
	StrategyName string
	Symbol       string
	Side         Side
	Quantity     int
	OrderType    OrderType
	Price        float64
	Legs         []Leg
}

func (o OrderRequest) Payload() Payload {
	p := Payload{
		KeySymbol:       o.Symbol,
		KeyStrategyName: o.StrategyName,
		KeySide:         string(o.Side),
		KeyQuantity:     o.Quantity,
		KeyOrderType:    string(o.OrderType),
		KeyPrice:        o.Price,
		KeyLegs:         legsPayload(o.Legs),
	}
	if o.SignalID != "" {
		p[KeySignalID] = o.SignalID
	}
	return p
}

// ParseOrderRequest decodes an order request payload.
func ParseOrderRequest(p Payload) (OrderRequest, error) {
	symbol, err := p.String(KeySymbol)
	if err != nil {
		return OrderRequest{}, err
	}
	qty, err := p.Int(KeyQuantity)
	if err != nil {
		return OrderRequest{}, err
	}
	price, err := p.Float(KeyPrice)
	if err != nil {
		return OrderRequest{}, err
	}
	legs, err := parseLegs(p)
	if err != nil {
		return OrderRequest{}, err
	}
	return OrderRequest{
		SignalID:     p.StringOr(KeySignalID, ""),
		StrategyName: p.StringOr(KeyStrategyName, ""),
		Symbol:       symbol,
		Side:         Side(p.StringOr(KeySide, string(SideSell))),
		Quantity:     qty,
		OrderType:    OrderType(p.StringOr(KeyOrderType, string(OrderTypeLimit))),
		Price:        price,
		Legs:         legs,
	}, nil
}

// Validate rejects requests that must never reach execution.
func (o OrderRequest) Validate() error {
	if o.Quantity < 1 {
		return errors.Wrapf(exception.ErrOrderInvalidQuantity, "symbol: %s, quantity: %d", o.Symbol, o.Quantity)
	}
	if o.OrderType != OrderTypeLimit {
		return errors.Wrapf(exception.ErrOrderUnsupportedType, "type: %s", o.OrderType)
	}
	return nil
}

// OrderFill is the payload for KindOrderFill.
type OrderFill struct {
	OrderID        string
	SignalID       string
	StrategyName   string
	Symbol         string
	Side           Side
	Legs           []Leg
	FilledQuantity int
	FillPrice      float64
	Commission     float64
	Timestamp      time.Time
}

func (f OrderFill) Payload() Payload {
	p := Payload{
		KeyOrderID:        f.OrderID,
		KeyStrategyName:   f.StrategyName,
		KeySymbol:         f.Symbol,
		KeySide:           string(f.Side),
		KeyLegs:           legsPayload(f.Legs),
		KeyFilledQuantity: f.FilledQuantity,
		KeyFillPrice:      f.FillPrice,
		KeyCommission:     f.Commission,
		KeyTimestamp:      f.Timestamp,
	}
	if f.SignalID != "" {
		p[KeySignalID] = f.SignalID
	}
	return p
}

// ParseOrderFill decodes an order fill payload.
func ParseOrderFill(p Payload) (OrderFill, error) {
	orderID, err := p.String(KeyOrderID)
	if err != nil {
		return OrderFill{}, err
	}
	symbol, err := p.String(KeySymbol)
	if err != nil {
		return OrderFill{}, err
	}
	qty, err := p.Int(KeyFilledQuantity)
	if err != nil {
		return OrderFill{}, err
	}
	price, err := p.Float(KeyFillPrice)
	if err != nil {
		return OrderFill{}, err
	}
	legs, err := parseLegs(p)
	if err != nil {
		return OrderFill{}, err
	}
	return OrderFill{
		OrderID:        orderID,
		SignalID:       p.StringOr(KeySignalID, ""),
		StrategyName:   p.StringOr(KeyStrategyName, ""),
		Symbol:         symbol,
		Side:           Side(p.StringOr(KeySide, string(SideSell))),
		Legs:           legs,
		FilledQuantity: qty,
		FillPrice:      price,
		Commission:     p.FloatOr(KeyCommission, 0),
		Timestamp:      p.TimeOr(KeyTimestamp, time.Time{}),
	}, nil
}

// ErrorPayload is the payload for KindError.
type ErrorPayload struct {
	Message       string
	OriginHandler string
}

func (e ErrorPayload) Payload() Payload {
	return Payload{
		KeyMessage:       e.Message,
		KeyOriginHandler: e.OriginHandler,
	}
}
