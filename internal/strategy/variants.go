package strategy

import (
	"apolo/internal/schema"
)

// Spread sells a vertical credit spread: puts below spot for BullPutSpread, calls above
// spot for BearCallSpread. Risk per contract is (width - credit) * 100.
type Spread struct {
	name   string
	typ    schema.OptionType
	params Params
}

// NewBullPutSpread gates on ivRank and sells a put spread below spot.
func NewBullPutSpread(p Params) *Spread {
	return &Spread{name: BullPutSpread, typ: schema.OptionPut, params: p}
}

// NewBearCallSpread gates on ivRank and sells a call spread above spot.
func NewBearCallSpread(p Params) *Spread {
	return &Spread{name: BearCallSpread, typ: schema.OptionCall, params: p}
}

// Name returns BullPutSpread or BearCallSpread.
func (s *Spread) Name() string { return s.name }

// Evaluate prices the spread from the chain rows nearest the offset strikes, or from the
// configured proxy credit when the chain has none.
func (s *Spread) Evaluate(md schema.MarketData) (schema.Signal, bool) {
	p := s.params
	if !p.watches(md.Symbol) || md.Price <= 0 || md.IVRank < p.MinIVRank {
		return schema.Signal{}, false
	}

	shortTarget, longTarget := md.Price*p.ShortOffset, md.Price*p.LongOffset
	v, ok := chainVertical(md.Chain, s.typ, shortTarget, longTarget)
	if ok {
		v.credit = round2(v.credit)
	} else {
		v = proxyVertical(s.typ, shortTarget, longTarget, p.Credit)
	}

	exp := schema.Leg{Expiration: p.expiration(md)}
	return schema.Signal{
		StrategyName: s.name,
		Symbol:       md.Symbol,
		Side:         schema.SideSell,
		Legs:         v.legs(exp),
		LimitPrice:   v.credit,
		RiskPerUnit:  (v.width() - v.credit) * contractMultiplier,
		ShortDelta:   p.shortDelta(md, v.short, s.typ),
	}, true
}

// Condor sells a put spread and a call spread around spot in range-bound markets. The
// risk per contract is a fixed placeholder, not derived from the wings.
type Condor struct {
	params Params
}

// NewIronCondor gates on adx. Offsets are distances from spot: ShortOffset for the short
// strikes, LongOffset for the wings.
func NewIronCondor(p Params) *Condor {
	return &Condor{params: p}
}

func (c *Condor) Name() string { return IronCondor }

func (c *Condor) Evaluate(md schema.MarketData) (schema.Signal, bool) {
	p := c.params
	if !p.watches(md.Symbol) || md.Price <= 0 || md.ADX > p.MaxADX {
		return schema.Signal{}, false
	}

	putShort, putLong := md.Price*(1-p.ShortOffset), md.Price*(1-p.LongOffset)
	callShort, callLong := md.Price*(1+p.ShortOffset), md.Price*(1+p.LongOffset)

	put, putOK := chainVertical(md.Chain, schema.OptionPut, putShort, putLong)
	call, callOK := chainVertical(md.Chain, schema.OptionCall, callShort, callLong)
	credit := p.Credit
	if putOK && callOK {
		credit = round2(put.credit + call.credit)
	} else {
		put = proxyVertical(schema.OptionPut, putShort, putLong, 0)
		call = proxyVertical(schema.OptionCall, callShort, callLong, 0)
	}

	exp := schema.Leg{Expiration: p.expiration(md)}
	return schema.Signal{
		StrategyName: IronCondor,
		Symbol:       md.Symbol,
		Side:         schema.SideSell,
		Legs:         append(put.legs(exp), call.legs(exp)...),
		LimitPrice:   credit,
		RiskPerUnit:  p.RiskPerUnit,
		ShortDelta:   p.shortDelta(md, put.short, schema.OptionPut),
	}, true
}

// SecuredPut sells one put fully collateralized by cash, so risk per contract is the
// strike notional.
type SecuredPut struct {
	params Params
}

// NewCashSecuredPut gates on ivRank and sells a put at ShortOffset of spot.
func NewCashSecuredPut(p Params) *SecuredPut {
	return &SecuredPut{params: p}
}

func (s *SecuredPut) Name() string { return CashSecuredPut }

func (s *SecuredPut) Evaluate(md schema.MarketData) (schema.Signal, bool) {
	p := s.params
	if !p.watches(md.Symbol) || md.Price <= 0 || md.IVRank < p.MinIVRank {
		return schema.Signal{}, false
	}

	strike := md.Price * p.ShortOffset
	credit := strike * p.CreditPct
	if row, ok := Nearest(md.Chain.Rows(schema.OptionPut), strike); ok {
		strike, credit = row.Strike, row.TradablePrice()
	}

	leg := schema.Leg{
		Side:       schema.SideSell,
		OptionType: schema.OptionPut,
		Strike:     strike,
		Expiration: p.expiration(md),
	}
	return schema.Signal{
		StrategyName: CashSecuredPut,
		Symbol:       md.Symbol,
		Side:         schema.SideSell,
		Legs:         []schema.Leg{leg},
		LimitPrice:   credit,
		RiskPerUnit:  strike * contractMultiplier,
		ShortDelta:   p.shortDelta(md, strike, schema.OptionPut),
	}, true
}
