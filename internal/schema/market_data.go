package schema

import (
	"time"

	"github.com/yanun0323/errors"
)

// ChainRow is one strike of an option chain snapshot.
type ChainRow struct {
	Strike float64
	Bid    float64
	Ask    float64
	Last   float64
	IV     float64
}

// TradablePrice returns the mid when both sides are quoted, otherwise the last trade.
func (r ChainRow) TradablePrice() float64 {
	if r.Bid > 0 && r.Ask > 0 {
		return (r.Bid + r.Ask) / 2
	}
	return r.Last
}

func (r ChainRow) Payload() Payload {
	return Payload{
		KeyStrike: r.Strike,
		KeyBid:    r.Bid,
		KeyAsk:    r.Ask,
		KeyLast:   r.Last,
		KeyIV:     r.IV,
	}
}

func parseChainRow(p Payload) (ChainRow, error) {
	strike, err := p.Float(KeyStrike)
	if err != nil {
		return ChainRow{}, err
	}
	return ChainRow{
		Strike: strike,
		Bid:    p.FloatOr(KeyBid, 0),
		Ask:    p.FloatOr(KeyAsk, 0),
		Last:   p.FloatOr(KeyLast, 0),
		IV:     p.FloatOr(KeyIV, 0),
	}, nil
}

// OptionChain is a single-expiration chain snapshot.
type OptionChain struct {
	Expiration time.Time
	Calls      []ChainRow
	Puts       []ChainRow
}

// Rows returns the side of the chain matching typ.
func (c *OptionChain) Rows(typ OptionType) []ChainRow {
	if c == nil {
		return nil
	}
	if typ == OptionCall {
		return c.Calls
	}
	return c.Puts
}

func (c OptionChain) Payload() Payload {
	calls := make([]Payload, len(c.Calls))
	for i := range c.Calls {
		calls[i] = c.Calls[i].Payload()
	}
	puts := make([]Payload, len(c.Puts))
	for i := range c.Puts {
		puts[i] = c.Puts[i].Payload()
	}
	return Payload{
		KeyExpiration: c.Expiration,
		KeyCalls:      calls,
		KeyPuts:       puts,
	}
}

func parseChain(p Payload) (*OptionChain, error) {
	chain := &OptionChain{Expiration: p.TimeOr(KeyExpiration, time.Time{})}
	for _, side := range []string{KeyCalls, KeyPuts} {
		if !p.Has(side) {
			continue
		}
		raw, err := p.List(side)
		if err != nil {
			return nil, err
		}
		rows := make([]ChainRow, 0, len(raw))
		for i, item := range raw {
			row, err := parseChainRow(item)
			if err != nil {
				return nil, errors.Wrapf(err, "%s row %d", side, i)
			}
			rows = append(rows, row)
		}
		if side == KeyCalls {
			chain.Calls = rows
		} else {
			chain.Puts = rows
		}
	}
	return chain, nil
}

// MarketData is the payload for KindMarketData.
type MarketData struct {
	Symbol    string
	Price     float64
	IVRank    float64
	ADX       float64
	IV        float64
	Timestamp time.Time
	Chain     *OptionChain
}

func (m MarketData) Payload() Payload {
	p := Payload{
		KeySymbol:    m.Symbol,
		KeyPrice:     m.Price,
		KeyIVRank:    m.IVRank,
		KeyADX:       m.ADX,
		KeyTimestamp: m.Timestamp,
	}
	if m.IV > 0 {
		p[KeyIV] = m.IV
	}
	if m.Chain != nil {
		p[KeyChain] = m.Chain.Payload()
	}
	return p
}

// ParseMarketData decodes a market data payload. Missing indicators default so that gated
// strategies stay idle: ivRank 0 and adx 25.
func ParseMarketData(p Payload) (MarketData, error) {
	symbol, err := p.String(KeySymbol)
	if err != nil {
		return MarketData{}, err
	}
	price, err := p.Float(KeyPrice)
	if err != nil {
		return MarketData{}, err
	}
	md := MarketData{
		Symbol:    symbol,
		Price:     price,
		IVRank:    p.FloatOr(KeyIVRank, 0),
		ADX:       p.FloatOr(KeyADX, 25),
		IV:        p.FloatOr(KeyIV, 0),
		Timestamp: p.TimeOr(KeyTimestamp, time.Time{}),
	}
	if p.Has(KeyChain) {
		raw, err := p.Object(KeyChain)
		if err != nil {
			return MarketData{}, err
		}
		chain, err := parseChain(raw)
		if err != nil {
			return MarketData{}, errors.Wrap(err, "parse chain")
		}
		md.Chain = chain
	}
	return md, nil
}
