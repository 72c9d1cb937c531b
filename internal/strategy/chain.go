package strategy

import (
	"cmp"
	"math"
	"slices"

	"apolo/internal/schema"
)

// Nearest returns the quoted row whose strike is closest to target. Rows are ranked by
// absolute distance with a stable sort, so the first row wins ties.
func Nearest(rows []schema.ChainRow, target float64) (schema.ChainRow, bool) {
	candidates := make([]schema.ChainRow, 0, len(rows))
	for _, r := range rows {
		if r.Strike > 0 && r.TradablePrice() > 0 {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return schema.ChainRow{}, false
	}
	slices.SortStableFunc(candidates, func(a, b schema.ChainRow) int {
		return cmp.Compare(math.Abs(a.Strike-target), math.Abs(b.Strike-target))
	})
	return candidates[0], true
}

// vertical is one credit spread: a short leg and a further out-of-the-money long leg.
type vertical struct {
	typ    schema.OptionType
	short  float64
	long   float64
	credit float64
}

func (v vertical) width() float64 {
	return math.Abs(v.short - v.long)
}

func (v vertical) legs(exp schema.Leg) []schema.Leg {
	short, long := exp, exp
	short.Side, short.OptionType, short.Strike = schema.SideSell, v.typ, v.short
	long.Side, long.OptionType, long.Strike = schema.SideBuy, v.typ, v.long
	return []schema.Leg{short, long}
}

// chainVertical prices a vertical from the chain. It fails when either strike is missing,
// both targets resolve to one strike, the long leg is not further out of the money, or the
// credit is not a positive fraction of the width.
func chainVertical(chain *schema.OptionChain, typ schema.OptionType, shortTarget, longTarget float64) (vertical, bool) {
	rows := chain.Rows(typ)
	short, ok := Nearest(rows, shortTarget)
	if !ok {
		return vertical{}, false
	}
	long, ok := Nearest(rows, longTarget)
	if !ok {
		return vertical{}, false
	}
	if typ == schema.OptionPut && long.Strike >= short.Strike {
		return vertical{}, false
	}
	if typ == schema.OptionCall && long.Strike <= short.Strike {
		return vertical{}, false
	}
	v := vertical{
		typ:    typ,
		short:  short.Strike,
		long:   long.Strike,
		credit: short.TradablePrice() - long.TradablePrice(),
	}
	if v.credit <= 0 || v.credit >= v.width() {
		return vertical{}, false
	}
	return v, true
}

// proxyVertical builds the vertical from percentage strikes and a fixed credit.
func proxyVertical(typ schema.OptionType, shortStrike, longStrike, credit float64) vertical {
	return vertical{typ: typ, short: shortStrike, long: longStrike, credit: credit}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
