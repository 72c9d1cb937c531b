package schema

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apolo/pkg/exception"
)

var testNow = time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

func TestKind(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid(), k.String())
		assert.NotEqual(t, "UNKNOWN", k.String())
	}
	assert.False(t, KindUnknown.Valid())
	assert.False(t, Kind(99).Valid())
	assert.Equal(t, "ORDER_FILL", KindOrderFill.String())
}

func TestNewEventCopiesPayload(t *testing.T) {
	p := Payload{KeySymbol: "SPY"}
	e := NewEvent(KindMarketData, p)
	p[KeySymbol] = "QQQ"

	v, ok := e.Get(KeySymbol)
	require.True(t, ok)
	assert.Equal(t, "SPY", v)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestNewEventCopiesNestedValues(t *testing.T) {
	legs := []Payload{{KeyStrike: 425.0}}
	chain := map[string]any{"puts": []any{map[string]any{KeyStrike: 430.0}}}
	e := NewEvent(KindSignal, Payload{KeyLegs: legs, KeyChain: chain})

	legs[0][KeyStrike] = 1.0
	chain["puts"].([]any)[0].(map[string]any)[KeyStrike] = 2.0
	chain["expiration"] = "changed"

	gotLegs, err := e.Payload.List(KeyLegs)
	require.NoError(t, err)
	assert.Equal(t, 425.0, gotLegs[0][KeyStrike])

	gotChain, err := e.Payload.Object(KeyChain)
	require.NoError(t, err)
	assert.NotContains(t, gotChain, "expiration")
	puts, err := gotChain.List("puts")
	require.NoError(t, err)
	assert.Equal(t, 430.0, puts[0][KeyStrike])
}

func TestPayloadAccessors(t *testing.T) {
	p := Payload{
		"int":      3,
		"whole":    4.0,
		"fraction": 4.5,
		"text":     "x",
		"side":     SideBuy,
		"rfc":      "2026-03-04T15:00:00Z",
		"nanos":    testNow.UnixNano(),
		"nil":      nil,
	}

	n, err := p.Int("whole")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, err = p.Int("fraction")
	require.ErrorIs(t, err, exception.ErrBusPayloadType)
	_, err = p.Int("missing")
	require.ErrorIs(t, err, exception.ErrBusPayloadMissing)

	f, err := p.Float("int")
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)
	_, err = p.Float("text")
	require.ErrorIs(t, err, exception.ErrBusPayloadType)
	assert.Equal(t, 7.0, p.FloatOr("nil", 7))

	s, err := p.String("side")
	require.NoError(t, err)
	assert.Equal(t, "BUY", s)
	assert.False(t, p.Has("nil"))

	at, err := p.Time("rfc")
	require.NoError(t, err)
	assert.True(t, at.Equal(testNow))
	at, err = p.Time("nanos")
	require.NoError(t, err)
	assert.True(t, at.Equal(testNow))
	_, err = p.Time("int")
	require.ErrorIs(t, err, exception.ErrBusPayloadType)
}

func TestTradablePrice(t *testing.T) {
	assert.InDelta(t, 3.1, ChainRow{Bid: 3, Ask: 3.2, Last: 2.5}.TradablePrice(), 1e-12)
	assert.Equal(t, 2.5, ChainRow{Bid: 3, Last: 2.5}.TradablePrice())
	assert.Zero(t, ChainRow{}.TradablePrice())
}

func TestParseMarketDataDefaults(t *testing.T) {
	md, err := ParseMarketData(Payload{KeySymbol: "SPY", KeyPrice: 450})
	require.NoError(t, err)
	assert.Zero(t, md.IVRank)
	assert.Equal(t, 25.0, md.ADX)
	assert.Nil(t, md.Chain)

	_, err = ParseMarketData(Payload{KeySymbol: "SPY"})
	require.ErrorIs(t, err, exception.ErrBusPayloadMissing)
}

func TestMarketDataChain(t *testing.T) {
	md := MarketData{
		Symbol: "SPY",
		Price:  450,
		IVRank: 35,
		ADX:    15,
		Chain: &OptionChain{
			Expiration: testNow.AddDate(0, 0, 35),
			Puts:       []ChainRow{{Strike: 425, Bid: 3, Ask: 3.2}},
			Calls:      []ChainRow{{Strike: 475, Last: 2.1}},
		},
	}
	got, err := ParseMarketData(md.Payload())
	require.NoError(t, err)
	require.NotNil(t, got.Chain)
	assert.Equal(t, md.Chain.Puts, got.Chain.Rows(OptionPut))
	assert.Equal(t, md.Chain.Calls, got.Chain.Rows(OptionCall))
	assert.True(t, got.Chain.Expiration.Equal(md.Chain.Expiration))

	var nilChain *OptionChain
	assert.Nil(t, nilChain.Rows(OptionPut))
}

func TestParseSignalFromJSON(t *testing.T) {
	raw := `{
		"id": "sig-9",
		"strategyName": "BULL_PUT_SPREAD",
		"symbol": "SPY",
		"side": "SELL",
		"limitPrice": 1.5,
		"riskPerUnit": 2100,
		"legs": [
			{"side": "SELL", "optionType": "PUT", "strike": 427.5, "expiration": "2026-04-08T20:00:00Z"},
			{"side": "BUY", "optionType": "PUT", "strike": 405, "expiration": "2026-04-08T20:00:00Z"}
		]
	}`
	var p map[string]any
	require.NoError(t, sonic.UnmarshalString(raw, &p))

	sig, err := ParseSignal(Payload(p))
	require.NoError(t, err)
	assert.Equal(t, "sig-9", sig.ID)
	assert.Equal(t, SideSell, sig.Side)
	assert.Equal(t, 2100.0, sig.RiskPerUnit)
	require.Len(t, sig.Legs, 2)
	assert.Equal(t, OptionPut, sig.Legs[1].OptionType)
	assert.Equal(t, 405.0, sig.Legs[1].Strike)
	assert.Equal(t, 2026, sig.Legs[0].Expiration.Year())
}

func TestParseSignalRequiresRiskPerUnit(t *testing.T) {
	_, err := ParseSignal(Payload{KeySymbol: "SPY"})
	require.ErrorIs(t, err, exception.ErrBusPayloadMissing)

	_, err = ParseSignal(Payload{KeySymbol: "SPY", KeyRiskPerUnit: 100, KeyLegs: []any{"bad"}})
	require.ErrorIs(t, err, exception.ErrBusPayloadType)
}

func TestParseOrderRequestQuantityFromFloat(t *testing.T) {
	req, err := ParseOrderRequest(Payload{KeySymbol: "SPY", KeyQuantity: 2.0, KeyPrice: 1.5})
	require.NoError(t, err)
	assert.Equal(t, 2, req.Quantity)
	assert.Equal(t, OrderTypeLimit, req.OrderType)
	assert.NoError(t, req.Validate())

	req.Quantity = 0
	require.ErrorIs(t, req.Validate(), exception.ErrOrderInvalidQuantity)
	req.Quantity, req.OrderType = 1, "MARKET"
	require.ErrorIs(t, req.Validate(), exception.ErrOrderUnsupportedType)
}
