package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apolo/internal/bus"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

func orderRequest(qty int, price float64) schema.OrderRequest {
	return schema.OrderRequest{
		SignalID:     "sig-1",
		StrategyName: "BULL_PUT_SPREAD",
		Symbol:       "SPY",
		Side:         schema.SideSell,
		Quantity:     qty,
		OrderType:    schema.OrderTypeLimit,
		Price:        price,
		Legs: []schema.Leg{
			{Side: schema.SideSell, OptionType: schema.OptionPut, Strike: 425},
			{Side: schema.SideBuy, OptionType: schema.OptionPut, Strike: 405},
		},
	}
}

func capture(t *testing.T, b *bus.Bus, kind schema.Kind) *[]schema.Event {
	t.Helper()
	var events []schema.Event
	require.NoError(t, b.Subscribe(kind, "capture", func(ctx context.Context, e schema.Event) error {
		events = append(events, e)
		return nil
	}))
	return &events
}

func TestPaperFillsAtLimit(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	b := bus.New(bus.Config{})
	fills := capture(t, b, schema.KindOrderFill)

	exec, err := New(ModePaper, Config{Bus: b, Now: func() time.Time { return now }})
	require.NoError(t, err)
	assert.Equal(t, ModePaper, exec.Mode())

	req := orderRequest(5, 1.50)
	require.NoError(t, b.Publish(context.Background(), schema.NewEvent(schema.KindOrderRequest, req.Payload())))

	require.Len(t, *fills, 1)
	fill, err := schema.ParseOrderFill((*fills)[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, 5, fill.FilledQuantity)
	assert.Equal(t, 1.50, fill.FillPrice)
	assert.InDelta(t, 5.25, fill.Commission, 1e-9)
	assert.Equal(t, "SPY", fill.Symbol)
	assert.Equal(t, "sig-1", fill.SignalID)
	assert.Equal(t, "BULL_PUT_SPREAD", fill.StrategyName)
	assert.Len(t, fill.Legs, 2)
	assert.True(t, now.Equal(fill.Timestamp))
	assert.NotEmpty(t, fill.OrderID)
}

func TestPaperOrderIDsAreUnique(t *testing.T) {
	b := bus.New(bus.Config{})
	p, err := NewPaper(Config{Bus: b})
	require.NoError(t, err)

	seen := map[string]bool{}
	for range 100 {
		fill, err := p.Fill(orderRequest(1, 1))
		require.NoError(t, err)
		require.False(t, seen[fill.OrderID])
		seen[fill.OrderID] = true
	}
}

func TestPaperRejectsInvalidQuantity(t *testing.T) {
	b := bus.New(bus.Config{})
	fills := capture(t, b, schema.KindOrderFill)
	errs := capture(t, b, schema.KindError)

	p, err := NewPaper(Config{Bus: b})
	require.NoError(t, err)

	_, err = p.Fill(orderRequest(0, 1.5))
	require.ErrorIs(t, err, exception.ErrOrderInvalidQuantity)

	require.NoError(t, b.Publish(context.Background(), schema.NewEvent(schema.KindOrderRequest, orderRequest(0, 1.5).Payload())))
	assert.Empty(t, *fills)
	require.Len(t, *errs, 1)
	assert.Equal(t, HandlerName, (*errs)[0].Payload[schema.KeyOriginHandler])
}

func TestPaperRejectsNegativePrice(t *testing.T) {
	p, err := NewPaper(Config{Bus: bus.New(bus.Config{})})
	require.NoError(t, err)
	_, err = p.Fill(orderRequest(1, -1))
	require.ErrorIs(t, err, exception.ErrOrderInvalidPrice)
}

func TestLiveFailsLoudly(t *testing.T) {
	b := bus.New(bus.Config{})
	_, err := New(ModeLive, Config{Bus: b})
	require.ErrorIs(t, err, exception.ErrLiveExecutionNotImplemented)
	assert.Zero(t, b.Subscribers(schema.KindOrderRequest))

	err = Live{}.OnOrderRequest(context.Background(), schema.NewEvent(schema.KindOrderRequest, orderRequest(1, 1).Payload()))
	require.ErrorIs(t, err, exception.ErrLiveExecutionNotImplemented)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" paper ")
	require.NoError(t, err)
	assert.Equal(t, ModePaper, m)

	m, err = ParseMode("LIVE")
	require.NoError(t, err)
	assert.Equal(t, ModeLive, m)

	_, err = ParseMode("broker")
	require.ErrorIs(t, err, exception.ErrOrderUnsupportedMode)

	_, err = New(Mode("broker"), Config{Bus: bus.New(bus.Config{})})
	require.ErrorIs(t, err, exception.ErrOrderUnsupportedMode)
}
