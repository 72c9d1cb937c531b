package marketdata

import (
	"context"
	"slices"
	"sync"

	"apolo/internal/bus"
	"apolo/internal/schema"
)

// MarksHandlerName identifies the mark book on the bus.
const MarksHandlerName = "marketdata.marks"

// Marks keeps the latest MarketData of every symbol seen on the bus. Open trades are
// revalued against it.
type Marks struct {
	mu   sync.RWMutex
	last map[string]schema.MarketData
}

// NewMarks creates a mark book subscribed to market data.
func NewMarks(b bus.Broker) (*Marks, error) {
	m := &Marks{last: make(map[string]schema.MarketData)}
	if err := b.Subscribe(schema.KindMarketData, MarksHandlerName, m.OnMarketData); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Marks) OnMarketData(ctx context.Context, e schema.Event) error {
	md, err := schema.ParseMarketData(e.Payload)
	if err != nil {
		return err
	}
	md.Chain = nil
	m.mu.Lock()
	m.last[md.Symbol] = md
	m.mu.Unlock()
	return nil
}

// Get returns the latest snapshot of symbol.
func (m *Marks) Get(symbol string) (schema.MarketData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.last[symbol]
	return md, ok
}

// Symbols returns the marked symbols in lexical order.
func (m *Marks) Symbols() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.last))
	for symbol := range m.last {
		out = append(out, symbol)
	}
	m.mu.RUnlock()
	slices.Sort(out)
	return out
}
