package ledger

import (
	"maps"
	"sync"

	"apolo/internal/schema"
)

// PositionBook tracks net open contracts per underlying. Sold structures count negative.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]int
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[string]int)}
}

// Open applies an opening fill and returns the new net position.
func (b *PositionBook) Open(symbol string, side schema.Side, qty int) int {
	return b.apply(symbol, signed(side, qty))
}

// Close reverses an opening fill and returns the new net position.
func (b *PositionBook) Close(symbol string, side schema.Side, qty int) int {
	return b.apply(symbol, -signed(side, qty))
}

func (b *PositionBook) apply(symbol string, delta int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.positions[symbol] + delta
	if next == 0 {
		delete(b.positions, symbol)
	} else {
		b.positions[symbol] = next
	}
	return next
}

// Reset replaces the book with the open trades.
func (b *PositionBook) Reset(open []Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.positions)
	for _, t := range open {
		b.positions[t.Symbol] += signed(t.Side, t.Quantity)
	}
	maps.DeleteFunc(b.positions, func(_ string, qty int) bool { return qty == 0 })
}

// Position returns the net position of symbol.
func (b *PositionBook) Position(symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[symbol]
}

// Count returns the number of symbols with an open position.
func (b *PositionBook) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

func signed(side schema.Side, qty int) int {
	switch side {
	case schema.SideBuy:
		return qty
	case schema.SideSell:
		return -qty
	default:
		return 0
	}
}
