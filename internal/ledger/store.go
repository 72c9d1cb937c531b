package ledger

import (
	"context"
	"slices"
	"sync"

	"github.com/yanun0323/errors"

	"apolo/pkg/exception"
)

// TradeStore persists trades and their legs.
type TradeStore interface {
	CreateTrade(ctx context.Context, t Trade) error
	GetTrade(ctx context.Context, id string) (Trade, error)
	UpdateTrade(ctx context.Context, t Trade) error
	// ListTrades returns trades with status, or every trade when status is empty, ordered by
	// entry time descending.
	ListTrades(ctx context.Context, status TradeStatus) ([]Trade, error)
}

// MemoryTradeStore keeps trades in memory.
type MemoryTradeStore struct {
	mu     sync.RWMutex
	trades map[string]Trade
}

func NewMemoryTradeStore() *MemoryTradeStore {
	return &MemoryTradeStore{trades: make(map[string]Trade)}
}

func (s *MemoryTradeStore) CreateTrade(ctx context.Context, t Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[t.ID]; ok {
		return errors.Wrapf(exception.ErrInvalidArgument, "duplicate trade: %s", t.ID)
	}
	s.trades[t.ID] = clone(t)
	return nil
}

func (s *MemoryTradeStore) GetTrade(ctx context.Context, id string) (Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[id]
	if !ok {
		return Trade{}, errors.Wrapf(exception.ErrTradeNotFound, "id: %s", id)
	}
	return clone(t), nil
}

func (s *MemoryTradeStore) UpdateTrade(ctx context.Context, t Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[t.ID]; !ok {
		return errors.Wrapf(exception.ErrTradeNotFound, "id: %s", t.ID)
	}
	s.trades[t.ID] = clone(t)
	return nil
}

func (s *MemoryTradeStore) ListTrades(ctx context.Context, status TradeStatus) ([]Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Trade, 0, len(s.trades))
	for _, t := range s.trades {
		if status == "" || t.Status == status {
			out = append(out, clone(t))
		}
	}
	SortByEntryDesc(out)
	return out, nil
}

// SortByEntryDesc orders trades newest first, breaking ties by id.
func SortByEntryDesc(trades []Trade) {
	slices.SortFunc(trades, func(a, b Trade) int {
		if c := b.EntryTime.Compare(a.EntryTime); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}

func clone(t Trade) Trade {
	t.Legs = slices.Clone(t.Legs)
	return t
}
