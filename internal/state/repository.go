package state

import (
	"context"
	"sort"
	"sync"
)

// Repository is the durable boundary for account snapshots.
type Repository interface {
	// Latest returns the most recent snapshot by timestamp, false when none exists.
	Latest(ctx context.Context) (AccountState, bool, error)
	// Append validates and stores a new snapshot.
	Append(ctx context.Context, s AccountState) error
}

// MemoryRepository keeps snapshots in memory. It backs tests and the simulation binary
// when no database is configured.
type MemoryRepository struct {
	mu        sync.RWMutex
	snapshots []AccountState
}

// NewMemoryRepository creates a repository seeded with snapshots.
func NewMemoryRepository(seed ...AccountState) *MemoryRepository {
	r := &MemoryRepository{}
	r.snapshots = append(r.snapshots, seed...)
	sort.SliceStable(r.snapshots, func(i, j int) bool {
		return r.snapshots[i].Timestamp.Before(r.snapshots[j].Timestamp)
	})
	return r
}

func (r *MemoryRepository) Latest(ctx context.Context) (AccountState, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.snapshots) == 0 {
		return AccountState{}, false, nil
	}
	return r.snapshots[len(r.snapshots)-1], true, nil
}

func (r *MemoryRepository) Append(ctx context.Context, s AccountState) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := sort.Search(len(r.snapshots), func(i int) bool {
		return r.snapshots[i].Timestamp.After(s.Timestamp)
	})
	r.snapshots = append(r.snapshots, AccountState{})
	copy(r.snapshots[idx+1:], r.snapshots[idx:])
	r.snapshots[idx] = s
	return nil
}

// History returns every snapshot ordered by timestamp ascending.
func (r *MemoryRepository) History() []AccountState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AccountState, len(r.snapshots))
	copy(out, r.snapshots)
	return out
}
