package store

import (
	"context"
	"sync"
	"time"

	"sentinelpay/monitor/internal/domain"
)

// MemoryStore is a thread-safe in-memory Repository.
type MemoryStore struct {
	mu sync.RWMutex

	byID  map[string]*domain.AnalyzedTransaction
	order []string // insertion order, oldest first

	now func() time.Time
}

// NewMemory creates an empty, ready-to-use MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*domain.AnalyzedTransaction),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ─── Transactions ─────────────────────────────────────────────────────────────

// Save stores a copy of tx and stamps PersistedAt on both.
// Returns ErrDuplicate if the ID already exists.
func (s *MemoryStore) Save(_ context.Context, tx *domain.AnalyzedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[tx.ID]; exists {
		return ErrDuplicate
	}
	if tx.PersistedAt.IsZero() {
		tx.PersistedAt = s.now()
	}

	s.byID[tx.ID] = clone(tx)
	s.order = append(s.order, tx.ID)
	return nil
}

// Get retrieves a single transaction by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.AnalyzedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(tx), nil
}

// Recent returns up to limit transactions, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]*domain.AnalyzedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = clampLimit(limit)
	out := make([]*domain.AnalyzedTransaction, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, clone(s.byID[s.order[i]]))
	}
	return out, nil
}

// Prune removes every transaction persisted before the cutoff.
func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.byID[id].PersistedAt.Before(before) {
			delete(s.byID, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

// Len reports how many transactions are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
