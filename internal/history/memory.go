package history

import (
	"context"
	"sync"
)

// MemoryStore keeps the most recent entries in memory. It is safe for
// concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	limit   int
	entries []Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store retaining at most limit entries. A limit of
// zero or less retains everything.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: limit}
}

// Record implements [Store].
func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, prepare(e))
	if s.limit > 0 && len(s.entries) > s.limit {
		s.entries = append(s.entries[:0], s.entries[len(s.entries)-s.limit:]...)
	}
	return nil
}

// Recent implements [Store].
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
