package ledger

import (
	"context"
	"errors"
	"sync"
)

// ErrStorageUnavailable marks a failure of the backing store itself,
// as opposed to an empty or not-found result.
var ErrStorageUnavailable = errors.New("ledger storage unavailable")

// ErrEmpty is returned by Last when no entry has been appended yet.
var ErrEmpty = errors.New("ledger is empty")

// Store is the persistence boundary for the chain. Implementations only
// ever add entries; there is no update or delete operation.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Last(ctx context.Context) (*Entry, error)
	All(ctx context.Context) ([]Entry, error)
	Count(ctx context.Context) (int64, error)
}

// MemoryStore keeps the chain in process memory. It is the default
// backing store and the test fake.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Seq = int64(len(s.entries) + 1)
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *MemoryStore) Last(ctx context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, ErrEmpty
	}
	last := s.entries[len(s.entries)-1]
	return &last, nil
}

func (s *MemoryStore) All(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}
