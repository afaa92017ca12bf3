package ratetable

import (
	"context"
	"sync"
)

// Store is the read-only configuration source for rate records and carriers.
// Records may return a superset of the matching rows; the resolver applies
// the exact matching rules.
type Store interface {
	Records(ctx context.Context, scope Scope) ([]Record, error)
	Carriers(ctx context.Context) ([]Carrier, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []Record
	carriers []Carrier
}

// NewMemoryStore creates a store holding copies of records and carriers.
func NewMemoryStore(records []Record, carriers []Carrier) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(records, carriers)
	return s
}

// Replace swaps the store contents.
func (s *MemoryStore) Replace(records []Record, carriers []Carrier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]Record(nil), records...)
	s.carriers = append([]Carrier(nil), carriers...)
}

// Records returns a copy of every stored record.
func (s *MemoryStore) Records(ctx context.Context, _ Scope) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...), nil
}

// Carriers returns a copy of every stored carrier.
func (s *MemoryStore) Carriers(ctx context.Context) ([]Carrier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Carrier(nil), s.carriers...), nil
}

var _ Store = (*MemoryStore)(nil)
