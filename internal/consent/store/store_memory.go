package store

import (
	"context"
	"sync"

	"consentry/internal/consent"
	"consentry/pkg/domain"
	"consentry/pkg/platform/sentinel"
)

// MemoryStore keeps records in process. It hands out deep copies so callers
// can never mutate stored state outside the sequencer.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*consent.CollectionConsent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*consent.CollectionConsent)}
}

func (s *MemoryStore) Save(_ context.Context, record *consent.CollectionConsent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*consent.CollectionConsent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, record *consent.CollectionConsent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Seq != record.Seq-1 {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *MemoryStore) ListBySubject(_ context.Context, subject domain.Identity) ([]*consent.CollectionConsent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*consent.CollectionConsent
	for _, record := range s.records {
		if record.Subject == subject {
			out = append(out, record.Clone())
		}
	}
	return out, nil
}
