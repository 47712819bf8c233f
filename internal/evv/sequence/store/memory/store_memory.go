package memory

import (
	"context"
	"sync"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
)

// InMemoryStore implements sequence.Store behind a mutex. Suitable for
// tests and single-process dev mode; production uses the PostgreSQL store.
type InMemoryStore struct {
	mu       sync.Mutex
	counters map[counterKey]int64
	records  map[recordKey]int64
}

type counterKey struct {
	orgID      domain.OrgID
	recordType domain.RecordType
}

type recordKey struct {
	recordType domain.RecordType
	recordID   string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		counters: make(map[counterKey]int64),
		records:  make(map[recordKey]int64),
	}
}

func (s *InMemoryStore) Next(_ context.Context, orgID domain.OrgID, recordType domain.RecordType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey{orgID, recordType}
	s.counters[key]++
	return s.counters[key], nil
}

func (s *InMemoryStore) Current(_ context.Context, orgID domain.OrgID, recordType domain.RecordType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[counterKey{orgID, recordType}], nil
}

func (s *InMemoryStore) Reset(_ context.Context, orgID domain.OrgID, recordType domain.RecordType, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counterKey{orgID, recordType}] = value
	return nil
}

func (s *InMemoryStore) RecordSequence(_ context.Context, recordType domain.RecordType, recordID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[recordKey{recordType, recordID}], nil
}

func (s *InMemoryStore) SetRecordSequence(_ context.Context, recordType domain.RecordType, recordID string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{recordType, recordID}] = value
	return nil
}
