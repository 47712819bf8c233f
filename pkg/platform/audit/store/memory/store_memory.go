package memory

import (
	"context"
	"sync"

	audit "github.com/KaripeHS/serenity-sub009/pkg/platform/audit"
)

// InMemoryStore keeps audit events in process memory. Used by tests and by
// dev mode when no database is configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByRecord returns events for one domain record, in append order.
func (s *InMemoryStore) ListByRecord(_ context.Context, recordType, recordID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.RecordType == recordType && e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns every recorded event in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
