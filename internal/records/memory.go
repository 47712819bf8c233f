package records

import (
	"context"
	"sync"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
)

// InMemoryStore is the dev-mode record source. Production deployments
// implement Store over the platform's record service.
type InMemoryStore struct {
	mu             sync.RWMutex
	patients       map[string]domain.Patient
	staff          map[string]domain.Staff
	visits         map[string]domain.Visit
	authorizations []domain.Authorization
	authzPatients  map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		patients:      make(map[string]domain.Patient),
		staff:         make(map[string]domain.Staff),
		visits:        make(map[string]domain.Visit),
		authzPatients: make(map[string]string),
	}
}

func (s *InMemoryStore) PutPatient(p domain.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
}

func (s *InMemoryStore) PutStaff(st domain.Staff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff[st.ID] = st
}

func (s *InMemoryStore) PutVisit(v domain.Visit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits[v.ID] = v
}

// PutAuthorization indexes an authorization under the patient it covers.
func (s *InMemoryStore) PutAuthorization(patientID string, a domain.Authorization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorizations = append(s.authorizations, a)
	s.authzPatients[a.Number] = patientID
}

func (s *InMemoryStore) GetPatient(_ context.Context, id string) (domain.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return domain.Patient{}, pkgerrors.Newf(pkgerrors.CodeNotFound, "patient %s not found", id)
	}
	return p, nil
}

func (s *InMemoryStore) GetStaff(_ context.Context, id string) (domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.staff[id]
	if !ok {
		return domain.Staff{}, pkgerrors.Newf(pkgerrors.CodeNotFound, "staff %s not found", id)
	}
	return st, nil
}

func (s *InMemoryStore) GetVisit(_ context.Context, id string) (domain.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.visits[id]
	if !ok {
		return domain.Visit{}, pkgerrors.Newf(pkgerrors.CodeNotFound, "visit %s not found", id)
	}
	return v, nil
}

func (s *InMemoryStore) GetAuthorization(_ context.Context, patientID, serviceCode string) (*domain.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.authorizations {
		if s.authzPatients[a.Number] == patientID && a.ServiceCode == serviceCode {
			match := a
			return &match, nil
		}
	}
	return nil, nil
}
