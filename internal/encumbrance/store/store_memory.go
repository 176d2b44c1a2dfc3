package store

import (
	"context"
	"sort"
	"sync"

	"cadastra/internal/encumbrance/models"
	id "cadastra/pkg/domain"
	"cadastra/pkg/platform/sentinel"
)

// InMemoryStore implements Store with a single mutex. Holding the lock
// across the count and the insert is what linearizes priority assignment.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[id.EncumbranceID]*models.Encumbrance
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[id.EncumbranceID]*models.Encumbrance)}
}

func (s *InMemoryStore) Register(_ context.Context, e *models.Encumbrance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[e.ID]; exists {
		return sentinel.ErrConflict
	}

	active := 0
	for _, row := range s.rows {
		if row.ParcelID == e.ParcelID && row.Status == models.StatusActive {
			active++
		}
	}
	e.Priority = active + 1

	cp := *e
	s.rows[e.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, encID id.EncumbranceID) (*models.Encumbrance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[encID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *InMemoryStore) ListByParcel(_ context.Context, parcelID id.ParcelID) ([]*models.Encumbrance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Encumbrance
	for _, row := range s.rows {
		if row.ParcelID == parcelID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].RegisteredAt.After(out[j].RegisteredAt)
	})
	return out, nil
}

func (s *InMemoryStore) ListByBorrower(_ context.Context, borrowerID id.UserID) ([]*models.Encumbrance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Encumbrance
	for _, row := range s.rows {
		if row.BorrowerID == borrowerID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.After(out[j].RegisteredAt) })
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, encID id.EncumbranceID,
	validate func(*models.Encumbrance) error,
	mutate func(*models.Encumbrance)) (*models.Encumbrance, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[encID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	// Validate and mutate a copy so a validation error leaves the stored
	// row untouched.
	cp := *row
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.rows[encID] = &cp

	result := cp
	return &result, nil
}
