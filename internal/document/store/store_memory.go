package store

import (
	"context"
	"sort"
	"sync"

	"cadastra/internal/document/models"
	id "cadastra/pkg/domain"
	"cadastra/pkg/platform/sentinel"
)

// InMemoryStore implements Store with a mutex-guarded map.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[id.DocumentID]*models.Document
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemoryStore) Insert(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[d.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *d
	s.rows[d.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *InMemoryStore) ListByUploader(_ context.Context, uploaderID id.UserID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, row := range s.rows {
		if row.UploadedBy == uploaderID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, docID id.DocumentID,
	validate func(*models.Document) error,
	mutate func(*models.Document)) (*models.Document, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	cp := *row
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.rows[docID] = &cp

	result := cp
	return &result, nil
}

func (s *InMemoryStore) Delete(_ context.Context, docID id.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[docID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.rows, docID)
	return nil
}
