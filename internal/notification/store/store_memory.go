package store

import (
	"context"
	"sort"
	"sync"

	"cadastra/internal/notification/models"
	id "cadastra/pkg/domain"
	"cadastra/pkg/platform/sentinel"
	"cadastra/pkg/requestcontext"
)

// InMemoryNotificationStore implements NotificationStore with a mutex-guarded
// map. Unit-test backend; production uses PostgresNotificationStore.
type InMemoryNotificationStore struct {
	mu   sync.RWMutex
	rows map[id.NotificationID]*models.Notification
}

func NewInMemoryNotificationStore() *InMemoryNotificationStore {
	return &InMemoryNotificationStore{rows: make(map[id.NotificationID]*models.Notification)}
}

func (s *InMemoryNotificationStore) Insert(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[n.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *n
	s.rows[n.ID] = &cp
	return nil
}

func (s *InMemoryNotificationStore) FindByID(_ context.Context, notifID id.NotificationID) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.rows[notifID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *InMemoryNotificationStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notification
	for _, n := range s.rows {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out, nil
}

func (s *InMemoryNotificationStore) MarkRead(ctx context.Context, notifID id.NotificationID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[notifID]
	if !ok || n.UserID != userID {
		return sentinel.ErrNotFound
	}
	if n.Read {
		return nil
	}
	now := requestcontext.Now(ctx)
	n.Read = true
	n.ReadAt = &now
	return nil
}

func (s *InMemoryNotificationStore) MarkAllRead(ctx context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := requestcontext.Now(ctx)
	count := 0
	for _, n := range s.rows {
		if n.UserID == userID && !n.Read {
			n.Read = true
			readAt := now
			n.ReadAt = &readAt
			count++
		}
	}
	return count, nil
}

func (s *InMemoryNotificationStore) Delete(_ context.Context, notifID id.NotificationID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[notifID]
	if !ok || n.UserID != userID {
		return sentinel.ErrNotFound
	}
	delete(s.rows, notifID)
	return nil
}

// InMemorySettingsStore implements SettingsStore with a mutex-guarded map.
type InMemorySettingsStore struct {
	mu   sync.RWMutex
	rows map[id.UserID]models.Settings
}

func NewInMemorySettingsStore() *InMemorySettingsStore {
	return &InMemorySettingsStore{rows: make(map[id.UserID]models.Settings)}
}

func (s *InMemorySettingsStore) Find(_ context.Context, userID id.UserID) (models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[userID]
	if !ok {
		return models.Settings{}, sentinel.ErrNotFound
	}
	return row, nil
}

func (s *InMemorySettingsStore) Upsert(_ context.Context, row models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.UserID] = row
	return nil
}
