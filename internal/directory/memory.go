package directory

import (
	"context"
	"sync"

	id "cadastra/pkg/domain"
	"cadastra/pkg/platform/sentinel"
)

// MemoryUsers is an in-memory Users implementation, seeded at construction.
// Production deployments back this interface with the user subsystem's store.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[id.UserID]User
}

func NewMemoryUsers(seed ...User) *MemoryUsers {
	m := &MemoryUsers{users: make(map[id.UserID]User)}
	for _, u := range seed {
		m.users[u.ID] = u
	}
	return m
}

// Add registers a user. Test and bootstrap helper.
func (m *MemoryUsers) Add(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryUsers) FindByID(_ context.Context, userID id.UserID) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return User{}, sentinel.ErrNotFound
	}
	return u, nil
}

// MemoryParcels is an in-memory Parcels implementation, seeded at
// construction.
type MemoryParcels struct {
	mu      sync.RWMutex
	parcels map[id.ParcelID]Parcel
}

func NewMemoryParcels(seed ...Parcel) *MemoryParcels {
	m := &MemoryParcels{parcels: make(map[id.ParcelID]Parcel)}
	for _, p := range seed {
		m.parcels[p.ID] = p
	}
	return m
}

// Add registers a parcel. Test and bootstrap helper.
func (m *MemoryParcels) Add(p Parcel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parcels[p.ID] = p
}

func (m *MemoryParcels) FindByID(_ context.Context, parcelID id.ParcelID) (Parcel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parcels[parcelID]
	if !ok {
		return Parcel{}, sentinel.ErrNotFound
	}
	return p, nil
}

func (m *MemoryParcels) Exists(_ context.Context, parcelID id.ParcelID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.parcels[parcelID]
	return ok, nil
}
