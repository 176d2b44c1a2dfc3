package storage

import (
	"context"
	"fmt"
	"sync"

	"cadastra/pkg/platform/sentinel"
)

// Memory is an in-memory Store for unit tests.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
	seq   int
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

func (m *Memory) Save(_ context.Context, b []byte, originalFilename, ownerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	path := fmt.Sprintf("%s_%s_%d", originalFilename, ownerID, m.seq)
	cp := make([]byte, len(b))
	copy(cp, b)
	m.files[path] = cp
	return path, nil
}

func (m *Memory) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, sentinel.ErrNotFound)
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("%s: %w", path, sentinel.ErrNotFound)
	}
	delete(m.files, path)
	return nil
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[path]
	return ok, nil
}

// Corrupt flips a byte of the stored payload in place. Test helper for
// integrity verification scenarios.
func (m *Memory) Corrupt(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[path]
	if !ok || len(b) == 0 {
		return false
	}
	b[0] ^= 0x01
	return true
}

// Len reports the number of stored payloads. Test helper for asserting no
// orphaned storage after rejected uploads.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// Paths lists the stored paths. Test helper.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for path := range m.files {
		out = append(out, path)
	}
	return out
}
