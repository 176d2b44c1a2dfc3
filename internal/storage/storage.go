// Package storage persists document bytes. The Store interface is the
// boundary the document registry depends on; the disk implementation is the
// production backend and the memory implementation serves tests.
package storage

import (
	"context"

	"cadastra/pkg/platform/sentinel"
)

// Store saves, reads and deletes document payloads by storage path.
type Store interface {
	// Save persists b under a unique path derived from the original
	// filename and owner, returning the storage path.
	Save(ctx context.Context, b []byte, originalFilename, ownerID string) (string, error)
	// Read returns the exact bytes currently stored at path.
	// Returns sentinel.ErrNotFound when the path does not exist.
	Read(ctx context.Context, path string) ([]byte, error)
	// Delete removes the payload at path.
	// Returns sentinel.ErrNotFound when the path does not exist.
	Delete(ctx context.Context, path string) error
	// Exists reports whether a payload is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
}

// ErrNotFound is re-exported so callers can check without importing sentinel.
var ErrNotFound = sentinel.ErrNotFound
