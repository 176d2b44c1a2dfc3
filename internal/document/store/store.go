// Package store persists document catalog rows. Memory backs unit tests;
// postgres is the production backend.
package store

import (
	"context"

	"cadastra/internal/document/models"
	id "cadastra/pkg/domain"
)

// Store persists document rows and the verified transition.
type Store interface {
	Insert(ctx context.Context, d *models.Document) error

	// FindByID returns sentinel.ErrNotFound when the row is absent.
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)

	// ListByUploader returns the uploader's rows, newest first.
	ListByUploader(ctx context.Context, uploaderID id.UserID) ([]*models.Document, error)

	// Execute atomically loads the row, runs validate then mutate under the
	// store's lock, persists, and returns the updated row.
	Execute(ctx context.Context, docID id.DocumentID,
		validate func(*models.Document) error,
		mutate func(*models.Document)) (*models.Document, error)

	// Delete removes the catalog row. The backing file is the service's
	// responsibility.
	Delete(ctx context.Context, docID id.DocumentID) error
}
