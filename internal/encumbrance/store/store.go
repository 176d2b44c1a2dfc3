// Package store persists encumbrances. The memory implementation backs unit
// tests; postgres is the production backend. Both linearize registrations on
// the same parcel so priorities come out contiguous under concurrency.
package store

import (
	"context"

	"cadastra/internal/encumbrance/models"
	id "cadastra/pkg/domain"
)

// Store persists encumbrance rows and their status transitions.
type Store interface {
	// Register assigns priority as count(active rows on the parcel) + 1 and
	// inserts, atomically with respect to concurrent registrations on the
	// same parcel. The assigned priority is written back to e.
	Register(ctx context.Context, e *models.Encumbrance) error

	// FindByID returns sentinel.ErrNotFound when the row is absent.
	FindByID(ctx context.Context, encID id.EncumbranceID) (*models.Encumbrance, error)

	// ListByParcel returns all rows on the parcel ordered by priority
	// ascending, then registeredAt descending.
	ListByParcel(ctx context.Context, parcelID id.ParcelID) ([]*models.Encumbrance, error)

	// ListByBorrower returns the borrower's rows, newest first.
	ListByBorrower(ctx context.Context, borrowerID id.UserID) ([]*models.Encumbrance, error)

	// Execute atomically loads the row, runs validate then mutate under the
	// store's lock, persists, and returns the updated row. A validate error
	// aborts with no write.
	Execute(ctx context.Context, encID id.EncumbranceID,
		validate func(*models.Encumbrance) error,
		mutate func(*models.Encumbrance)) (*models.Encumbrance, error)
}
