// Package directory is the interface boundary to the user and parcel
// subsystems, which live outside this core. Registries only need existence
// checks and display fields; everything else about users and parcels is
// someone else's table.
package directory

import (
	"context"

	id "cadastra/pkg/domain"
)

// User carries the contact fields channel adapters need.
type User struct {
	ID    id.UserID
	Name  string
	Email string
	Phone string
}

// Parcel carries the display fields joined onto encumbrance reads.
type Parcel struct {
	ID           id.ParcelID
	ParcelNumber string
	Location     string
	OwnerID      id.UserID
}

// Users resolves user records by id.
// FindByID returns sentinel.ErrNotFound when the user does not exist.
type Users interface {
	FindByID(ctx context.Context, userID id.UserID) (User, error)
}

// Parcels resolves parcel records by id.
// FindByID returns sentinel.ErrNotFound when the parcel does not exist.
type Parcels interface {
	FindByID(ctx context.Context, parcelID id.ParcelID) (Parcel, error)
	Exists(ctx context.Context, parcelID id.ParcelID) (bool, error)
}
