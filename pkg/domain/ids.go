// Package domain holds typed identifiers and shared domain primitives.
//
// IDs are distinct types over uuid.UUID so a DocumentID can never be passed
// where an EncumbranceID is expected. Construct from external input via the
// ParseX functions; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "cadastra/pkg/domain-errors"
)

type (
	// UserID identifies a citizen, officer or admin account.
	UserID uuid.UUID
	// ParcelID identifies a land parcel (external collaborator entity).
	ParcelID uuid.UUID
	// EncumbranceID identifies a registered mortgage.
	EncumbranceID uuid.UUID
	// DocumentID identifies an uploaded document.
	DocumentID uuid.UUID
	// NotificationID identifies a dispatched notification.
	NotificationID uuid.UUID
)

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id ParcelID) String() string       { return uuid.UUID(id).String() }
func (id EncumbranceID) String() string  { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id NotificationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ParcelID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id EncumbranceID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

// ParseParcelID validates and returns a ParcelID.
func ParseParcelID(s string) (ParcelID, error) {
	u, err := parseUUID(s)
	return ParcelID(u), err
}

// ParseEncumbranceID validates and returns an EncumbranceID.
func ParseEncumbranceID(s string) (EncumbranceID, error) {
	u, err := parseUUID(s)
	return EncumbranceID(u), err
}

// ParseDocumentID validates and returns a DocumentID.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s)
	return DocumentID(u), err
}

// ParseNotificationID validates and returns a NotificationID.
func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseUUID(s)
	return NotificationID(u), err
}

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}
