package main

import (
	"github.com/google/uuid"

	"cadastra/internal/directory"
	id "cadastra/pkg/domain"
)

// Development fixtures for the directory boundary. IDs are fixed so tokens
// minted against the dev signing key resolve to known users.
var (
	seedCitizenID = id.UserID(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	seedOfficerID = id.UserID(uuid.MustParse("00000000-0000-0000-0000-000000000002"))
	seedParcelID  = id.ParcelID(uuid.MustParse("00000000-0000-0000-0000-000000000101"))
)

func seedDirectory(users *directory.MemoryUsers, parcels *directory.MemoryParcels) {
	users.Add(directory.User{
		ID:    seedCitizenID,
		Name:  "Ada Citizen",
		Email: "ada.citizen@example.test",
		Phone: "+15550100",
	})
	users.Add(directory.User{
		ID:    seedOfficerID,
		Name:  "Osei Officer",
		Email: "osei.officer@example.test",
		Phone: "+15550101",
	})
	parcels.Add(directory.Parcel{
		ID:           seedParcelID,
		ParcelNumber: "LR-2025-000101",
		Location:     "12 Harbour Road",
		OwnerID:      seedCitizenID,
	})
}
