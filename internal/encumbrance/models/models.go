// Package models defines the encumbrance entity and its closed status enum.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
)

// Status is an encumbrance lifecycle state. foreclosed and defaulted are
// modeled states with no transition into them yet; registration creates
// active rows and discharge is the only implemented mutation.
type Status string

const (
	StatusActive     Status = "active"
	StatusDischarged Status = "discharged"
	StatusForeclosed Status = "foreclosed"
	StatusDefaulted  Status = "defaulted"
)

var validStatuses = map[Status]bool{
	StatusActive:     true,
	StatusDischarged: true,
	StatusForeclosed: true,
	StatusDefaulted:  true,
}

// ParseStatus constructs a Status from external input.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !validStatuses[st] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid encumbrance status")
	}
	return st, nil
}

func (s Status) IsValid() bool  { return validStatuses[s] }
func (s Status) String() string { return string(s) }

// DefaultDurationMonths applies when a registration omits the loan term.
const DefaultDurationMonths = 240

// Encumbrance is a registered claim against a parcel. Priority ranks active
// claims on the same parcel in registration order, starting at 1, and is
// never renumbered: discharging an earlier claim leaves later priorities
// untouched, so the current first lien is min(priority) over active rows.
type Encumbrance struct {
	ID              id.EncumbranceID
	HumanReadableID string
	ParcelID        id.ParcelID
	LenderName      string
	LenderContact   string
	BorrowerID      id.UserID
	LoanAmount      float64
	InterestRate    float64
	DurationMonths  int
	StartDate       time.Time
	MaturityDate    time.Time
	Status          Status
	Priority        int
	AnchorRef       string
	RegisteredBy    id.UserID
	RegisteredAt    time.Time
	DischargedAt    *time.Time
	Notes           string
}

func (e *Encumbrance) IsActive() bool {
	return e.Status == StatusActive
}

// CanDischarge checks the active-to-discharged transition.
// Use with ApplyDischarge in Execute callbacks.
func (e *Encumbrance) CanDischarge() error {
	if e.Status != StatusActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "encumbrance is not active")
	}
	return nil
}

// ApplyDischarge transitions the encumbrance to discharged. Priority is
// deliberately untouched: remaining active claims keep their registration
// ranking. Call CanDischarge first.
func (e *Encumbrance) ApplyDischarge(note string, now time.Time) {
	e.Status = StatusDischarged
	e.DischargedAt = &now
	if note == "" {
		note = "Mortgage discharged"
	}
	e.Notes = note
}

// MaturityFrom computes the maturity date with calendar month arithmetic,
// not fixed-length months.
func MaturityFrom(startDate time.Time, durationMonths int) time.Time {
	return startDate.AddDate(0, durationMonths, 0)
}

// NewHumanReadableID mints the registry reference printed on encumbrance
// certificates, e.g. ENC-2025-1A2B3C4D.
func NewHumanReadableID(registeredAt time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("ENC-%d-%s", registeredAt.Year(), suffix)
}

// View is an Encumbrance joined with the display fields read endpoints
// return. The write path works on the bare entity.
type View struct {
	Encumbrance
	ParcelNumber   string
	ParcelLocation string
	BorrowerName   string
}
