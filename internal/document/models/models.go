// Package models defines the document entity, its closed type enum, and the
// upload acceptance rules.
package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
)

// Type classifies what a document evidences.
type Type string

const (
	TypeTitleDeed         Type = "TITLE_DEED"
	TypeSurveyPlan        Type = "SURVEY_PLAN"
	TypeIDDocument        Type = "ID_DOCUMENT"
	TypePassportPhoto     Type = "PASSPORT_PHOTO"
	TypeApplicationForm   Type = "APPLICATION_FORM"
	TypeMortgageAgreement Type = "MORTGAGE_AGREEMENT"
	TypeOther             Type = "OTHER"
)

var validTypes = map[Type]bool{
	TypeTitleDeed:         true,
	TypeSurveyPlan:        true,
	TypeIDDocument:        true,
	TypePassportPhoto:     true,
	TypeApplicationForm:   true,
	TypeMortgageAgreement: true,
	TypeOther:             true,
}

// ParseType constructs a Type from external input.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !validTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid document type")
	}
	return t, nil
}

func (t Type) IsValid() bool  { return validTypes[t] }
func (t Type) String() string { return string(t) }

// MaxUploadBytes caps upload size. Checked before any file write.
const MaxUploadBytes = 10 << 20

// allowedMIMETypes maps accepted content types to their canonical extension.
var allowedMIMETypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
}

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ValidateUpload enforces the acceptance rules: known MIME type, known
// extension, non-empty payload within the size cap. Callers reject before
// persisting anything.
func ValidateUpload(sizeBytes int64, originalFilename, mimeType string) error {
	if sizeBytes <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "file is empty")
	}
	if sizeBytes > MaxUploadBytes {
		return dErrors.New(dErrors.CodeInvalidInput, "file exceeds the 10 MiB limit")
	}
	if !allowedMIMETypes[strings.ToLower(mimeType)] {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unsupported content type %q", mimeType))
	}
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if !allowedExtensions[ext] {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unsupported file extension %q", ext))
	}
	return nil
}

// Document is an uploaded file's catalog row. ContentHash is computed once,
// at upload, over the exact bytes persisted to storage, and never mutated;
// integrity checks recompute a fresh digest and compare against it.
type Document struct {
	ID                id.DocumentID
	HumanReadableID   string
	Filename          string
	OriginalFilename  string
	MimeType          string
	SizeBytes         int64
	StoragePath       string
	DocumentType      Type
	RelatedEntityType string
	RelatedEntityID   string
	UploadedBy        id.UserID
	ContentHash       string
	AnchorRef         string
	Verified          bool
	VerifiedBy        *id.UserID
	VerifiedAt        *time.Time
	OCRText           string
	Metadata          map[string]string
	CreatedAt         time.Time
}

// CanMarkVerified checks the one-way verified transition.
// Use with ApplyVerified in Execute callbacks.
func (d *Document) CanMarkVerified() error {
	if d.Verified {
		return dErrors.New(dErrors.CodeInvariantViolation, "document is already verified")
	}
	return nil
}

// ApplyVerified sets the verified flag. Call CanMarkVerified first.
func (d *Document) ApplyVerified(reviewerID id.UserID, now time.Time) {
	d.Verified = true
	d.VerifiedBy = &reviewerID
	d.VerifiedAt = &now
}

// NewHumanReadableID mints the registry reference, e.g. DOC-2025-1A2B3C4D.
func NewHumanReadableID(createdAt time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("DOC-%d-%s", createdAt.Year(), suffix)
}

// IntegrityReport is the result of a cryptographic integrity check. valid is
// a reported outcome, not an error: a mismatch is evidence, not a fault.
type IntegrityReport struct {
	Valid          bool   `json:"valid"`
	StoredHash     string `json:"stored_hash"`
	RecomputedHash string `json:"recomputed_hash"`
}
