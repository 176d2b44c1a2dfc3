package audit

import (
	"time"

	id "cadastra/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance to the
	// registry record. These require long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Subject   string
	Action    string
	Decision  string
	Reason    string
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
	// ActorID tracks who performed the action when different from UserID,
	// e.g. an officer discharging a borrower's mortgage.
	ActorID string
	// ClientIP and Platform describe the actor's client, stamped by the
	// metadata middleware.
	ClientIP string
	Platform string
}

type AuditEvent string

const (
	// Mortgage events
	EventMortgageRegistered AuditEvent = "mortgage_registered"
	EventMortgageDischarged AuditEvent = "mortgage_discharged"

	// Document events
	EventDocumentUploaded AuditEvent = "document_uploaded"
	EventDocumentVerified AuditEvent = "document_verified"
	EventDocumentDeleted  AuditEvent = "document_deleted"

	// Integrity events
	EventIntegrityMismatch AuditEvent = "integrity_mismatch"
	EventAnchorFailed      AuditEvent = "anchor_failed"

	// Notification events
	EventNotificationDispatched AuditEvent = "notification_dispatched"
	EventSettingsUpdated        AuditEvent = "notification_settings_updated"
)

// eventCategories maps each audit event to its category. Compliance events
// change or attest the registry record; everything else is operations.
var eventCategories = map[AuditEvent]EventCategory{
	EventMortgageRegistered: CategoryCompliance,
	EventMortgageDischarged: CategoryCompliance,
	EventDocumentVerified:   CategoryCompliance,
	EventDocumentDeleted:    CategoryCompliance,
	EventIntegrityMismatch:  CategoryCompliance,

	EventDocumentUploaded:       CategoryOperations,
	EventAnchorFailed:           CategoryOperations,
	EventNotificationDispatched: CategoryOperations,
	EventSettingsUpdated:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
