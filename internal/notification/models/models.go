// Package models defines notification entities and their closed enums.
package models

import (
	"time"

	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
)

// Channel is a delivery medium. in_app is satisfied by the notification row
// itself; the other channels invoke an external adapter.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

var validChannels = map[Channel]bool{
	ChannelSMS:   true,
	ChannelEmail: true,
	ChannelPush:  true,
	ChannelInApp: true,
}

// ParseChannel constructs a Channel from external input.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !validChannels[c] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid channel")
	}
	return c, nil
}

func (c Channel) IsValid() bool { return validChannels[c] }
func (c Channel) String() string { return string(c) }

// Type classifies what a notification is about. Discharge carries its own
// type rather than reusing the registration type, so consumers can filter
// without parsing message text.
type Type string

const (
	TypeMortgageRegistered Type = "mortgage_registered"
	TypeMortgageDischarged Type = "mortgage_discharged"
	TypeDocumentUploaded   Type = "document_uploaded"
	TypeDocumentVerified   Type = "document_verified"
	TypeTitleIssued        Type = "title_issued"
	TypeApplicationUpdate  Type = "application_update"
	TypePaymentUpdate      Type = "payment_update"
	TypeSurveyUpdate       Type = "survey_update"
)

var validTypes = map[Type]bool{
	TypeMortgageRegistered: true,
	TypeMortgageDischarged: true,
	TypeDocumentUploaded:   true,
	TypeDocumentVerified:   true,
	TypeTitleIssued:        true,
	TypeApplicationUpdate:  true,
	TypePaymentUpdate:      true,
	TypeSurveyUpdate:       true,
}

// ParseType constructs a Type from external input.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !validTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid notification type")
	}
	return t, nil
}

func (t Type) IsValid() bool  { return validTypes[t] }
func (t Type) String() string { return string(t) }

// Notification records dispatch intent: one row per dispatch call, covering
// all requested channels regardless of per-channel delivery outcomes.
type Notification struct {
	ID       id.NotificationID
	UserID   id.UserID
	Type     Type
	Title    string
	Message  string
	Data     map[string]string
	Channels []Channel
	Read     bool
	SentAt   time.Time
	ReadAt   *time.Time
}

// Settings holds one row per user: channel kill-switches and per-category
// toggles, all defaulting to enabled. Created lazily on first access.
type Settings struct {
	UserID             id.UserID
	SMSEnabled         bool
	EmailEnabled       bool
	PushEnabled        bool
	ApplicationUpdates bool
	PaymentUpdates     bool
	SurveyUpdates      bool
	TitleUpdates       bool
	MortgageUpdates    bool
	UpdatedAt          time.Time
}

// DefaultSettings returns the lazily created all-enabled row.
func DefaultSettings(userID id.UserID, now time.Time) Settings {
	return Settings{
		UserID:             userID,
		SMSEnabled:         true,
		EmailEnabled:       true,
		PushEnabled:        true,
		ApplicationUpdates: true,
		PaymentUpdates:     true,
		SurveyUpdates:      true,
		TitleUpdates:       true,
		MortgageUpdates:    true,
		UpdatedAt:          now,
	}
}

// ChannelEnabled resolves the kill-switch for a channel. in_app has no
// toggle; the row itself is the delivery.
func (s Settings) ChannelEnabled(c Channel) bool {
	switch c {
	case ChannelSMS:
		return s.SMSEnabled
	case ChannelEmail:
		return s.EmailEnabled
	case ChannelPush:
		return s.PushEnabled
	case ChannelInApp:
		return true
	default:
		return false
	}
}

// CategoryEnabled resolves the per-event-category toggle for a notification
// type. Dispatch does not consult this; event-aware callers gate on it before
// dispatching.
func (s Settings) CategoryEnabled(t Type) bool {
	switch t {
	case TypeMortgageRegistered, TypeMortgageDischarged:
		return s.MortgageUpdates
	case TypeTitleIssued, TypeDocumentUploaded, TypeDocumentVerified:
		return s.TitleUpdates
	case TypeApplicationUpdate:
		return s.ApplicationUpdates
	case TypePaymentUpdate:
		return s.PaymentUpdates
	case TypeSurveyUpdate:
		return s.SurveyUpdates
	default:
		return true
	}
}

// Outcome is the per-channel result of a dispatch.
type Outcome struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}

// DispatchResult reports the created notification and what happened on each
// requested channel.
type DispatchResult struct {
	NotificationID id.NotificationID   `json:"notification_id"`
	Channels       map[Channel]Outcome `json:"channels"`
}

// Degraded reports whether any requested channel failed (not merely skipped
// by settings).
func (r DispatchResult) Degraded() bool {
	for _, o := range r.Channels {
		if !o.Sent && o.Reason != ReasonDisabledInSettings {
			return true
		}
	}
	return false
}

// Outcome reasons. Skipped-by-settings is an expected state, not a fault.
const (
	ReasonDisabledInSettings = "disabled in settings"
)
