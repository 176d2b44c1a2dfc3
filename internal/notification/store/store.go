// Package store persists notifications and per-user notification settings.
// Memory implementations serve unit tests; postgres implementations are the
// production backend. Both return sentinel errors for infrastructure facts.
package store

import (
	"context"

	"cadastra/internal/notification/models"
	id "cadastra/pkg/domain"
)

// NotificationStore persists dispatch records and read-state transitions.
type NotificationStore interface {
	Insert(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, notifID id.NotificationID) (*models.Notification, error)
	// ListByUser returns the user's notifications, newest first.
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Notification, error)
	// MarkRead flips the read flag for a notification owned by userID.
	// Already-read rows are a no-op success. Returns sentinel.ErrNotFound
	// when the row does not exist or belongs to another user.
	MarkRead(ctx context.Context, notifID id.NotificationID, userID id.UserID) error
	// MarkAllRead marks every unread notification for userID, returning the
	// number of rows transitioned.
	MarkAllRead(ctx context.Context, userID id.UserID) (int, error)
	// Delete removes a notification owned by userID.
	Delete(ctx context.Context, notifID id.NotificationID, userID id.UserID) error
}

// SettingsStore persists the one-row-per-user channel and category toggles.
type SettingsStore interface {
	// Find returns sentinel.ErrNotFound when no row exists yet; callers
	// create the default lazily via Upsert.
	Find(ctx context.Context, userID id.UserID) (models.Settings, error)
	Upsert(ctx context.Context, s models.Settings) error
}
