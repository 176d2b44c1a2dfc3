package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"cadastra/internal/notification/models"
	id "cadastra/pkg/domain"
	"cadastra/pkg/platform/sentinel"
	"cadastra/pkg/platform/tx"
	"cadastra/pkg/requestcontext"
)

// PostgresNotificationStore is the production NotificationStore.
type PostgresNotificationStore struct {
	db *sql.DB
}

func NewPostgresNotificationStore(db *sql.DB) *PostgresNotificationStore {
	return &PostgresNotificationStore{db: db}
}

func (s *PostgresNotificationStore) Insert(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}
	channels := make([]string, len(n.Channels))
	for i, c := range n.Channels {
		channels[i] = string(c)
	}

	q := tx.QuerierFrom(ctx, s.db)
	_, err = q.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, channels, read, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.UUID(n.ID), uuid.UUID(n.UserID), string(n.Type), n.Title, n.Message,
		data, pq.Array(channels), n.Read, n.SentAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresNotificationStore) FindByID(ctx context.Context, notifID id.NotificationID) (*models.Notification, error) {
	q := tx.QuerierFrom(ctx, s.db)
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, type, title, message, data, channels, read, sent_at, read_at
		FROM notifications WHERE id = $1
	`, uuid.UUID(notifID))
	return scanNotification(row)
}

func (s *PostgresNotificationStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Notification, error) {
	q := tx.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, data, channels, read, sent_at, read_at
		FROM notifications WHERE user_id = $1
		ORDER BY sent_at DESC
	`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresNotificationStore) MarkRead(ctx context.Context, notifID id.NotificationID, userID id.UserID) error {
	q := tx.QuerierFrom(ctx, s.db)
	// Idempotent: an already-read row matches zero rows on read = false but
	// still belongs to the user, so check existence separately.
	res, err := q.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE, read_at = $3
		WHERE id = $1 AND user_id = $2 AND read = FALSE
	`, uuid.UUID(notifID), uuid.UUID(userID), requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var owner uuid.UUID
	err = q.QueryRowContext(ctx, `SELECT user_id FROM notifications WHERE id = $1`, uuid.UUID(notifID)).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != uuid.UUID(userID)) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check notification owner: %w", err)
	}
	return nil
}

func (s *PostgresNotificationStore) MarkAllRead(ctx context.Context, userID id.UserID) (int, error) {
	q := tx.QuerierFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE, read_at = $2
		WHERE user_id = $1 AND read = FALSE
	`, uuid.UUID(userID), requestcontext.Now(ctx))
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresNotificationStore) Delete(ctx context.Context, notifID id.NotificationID, userID id.UserID) error {
	q := tx.QuerierFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		DELETE FROM notifications WHERE id = $1 AND user_id = $2
	`, uuid.UUID(notifID), uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n        models.Notification
		nID      uuid.UUID
		userID   uuid.UUID
		typ      string
		data     []byte
		channels pq.StringArray
		readAt   sql.NullTime
	)
	err := row.Scan(&nID, &userID, &typ, &n.Title, &n.Message, &data, &channels, &n.Read, &n.SentAt, &readAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	n.ID = id.NotificationID(nID)
	n.UserID = id.UserID(userID)
	n.Type = models.Type(typ)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshal notification data: %w", err)
		}
	}
	for _, c := range channels {
		n.Channels = append(n.Channels, models.Channel(c))
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return &n, nil
}

// PostgresSettingsStore is the production SettingsStore.
type PostgresSettingsStore struct {
	db *sql.DB
}

func NewPostgresSettingsStore(db *sql.DB) *PostgresSettingsStore {
	return &PostgresSettingsStore{db: db}
}

func (s *PostgresSettingsStore) Find(ctx context.Context, userID id.UserID) (models.Settings, error) {
	q := tx.QuerierFrom(ctx, s.db)
	var (
		row models.Settings
		uid uuid.UUID
	)
	err := q.QueryRowContext(ctx, `
		SELECT user_id, sms_enabled, email_enabled, push_enabled,
		       application_updates, payment_updates, survey_updates,
		       title_updates, mortgage_updates, updated_at
		FROM notification_settings WHERE user_id = $1
	`, uuid.UUID(userID)).Scan(&uid, &row.SMSEnabled, &row.EmailEnabled, &row.PushEnabled,
		&row.ApplicationUpdates, &row.PaymentUpdates, &row.SurveyUpdates,
		&row.TitleUpdates, &row.MortgageUpdates, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Settings{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("find settings: %w", err)
	}
	row.UserID = id.UserID(uid)
	return row, nil
}

func (s *PostgresSettingsStore) Upsert(ctx context.Context, row models.Settings) error {
	q := tx.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO notification_settings (user_id, sms_enabled, email_enabled, push_enabled,
			application_updates, payment_updates, survey_updates,
			title_updates, mortgage_updates, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			sms_enabled = EXCLUDED.sms_enabled,
			email_enabled = EXCLUDED.email_enabled,
			push_enabled = EXCLUDED.push_enabled,
			application_updates = EXCLUDED.application_updates,
			payment_updates = EXCLUDED.payment_updates,
			survey_updates = EXCLUDED.survey_updates,
			title_updates = EXCLUDED.title_updates,
			mortgage_updates = EXCLUDED.mortgage_updates,
			updated_at = EXCLUDED.updated_at
	`, uuid.UUID(row.UserID), row.SMSEnabled, row.EmailEnabled, row.PushEnabled,
		row.ApplicationUpdates, row.PaymentUpdates, row.SurveyUpdates,
		row.TitleUpdates, row.MortgageUpdates, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
