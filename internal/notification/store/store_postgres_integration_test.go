//go:build integration

package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadastra/internal/notification/models"
	id "cadastra/pkg/domain"
	"cadastra/pkg/platform/sentinel"
	"cadastra/pkg/testutil"
	"cadastra/pkg/testutil/containers"
)

func TestPostgresNotificationStore_RoundTrip(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresNotificationStore(pg.DB)

	userID := id.UserID(uuid.New())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := testutil.FrozenContext(userID, id.RoleCitizen, now)

	n := &models.Notification{
		ID:       id.NotificationID(uuid.New()),
		UserID:   userID,
		Type:     models.TypeMortgageRegistered,
		Title:    "Mortgage Registered",
		Message:  "A mortgage was registered on parcel LR-2291.",
		Data:     map[string]string{"priority": "1"},
		Channels: []models.Channel{models.ChannelEmail, models.ChannelInApp},
		SentAt:   now,
	}
	require.NoError(t, store.Insert(ctx, n))

	got, err := store.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.Title, got.Title)
	assert.Equal(t, map[string]string{"priority": "1"}, got.Data)
	assert.ElementsMatch(t, n.Channels, got.Channels)
	assert.False(t, got.Read)
	assert.Nil(t, got.ReadAt)

	require.NoError(t, store.MarkRead(ctx, n.ID, userID))
	got, err = store.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.Equal(now))

	// A second mark is invisible: the row is already read.
	require.NoError(t, store.MarkRead(ctx, n.ID, userID))

	otherID := id.UserID(uuid.New())
	err = store.MarkRead(ctx, n.ID, otherID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresNotificationStore_ListNewestFirst(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresNotificationStore(pg.DB)

	userID := id.UserID(uuid.New())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := testutil.FrozenContext(userID, id.RoleCitizen, now)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Insert(ctx, &models.Notification{
			ID:       id.NotificationID(uuid.New()),
			UserID:   userID,
			Type:     models.TypeDocumentUploaded,
			Title:    "Document Uploaded",
			Message:  "catalogued",
			Channels: []models.Channel{models.ChannelInApp},
			SentAt:   now.Add(time.Duration(i) * time.Minute),
		}))
	}

	rows, err := store.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].SentAt.After(rows[1].SentAt))
	assert.True(t, rows[1].SentAt.After(rows[2].SentAt))

	count, err := store.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = store.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPostgresSettingsStore_Upsert(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresSettingsStore(pg.DB)

	userID := id.UserID(uuid.New())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := testutil.FrozenContext(userID, id.RoleCitizen, now)

	_, err := store.Find(ctx, userID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	settings := models.DefaultSettings(userID, now)
	require.NoError(t, store.Upsert(ctx, settings))

	settings.SMSEnabled = false
	settings.MortgageUpdates = false
	require.NoError(t, store.Upsert(ctx, settings))

	got, err := store.Find(ctx, userID)
	require.NoError(t, err)
	assert.False(t, got.SMSEnabled)
	assert.False(t, got.MortgageUpdates)
	assert.True(t, got.EmailEnabled)
}
