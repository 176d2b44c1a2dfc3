package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"cadastra/internal/directory"
	"cadastra/internal/notification/models"
	"cadastra/internal/notification/service/mocks"
	"cadastra/internal/notification/store"
	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
	"cadastra/pkg/platform/audit"
	"cadastra/pkg/platform/audit/publisher"
	auditmem "cadastra/pkg/platform/audit/store/memory"
	"cadastra/pkg/requestcontext"
)

type fixture struct {
	svc      *Service
	notifs   *store.InMemoryNotificationStore
	settings *store.InMemorySettingsStore
	users    *directory.MemoryUsers
	sms      *mocks.MockSMSSender
	email    *mocks.MockEmailSender
	push     *mocks.MockPushSender
	user     directory.User
	ctx      context.Context
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		notifs:   store.NewInMemoryNotificationStore(),
		settings: store.NewInMemorySettingsStore(),
		sms:      mocks.NewMockSMSSender(ctrl),
		email:    mocks.NewMockEmailSender(ctrl),
		push:     mocks.NewMockPushSender(ctrl),
		now:      time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}
	f.user = directory.User{
		ID:    id.UserID(uuid.New()),
		Name:  "Amina Okafor",
		Email: "amina@example.com",
		Phone: "+254700000001",
	}
	f.users = directory.NewMemoryUsers(f.user)
	f.ctx = requestcontext.WithTime(context.Background(), f.now)

	f.svc = New(Config{
		Notifications:  f.notifs,
		Settings:       f.settings,
		Users:          f.users,
		SMS:            f.sms,
		Email:          f.email,
		Push:           f.push,
		ChannelTimeout: time.Second,
		Logger:         slog.New(slog.DiscardHandler),
	})
	return f
}

func (f *fixture) dispatchReq(channels ...models.Channel) DispatchRequest {
	return DispatchRequest{
		UserID:   f.user.ID,
		Type:     models.TypeMortgageRegistered,
		Title:    "Mortgage Registered",
		Message:  "A mortgage was registered on parcel LR-2291.",
		Data:     map[string]string{"parcel_number": "LR-2291"},
		Channels: channels,
	}
}

func TestDispatch_AllChannelsEnabled(t *testing.T) {
	f := newFixture(t)
	f.sms.EXPECT().Send(gomock.Any(), f.user.Phone, gomock.Any()).Return(nil)
	f.email.EXPECT().Send(gomock.Any(), f.user.Email, "Mortgage Registered", gomock.Any()).Return(nil)

	result, err := f.svc.Dispatch(f.ctx, f.dispatchReq(models.ChannelSMS, models.ChannelEmail, models.ChannelInApp))
	require.NoError(t, err)

	require.Len(t, result.Channels, 3)
	assert.True(t, result.Channels[models.ChannelSMS].Sent)
	assert.True(t, result.Channels[models.ChannelEmail].Sent)
	assert.True(t, result.Channels[models.ChannelInApp].Sent)
	assert.False(t, result.Degraded())
}

func TestDispatch_DisabledChannelSkippedNotFailed(t *testing.T) {
	f := newFixture(t)
	settings := models.DefaultSettings(f.user.ID, f.now)
	settings.SMSEnabled = false
	require.NoError(t, f.settings.Upsert(f.ctx, settings))

	f.email.EXPECT().Send(gomock.Any(), f.user.Email, gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.Dispatch(f.ctx, f.dispatchReq(models.ChannelSMS, models.ChannelEmail))
	require.NoError(t, err)

	smsOutcome := result.Channels[models.ChannelSMS]
	assert.False(t, smsOutcome.Sent)
	assert.Equal(t, "disabled in settings", smsOutcome.Reason)
	assert.True(t, result.Channels[models.ChannelEmail].Sent)
	assert.False(t, result.Degraded(), "settings skip is not a degradation")

	list, err := f.notifs.ListByUser(f.ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1, "exactly one row regardless of per-channel outcomes")
	assert.Equal(t, []models.Channel{models.ChannelSMS, models.ChannelEmail}, list[0].Channels)
}

func TestDispatch_RowPersistedWhenChannelFails(t *testing.T) {
	f := newFixture(t)
	f.sms.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("gateway unreachable"))

	result, err := f.svc.Dispatch(f.ctx, f.dispatchReq(models.ChannelSMS))
	require.NoError(t, err, "channel failure must not fail the dispatch")

	outcome := result.Channels[models.ChannelSMS]
	assert.False(t, outcome.Sent)
	assert.Contains(t, outcome.Reason, "gateway unreachable")
	assert.True(t, result.Degraded())

	stored, err := f.notifs.FindByID(f.ctx, result.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, f.now, stored.SentAt)
	assert.False(t, stored.Read)
}

func TestDispatch_CreatesDefaultSettingsLazily(t *testing.T) {
	f := newFixture(t)
	f.email.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.svc.Dispatch(f.ctx, f.dispatchReq(models.ChannelEmail))
	require.NoError(t, err)

	settings, err := f.settings.Find(f.ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, settings.SMSEnabled)
	assert.True(t, settings.EmailEnabled)
	assert.True(t, settings.PushEnabled)
	assert.True(t, settings.MortgageUpdates)
}

func TestDispatch_UnknownUser(t *testing.T) {
	f := newFixture(t)
	req := f.dispatchReq(models.ChannelEmail)
	req.UserID = id.UserID(uuid.New())

	_, err := f.svc.Dispatch(f.ctx, req)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestDispatch_Validation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		mutate func(*DispatchRequest)
	}{
		{"nil user id", func(r *DispatchRequest) { r.UserID = id.UserID{} }},
		{"invalid type", func(r *DispatchRequest) { r.Type = "unknown_event" }},
		{"empty title", func(r *DispatchRequest) { r.Title = "" }},
		{"empty message", func(r *DispatchRequest) { r.Message = "" }},
		{"no channels", func(r *DispatchRequest) { r.Channels = nil }},
		{"invalid channel", func(r *DispatchRequest) { r.Channels = []models.Channel{"fax"} }},
		{"duplicate channel", func(r *DispatchRequest) {
			r.Channels = []models.Channel{models.ChannelEmail, models.ChannelEmail}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.dispatchReq(models.ChannelEmail)
			tc.mutate(&req)
			_, err := f.svc.Dispatch(f.ctx, req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

			list, listErr := f.notifs.ListByUser(f.ctx, f.user.ID)
			require.NoError(t, listErr)
			assert.Empty(t, list, "invalid dispatch must not persist a row")
		})
	}
}

func TestDispatch_PublishesInApp(t *testing.T) {
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	inApp := mocks.NewMockInAppPublisher(ctrl)
	f.svc.inApp = inApp

	inApp.EXPECT().Publish(f.user.ID, gomock.Any())

	result, err := f.svc.Dispatch(f.ctx, f.dispatchReq(models.ChannelInApp))
	require.NoError(t, err)
	assert.True(t, result.Channels[models.ChannelInApp].Sent)
}

func TestMarkRead_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.email.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.Dispatch(f.ctx, f.dispatchReq(models.ChannelEmail))
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(f.ctx, result.NotificationID, f.user.ID))
	require.NoError(t, f.svc.MarkRead(f.ctx, result.NotificationID, f.user.ID), "repeat is a no-op")

	err = f.svc.MarkRead(f.ctx, result.NotificationID, id.UserID(uuid.New()))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "other users cannot see the row")
}

func TestMarkAllRead_ReturnsTransitionCount(t *testing.T) {
	f := newFixture(t)
	f.email.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	_, err := f.svc.Dispatch(f.ctx, f.dispatchReq(models.ChannelEmail))
	require.NoError(t, err)
	_, err = f.svc.Dispatch(f.ctx, f.dispatchReq(models.ChannelEmail))
	require.NoError(t, err)

	count, err := f.svc.MarkAllRead(f.ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = f.svc.MarkAllRead(f.ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUpdateSettings_PersistsToggles(t *testing.T) {
	f := newFixture(t)

	settings, err := f.svc.GetSettings(f.ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, settings.PushEnabled)

	settings.PushEnabled = false
	settings.MortgageUpdates = false
	updated, err := f.svc.UpdateSettings(f.ctx, settings)
	require.NoError(t, err)
	assert.Equal(t, f.now, updated.UpdatedAt)

	reloaded, err := f.svc.GetSettings(f.ctx, f.user.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.PushEnabled)
	assert.False(t, reloaded.MortgageUpdates)
	assert.False(t, reloaded.CategoryEnabled(models.TypeMortgageRegistered))
	assert.False(t, reloaded.ChannelEnabled(models.ChannelPush))
}

func TestDelete_OwnerScoped(t *testing.T) {
	f := newFixture(t)
	f.email.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.Dispatch(f.ctx, f.dispatchReq(models.ChannelEmail))
	require.NoError(t, err)

	err = f.svc.Delete(f.ctx, result.NotificationID, id.UserID(uuid.New()))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	require.NoError(t, f.svc.Delete(f.ctx, result.NotificationID, f.user.ID))
	list, err := f.svc.List(f.ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDispatch_RecordsAuditTrail(t *testing.T) {
	f := newFixture(t)
	auditStore := auditmem.NewInMemoryStore()
	f.svc.audit = publisher.NewPublisher(auditStore, publisher.WithLogger(slog.New(slog.DiscardHandler)))
	f.email.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.Dispatch(f.ctx, f.dispatchReq(models.ChannelEmail))
	require.NoError(t, err)

	events, err := auditStore.ListByUser(f.ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventNotificationDispatched), events[0].Action)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
	assert.Equal(t, result.NotificationID.String(), events[0].Subject)
	assert.Equal(t, "delivered", events[0].Decision)
	assert.Equal(t, f.now, events[0].Timestamp)
}

func TestUpdateSettings_RecordsAuditTrail(t *testing.T) {
	f := newFixture(t)
	auditStore := auditmem.NewInMemoryStore()
	f.svc.audit = publisher.NewPublisher(auditStore, publisher.WithLogger(slog.New(slog.DiscardHandler)))

	settings, err := f.svc.GetSettings(f.ctx, f.user.ID)
	require.NoError(t, err)
	settings.SMSEnabled = false
	_, err = f.svc.UpdateSettings(f.ctx, settings)
	require.NoError(t, err)

	events, err := auditStore.ListByUser(f.ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventSettingsUpdated), events[0].Action)
}
