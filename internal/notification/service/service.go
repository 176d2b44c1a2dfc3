// Package service implements notification dispatch and read-state management.
//
// Dispatch persists one notification row per call before any delivery is
// attempted, then fans out to the requested channels concurrently. Channel
// failures degrade the result but never fail the dispatch; the row is the
// durable record either way.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"cadastra/internal/directory"
	"cadastra/internal/notification/models"
	"cadastra/internal/notification/store"
	"cadastra/internal/platform/metrics"
	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
	"cadastra/pkg/platform/audit"
	"cadastra/pkg/platform/sentinel"
	"cadastra/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// SMSSender delivers a short text message to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// EmailSender delivers a subject/body pair to an email address.
type EmailSender interface {
	Send(ctx context.Context, address, subject, body string) error
}

// PushSender delivers a push payload to a user's registered devices.
type PushSender interface {
	Send(ctx context.Context, userID id.UserID, title, message string, data map[string]string) error
}

// InAppPublisher pushes a stored notification to the user's live connections.
// Delivery is best effort; the persisted row is the in-app channel's record.
type InAppPublisher interface {
	Publish(userID id.UserID, n *models.Notification)
}

// Auditor records audit events. Emission is best effort and never fails the
// operation that triggered it.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DispatchRequest is the internal dispatch contract used by event sources
// and by the dispatch endpoint.
type DispatchRequest struct {
	UserID   id.UserID
	Type     models.Type
	Title    string
	Message  string
	Data     map[string]string
	Channels []models.Channel
}

// Service coordinates settings resolution, persistence and channel fan-out.
type Service struct {
	notifications store.NotificationStore
	settings      store.SettingsStore
	users         directory.Users

	sms   SMSSender
	email EmailSender
	push  PushSender
	inApp InAppPublisher
	audit Auditor

	channelTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

// Config carries Service dependencies. Nil adapters disable their channel
// with a failed outcome rather than panicking.
type Config struct {
	Notifications  store.NotificationStore
	Settings       store.SettingsStore
	Users          directory.Users
	SMS            SMSSender
	Email          EmailSender
	Push           PushSender
	InApp          InAppPublisher
	Audit          Auditor
	ChannelTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

func New(cfg Config) *Service {
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 5 * time.Second
	}
	return &Service{
		notifications:  cfg.Notifications,
		settings:       cfg.Settings,
		users:          cfg.Users,
		sms:            cfg.SMS,
		email:          cfg.Email,
		push:           cfg.Push,
		inApp:          cfg.InApp,
		audit:          cfg.Audit,
		channelTimeout: cfg.ChannelTimeout,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		tracer:         otel.Tracer("cadastra/notification"),
	}
}

// Dispatch validates the request, persists the notification row, then
// attempts delivery on every requested channel. The returned result maps each
// requested channel to its outcome; a channel disabled in the user's settings
// is reported as skipped, not failed.
func (s *Service) Dispatch(ctx context.Context, req DispatchRequest) (models.DispatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "notification.Dispatch",
		trace.WithAttributes(attribute.String("notification.type", string(req.Type))))
	defer span.End()

	if err := validateDispatch(req); err != nil {
		return models.DispatchResult{}, err
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.DispatchResult{}, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return models.DispatchResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "resolving user")
	}

	settings, err := s.settingsFor(ctx, req.UserID)
	if err != nil {
		return models.DispatchResult{}, err
	}

	n := &models.Notification{
		ID:       id.NotificationID(uuid.New()),
		UserID:   req.UserID,
		Type:     req.Type,
		Title:    req.Title,
		Message:  req.Message,
		Data:     req.Data,
		Channels: req.Channels,
		SentAt:   requestcontext.Now(ctx),
	}
	if err := s.notifications.Insert(ctx, n); err != nil {
		return models.DispatchResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "persisting notification")
	}
	s.metrics.IncNotificationsSent()

	result := models.DispatchResult{
		NotificationID: n.ID,
		Channels:       make(map[models.Channel]models.Outcome, len(req.Channels)),
	}

	var mu sync.Mutex
	record := func(c models.Channel, o models.Outcome) {
		mu.Lock()
		result.Channels[c] = o
		mu.Unlock()

		outcome := "sent"
		switch {
		case o.Sent:
		case o.Reason == models.ReasonDisabledInSettings:
			outcome = "skipped"
		default:
			outcome = "failed"
		}
		s.metrics.IncChannelDelivery(string(c), outcome)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range req.Channels {
		channel := c
		if !settings.ChannelEnabled(channel) {
			record(channel, models.Outcome{Sent: false, Reason: models.ReasonDisabledInSettings})
			continue
		}
		g.Go(func() error {
			record(channel, s.deliver(gctx, channel, user, n))
			return nil
		})
	}
	_ = g.Wait()

	if result.Degraded() {
		s.logger.WarnContext(ctx, "notification dispatch degraded",
			slog.String("notification_id", n.ID.String()),
			slog.String("type", string(n.Type)),
			slog.String("request_id", requestcontext.RequestID(ctx)),
		)
	}

	decision := "delivered"
	if result.Degraded() {
		decision = "degraded"
	}
	s.emitAudit(ctx, audit.Event{
		UserID:   n.UserID,
		Subject:  n.ID.String(),
		Action:   string(audit.EventNotificationDispatched),
		Decision: decision,
		Reason:   string(n.Type),
	})

	return result, nil
}

// emitAudit stamps request-scoped fields and hands the event to the auditor.
// A nil auditor disables emission.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.UserID(ctx).String()
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.Platform = requestcontext.Platform(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			slog.String("action", event.Action),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) deliver(ctx context.Context, c models.Channel, user directory.User, n *models.Notification) models.Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.channelTimeout)
	defer cancel()

	var err error
	switch c {
	case models.ChannelSMS:
		if s.sms == nil {
			err = errors.New("sms adapter not configured")
			break
		}
		err = s.sms.Send(ctx, user.Phone, n.Message)
	case models.ChannelEmail:
		if s.email == nil {
			err = errors.New("email adapter not configured")
			break
		}
		err = s.email.Send(ctx, user.Email, n.Title, n.Message)
	case models.ChannelPush:
		if s.push == nil {
			err = errors.New("push adapter not configured")
			break
		}
		err = s.push.Send(ctx, user.ID, n.Title, n.Message, n.Data)
	case models.ChannelInApp:
		if s.inApp != nil {
			s.inApp.Publish(user.ID, n)
		}
		// The stored row satisfies the in-app channel even with no live
		// connection to push to.
	default:
		err = fmt.Errorf("unknown channel %q", c)
	}

	if err != nil {
		s.logger.WarnContext(ctx, "channel delivery failed",
			slog.String("channel", string(c)),
			slog.String("notification_id", n.ID.String()),
			slog.String("error", err.Error()),
		)
		return models.Outcome{Sent: false, Reason: err.Error()}
	}
	return models.Outcome{Sent: true}
}

func validateDispatch(req DispatchRequest) error {
	if req.UserID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if !req.Type.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid notification type")
	}
	if req.Title == "" || req.Message == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "title and message are required")
	}
	if len(req.Channels) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one channel is required")
	}
	seen := make(map[models.Channel]bool, len(req.Channels))
	for _, c := range req.Channels {
		if !c.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid channel %q", c))
		}
		if seen[c] {
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("duplicate channel %q", c))
		}
		seen[c] = true
	}
	return nil
}

// settingsFor resolves the user's settings, creating the all-enabled default
// row on first access.
func (s *Service) settingsFor(ctx context.Context, userID id.UserID) (models.Settings, error) {
	settings, err := s.settings.Find(ctx, userID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return models.Settings{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading notification settings")
	}
	settings = models.DefaultSettings(userID, requestcontext.Now(ctx))
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return models.Settings{}, dErrors.Wrap(err, dErrors.CodeInternal, "creating default settings")
	}
	return settings, nil
}

// List returns the caller's notifications, newest first.
func (s *Service) List(ctx context.Context, userID id.UserID) ([]*models.Notification, error) {
	list, err := s.notifications.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing notifications")
	}
	return list, nil
}

// MarkRead marks one of the caller's notifications as read. Repeating the
// call is a no-op success.
func (s *Service) MarkRead(ctx context.Context, notifID id.NotificationID, userID id.UserID) error {
	err := s.notifications.MarkRead(ctx, notifID, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "notification not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marking notification read")
	}
	return nil
}

// MarkAllRead marks every unread notification for the caller, returning the
// number transitioned.
func (s *Service) MarkAllRead(ctx context.Context, userID id.UserID) (int, error) {
	count, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "marking notifications read")
	}
	return count, nil
}

// Delete removes one of the caller's notifications.
func (s *Service) Delete(ctx context.Context, notifID id.NotificationID, userID id.UserID) error {
	err := s.notifications.Delete(ctx, notifID, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "notification not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "deleting notification")
	}
	return nil
}

// GetSettings returns the user's settings, creating the default row on first
// access. Event sources use it to gate category-level dispatch; the settings
// endpoint serves it directly.
func (s *Service) GetSettings(ctx context.Context, userID id.UserID) (models.Settings, error) {
	return s.settingsFor(ctx, userID)
}

// UpdateSettings replaces the caller's settings row.
func (s *Service) UpdateSettings(ctx context.Context, settings models.Settings) (models.Settings, error) {
	settings.UpdatedAt = requestcontext.Now(ctx)
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return models.Settings{}, dErrors.Wrap(err, dErrors.CodeInternal, "saving notification settings")
	}
	s.emitAudit(ctx, audit.Event{
		UserID:  settings.UserID,
		Subject: settings.UserID.String(),
		Action:  string(audit.EventSettingsUpdated),
	})
	return settings, nil
}
