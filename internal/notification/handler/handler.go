// Package handler exposes the notification HTTP surface: listing, read-state
// transitions, per-user settings and the reviewer-only dispatch endpoint.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cadastra/internal/notification/models"
	"cadastra/internal/notification/service"
	"cadastra/internal/transport/http/shared"
	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
	"cadastra/pkg/requestcontext"
)

// Service is the notification surface the handler needs.
type Service interface {
	Dispatch(ctx context.Context, req service.DispatchRequest) (models.DispatchResult, error)
	List(ctx context.Context, userID id.UserID) ([]*models.Notification, error)
	MarkRead(ctx context.Context, notifID id.NotificationID, userID id.UserID) error
	MarkAllRead(ctx context.Context, userID id.UserID) (int, error)
	Delete(ctx context.Context, notifID id.NotificationID, userID id.UserID) error
	GetSettings(ctx context.Context, userID id.UserID) (models.Settings, error)
	UpdateSettings(ctx context.Context, settings models.Settings) (models.Settings, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the notification routes. Auth middleware runs upstream.
func (h *Handler) Register(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/dispatch", h.handleDispatch)
		r.Post("/read-all", h.handleMarkAllRead)
		r.Post("/{notificationID}/read", h.handleMarkRead)
		r.Delete("/{notificationID}", h.handleDelete)
		r.Get("/settings", h.handleGetSettings)
		r.Put("/settings", h.handleUpdateSettings)
	})
}

type notificationResponse struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Data     map[string]string `json:"data,omitempty"`
	Channels []string          `json:"channels"`
	Read     bool              `json:"read"`
	SentAt   string            `json:"sent_at"`
	ReadAt   *string           `json:"read_at,omitempty"`
}

func toResponse(n *models.Notification) notificationResponse {
	channels := make([]string, len(n.Channels))
	for i, c := range n.Channels {
		channels[i] = string(c)
	}
	resp := notificationResponse{
		ID:       n.ID.String(),
		Type:     string(n.Type),
		Title:    n.Title,
		Message:  n.Message,
		Data:     n.Data,
		Channels: channels,
		Read:     n.Read,
		SentAt:   n.SentAt.UTC().Format(time.RFC3339),
	}
	if n.ReadAt != nil {
		readAt := n.ReadAt.UTC().Format(time.RFC3339)
		resp.ReadAt = &readAt
	}
	return resp
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := requestcontext.UserID(r.Context())

	list, err := h.service.List(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toResponse(n))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

type dispatchRequest struct {
	UserID   string            `json:"user_id"`
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Data     map[string]string `json:"data"`
	Channels []string          `json:"channels"`
}

// handleDispatch lets back-office tooling send a notification directly.
// Restricted to reviewer roles; citizens only ever receive.
func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if !requestcontext.Role(r.Context()).IsReviewer() {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "dispatch requires a reviewer role"))
		return
	}

	var body dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	userID, err := id.ParseUserID(body.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	channels := make([]models.Channel, 0, len(body.Channels))
	for _, raw := range body.Channels {
		c, err := models.ParseChannel(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		channels = append(channels, c)
	}

	result, err := h.service.Dispatch(r.Context(), service.DispatchRequest{
		UserID:   userID,
		Type:     models.Type(body.Type),
		Title:    body.Title,
		Message:  body.Message,
		Data:     body.Data,
		Channels: channels,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	notifID, err := id.ParseNotificationID(chi.URLParam(r, "notificationID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.service.MarkRead(r.Context(), notifID, requestcontext.UserID(r.Context())); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.MarkAllRead(r.Context(), requestcontext.UserID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{"marked_read": count})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	notifID, err := id.ParseNotificationID(chi.URLParam(r, "notificationID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), notifID, requestcontext.UserID(r.Context())); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingsPayload struct {
	SMSEnabled         bool `json:"sms_enabled"`
	EmailEnabled       bool `json:"email_enabled"`
	PushEnabled        bool `json:"push_enabled"`
	ApplicationUpdates bool `json:"application_updates"`
	PaymentUpdates     bool `json:"payment_updates"`
	SurveyUpdates      bool `json:"survey_updates"`
	TitleUpdates       bool `json:"title_updates"`
	MortgageUpdates    bool `json:"mortgage_updates"`
}

func settingsToPayload(s models.Settings) settingsPayload {
	return settingsPayload{
		SMSEnabled:         s.SMSEnabled,
		EmailEnabled:       s.EmailEnabled,
		PushEnabled:        s.PushEnabled,
		ApplicationUpdates: s.ApplicationUpdates,
		PaymentUpdates:     s.PaymentUpdates,
		SurveyUpdates:      s.SurveyUpdates,
		TitleUpdates:       s.TitleUpdates,
		MortgageUpdates:    s.MortgageUpdates,
	}
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context(), requestcontext.UserID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, settingsToPayload(settings))
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	userID := requestcontext.UserID(r.Context())
	updated, err := h.service.UpdateSettings(r.Context(), models.Settings{
		UserID:             userID,
		SMSEnabled:         body.SMSEnabled,
		EmailEnabled:       body.EmailEnabled,
		PushEnabled:        body.PushEnabled,
		ApplicationUpdates: body.ApplicationUpdates,
		PaymentUpdates:     body.PaymentUpdates,
		SurveyUpdates:      body.SurveyUpdates,
		TitleUpdates:       body.TitleUpdates,
		MortgageUpdates:    body.MortgageUpdates,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, settingsToPayload(updated))
}
