package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cadastra/internal/platform/kafka"
	id "cadastra/pkg/domain"
	audit "cadastra/pkg/platform/audit"
	"cadastra/pkg/platform/audit/sink"
)

// EventsStore is the idempotent write surface the handler needs.
type EventsStore interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// EventsHandler materializes audit events into storage. Malformed messages
// are logged and committed; they would never parse on redelivery either.
type EventsHandler struct {
	store  EventsStore
	logger *slog.Logger
}

func NewEventsHandler(store EventsStore, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{store: store, logger: logger}
}

func (h *EventsHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	eventID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.Error("unparseable audit event key, skipping",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil
	}

	var payload sink.Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.Error("unparseable audit payload, skipping",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}

	event := audit.Event{
		Category:  audit.EventCategory(payload.Category),
		Subject:   payload.Subject,
		Action:    payload.Action,
		Decision:  payload.Decision,
		Reason:    payload.Reason,
		RequestID: payload.RequestID,
		ActorID:   payload.ActorID,
		ClientIP:  payload.ClientIP,
		Platform:  payload.Platform,
	}
	if ts, err := time.Parse(time.RFC3339Nano, payload.Timestamp); err == nil {
		event.Timestamp = ts
	} else {
		event.Timestamp = msg.Timestamp
	}
	if payload.UserID != "" {
		userID, err := uuid.Parse(payload.UserID)
		if err != nil {
			h.logger.Error("unparseable audit user ID, skipping",
				"event_id", eventID,
				"user_id", payload.UserID,
			)
			return nil
		}
		event.UserID = id.UserID(userID)
	}

	return h.store.AppendWithID(ctx, eventID, event)
}
