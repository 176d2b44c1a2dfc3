// Package sink publishes audit events to Kafka topics split by category so
// compliance and operations streams can carry different retention.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cadastra/internal/platform/kafka"
	audit "cadastra/pkg/platform/audit"
)

const (
	DefaultTopicPrefix = "cadastra.audit"

	TopicCompliance = DefaultTopicPrefix + ".compliance"
	TopicOperations = DefaultTopicPrefix + ".operations"
)

// Topics derives the per-category topic names from a prefix. An empty prefix
// yields the defaults.
func Topics(prefix string) (compliance, operations string) {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + ".compliance", prefix + ".operations"
}

// Payload is the wire form of an audit event. The consumer materializes it
// into the audit_events table keyed by the record key.
type Payload struct {
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Action    string `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

type Kafka struct {
	producer   *kafka.Producer
	compliance string
	operations string
}

func NewKafka(producer *kafka.Producer, topicPrefix string) *Kafka {
	compliance, operations := Topics(topicPrefix)
	return &Kafka{producer: producer, compliance: compliance, operations: operations}
}

// EnsureTopics creates both audit topics when missing.
func (k *Kafka) EnsureTopics(ctx context.Context) error {
	for _, topic := range []string{k.compliance, k.operations} {
		if err := k.producer.EnsureTopic(ctx, topic, 3, 1); err != nil {
			return err
		}
	}
	return nil
}

// Append publishes one event. The record key is a fresh event ID so the
// consumer's materialization stays idempotent on redelivery.
func (k *Kafka) Append(ctx context.Context, event audit.Event) error {
	payload := Payload{
		Category:  string(event.Category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
		ClientIP:  event.ClientIP,
		Platform:  event.Platform,
	}
	if !event.UserID.IsNil() {
		payload.UserID = event.UserID.String()
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	topic := k.operations
	if event.Category == audit.CategoryCompliance {
		topic = k.compliance
	}
	return k.producer.Publish(ctx, topic, []byte(uuid.New().String()), b)
}
