package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

const messageCreatedType = "chat.message.created"

// RecordWriter publishes one keyed record to a topic.
type RecordWriter interface {
	Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error
}

// Publisher emits CloudEvents-shaped chat events for downstream consumers
// (notification digests, analytics). Publication is best-effort: the caller
// logs failures and moves on.
type Publisher struct {
	Producer    RecordWriter
	TopicPrefix string
	Source      string
}

type messageCreatedData struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	PropertyID     string    `json:"propertyId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MessageCreated publishes one message-created event keyed by conversation.
func (p *Publisher) MessageCreated(ctx context.Context, conv *chat.Conversation, msg *chat.Message) error {
	data, err := json.Marshal(messageCreatedData{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		SenderID:       msg.SenderID,
		PropertyID:     conv.PropertyID,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		return err
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            messageCreatedType + ".v1",
		"source":          p.source(),
		"time":            msg.CreatedAt,
		"datacontenttype": "application/json",
		"data":            json.RawMessage(data),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%schat.events.v1", p.TopicPrefix)
	headers := map[string]string{"content-type": "application/cloudevents+json"}
	return p.Producer.Publish(ctx, topic, conv.ID, payload, headers)
}

func (p *Publisher) source() string {
	if p.Source != "" {
		return p.Source
	}
	return "app://marketplace-chat"
}

var _ chat.EventPublisher = (*Publisher)(nil)
