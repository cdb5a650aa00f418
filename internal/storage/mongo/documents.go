package mongo

import (
	"time"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// Persisted document shapes. Domain logic never sees these; the mapping
// functions below are the only storage boundary.

type conversationDocument struct {
	ID            string           `bson:"_id"`
	PairKey       string           `bson:"pair_key"`
	Participants  []string         `bson:"participants"`
	PropertyID    string           `bson:"property_id"`
	PropertyTitle string           `bson:"property_title,omitempty"`
	PropertyImage string           `bson:"property_image,omitempty"`
	LastMessage   *messageDocument `bson:"last_message,omitempty"`
	CreatedAt     int64            `bson:"created_at"`
	UpdatedAt     int64            `bson:"updated_at"`
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	Content        string `bson:"content"`
	Read           bool   `bson:"read"`
	CreatedAt      int64  `bson:"created_at"`
}

type subscriptionDocument struct {
	Endpoint  string `bson:"_id"`
	UserID    string `bson:"user_id"`
	P256dh    string `bson:"p256dh"`
	Auth      string `bson:"auth"`
	CreatedAt int64  `bson:"created_at"`
}

func (d conversationDocument) toDomain() *chat.Conversation {
	conv := &chat.Conversation{
		ID:            d.ID,
		Participants:  append([]string(nil), d.Participants...),
		PropertyID:    d.PropertyID,
		PropertyTitle: d.PropertyTitle,
		PropertyImage: d.PropertyImage,
		CreatedAt:     millisToTime(d.CreatedAt),
		UpdatedAt:     millisToTime(d.UpdatedAt),
	}
	if d.LastMessage != nil {
		conv.LastMessage = d.LastMessage.toDomain()
	}
	return conv
}

func (d messageDocument) toDomain() *chat.Message {
	return &chat.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		Read:           d.Read,
		CreatedAt:      millisToTime(d.CreatedAt),
	}
}

func newMessageDocument(m *chat.Message) *messageDocument {
	return &messageDocument{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
}

func (d subscriptionDocument) toDomain() chat.Subscription {
	return chat.Subscription{
		UserID:    d.UserID,
		Endpoint:  d.Endpoint,
		Keys:      chat.SubscriptionKeys{P256dh: d.P256dh, Auth: d.Auth},
		CreatedAt: millisToTime(d.CreatedAt),
	}
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
