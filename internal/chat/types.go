package chat

import (
	"sort"
	"strings"
	"time"
)

// Conversation is a two-party thread about a single property. The property
// fields are a snapshot taken at creation time and are not kept in sync.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	PropertyID    string    `json:"propertyId"`
	PropertyTitle string    `json:"propertyTitle,omitempty"`
	PropertyImage string    `json:"propertyImage,omitempty"`
	LastMessage   *Message  `json:"lastMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasParticipant reports whether id is one of the two participants.
func (c *Conversation) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not id, or "" when id is
// not part of the conversation.
func (c *Conversation) OtherParticipant(id string) string {
	if !c.HasParticipant(id) {
		return ""
	}
	for _, p := range c.Participants {
		if p != id {
			return p
		}
	}
	return ""
}

// Message is immutable once appended except for the read flag, which moves
// from false to true exactly once.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationSummary enriches a conversation for list rendering.
type ConversationSummary struct {
	Conversation
	MessageCount int64 `json:"messageCount"`
	UnreadCount  int64 `json:"unreadCount"`
}

// Page is one window of a conversation's history. Messages are in ascending
// createdAt order; NextCursor is the id of the oldest message in the page.
type Page struct {
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"hasMore"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// PushPayload is the wire shape delivered to a push endpoint.
type PushPayload struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
}

// Subscription is a registered Web Push endpoint for one user.
type Subscription struct {
	UserID    string           `json:"userId"`
	Endpoint  string           `json:"endpoint"`
	Keys      SubscriptionKeys `json:"keys"`
	CreatedAt time.Time        `json:"createdAt"`
}

// SubscriptionKeys carries the browser-generated encryption keys.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// ParticipantPair normalizes two user ids into the stored fixed pair:
// trimmed, deduplicated and sorted so lookups are order-independent.
func ParticipantPair(a, b string) []string {
	pair := []string{strings.TrimSpace(a), strings.TrimSpace(b)}
	sort.Strings(pair)
	return pair
}
