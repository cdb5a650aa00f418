package chat

import (
	"context"
	"time"
)

// ConversationStore owns conversation records. Only the store layer mutates
// persisted state; everything above it operates on the typed structs.
type ConversationStore interface {
	// CreateOrGet returns the existing conversation for the unordered
	// participant pair and property, creating it atomically when absent.
	// Concurrent calls with identical arguments resolve to a single record.
	CreateOrGet(ctx context.Context, userA, userB, propertyID, propertyTitle, propertyImage string) (*Conversation, error)
	ByID(ctx context.Context, id string) (*Conversation, error)
	// ListByParticipant returns the user's conversations sorted by updatedAt
	// descending. Enrichment (counts) happens above the store.
	ListByParticipant(ctx context.Context, userID string) ([]Conversation, error)
	// UpdateLastMessage overwrites the denormalized last message and bumps
	// updatedAt. A missing conversation is a silent no-op.
	UpdateLastMessage(ctx context.Context, conversationID string, msg *Message) error
	// Delete removes the conversation record and reports whether one existed.
	Delete(ctx context.Context, conversationID string) (bool, error)
}

// MessageStore owns message records.
type MessageStore interface {
	Append(ctx context.Context, conversationID, senderID, content string) (*Message, error)
	// FetchPage returns up to limit messages older than the cursor (all ids
	// when cursor is empty), ascending by createdAt with id tie-break.
	FetchPage(ctx context.Context, conversationID string, limit int, beforeCursor string) (Page, error)
	// MarkRead flips read=true on every unread message not sent by readerID
	// and returns the number of rows affected. Idempotent.
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
	// Delete removes a message. ErrForbidden unless requesterID is the sender.
	Delete(ctx context.Context, messageID, requesterID string) (bool, error)
	// DeleteAllForConversation bulk-deletes, used only by the cascade.
	DeleteAllForConversation(ctx context.Context, conversationID string) error
	CountForConversation(ctx context.Context, conversationID string) (int64, error)
	// CountUnread counts messages across the given conversations that were
	// not sent by readerID, are unread, and were created at or after since.
	CountUnread(ctx context.Context, conversationIDs []string, readerID string, since time.Time) (int64, error)
}

// SubscriptionStore persists Web Push subscriptions.
type SubscriptionStore interface {
	// Save upserts by endpoint so re-registration from the same browser does
	// not accumulate duplicates.
	Save(ctx context.Context, sub Subscription) error
	ListByUser(ctx context.Context, userID string) ([]Subscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}
