package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// MessageRepository persists messages in the "messages" collection.
type MessageRepository struct {
	col *mongo.Collection
}

// NewMessageRepository builds the repository on a database handle.
func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection("messages")}
}

// EnsureIndexes creates the pagination and unread-count indexes.
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "read", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	return err
}

// Append inserts an unread message stamped with the current time.
func (r *MessageRepository) Append(ctx context.Context, conversationID, senderID, content string) (*chat.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", chat.ErrValidation)
	}
	msg := &chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Read:           false,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := r.col.InsertOne(ctx, newMessageDocument(msg)); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	// normalize to stored precision so callers see what a re-read would see
	msg.CreatedAt = millisToTime(msg.CreatedAt.UnixMilli())
	return msg, nil
}

// FetchPage pages backwards through history. The cursor is the id of the
// oldest message the caller already holds; the window is defined relative to
// that row, so newer inserts never shift or duplicate older pages.
func (r *MessageRepository) FetchPage(ctx context.Context, conversationID string, limit int, beforeCursor string) (chat.Page, error) {
	if limit < chat.MinPageLimit || limit > chat.MaxPageLimit {
		return chat.Page{}, fmt.Errorf("%w: limit out of range", chat.ErrValidation)
	}
	filter := bson.M{"conversation_id": conversationID}
	if beforeCursor != "" {
		var anchor messageDocument
		err := r.col.FindOne(ctx, bson.M{"_id": beforeCursor, "conversation_id": conversationID}).Decode(&anchor)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return chat.Page{}, fmt.Errorf("%w: unknown cursor", chat.ErrValidation)
			}
			return chat.Page{}, err
		}
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$lt": anchor.CreatedAt}},
			bson.M{"created_at": anchor.CreatedAt, "_id": bson.M{"$lt": anchor.ID}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit + 1)) // one extra row decides hasMore
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return chat.Page{}, err
	}
	defer cursor.Close(ctx)

	descending := make([]chat.Message, 0, limit+1)
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return chat.Page{}, err
		}
		descending = append(descending, *doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return chat.Page{}, err
	}

	page := chat.Page{}
	if len(descending) > limit {
		page.HasMore = true
		descending = descending[:limit]
	}
	page.Messages = make([]chat.Message, len(descending))
	for i, msg := range descending {
		page.Messages[len(descending)-1-i] = msg
	}
	if len(page.Messages) > 0 {
		page.NextCursor = page.Messages[0].ID
	}
	return page, nil
}

// MarkRead is a single atomic multi-row update; a repeated call matches zero rows.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"conversation_id": conversationID, "sender_id": bson.M{"$ne": readerID}, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Delete removes a message if the requester is its sender.
func (r *MessageRepository) Delete(ctx context.Context, messageID, requesterID string) (bool, error) {
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": messageID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, fmt.Errorf("%w: message %s", chat.ErrNotFound, messageID)
		}
		return false, err
	}
	if doc.SenderID != requesterID {
		return false, fmt.Errorf("%w: only the sender may delete a message", chat.ErrForbidden)
	}
	// sender_id in the filter keeps the check-then-delete race harmless
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": messageID, "sender_id": requesterID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// DeleteAllForConversation bulk-deletes a conversation's messages.
func (r *MessageRepository) DeleteAllForConversation(ctx context.Context, conversationID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	return err
}

// CountForConversation returns the message total for one conversation.
func (r *MessageRepository) CountForConversation(ctx context.Context, conversationID string) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
}

// CountUnread counts unread messages addressed to readerID created at or
// after since, across the given conversations.
func (r *MessageRepository) CountUnread(ctx context.Context, conversationIDs []string, readerID string, since time.Time) (int64, error) {
	if len(conversationIDs) == 0 {
		return 0, nil
	}
	return r.col.CountDocuments(ctx, bson.M{
		"conversation_id": bson.M{"$in": conversationIDs},
		"sender_id":       bson.M{"$ne": readerID},
		"read":            false,
		"created_at":      bson.M{"$gte": since.UnixMilli()},
	})
}

var _ chat.MessageStore = (*MessageRepository)(nil)
