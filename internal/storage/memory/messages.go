package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// MessageRepository is an in-memory chat.MessageStore.
type MessageRepository struct {
	mu     sync.RWMutex
	items  map[string]*chat.Message // message id -> message
	byConv map[string][]string      // conversation id -> message ids, append order
	lastAt time.Time
}

// NewMessageRepository builds an empty repository.
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		items:  make(map[string]*chat.Message),
		byConv: make(map[string][]string),
	}
}

// Append inserts an unread message. Timestamps are kept strictly increasing
// so the (createdAt, id) total order matches append order.
func (r *MessageRepository) Append(ctx context.Context, conversationID, senderID, content string) (*chat.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", chat.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(r.lastAt) {
		now = r.lastAt.Add(time.Microsecond)
	}
	r.lastAt = now
	msg := &chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Read:           false,
		CreatedAt:      now,
	}
	r.items[msg.ID] = msg
	r.byConv[conversationID] = append(r.byConv[conversationID], msg.ID)
	copied := *msg
	return &copied, nil
}

// FetchPage returns the limit newest messages older than the cursor, in
// ascending order. The cursor pins the window to an existing row, so
// concurrent appends of newer messages never shift already-fetched pages.
func (r *MessageRepository) FetchPage(ctx context.Context, conversationID string, limit int, beforeCursor string) (chat.Page, error) {
	if limit < chat.MinPageLimit || limit > chat.MaxPageLimit {
		return chat.Page{}, fmt.Errorf("%w: limit out of range", chat.ErrValidation)
	}
	r.mu.RLock()
	ordered := r.orderedLocked(conversationID)
	r.mu.RUnlock()

	end := len(ordered)
	if beforeCursor != "" {
		end = -1
		for i, msg := range ordered {
			if msg.ID == beforeCursor {
				end = i
				break
			}
		}
		if end < 0 {
			return chat.Page{}, fmt.Errorf("%w: unknown cursor", chat.ErrValidation)
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	page := chat.Page{
		Messages: append([]chat.Message(nil), ordered[start:end]...),
		HasMore:  start > 0,
	}
	if len(page.Messages) > 0 {
		page.NextCursor = page.Messages[0].ID
	}
	return page, nil
}

// MarkRead flips unread messages from other senders and reports how many changed.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for _, id := range r.byConv[conversationID] {
		msg := r.items[id]
		if msg.SenderID != readerID && !msg.Read {
			msg.Read = true
			affected++
		}
	}
	return affected, nil
}

// Delete removes a message when requested by its sender.
func (r *MessageRepository) Delete(ctx context.Context, messageID, requesterID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.items[messageID]
	if !ok {
		return false, fmt.Errorf("%w: message %s", chat.ErrNotFound, messageID)
	}
	if msg.SenderID != requesterID {
		return false, fmt.Errorf("%w: only the sender may delete a message", chat.ErrForbidden)
	}
	delete(r.items, messageID)
	ids := r.byConv[msg.ConversationID]
	for i, id := range ids {
		if id == messageID {
			r.byConv[msg.ConversationID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return true, nil
}

// DeleteAllForConversation bulk-deletes a conversation's messages.
func (r *MessageRepository) DeleteAllForConversation(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.byConv[conversationID] {
		delete(r.items, id)
	}
	delete(r.byConv, conversationID)
	return nil
}

// CountForConversation returns the total number of messages in a conversation.
func (r *MessageRepository) CountForConversation(ctx context.Context, conversationID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byConv[conversationID])), nil
}

// CountUnread counts unread messages addressed to readerID within the window.
func (r *MessageRepository) CountUnread(ctx context.Context, conversationIDs []string, readerID string, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, convID := range conversationIDs {
		for _, id := range r.byConv[convID] {
			msg := r.items[id]
			if msg.SenderID == readerID || msg.Read {
				continue
			}
			if msg.CreatedAt.Before(since) {
				continue
			}
			count++
		}
	}
	return count, nil
}

func (r *MessageRepository) orderedLocked(conversationID string) []chat.Message {
	ids := r.byConv[conversationID]
	out := make([]chat.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.items[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

var _ chat.MessageStore = (*MessageRepository)(nil)
