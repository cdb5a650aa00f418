package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// ConversationRepository is an in-memory chat.ConversationStore used by
// tests and the memory storage mode.
type ConversationRepository struct {
	mu    sync.RWMutex
	items map[string]*chat.Conversation
	// pairIndex maps "a|b|propertyID" to the conversation id so CreateOrGet
	// stays atomic under the single repository lock.
	pairIndex map[string]string
}

// NewConversationRepository builds an empty repository.
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		items:     make(map[string]*chat.Conversation),
		pairIndex: make(map[string]string),
	}
}

func pairKey(pair []string, propertyID string) string {
	return strings.Join(pair, "|") + "|" + propertyID
}

// CreateOrGet returns the existing thread for the pair+property or inserts a
// new one while holding the lock, so concurrent first-contact sends converge
// on one record.
func (r *ConversationRepository) CreateOrGet(ctx context.Context, userA, userB, propertyID, propertyTitle, propertyImage string) (*chat.Conversation, error) {
	pair := chat.ParticipantPair(userA, userB)
	key := pairKey(pair, propertyID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.pairIndex[key]; ok {
		return cloneConversation(r.items[id]), nil
	}
	now := time.Now().UTC()
	conv := &chat.Conversation{
		ID:            uuid.NewString(),
		Participants:  pair,
		PropertyID:    propertyID,
		PropertyTitle: propertyTitle,
		PropertyImage: propertyImage,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.items[conv.ID] = conv
	r.pairIndex[key] = conv.ID
	return cloneConversation(conv), nil
}

// ByID returns a conversation or chat.ErrNotFound.
func (r *ConversationRepository) ByID(ctx context.Context, id string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, id)
	}
	return cloneConversation(conv), nil
}

// ListByParticipant returns the user's conversations sorted by updatedAt descending.
func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]chat.Conversation, error) {
	r.mu.RLock()
	out := make([]chat.Conversation, 0)
	for _, conv := range r.items {
		if conv.HasParticipant(userID) {
			out = append(out, *cloneConversation(conv))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// UpdateLastMessage overwrites the preview and bumps updatedAt; a missing
// conversation is a no-op.
func (r *ConversationRepository) UpdateLastMessage(ctx context.Context, conversationID string, msg *chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[conversationID]
	if !ok {
		return nil
	}
	copied := *msg
	conv.LastMessage = &copied
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

// Delete removes the record and reports whether it existed.
func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[conversationID]
	if !ok {
		return false, nil
	}
	delete(r.items, conversationID)
	delete(r.pairIndex, pairKey(conv.Participants, conv.PropertyID))
	return true, nil
}

func cloneConversation(conv *chat.Conversation) *chat.Conversation {
	copied := *conv
	copied.Participants = append([]string(nil), conv.Participants...)
	if conv.LastMessage != nil {
		last := *conv.LastMessage
		copied.LastMessage = &last
	}
	return &copied
}

var _ chat.ConversationStore = (*ConversationRepository)(nil)
