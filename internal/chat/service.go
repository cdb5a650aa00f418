package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Pagination bounds for FetchPage.
const (
	MinPageLimit = 1
	MaxPageLimit = 100
)

// Notifier hands a persisted message off to the background push-delivery
// pipeline. Implementations must return quickly; the actual delivery attempt
// and its retries run detached from the send path.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, conv *Conversation, msg *Message, senderName string) error
}

// EventPublisher emits domain events for downstream consumers, best-effort.
type EventPublisher interface {
	MessageCreated(ctx context.Context, conv *Conversation, msg *Message) error
}

// Service implements the logical operation contract over the stores.
// Push delivery and event publication never fail a send: once the message is
// persisted the caller sees success.
type Service struct {
	Conversations ConversationStore
	Messages      MessageStore
	Subscriptions SubscriptionStore
	Accountant    *Accountant
	Notifier      Notifier
	Events        EventPublisher
	Logger        *slog.Logger
}

// SendMessageInput carries one send request.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
}

// CreateOrGetConversation returns the thread between the caller and peer for
// a property, creating it on first contact.
func (s *Service) CreateOrGetConversation(ctx context.Context, userA, userB, propertyID, propertyTitle, propertyImage string) (*Conversation, error) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	propertyID = strings.TrimSpace(propertyID)
	if userA == "" || userB == "" || propertyID == "" {
		return nil, fmt.Errorf("%w: user ids and property id are required", ErrValidation)
	}
	if userA == userB {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}
	return s.Conversations.CreateOrGet(ctx, userA, userB, propertyID, propertyTitle, propertyImage)
}

// SendMessage persists the message, updates the conversation preview and
// hands off push delivery. Delivery problems are logged, never returned.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	conv, err := s.Conversations.ByID(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(in.SenderID) {
		return nil, fmt.Errorf("%w: sender is not a participant", ErrForbidden)
	}

	msg, err := s.Messages.Append(ctx, conv.ID, in.SenderID, content)
	if err != nil {
		return nil, err
	}
	if err := s.Conversations.UpdateLastMessage(ctx, conv.ID, msg); err != nil {
		s.logWarn("update last message failed", "error", err, "conversation_id", conv.ID)
	}
	if s.Notifier != nil {
		if err := s.Notifier.NotifyNewMessage(ctx, conv, msg, in.SenderName); err != nil {
			s.logWarn("push hand-off failed", "error", err, "conversation_id", conv.ID, "message_id", msg.ID)
		}
	}
	if s.Events != nil {
		if err := s.Events.MessageCreated(ctx, conv, msg); err != nil {
			s.logWarn("event publish failed", "error", err, "message_id", msg.ID)
		}
	}
	return msg, nil
}

// ListConversations returns the user's conversations newest-activity first,
// each enriched with message and unread counts.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	conversations, err := s.Conversations.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		total, err := s.Messages.CountForConversation(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		unread, err := s.Accountant.CountForConversation(ctx, conv.ID, userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ConversationSummary{
			Conversation: conv,
			MessageCount: total,
			UnreadCount:  unread,
		})
	}
	return summaries, nil
}

// ListMessages returns one page of history. The cursor-based window stays
// stable while newer messages keep arriving.
func (s *Service) ListMessages(ctx context.Context, conversationID, requesterID string, limit int, beforeCursor string) (Page, error) {
	if limit < MinPageLimit || limit > MaxPageLimit {
		return Page{}, fmt.Errorf("%w: limit must be between %d and %d", ErrValidation, MinPageLimit, MaxPageLimit)
	}
	conv, err := s.Conversations.ByID(ctx, conversationID)
	if err != nil {
		return Page{}, err
	}
	if !conv.HasParticipant(requesterID) {
		return Page{}, fmt.Errorf("%w: not a conversation participant", ErrForbidden)
	}
	return s.Messages.FetchPage(ctx, conv.ID, limit, beforeCursor)
}

// MarkConversationRead marks every message from the other participant as
// read. A repeated call affects zero rows.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	conv, err := s.Conversations.ByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return fmt.Errorf("%w: not a conversation participant", ErrForbidden)
	}
	affected, err := s.Messages.MarkRead(ctx, conv.ID, userID)
	if err != nil {
		return err
	}
	if affected > 0 {
		s.logDebug("conversation marked read", "conversation_id", conv.ID, "user_id", userID, "messages", affected)
	}
	return nil
}

// GetUnreadCount returns the badge total for a user.
func (s *Service) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.Accountant.CountForUser(ctx, userID)
}

// DeleteMessage removes a single message if the requester sent it.
func (s *Service) DeleteMessage(ctx context.Context, messageID, requesterID string) (bool, error) {
	return s.Messages.Delete(ctx, messageID, requesterID)
}

// DeleteConversation removes the conversation and all its messages. Messages
// go first so an interruption can only leave an empty conversation behind,
// never orphaned messages.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, requesterID string) (bool, error) {
	conv, err := s.Conversations.ByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !conv.HasParticipant(requesterID) {
		return false, fmt.Errorf("%w: not a conversation participant", ErrForbidden)
	}
	if err := s.Messages.DeleteAllForConversation(ctx, conv.ID); err != nil {
		return false, err
	}
	return s.Conversations.Delete(ctx, conv.ID)
}

// RegisterSubscription stores a push subscription for the user.
func (s *Service) RegisterSubscription(ctx context.Context, sub Subscription) error {
	if strings.TrimSpace(sub.UserID) == "" || strings.TrimSpace(sub.Endpoint) == "" {
		return fmt.Errorf("%w: user id and endpoint are required", ErrValidation)
	}
	return s.Subscriptions.Save(ctx, sub)
}

// UnregisterSubscription drops a push subscription by endpoint.
func (s *Service) UnregisterSubscription(ctx context.Context, endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrValidation)
	}
	return s.Subscriptions.DeleteByEndpoint(ctx, endpoint)
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.Logger != nil {
		s.Logger.Warn(msg, args...)
	}
}

func (s *Service) logDebug(msg string, args ...any) {
	if s.Logger != nil {
		s.Logger.Debug(msg, args...)
	}
}
