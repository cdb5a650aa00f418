package chat

import (
	"context"
	"time"
)

// DefaultUnreadWindow bounds how far back unread messages are counted.
const DefaultUnreadWindow = 30 * 24 * time.Hour

// Accountant computes unread totals from store state. It is strictly
// read-only and never touches the read flag itself.
type Accountant struct {
	Conversations ConversationStore
	Messages      MessageStore
	Window        time.Duration
	Now           func() time.Time
}

// CountForUser returns the total unread messages addressed to userID across
// all conversations the user participates in, within the retention window.
func (a *Accountant) CountForUser(ctx context.Context, userID string) (int64, error) {
	conversations, err := a.Conversations.ListByParticipant(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(conversations) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(conversations))
	for _, conv := range conversations {
		ids = append(ids, conv.ID)
	}
	return a.Messages.CountUnread(ctx, ids, userID, a.cutoff())
}

// CountForConversation is the same filter scoped to one conversation.
func (a *Accountant) CountForConversation(ctx context.Context, conversationID, userID string) (int64, error) {
	return a.Messages.CountUnread(ctx, []string{conversationID}, userID, a.cutoff())
}

func (a *Accountant) cutoff() time.Time {
	window := a.Window
	if window <= 0 {
		window = DefaultUnreadWindow
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return now().UTC().Add(-window)
}
