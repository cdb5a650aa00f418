package relay

import (
	"log/slog"
	"time"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// DisplayMode tells the relay how the client is running; it only affects
// presentation, never delivery.
type DisplayMode string

const (
	// ModeStandalone is an installed app surface; audible cues are allowed.
	ModeStandalone DisplayMode = "standalone"
	// ModeBrowser is a plain tab; notifications stay silent.
	ModeBrowser DisplayMode = "browser"
)

// Notification is what the local surface renders.
type Notification struct {
	Title          string
	Body           string
	ConversationID string
}

// Presenter renders local notifications and cues.
type Presenter interface {
	ShowNotification(userID string, n Notification)
	PlayCue(userID string)
}

// ViewOpener opens a new messages view deep-linked to a conversation, used
// when no view is live to receive the routing event.
type ViewOpener interface {
	Open(userID, conversationID string)
}

// Relay reacts to delivered pushes: it fans a NEW_MESSAGE event out to every
// live session of the recipient and renders a local notification. A broadcast
// for a conversation the client no longer knows is a harmless no-op on the
// receiving side.
type Relay struct {
	Hub       *Hub
	Presenter Presenter
	Mode      DisplayMode
	Opener    ViewOpener
	Logger    *slog.Logger
}

// OnPush handles a payload that arrived at one of the user's push endpoints.
func (r *Relay) OnPush(userID string, payload chat.PushPayload) {
	ev := NewMessageEvent(payload.ConversationID, chat.Message{
		ConversationID: payload.ConversationID,
		SenderID:       payload.SenderID,
		Content:        payload.Body,
		CreatedAt:      time.Now().UTC(),
	})
	delivered := r.Hub.Broadcast(userID, ev)
	if r.Logger != nil {
		r.Logger.Debug("push relayed", "user_id", userID, "conversation_id", payload.ConversationID, "sessions", delivered)
	}

	if r.Presenter == nil {
		return
	}
	// visual notification is unconditional; the cue is a presentation policy
	r.Presenter.ShowNotification(userID, Notification{
		Title:          payload.Title,
		Body:           payload.Body,
		ConversationID: payload.ConversationID,
	})
	if r.Mode == ModeStandalone {
		r.Presenter.PlayCue(userID)
	}
}

// OnNotificationClick routes a notification activation: an already-open
// messages view receives OPEN_CONVERSATION and keeps focus; otherwise a new
// view is opened deep-linked to the conversation.
func (r *Relay) OnNotificationClick(userID, conversationID string) {
	if r.Hub.Broadcast(userID, OpenConversationEvent(conversationID)) > 0 {
		return
	}
	if r.Opener != nil {
		r.Opener.Open(userID, conversationID)
	}
}
