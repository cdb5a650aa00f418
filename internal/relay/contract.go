// Package relay models the recipient-side of the messaging pipeline: fanning
// a delivered push out to every live client session of a user and routing
// notification clicks back to the right conversation view.
//
// The event contract is intentionally a closed set; clients reject anything
// outside it.
package relay

import (
	"errors"
	"fmt"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// Event types (wire-stable).
const (
	// EventNewMessage announces a freshly delivered message to open sessions.
	EventNewMessage = "NEW_MESSAGE"
	// EventOpenConversation asks an open messages view to switch conversations.
	EventOpenConversation = "OPEN_CONVERSATION"
)

// Event is the client-relay bus envelope.
type Event struct {
	Type           string        `json:"type"`
	ConversationID string        `json:"conversationId"`
	Message        *chat.Message `json:"message,omitempty"`
}

// Validate performs strict structural validation.
func (e Event) Validate() error {
	if e.ConversationID == "" {
		return errors.New("missing conversationId")
	}
	switch e.Type {
	case EventNewMessage:
		if e.Message == nil {
			return errors.New("NEW_MESSAGE requires a message")
		}
		return nil
	case EventOpenConversation:
		return nil
	case "":
		return errors.New("missing type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// NewMessageEvent builds the announcement for a delivered message.
func NewMessageEvent(conversationID string, msg chat.Message) Event {
	return Event{Type: EventNewMessage, ConversationID: conversationID, Message: &msg}
}

// OpenConversationEvent builds the deep-link routing event.
func OpenConversationEvent(conversationID string) Event {
	return Event{Type: EventOpenConversation, ConversationID: conversationID}
}
