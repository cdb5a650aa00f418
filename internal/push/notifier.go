package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vyktorion/pwa-sub000/internal/chat"
	"github.com/vyktorion/pwa-sub000/internal/queue"
)

const bodySnippetLimit = 120

// Notifier implements chat.Notifier. With a queue client it enqueues a
// delivery task; without one it runs the worker in a detached goroutine.
// Either way the send path returns before any endpoint is contacted.
type Notifier struct {
	Queue     queue.Client
	QueueName string
	Worker    *Worker
	Timeout   time.Duration // budget for detached in-process delivery
	Logger    *slog.Logger
}

// NotifyNewMessage hands the persisted message off for push delivery to the
// other participant.
func (n *Notifier) NotifyNewMessage(ctx context.Context, conv *chat.Conversation, msg *chat.Message, senderName string) error {
	recipient := conv.OtherParticipant(msg.SenderID)
	if recipient == "" {
		return nil
	}
	body, err := json.Marshal(deliverTaskPayload{
		UserID:  recipient,
		Payload: BuildPayload(conv, msg, senderName),
	})
	if err != nil {
		return fmt.Errorf("encode delivery task: %w", err)
	}

	if n.Queue != nil {
		_, err := n.Queue.Enqueue(ctx, queue.Task{Type: TaskDeliver, Payload: body}, queue.Options{Queue: n.QueueName})
		return err
	}
	if n.Worker == nil {
		return nil
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	go func() {
		// detached from the request context so retry backoff never holds
		// the send path open
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := n.Worker.HandleDeliver(ctx, queue.Task{Type: TaskDeliver, Payload: body}); err != nil && n.Logger != nil {
			n.Logger.Warn("in-process delivery failed", "error", err)
		}
	}()
	return nil
}

// BuildPayload assembles the notification the recipient client renders.
func BuildPayload(conv *chat.Conversation, msg *chat.Message, senderName string) chat.PushPayload {
	title := strings.TrimSpace(senderName)
	if title == "" {
		title = "New message"
	}
	return chat.PushPayload{
		Title:          title,
		Body:           snippet(msg.Content, bodySnippetLimit),
		ConversationID: conv.ID,
		SenderID:       msg.SenderID,
		SenderName:     senderName,
	}
}

func snippet(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}

var _ chat.Notifier = (*Notifier)(nil)
