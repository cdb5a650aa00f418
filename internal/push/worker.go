package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vyktorion/pwa-sub000/internal/chat"
	"github.com/vyktorion/pwa-sub000/internal/queue"
)

// TaskDeliver is the queue task type for one fan-out delivery.
const TaskDeliver = "push:deliver"

type deliverTaskPayload struct {
	UserID  string           `json:"userId"`
	Payload chat.PushPayload `json:"payload"`
}

// ArrivalSink receives payloads that reached at least one endpoint. The
// client relay hangs off this hook.
type ArrivalSink interface {
	OnPush(userID string, payload chat.PushPayload)
}

// Worker executes queued deliveries: it resolves the recipient's registered
// subscriptions, dispatches to each, and drops subscriptions that failed
// permanently.
type Worker struct {
	Subscriptions chat.SubscriptionStore
	Dispatcher    *Dispatcher
	Arrivals      ArrivalSink
	Logger        *slog.Logger
}

// Register binds the worker to the task server.
func (w *Worker) Register(srv queue.Server) {
	srv.Register(TaskDeliver, w.HandleDeliver)
}

// HandleDeliver is the queue handler for TaskDeliver.
func (w *Worker) HandleDeliver(ctx context.Context, t queue.Task) error {
	var p deliverTaskPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		// malformed payload would fail forever; drop it
		w.logWarn("discarding malformed delivery task", "error", err)
		return nil
	}
	return w.DeliverToUser(ctx, p.UserID, p.Payload)
}

// DeliverToUser fans one payload out to every endpoint the user registered.
// A user without subscriptions is a no-op. Delivery failures are logged and
// swallowed: the message itself is already durable.
func (w *Worker) DeliverToUser(ctx context.Context, userID string, payload chat.PushPayload) error {
	subs, err := w.Subscriptions.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	delivered := 0
	for _, sub := range subs {
		res := w.Dispatcher.Deliver(ctx, sub, payload)
		switch {
		case res.Success:
			delivered++
		case res.Permanent:
			// stale endpoint: drop it so future sends skip the attempt
			if err := w.Subscriptions.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				w.logWarn("drop stale subscription failed", "endpoint", sub.Endpoint, "error", err)
			} else {
				w.logInfo("stale subscription dropped", "endpoint", sub.Endpoint, "user_id", userID)
			}
			if errors.Is(res.Err, ErrSubscriptionInvalid) {
				w.logWarn("invalid subscription", "endpoint", sub.Endpoint, "error", res.Err)
			}
		default:
			w.logWarn("push delivery gave up", "endpoint", sub.Endpoint, "attempts", res.Attempts, "error", res.Err)
		}
	}
	if delivered > 0 && w.Arrivals != nil {
		w.Arrivals.OnPush(userID, payload)
	}
	return nil
}

func (w *Worker) logInfo(msg string, args ...any) {
	if w.Logger != nil {
		w.Logger.Info(msg, args...)
	}
}

func (w *Worker) logWarn(msg string, args ...any) {
	if w.Logger != nil {
		w.Logger.Warn(msg, args...)
	}
}
