package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// Defaults for the retry loop.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

var (
	// ErrSubscriptionGone marks an endpoint that no longer exists; the
	// subscription should be dropped, never retried.
	ErrSubscriptionGone = errors.New("push: subscription gone")
	// ErrSubscriptionInvalid marks a malformed or unauthorized subscription.
	ErrSubscriptionInvalid = errors.New("push: subscription invalid")
)

// Sender performs exactly one delivery attempt and reports the endpoint's
// HTTP status. A transport-level failure returns a non-nil error.
type Sender interface {
	Push(ctx context.Context, sub chat.Subscription, body []byte) (int, error)
}

// Result describes the outcome of a Deliver call.
type Result struct {
	Success   bool
	Permanent bool
	Attempts  int
	Err       error
}

// Dispatcher delivers payloads to one push endpoint with bounded retries.
// Permanent failures (endpoint gone, expired or invalid) stop immediately;
// everything else backs off exponentially with jitter.
type Dispatcher struct {
	Sender     Sender
	MaxRetries int           // additional attempts after the first; 0 means DefaultMaxRetries
	BaseDelay  time.Duration // 0 means DefaultBaseDelay
	Logger     *slog.Logger

	// sleep is injected by tests; nil means a context-aware real sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// Deliver attempts delivery of payload to sub. It blocks for the duration of
// the retry loop and therefore must never run on a request path.
func (d *Dispatcher) Deliver(ctx context.Context, sub chat.Subscription, payload chat.PushPayload) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: fmt.Errorf("encode payload: %w", err)}
	}
	maxRetries := d.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	baseDelay := d.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		status, err := d.Sender.Push(ctx, sub, body)
		switch classify(status, err) {
		case outcomeSuccess:
			return Result{Success: true, Attempts: attempt + 1}
		case outcomePermanent:
			permErr := permanentError(status)
			d.logWarn("push delivery failed permanently", "endpoint", sub.Endpoint, "status", status)
			return Result{Permanent: true, Attempts: attempt + 1, Err: permErr}
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("push: endpoint returned status %d", status)
		}
		if attempt == maxRetries {
			return Result{Attempts: attempt + 1, Err: lastErr}
		}
		delay := backoff(baseDelay, attempt)
		d.logDebug("push delivery retry", "endpoint", sub.Endpoint, "attempt", attempt+1, "delay", delay, "error", lastErr)
		if err := d.doSleep(ctx, delay); err != nil {
			return Result{Attempts: attempt + 1, Err: err}
		}
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTransient
	outcomePermanent
)

func classify(status int, err error) outcome {
	if err != nil {
		// transport failure: endpoint may come back
		return outcomeTransient
	}
	switch {
	case status >= 200 && status < 300:
		return outcomeSuccess
	case status == http.StatusNotFound, status == http.StatusGone:
		return outcomePermanent
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return outcomePermanent
	default:
		return outcomeTransient
	}
}

func permanentError(status int) error {
	if status == http.StatusNotFound || status == http.StatusGone {
		return fmt.Errorf("%w (status %d)", ErrSubscriptionGone, status)
	}
	return fmt.Errorf("%w (status %d)", ErrSubscriptionInvalid, status)
}

// backoff returns base * 2^attempt plus up to 50% random jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	return delay + time.Duration(rand.Int63n(int64(delay)/2+1))
}

func (d *Dispatcher) doSleep(ctx context.Context, delay time.Duration) error {
	if d.sleep != nil {
		return d.sleep(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Dispatcher) logWarn(msg string, args ...any) {
	if d.Logger != nil {
		d.Logger.Warn(msg, args...)
	}
}

func (d *Dispatcher) logDebug(msg string, args ...any) {
	if d.Logger != nil {
		d.Logger.Debug(msg, args...)
	}
}
