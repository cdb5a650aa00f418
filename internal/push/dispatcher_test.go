package push

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// scriptedSender replays one scripted outcome per attempt; the last entry
// repeats once the script runs out.
type scriptedSender struct {
	script []attemptOutcome
	calls  int
}

type attemptOutcome struct {
	status int
	err    error
}

func (s *scriptedSender) Push(ctx context.Context, sub chat.Subscription, body []byte) (int, error) {
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	out := s.script[idx]
	return out.status, out.err
}

func testSubscription() chat.Subscription {
	return chat.Subscription{
		UserID:   "user-b",
		Endpoint: "https://push.example.org/send/abc",
	}
}

func newTestDispatcher(sender *scriptedSender, slept *[]time.Duration) *Dispatcher {
	return &Dispatcher{
		Sender: sender,
		sleep: func(ctx context.Context, d time.Duration) error {
			if slept != nil {
				*slept = append(*slept, d)
			}
			return nil
		},
	}
}

func TestDeliver_SuccessFirstAttempt(t *testing.T) {
	sender := &scriptedSender{script: []attemptOutcome{{status: http.StatusCreated}}}
	d := newTestDispatcher(sender, nil)

	res := d.Deliver(context.Background(), testSubscription(), chat.PushPayload{Title: "hi"})
	if !res.Success || res.Attempts != 1 || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if sender.calls != 1 {
		t.Fatalf("expected 1 attempt, sender saw %d", sender.calls)
	}
}

func TestDeliver_PermanentFailureStopsImmediately(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrSubscriptionGone},
		{http.StatusGone, ErrSubscriptionGone},
		{http.StatusBadRequest, ErrSubscriptionInvalid},
		{http.StatusUnauthorized, ErrSubscriptionInvalid},
		{http.StatusForbidden, ErrSubscriptionInvalid},
	}
	for _, tc := range cases {
		sender := &scriptedSender{script: []attemptOutcome{{status: tc.status}}}
		var slept []time.Duration
		d := newTestDispatcher(sender, &slept)

		res := d.Deliver(context.Background(), testSubscription(), chat.PushPayload{})
		if !res.Permanent || res.Attempts != 1 {
			t.Fatalf("status %d: expected single permanent attempt, got %+v", tc.status, res)
		}
		if !errors.Is(res.Err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, res.Err)
		}
		if len(slept) != 0 {
			t.Fatalf("status %d: permanent failures must not back off", tc.status)
		}
	}
}

func TestDeliver_TransientRetriesWithGrowingBackoff(t *testing.T) {
	sender := &scriptedSender{script: []attemptOutcome{{status: http.StatusInternalServerError}}}
	var slept []time.Duration
	d := newTestDispatcher(sender, &slept)
	d.MaxRetries = 3
	d.BaseDelay = 100 * time.Millisecond

	res := d.Deliver(context.Background(), testSubscription(), chat.PushPayload{})
	if res.Success || res.Permanent {
		t.Fatalf("expected transient exhaustion, got %+v", res)
	}
	if res.Attempts != 4 || sender.calls != 4 {
		t.Fatalf("expected 4 attempts (1 + 3 retries), got %d attempts, %d sender calls", res.Attempts, sender.calls)
	}
	if res.Err == nil {
		t.Fatalf("exhausted delivery must surface the last error")
	}
	if len(slept) != 3 {
		t.Fatalf("expected 3 backoff sleeps, got %d", len(slept))
	}
	for i, d := range slept {
		lower := 100 * time.Millisecond << uint(i)
		upper := lower + lower/2
		if d < lower || d > upper {
			t.Fatalf("sleep %d = %v, want within [%v, %v]", i, d, lower, upper)
		}
	}
}

func TestDeliver_TransportErrorIsTransient(t *testing.T) {
	dialErr := errors.New("dial tcp: connection refused")
	sender := &scriptedSender{script: []attemptOutcome{
		{err: dialErr},
		{status: http.StatusOK},
	}}
	d := newTestDispatcher(sender, nil)

	res := d.Deliver(context.Background(), testSubscription(), chat.PushPayload{})
	if !res.Success || res.Attempts != 2 {
		t.Fatalf("expected success on second attempt, got %+v", res)
	}
}

func TestDeliver_ContextCancelAbortsRetryLoop(t *testing.T) {
	sender := &scriptedSender{script: []attemptOutcome{{status: http.StatusServiceUnavailable}}}
	d := &Dispatcher{
		Sender: sender,
		sleep: func(ctx context.Context, _ time.Duration) error {
			return context.Canceled
		},
	}

	res := d.Deliver(context.Background(), testSubscription(), chat.PushPayload{})
	if res.Success || res.Permanent {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.Err)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected abort after first attempt, got %d", res.Attempts)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		err    error
		want   outcome
	}{
		{"200", http.StatusOK, nil, outcomeSuccess},
		{"201", http.StatusCreated, nil, outcomeSuccess},
		{"404", http.StatusNotFound, nil, outcomePermanent},
		{"410", http.StatusGone, nil, outcomePermanent},
		{"400", http.StatusBadRequest, nil, outcomePermanent},
		{"429", http.StatusTooManyRequests, nil, outcomeTransient},
		{"500", http.StatusInternalServerError, nil, outcomeTransient},
		{"transport error", 0, errors.New("eof"), outcomeTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.status, tc.err); got != tc.want {
				t.Fatalf("classify(%d, %v) = %v, want %v", tc.status, tc.err, got, tc.want)
			}
		})
	}
}
