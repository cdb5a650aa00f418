package push

import (
	"context"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// WebPushSender sends to browser push endpoints using VAPID-signed requests.
type WebPushSender struct {
	Subscriber      string // contact URI required by the VAPID spec
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
}

// Push performs one Web Push request and returns the endpoint's status code.
func (s *WebPushSender) Push(ctx context.Context, sub chat.Subscription, body []byte) (int, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 60
	}
	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.Subscriber,
		VAPIDPublicKey:  s.VAPIDPublicKey,
		VAPIDPrivateKey: s.VAPIDPrivateKey,
		TTL:             ttl,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

var _ Sender = (*WebPushSender)(nil)
