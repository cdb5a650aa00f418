package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// SubscriptionRepository is an in-memory chat.SubscriptionStore.
type SubscriptionRepository struct {
	mu    sync.RWMutex
	items map[string]chat.Subscription // endpoint -> subscription
}

// NewSubscriptionRepository builds an empty repository.
func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{items: make(map[string]chat.Subscription)}
}

// Save upserts by endpoint.
func (r *SubscriptionRepository) Save(ctx context.Context, sub chat.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	r.items[sub.Endpoint] = sub
	return nil
}

// ListByUser returns all subscriptions registered by a user.
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]chat.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chat.Subscription, 0)
	for _, sub := range r.items {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

// DeleteByEndpoint drops a subscription; unknown endpoints are a no-op.
func (r *SubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, endpoint)
	return nil
}

var _ chat.SubscriptionStore = (*SubscriptionRepository)(nil)
