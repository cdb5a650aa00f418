package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// SubscriptionRepository persists Web Push subscriptions keyed by endpoint.
type SubscriptionRepository struct {
	col *mongo.Collection
}

// NewSubscriptionRepository builds the repository on a database handle.
func NewSubscriptionRepository(db *mongo.Database) *SubscriptionRepository {
	return &SubscriptionRepository{col: db.Collection("push_subscriptions")}
}

// EnsureIndexes creates the per-user lookup index.
func (r *SubscriptionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	return err
}

// Save upserts by endpoint; re-registering from the same browser replaces keys.
func (r *SubscriptionRepository) Save(ctx context.Context, sub chat.Subscription) error {
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	doc := subscriptionDocument{
		Endpoint:  sub.Endpoint,
		UserID:    sub.UserID,
		P256dh:    sub.Keys.P256dh,
		Auth:      sub.Keys.Auth,
		CreatedAt: createdAt.UnixMilli(),
	}
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.Endpoint}, bson.M{"$set": doc}, opts)
	return err
}

// ListByUser returns all registered endpoints for a user.
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]chat.Subscription, error) {
	cursor, err := r.col.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]chat.Subscription, 0)
	for cursor.Next(ctx) {
		var doc subscriptionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

// DeleteByEndpoint drops a stale or unregistered subscription.
func (r *SubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": endpoint})
	return err
}

var _ chat.SubscriptionStore = (*SubscriptionRepository)(nil)
