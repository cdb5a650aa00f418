package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vyktorion/pwa-sub000/internal/chat"
)

// ConversationRepository persists conversations in the "conversations"
// collection. The unique (pair_key, property_id) index plus an upsert makes
// CreateOrGet a single atomic find-or-create.
type ConversationRepository struct {
	col *mongo.Collection
}

// NewConversationRepository builds the repository on a database handle.
func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection("conversations")}
}

// EnsureIndexes creates the uniqueness and sort indexes. Call once at startup.
func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}, {Key: "property_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	})
	return err
}

// CreateOrGet upserts on the unique pair+property key. When two callers race
// on first contact, the conditional insert lets exactly one document win and
// both callers read that winner back.
func (r *ConversationRepository) CreateOrGet(ctx context.Context, userA, userB, propertyID, propertyTitle, propertyImage string) (*chat.Conversation, error) {
	pair := chat.ParticipantPair(userA, userB)
	now := time.Now().UTC().UnixMilli()
	doc := conversationDocument{
		ID:            uuid.NewString(),
		PairKey:       strings.Join(pair, "|"),
		Participants:  pair,
		PropertyID:    propertyID,
		PropertyTitle: propertyTitle,
		PropertyImage: propertyImage,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	filter := bson.M{"pair_key": doc.PairKey, "property_id": propertyID}
	update := bson.M{"$setOnInsert": doc}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored conversationDocument
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return nil, fmt.Errorf("create or get conversation: %w", err)
	}
	return stored.toDomain(), nil
}

// ByID loads one conversation.
func (r *ConversationRepository) ByID(ctx context.Context, id string) (*chat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, id)
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

// ListByParticipant returns the user's conversations, latest activity first.
func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]chat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]chat.Conversation, 0)
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toDomain())
	}
	return out, cursor.Err()
}

// UpdateLastMessage overwrites the denormalized preview and bumps updatedAt.
// Zero matches means the conversation was deleted concurrently; not an error.
func (r *ConversationRepository) UpdateLastMessage(ctx context.Context, conversationID string, msg *chat.Message) error {
	update := bson.M{"$set": bson.M{
		"last_message": newMessageDocument(msg),
		"updated_at":   msg.CreatedAt.UnixMilli(),
	}}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": conversationID}, update)
	return err
}

// Delete removes the conversation record.
func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": conversationID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

var _ chat.ConversationStore = (*ConversationRepository)(nil)
