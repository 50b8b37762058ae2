package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/brainskev/houseListing2-sub000/internal/db"
	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// IDirectMessageStore reads the legacy owner-to-user messages. Writes happen elsewhere.
type IDirectMessageStore interface {
	ListForUser(ctx context.Context, userID utils.SixID, limit int) ([]models.DirectMessage, error)
}

type directMessageStore struct {
	db *mongo.Database
}

func NewDirectMessageStore(database *mongo.Database) IDirectMessageStore {
	return &directMessageStore{db: database}
}

// ListForUser returns messages the user sent or received, newest first.
func (s *directMessageStore) ListForUser(ctx context.Context, userID utils.SixID, limit int) ([]models.DirectMessage, error) {
	filter := bson.M{"$or": []bson.M{
		{"recipient_id": userID},
		{"sender_id": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(db.DirectMessagesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list direct messages for user %s: %w", userID.String(), err)
	}
	defer cursor.Close(ctx)

	messages := []models.DirectMessage{}
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode direct messages: %w", err)
	}
	return messages, nil
}
