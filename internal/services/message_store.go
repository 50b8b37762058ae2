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

// IMessageStore is the append-only message log of enquiry conversations.
type IMessageStore interface {
	// Insert stores msg under its existing id. Re-inserting the same id is a no-op,
	// so callers may retry after an ambiguous failure.
	Insert(ctx context.Context, msg *models.Message) error
	ListByConversation(ctx context.Context, conversationID utils.SixID) ([]models.Message, error)
	// MarkAllRead adds userID to read_by on every message of the conversation lacking it.
	MarkAllRead(ctx context.Context, conversationID, userID utils.SixID) (int64, error)
}

type messageStore struct {
	db *mongo.Database
}

// NewMessageStore creates the MongoDB-backed message store.
func NewMessageStore(database *mongo.Database) IMessageStore {
	return &messageStore{db: database}
}

func (s *messageStore) collection() *mongo.Collection {
	return s.db.Collection(db.MessagesCollection)
}

func (s *messageStore) Insert(ctx context.Context, msg *models.Message) error {
	msg.GenIDIfEmpty()
	_, err := s.collection().InsertOne(ctx, msg)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			// An earlier attempt landed but its acknowledgement was lost.
			return nil
		}
		return fmt.Errorf("failed to insert message into conversation %s: %w", msg.ConversationID.String(), err)
	}
	return nil
}

func (s *messageStore) ListByConversation(ctx context.Context, conversationID utils.SixID) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.collection().Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of conversation %s: %w", conversationID.String(), err)
	}
	defer cursor.Close(ctx)

	messages := []models.Message{}
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

func (s *messageStore) MarkAllRead(ctx context.Context, conversationID, userID utils.SixID) (int64, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"read_by":         bson.M{"$ne": userID},
	}
	res, err := s.collection().UpdateMany(ctx, filter, bson.M{"$addToSet": bson.M{"read_by": userID}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages of conversation %s read: %w", conversationID.String(), err)
	}
	return res.ModifiedCount, nil
}
