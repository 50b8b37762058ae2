package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Collection names shared by the stores.
const (
	ConversationsCollection  = "enquiries"
	MessagesCollection       = "enquiry_messages"
	DirectMessagesCollection = "messages"
	UsersCollection          = "users"
	PropertiesCollection     = "properties"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string, log *zap.Logger) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info("connected to MongoDB", zap.String("database", dbName))
	return client, client.Database(dbName), nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client, log *zap.Logger) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	log.Info("MongoDB connection closed")
	return nil
}

// EnsureIndexes creates the indexes the chat core relies on. The unique
// (property_id, created_by) index is what resolves concurrent enquiry creation.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		ConversationsCollection: {
			{
				Keys:    bson.D{{Key: "property_id", Value: 1}, {Key: "created_by", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("property_creator_unique"),
			},
			{
				Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}},
				Options: options.Index().SetName("participants_last_message"),
			},
			{
				Keys:    bson.D{{Key: "last_message_at", Value: -1}},
				Options: options.Index().SetName("last_message"),
			},
		},
		MessagesCollection: {
			{
				Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
				Options: options.Index().SetName("conversation_created"),
			},
		},
		DirectMessagesCollection: {
			{
				Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("recipient_created"),
			},
			{
				Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("sender_created"),
			},
		},
	}

	for collection, models := range specs {
		if _, err := database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
