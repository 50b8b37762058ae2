package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/brainskev/houseListing2-sub000/internal/db"
	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// IConversationStore persists enquiry conversations. Every mutating method is a single
// atomic document update; none of them read counters, modify in memory and write back.
type IConversationStore interface {
	FindByID(ctx context.Context, conversationID utils.SixID) (*models.Conversation, error)
	FindByPropertyAndCreator(ctx context.Context, propertyID *utils.SixID, createdBy utils.SixID) (*models.Conversation, error)
	// Insert stores a new conversation. Returns ErrConflict when one already exists for
	// the same (property, creator) pair.
	Insert(ctx context.Context, conv *models.Conversation) error
	// ApplyMessage records a message from senderID in one update: +1 for every other
	// participant as stored at write time, 0 for the sender, sender added to
	// participants, last_message_at advanced. The returned document is the state right
	// after the update, so its participants minus the sender are exactly the users
	// whose counters were incremented.
	ApplyMessage(ctx context.Context, conversationID, senderID utils.SixID, at time.Time) (*models.Conversation, error)
	// RevertMessage undoes the recipient increments of an ApplyMessage whose message
	// could not be persisted. Counters never drop below zero.
	RevertMessage(ctx context.Context, conversationID utils.SixID, recipients []utils.SixID) error
	// MarkRead adds userID to participants and zeroes their counter.
	MarkRead(ctx context.Context, conversationID, userID utils.SixID) (*models.Conversation, error)
	// ListForUser lists summaries by last_message_at desc. A nil participant lists all.
	ListForUser(ctx context.Context, participant *utils.SixID, limit int) ([]models.ConversationSummary, error)
}

const creatorIndexName = "property_creator_unique"

type conversationStore struct {
	db *mongo.Database
}

// NewConversationStore creates the MongoDB-backed conversation store.
func NewConversationStore(database *mongo.Database) IConversationStore {
	return &conversationStore{db: database}
}

func (s *conversationStore) collection() *mongo.Collection {
	return s.db.Collection(db.ConversationsCollection)
}

func unreadKey(userID utils.SixID) string {
	return "unread_count_by_user." + userID.String()
}

func (s *conversationStore) FindByID(ctx context.Context, conversationID utils.SixID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.collection().FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID.String())
		}
		return nil, fmt.Errorf("error finding conversation %s: %w", conversationID.String(), err)
	}
	return &conv, nil
}

func (s *conversationStore) FindByPropertyAndCreator(ctx context.Context, propertyID *utils.SixID, createdBy utils.SixID) (*models.Conversation, error) {
	// A nil property matches the creator's general enquiry (stored as null).
	filter := bson.M{"property_id": propertyID, "created_by": createdBy}

	var conv models.Conversation
	err := s.collection().FindOne(ctx, filter).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: no conversation for creator %s", ErrNotFound, createdBy.String())
		}
		return nil, fmt.Errorf("error finding conversation for creator %s: %w", createdBy.String(), err)
	}
	return &conv, nil
}

func isCreatorConflict(err error) bool {
	return db.IsMongoDuplicateKeyError(err) && strings.Contains(err.Error(), creatorIndexName)
}

func (s *conversationStore) Insert(ctx context.Context, conv *models.Conversation) error {
	if conv.UnreadCountByUser == nil {
		conv.UnreadCountByUser = models.UnreadCounts{}
	}
	// Every participant carries a counter; ApplyMessage increments by counter key.
	for _, p := range conv.Participants {
		if _, ok := conv.UnreadCountByUser[p.String()]; !ok {
			conv.UnreadCountByUser[p.String()] = 0
		}
	}
	// Retry only on _id collisions, regenerating the id each attempt.
	operation := func() error {
		conv.ID = utils.NewSixID()
		_, err := s.collection().InsertOne(ctx, conv)
		return err
	}
	err := db.WithRetries(operation, db.DefaultMaxRetries, func(err error) bool {
		return db.IsMongoDuplicateKeyError(err) && !isCreatorConflict(err)
	})
	if err != nil {
		if isCreatorConflict(err) {
			return fmt.Errorf("%w: conversation already exists for creator %s", ErrConflict, conv.CreatedBy.String())
		}
		return fmt.Errorf("error inserting conversation for creator %s: %w", conv.CreatedBy.String(), err)
	}
	return nil
}

// applyMessagePipeline bumps every counter except the sender's and adds the sender to
// participants. All fields are computed from the same stored document.
func applyMessagePipeline(senderID utils.SixID, at time.Time) mongo.Pipeline {
	counters := bson.M{"$ifNull": bson.A{"$unread_count_by_user", bson.M{}}}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"unread_count_by_user": bson.M{"$mergeObjects": bson.A{
				bson.M{"$arrayToObject": bson.M{"$map": bson.M{
					"input": bson.M{"$objectToArray": counters},
					"as":    "c",
					"in":    bson.M{"k": "$$c.k", "v": bson.M{"$add": bson.A{"$$c.v", 1}}},
				}}},
				bson.M{senderID.String(): bson.M{"$literal": 0}},
			}},
			"participants": bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{senderID, "$participants"}},
				"$participants",
				bson.M{"$concatArrays": bson.A{"$participants", bson.A{senderID}}},
			}},
			"last_message_at": bson.M{"$max": bson.A{"$last_message_at", at}},
		}}},
	}
}

func (s *conversationStore) ApplyMessage(ctx context.Context, conversationID, senderID utils.SixID, at time.Time) (*models.Conversation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Conversation
	err := s.collection().FindOneAndUpdate(ctx, bson.M{"_id": conversationID}, applyMessagePipeline(senderID, at), opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID.String())
		}
		return nil, fmt.Errorf("failed to apply message to conversation %s: %w", conversationID.String(), err)
	}
	return &updated, nil
}

func (s *conversationStore) RevertMessage(ctx context.Context, conversationID utils.SixID, recipients []utils.SixID) error {
	var errs []error
	for _, r := range recipients {
		key := unreadKey(r)
		filter := bson.M{"_id": conversationID, key: bson.M{"$gt": 0}}
		if _, err := s.collection().UpdateOne(ctx, filter, bson.M{"$inc": bson.M{key: -1}}); err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", r.String(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to revert unread counters on conversation %s: %w", conversationID.String(), errors.Join(errs...))
	}
	return nil
}

func (s *conversationStore) MarkRead(ctx context.Context, conversationID, userID utils.SixID) (*models.Conversation, error) {
	update := bson.M{
		"$set":      bson.M{unreadKey(userID): 0},
		"$addToSet": bson.M{"participants": userID},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Conversation
	err := s.collection().FindOneAndUpdate(ctx, bson.M{"_id": conversationID}, update, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID.String())
		}
		return nil, fmt.Errorf("failed to mark conversation %s read: %w", conversationID.String(), err)
	}
	return &updated, nil
}

func (s *conversationStore) ListForUser(ctx context.Context, participant *utils.SixID, limit int) ([]models.ConversationSummary, error) {
	filter := bson.M{}
	if participant != nil {
		filter["participants"] = *participant
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetProjection(bson.M{
			"property_id":          1,
			"participants":         1,
			"unread_count_by_user": 1,
			"last_message_at":      1,
			"contact":              1,
			"created_by":           1,
		})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	summaries := []models.ConversationSummary{}
	if err = cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return summaries, nil
}
