package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/brainskev/houseListing2-sub000/internal/db"
	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// IUserService is the user directory the chat core reads staff and contacts from.
type IUserService interface {
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
	ListStaffIDs(ctx context.Context) ([]utils.SixID, error)
	ListStaff(ctx context.Context) ([]models.User, error)
}

type userService struct {
	db *mongo.Database
}

// NewUserService creates a new UserService.
func NewUserService(database *mongo.Database) IUserService {
	return &userService{db: database}
}

func staffFilter() bson.M {
	roles := make([]string, len(models.StaffRoles))
	for i, r := range models.StaffRoles {
		roles[i] = string(r)
	}
	return bson.M{"role": bson.M{"$in": roles}, "deleted": false}
}

// FindByID finds a non-deleted user by their ID.
// Returns mongo.ErrNoDocuments if not found.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	filter := bson.M{"_id": userID, "deleted": false}

	err := s.db.Collection(db.UsersCollection).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID.String(), err)
	}
	return &user, nil
}

// ListStaffIDs returns the ids of the current staff roster (admins and assistants).
func (s *userService) ListStaffIDs(ctx context.Context) ([]utils.SixID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := s.db.Collection(db.UsersCollection).Find(ctx, staffFilter(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query staff user IDs: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		ID utils.SixID `bson:"_id"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode staff user IDs: %w", err)
	}

	ids := make([]utils.SixID, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}
	return ids, nil
}

// ListStaff returns full staff records, used for notification addresses.
func (s *userService) ListStaff(ctx context.Context) ([]models.User, error) {
	cursor, err := s.db.Collection(db.UsersCollection).Find(ctx, staffFilter())
	if err != nil {
		return nil, fmt.Errorf("failed to query staff users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err = cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode staff users: %w", err)
	}
	return users, nil
}
