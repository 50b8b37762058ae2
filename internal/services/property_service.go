package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/brainskev/houseListing2-sub000/internal/db"
	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// IPropertyService is the property lookup used to validate enquiry context.
type IPropertyService interface {
	FindPropertyByID(ctx context.Context, propertyID utils.SixID) (*models.Property, error)
}

type propertyService struct {
	db *mongo.Database
}

// NewPropertyService creates a new PropertyService.
func NewPropertyService(database *mongo.Database) IPropertyService {
	return &propertyService{db: database}
}

// FindPropertyByID finds a non-deleted property. Returns mongo.ErrNoDocuments if missing.
func (s *propertyService) FindPropertyByID(ctx context.Context, propertyID utils.SixID) (*models.Property, error) {
	var property models.Property
	filter := bson.M{"_id": propertyID, "deleted": false}

	err := s.db.Collection(db.PropertiesCollection).FindOne(ctx, filter).Decode(&property)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding property by ID %s: %w", propertyID.String(), err)
	}
	return &property, nil
}
