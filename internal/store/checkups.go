package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harentsoaR/onlyfix-api/internal/models"
)

type CheckupStore struct {
	coll *mongo.Collection
}

func NewCheckupStore(db *mongo.Database) *CheckupStore {
	return &CheckupStore{coll: db.Collection(checkupsCollection)}
}

func (s *CheckupStore) Insert(ctx context.Context, c *models.Checkup) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.Images == nil {
		c.Images = []models.Image{}
	}
	if _, err := s.coll.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("inserting checkup: %w", err)
	}
	return nil
}

func (s *CheckupStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Checkup, error) {
	var c models.Checkup
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding checkup: %w", err)
	}
	return &c, nil
}

func (s *CheckupStore) ListByPatient(ctx context.Context, patientID primitive.ObjectID) ([]models.Checkup, error) {
	return s.list(ctx, bson.M{"patient": patientID})
}

func (s *CheckupStore) ListByDentist(ctx context.Context, dentistID primitive.ObjectID) ([]models.Checkup, error) {
	return s.list(ctx, bson.M{"dentist": dentistID})
}

// list returns matching checkups, most recently requested first.
func (s *CheckupStore) list(ctx context.Context, filter bson.M) ([]models.Checkup, error) {
	opts := options.Find().SetSort(bson.D{{Key: "requestDate", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("finding checkups: %w", err)
	}
	defer cursor.Close(ctx)

	checkups := make([]models.Checkup, 0)
	if err := cursor.All(ctx, &checkups); err != nil {
		return nil, fmt.Errorf("decoding checkups: %w", err)
	}
	return checkups, nil
}

// Update replaces the stored checkup if its version still equals
// expectedVersion. On success c.Version is expectedVersion+1.
func (s *CheckupStore) Update(ctx context.Context, c *models.Checkup, expectedVersion int64) error {
	c.Version = expectedVersion + 1

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": c.ID, "version": expectedVersion}, c)
	if err != nil {
		c.Version = expectedVersion
		return fmt.Errorf("updating checkup: %w", err)
	}
	if res.MatchedCount == 0 {
		c.Version = expectedVersion
		n, err := s.coll.CountDocuments(ctx, bson.M{"_id": c.ID})
		if err != nil {
			return fmt.Errorf("checking checkup: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}
