// Package store holds the MongoDB repositories for users and checkups.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	checkupsCollection = "checkups"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrVersionConflict = errors.New("document version conflict")
)

// EnsureIndexes creates the indexes the repositories rely on. It is safe to
// call on every start.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("role_created"),
		},
	})
	if err != nil {
		return fmt.Errorf("creating user indexes: %w", err)
	}

	_, err = db.Collection(checkupsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "patient", Value: 1}, {Key: "requestDate", Value: -1}},
			Options: options.Index().SetName("patient_requested"),
		},
		{
			Keys:    bson.D{{Key: "dentist", Value: 1}, {Key: "requestDate", Value: -1}},
			Options: options.Index().SetName("dentist_requested"),
		},
	})
	if err != nil {
		return fmt.Errorf("creating checkup indexes: %w", err)
	}

	return nil
}
