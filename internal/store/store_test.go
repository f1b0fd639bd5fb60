package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/harentsoaR/onlyfix-api/internal/models"
)

func TestUserStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert duplicate email", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: onlyfix.users index: uniq_email",
		}))

		err := NewUserStore(mt.DB).Insert(context.Background(), &models.User{Email: "a@b.c"})
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Errorf("expected ErrDuplicateEmail, got %v", err)
		}
	})

	mt.Run("insert assigns id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		u := &models.User{Email: "a@b.c"}
		if err := NewUserStore(mt.DB).Insert(context.Background(), u); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if u.ID.IsZero() {
			t.Error("expected id to be assigned")
		}
	})

	mt.Run("find by id", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "onlyfix.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "name", Value: "Sarah Johnson"},
			{Key: "email", Value: "dr.sarah@onlyfix.com"},
			{Key: "role", Value: "dentist"},
			{Key: "dentist", Value: bson.D{{Key: "specialization", Value: "General Dentistry"}}},
		}))

		u, err := NewUserStore(mt.DB).FindByID(context.Background(), id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if u.ID != id || u.Specialization() != "General Dentistry" {
			t.Errorf("unexpected user: %+v", u)
		}
	})

	mt.Run("find by email not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "onlyfix.users", mtest.FirstBatch))

		_, err := NewUserStore(mt.DB).FindByEmail(context.Background(), "nobody@onlyfix.com")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("find many with no ids skips the query", func(mt *mtest.T) {
		users, err := NewUserStore(mt.DB).FindMany(context.Background(), nil)
		if err != nil || len(users) != 0 {
			t.Errorf("expected empty result, got %v %v", users, err)
		}
	})
}

func TestCheckupStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("list by dentist", func(mt *mtest.T) {
		dentist := primitive.NewObjectID()
		first := mtest.CreateCursorResponse(1, "onlyfix.checkups", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "dentist", Value: dentist}, {Key: "status", Value: "pending"}, {Key: "requestDate", Value: time.Now()}},
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "dentist", Value: dentist}, {Key: "status", Value: "completed"}, {Key: "requestDate", Value: time.Now().Add(-time.Hour)}},
		)
		end := mtest.CreateCursorResponse(0, "onlyfix.checkups", mtest.NextBatch)
		mt.AddMockResponses(first, end)

		checkups, err := NewCheckupStore(mt.DB).ListByDentist(context.Background(), dentist)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(checkups) != 2 || checkups[1].Status != models.StatusCompleted {
			t.Errorf("unexpected checkups: %+v", checkups)
		}
	})

	mt.Run("update version conflict", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(1, "onlyfix.checkups", mtest.FirstBatch, bson.D{{Key: "n", Value: 1}}),
		)

		c := &models.Checkup{ID: primitive.NewObjectID(), Version: 3}
		err := NewCheckupStore(mt.DB).Update(context.Background(), c, 3)
		if !errors.Is(err, ErrVersionConflict) {
			t.Errorf("expected ErrVersionConflict, got %v", err)
		}
		if c.Version != 3 {
			t.Errorf("expected version to be restored, got %d", c.Version)
		}
	})

	mt.Run("update bumps version", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		c := &models.Checkup{ID: primitive.NewObjectID(), Version: 0}
		if err := NewCheckupStore(mt.DB).Update(context.Background(), c, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Version != 1 {
			t.Errorf("expected version 1, got %d", c.Version)
		}
	})
}
