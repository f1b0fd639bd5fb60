// Package memstore is an in-memory implementation of the user and checkup
// repositories, used by tests and by STORE_BACKEND=memory.
package memstore

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/onlyfix-api/internal/models"
	"github.com/harentsoaR/onlyfix-api/internal/store"
)

type UserStore struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]models.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[primitive.ObjectID]models.User)}
}

func (s *UserStore) Insert(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return store.ErrDuplicateEmail
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *UserStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *UserStore) FindMany(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *UserStore) ListByRole(_ context.Context, role models.Role) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0)
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out, nil
}

func (s *UserStore) CountByRole(_ context.Context, role models.Role) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, u := range s.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

type CheckupStore struct {
	mu       sync.RWMutex
	checkups map[primitive.ObjectID]models.Checkup
}

func NewCheckupStore() *CheckupStore {
	return &CheckupStore{checkups: make(map[primitive.ObjectID]models.Checkup)}
}

func (s *CheckupStore) Insert(_ context.Context, c *models.Checkup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.Images == nil {
		c.Images = []models.Image{}
	}
	s.checkups[c.ID] = clone(*c)
	return nil
}

func (s *CheckupStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Checkup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.checkups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c = clone(c)
	return &c, nil
}

func (s *CheckupStore) ListByPatient(_ context.Context, patientID primitive.ObjectID) ([]models.Checkup, error) {
	return s.list(func(c *models.Checkup) bool { return c.PatientID == patientID }), nil
}

func (s *CheckupStore) ListByDentist(_ context.Context, dentistID primitive.ObjectID) ([]models.Checkup, error) {
	return s.list(func(c *models.Checkup) bool { return c.DentistID == dentistID }), nil
}

func (s *CheckupStore) list(match func(*models.Checkup) bool) []models.Checkup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Checkup, 0)
	for _, c := range s.checkups {
		if match(&c) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestDate.Equal(out[j].RequestDate) {
			return out[i].RequestDate.After(out[j].RequestDate)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out
}

func (s *CheckupStore) Update(_ context.Context, c *models.Checkup, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.checkups[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	c.Version = expectedVersion + 1
	s.checkups[c.ID] = clone(*c)
	return nil
}

func clone(c models.Checkup) models.Checkup {
	c.Images = append([]models.Image{}, c.Images...)
	if c.CompletedDate != nil {
		t := *c.CompletedDate
		c.CompletedDate = &t
	}
	return c
}
