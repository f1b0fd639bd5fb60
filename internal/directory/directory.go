// Package directory is the identity directory: patient and dentist accounts,
// their lookups and registration.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/harentsoaR/onlyfix-api/internal/models"
	"github.com/harentsoaR/onlyfix-api/internal/store"
	"github.com/harentsoaR/onlyfix-api/internal/utils"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("user already exists with this email")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// MinPasswordLength matches the account rules of the web client.
const MinPasswordLength = 6

type UserStore interface {
	Insert(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindMany(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
	CountByRole(ctx context.Context, role models.Role) (int64, error)
}

type Directory struct {
	users      UserStore
	bcryptCost int
	log        *zap.Logger
	now        func() time.Time
}

func New(users UserStore, bcryptCost int, log *zap.Logger) *Directory {
	return &Directory{users: users, bcryptCost: bcryptCost, log: log, now: time.Now}
}

func (d *Directory) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := d.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := d.users.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// FindMany resolves a set of ids in one round trip. Unknown ids are absent
// from the result.
func (d *Directory) FindMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	users, err := d.users.FindMany(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]*models.User, len(users))
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// ListByRole returns the public projection of every user with the role.
func (d *Directory) ListByRole(ctx context.Context, role models.Role) ([]models.PublicUser, error) {
	users, err := d.users.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u models.User, _ int) models.PublicUser {
		return u.Public()
	}), nil
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
	Phone    string
	Patient  *models.PatientProfile
	Dentist  *models.DentistProfile
}

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

func (in *RegisterInput) validate() error {
	var fields []string
	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, "name is required")
	}
	if !models.ValidEmail(strings.TrimSpace(in.Email)) {
		fields = append(fields, "email is invalid")
	}
	if len(in.Password) < MinPasswordLength {
		fields = append(fields, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if strings.TrimSpace(in.Phone) == "" {
		fields = append(fields, "phone is required")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func copyOf[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Register creates an account. The profile matching the role is mandatory
// and the other one must be absent.
func (d *Directory) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := d.now().UTC().Truncate(time.Millisecond)
	user := &models.User{
		ID:        primitive.NewObjectID(),
		Name:      strings.TrimSpace(in.Name),
		Email:     models.NormalizeEmail(in.Email),
		Role:      in.Role,
		Phone:     strings.TrimSpace(in.Phone),
		Patient:   copyOf(in.Patient),
		Dentist:   copyOf(in.Dentist),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.Validate(); err != nil {
		return nil, &ValidationError{Fields: models.FieldErrors(err)}
	}

	if _, err := d.users.FindByEmail(ctx, user.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	hash, err := utils.HashPassword(in.Password, d.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user.Password = hash

	if err := d.users.Insert(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	d.log.Info("user registered", zap.String("userId", user.ID.Hex()), zap.String("role", string(user.Role)))
	return user, nil
}

// Authenticate returns the user for a matching email/password pair.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := d.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPasswordHash(password, u.Password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
