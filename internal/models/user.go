package models

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDentist Role = "dentist"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleDentist:
		return true
	}
	return false
}

// DefaultDentistRating is applied when a dentist registers without a rating.
// An explicit 0 is kept.
const DefaultDentistRating = 4.5

var (
	ErrMissingPatientProfile = errors.New("patient profile is required for role patient")
	ErrMissingDentistProfile = errors.New("dentist profile is required for role dentist")
	ErrUnexpectedProfile     = errors.New("profile does not match role")
	ErrInvalidRole           = errors.New("role must be patient or dentist")
)

type PatientProfile struct {
	Age     int    `bson:"age" json:"age" binding:"required,min=1,max=150"`
	Address string `bson:"address" json:"address" binding:"required"`
}

type DentistProfile struct {
	Specialization string  `bson:"specialization" json:"specialization" binding:"required"`
	Experience     int     `bson:"experience" json:"experience" binding:"min=0,max=80"`
	Location       string  `bson:"location" json:"location" binding:"required"`
	Availability   string  `bson:"availability" json:"availability" binding:"required"`
	LicenseNumber  string  `bson:"licenseNumber" json:"licenseNumber" binding:"required"`
	Rating         float64 `bson:"rating" json:"rating" binding:"min=0,max=5"`
}

// User is a directory record. Exactly one of Patient or Dentist is set,
// matching Role.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password" json:"-"`
	Role      Role               `bson:"role" json:"role"`
	Phone     string             `bson:"phone" json:"phone"`
	Patient   *PatientProfile    `bson:"patient,omitempty" json:"patient,omitempty"`
	Dentist   *DentistProfile    `bson:"dentist,omitempty" json:"dentist,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Validate checks the role/profile pairing.
func (u *User) Validate() error {
	switch u.Role {
	case RolePatient:
		if u.Patient == nil {
			return ErrMissingPatientProfile
		}
		if u.Dentist != nil {
			return ErrUnexpectedProfile
		}
		return u.Patient.Validate()
	case RoleDentist:
		if u.Dentist == nil {
			return ErrMissingDentistProfile
		}
		if u.Patient != nil {
			return ErrUnexpectedProfile
		}
		return u.Dentist.Validate()
	default:
		return ErrInvalidRole
	}
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PublicUser is the projection returned to clients; it never carries the
// password hash.
type PublicUser struct {
	ID        primitive.ObjectID `json:"id"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	Role      Role               `json:"role"`
	Phone     string             `json:"phone"`
	Patient   *PatientProfile    `json:"patient,omitempty"`
	Dentist   *DentistProfile    `json:"dentist,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Phone:     u.Phone,
		Patient:   u.Patient,
		Dentist:   u.Dentist,
		CreatedAt: u.CreatedAt,
	}
}

// Age returns the patient age, or 0 for non-patients.
func (u *User) Age() int {
	if u.Patient == nil {
		return 0
	}
	return u.Patient.Age
}

func (u *User) Specialization() string {
	if u.Dentist == nil {
		return ""
	}
	return u.Dentist.Specialization
}
