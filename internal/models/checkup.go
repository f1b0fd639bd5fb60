package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status of a checkup. The normal flow is
//
//	pending → in-progress → completed
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Image struct {
	BlobKey     string `bson:"blobKey" json:"-"`
	ContentType string `bson:"contentType" json:"contentType"`
	Size        int64  `bson:"size" json:"size"`
	Description string `bson:"description" json:"description"`
}

type Checkup struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID     primitive.ObjectID `bson:"patient" json:"patientId"`
	DentistID     primitive.ObjectID `bson:"dentist" json:"dentistId"`
	Status        Status             `bson:"status" json:"status"`
	RequestDate   time.Time          `bson:"requestDate" json:"requestDate"`
	CompletedDate *time.Time         `bson:"completedDate,omitempty" json:"completedDate,omitempty"`
	PatientNotes  string             `bson:"patientNotes,omitempty" json:"patientNotes,omitempty"`
	Notes         string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Images        []Image            `bson:"images" json:"images"`
	Version       int64              `bson:"version" json:"version"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// IsParty reports whether the given user is the checkup's patient or dentist
// under the given role.
func (c *Checkup) IsParty(userID primitive.ObjectID, role Role) bool {
	switch role {
	case RolePatient:
		return c.PatientID == userID
	case RoleDentist:
		return c.DentistID == userID
	}
	return false
}

// PartySummary is the counterpart identity joined into a checkup view.
type PartySummary struct {
	ID             primitive.ObjectID `json:"id"`
	Name           string             `json:"name"`
	Email          string             `json:"email,omitempty"`
	Age            int                `json:"age,omitempty"`
	Specialization string             `json:"specialization,omitempty"`
}

func PatientSummary(u *User) *PartySummary {
	if u == nil {
		return nil
	}
	return &PartySummary{ID: u.ID, Name: u.Name, Email: u.Email, Age: u.Age()}
}

func DentistSummary(u *User) *PartySummary {
	if u == nil {
		return nil
	}
	return &PartySummary{ID: u.ID, Name: u.Name, Specialization: u.Specialization()}
}

type ImageView struct {
	Index       int    `json:"index"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Description string `json:"description"`
}

// CheckupView is a checkup joined with the public fields of its parties.
type CheckupView struct {
	ID            primitive.ObjectID `json:"id"`
	Status        Status             `json:"status"`
	RequestDate   time.Time          `json:"requestDate"`
	CompletedDate *time.Time         `json:"completedDate,omitempty"`
	PatientNotes  string             `json:"patientNotes,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	Images        []ImageView        `json:"images"`
	Version       int64              `json:"version"`
	Patient       *PartySummary      `json:"patient,omitempty"`
	Dentist       *PartySummary      `json:"dentist,omitempty"`
}

func NewCheckupView(c *Checkup, patient, dentist *PartySummary) CheckupView {
	images := make([]ImageView, 0, len(c.Images))
	for i, img := range c.Images {
		images = append(images, ImageView{
			Index:       i,
			URL:         fmt.Sprintf("/checkups/%s/images/%d", c.ID.Hex(), i),
			ContentType: img.ContentType,
			Size:        img.Size,
			Description: img.Description,
		})
	}
	return CheckupView{
		ID:            c.ID,
		Status:        c.Status,
		RequestDate:   c.RequestDate,
		CompletedDate: c.CompletedDate,
		PatientNotes:  c.PatientNotes,
		Notes:         c.Notes,
		Images:        images,
		Version:       c.Version,
		Patient:       patient,
		Dentist:       dentist,
	}
}

type StatusCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in-progress"`
	Completed  int `json:"completed"`
}

type CheckupList struct {
	Checkups []CheckupView `json:"checkups"`
	Counts   StatusCounts  `json:"counts"`
}

type EventType string

const (
	EventCheckupCreated       EventType = "checkup.created"
	EventCheckupStatusChanged EventType = "checkup.status_changed"
	EventCheckupCompleted     EventType = "checkup.completed"
)

type CheckupEvent struct {
	Type       EventType          `json:"type"`
	CheckupID  primitive.ObjectID `json:"checkupId"`
	PatientID  primitive.ObjectID `json:"patientId"`
	DentistID  primitive.ObjectID `json:"dentistId"`
	Status     Status             `json:"status"`
	OccurredAt time.Time          `json:"occurredAt"`
}
