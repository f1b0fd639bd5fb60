// Package ledger owns checkup records: their status transitions, who may
// read or change them, and the joins needed to present or report on them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/harentsoaR/onlyfix-api/internal/blob"
	"github.com/harentsoaR/onlyfix-api/internal/directory"
	"github.com/harentsoaR/onlyfix-api/internal/models"
	"github.com/harentsoaR/onlyfix-api/internal/report"
	"github.com/harentsoaR/onlyfix-api/internal/store"
)

var (
	ErrNotFound          = errors.New("checkup not found")
	ErrDentistNotFound   = errors.New("dentist not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrInvalidStatus     = errors.New("status must be one of pending, in-progress, completed")
	ErrInvalidTransition = errors.New("invalid checkup status transition")
	ErrNotCompleted      = errors.New("checkup not completed yet")
	ErrStaleWrite        = errors.New("checkup was modified concurrently")
)

type CheckupStore interface {
	Insert(ctx context.Context, c *models.Checkup) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Checkup, error)
	ListByPatient(ctx context.Context, patientID primitive.ObjectID) ([]models.Checkup, error)
	ListByDentist(ctx context.Context, dentistID primitive.ObjectID) ([]models.Checkup, error)
	Update(ctx context.Context, c *models.Checkup, expectedVersion int64) error
}

type Directory interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error)
}

// EventSink receives lifecycle events. Publish must not block the caller for
// long; delivery failures are the sink's concern.
type EventSink interface {
	Publish(ctx context.Context, ev models.CheckupEvent)
}

// Requester is the authenticated caller, as decoded from the bearer token.
type Requester struct {
	ID   primitive.ObjectID
	Role models.Role
}

// Upload is one image submitted with a completion.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
	Description string
}

type Ledger struct {
	checkups  CheckupStore
	directory Directory
	blobs     blob.Store
	events    EventSink
	log       *zap.Logger
	now       func() time.Time
}

func New(checkups CheckupStore, dir Directory, blobs blob.Store, events EventSink, log *zap.Logger) *Ledger {
	return &Ledger{
		checkups:  checkups,
		directory: dir,
		blobs:     blobs,
		events:    events,
		log:       log,
		now:       time.Now,
	}
}

func (l *Ledger) timestamp() time.Time {
	return l.now().UTC().Truncate(time.Millisecond)
}

// Create files a pending checkup request from a patient to a dentist.
func (l *Ledger) Create(ctx context.Context, req Requester, dentistID primitive.ObjectID, patientNotes string) (*models.Checkup, error) {
	if req.Role != models.RolePatient {
		return nil, ErrAccessDenied
	}

	dentist, err := l.directory.FindByID(ctx, dentistID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, ErrDentistNotFound
		}
		return nil, fmt.Errorf("looking up dentist: %w", err)
	}
	if dentist.Role != models.RoleDentist {
		return nil, ErrDentistNotFound
	}

	now := l.timestamp()
	c := &models.Checkup{
		ID:           primitive.NewObjectID(),
		PatientID:    req.ID,
		DentistID:    dentistID,
		Status:       models.StatusPending,
		RequestDate:  now,
		PatientNotes: strings.TrimSpace(patientNotes),
		Images:       []models.Image{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := l.checkups.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("creating checkup: %w", err)
	}

	l.publish(ctx, models.EventCheckupCreated, c)
	return c, nil
}

func (l *Ledger) load(ctx context.Context, id primitive.ObjectID) (*models.Checkup, error) {
	c, err := l.checkups.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading checkup: %w", err)
	}
	return c, nil
}

// loadForParty returns the checkup if the requester is its patient or dentist.
func (l *Ledger) loadForParty(ctx context.Context, id primitive.ObjectID, req Requester) (*models.Checkup, error) {
	c, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsParty(req.ID, req.Role) {
		return nil, ErrAccessDenied
	}
	return c, nil
}

// loadForDentist returns the checkup if the requester is its assigned dentist.
func (l *Ledger) loadForDentist(ctx context.Context, id primitive.ObjectID, req Requester) (*models.Checkup, error) {
	c, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Role != models.RoleDentist || c.DentistID != req.ID {
		return nil, ErrAccessDenied
	}
	return c, nil
}

// GetByID returns the checkup joined with both parties' public fields.
func (l *Ledger) GetByID(ctx context.Context, id primitive.ObjectID, req Requester) (*models.CheckupView, error) {
	c, err := l.loadForParty(ctx, id, req)
	if err != nil {
		return nil, err
	}

	parties, err := l.directory.FindMany(ctx, []primitive.ObjectID{c.PatientID, c.DentistID})
	if err != nil {
		return nil, fmt.Errorf("joining parties: %w", err)
	}

	view := models.NewCheckupView(c,
		models.PatientSummary(parties[c.PatientID]),
		models.DentistSummary(parties[c.DentistID]),
	)
	return &view, nil
}

// canTransition lists the moves SetStatus accepts. Completion has its own
// operation so that completedDate, notes and images are always set together.
func canTransition(from, to models.Status) bool {
	if from == to {
		return true
	}
	allowed := map[models.Status][]models.Status{
		models.StatusPending:    {models.StatusInProgress},
		models.StatusInProgress: {},
		models.StatusCompleted:  {},
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SetStatus changes the status of a checkup owned by the requesting dentist.
func (l *Ledger) SetStatus(ctx context.Context, id primitive.ObjectID, req Requester, status models.Status) (*models.Checkup, error) {
	c, err := l.loadForDentist(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	if !canTransition(c.Status, status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, c.Status, status)
	}
	if c.Status == status {
		return c, nil
	}

	c.Status = status
	c.UpdatedAt = l.timestamp()
	if err := l.update(ctx, c); err != nil {
		return nil, err
	}

	l.publish(ctx, models.EventCheckupStatusChanged, c)
	return c, nil
}

// Complete records the dentist's notes and images and marks the checkup
// completed. Calling it again on a completed checkup replaces notes and
// images instead of appending.
func (l *Ledger) Complete(ctx context.Context, id primitive.ObjectID, req Requester, notes string, uploads []Upload) (*models.Checkup, error) {
	c, err := l.loadForDentist(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if c.Status == models.StatusPending {
		return nil, fmt.Errorf("%w: checkup must be accepted before completion", ErrInvalidTransition)
	}

	images, err := l.storeImages(ctx, c.ID, uploads)
	if err != nil {
		return nil, err
	}

	previous := c.Images
	now := l.timestamp()
	c.Status = models.StatusCompleted
	c.Notes = strings.TrimSpace(notes)
	c.Images = images
	c.CompletedDate = &now
	c.UpdatedAt = now

	if err := l.update(ctx, c); err != nil {
		l.discard(ctx, images)
		return nil, err
	}
	l.discard(ctx, previous)

	l.publish(ctx, models.EventCheckupCompleted, c)
	return c, nil
}

func (l *Ledger) storeImages(ctx context.Context, checkupID primitive.ObjectID, uploads []Upload) ([]models.Image, error) {
	images := make([]models.Image, 0, len(uploads))
	for i, up := range uploads {
		ref, err := l.blobs.Put(ctx, blob.Object{
			Name:        up.Filename,
			ContentType: up.ContentType,
			Body:        up.Body,
		})
		if err != nil {
			l.discard(ctx, images)
			return nil, fmt.Errorf("storing image %d of checkup %s: %w", i, checkupID.Hex(), err)
		}
		images = append(images, models.Image{
			BlobKey:     ref.Key,
			ContentType: ref.ContentType,
			Size:        ref.Size,
			Description: strings.TrimSpace(up.Description),
		})
	}
	return images, nil
}

// discard deletes blobs that are no longer referenced. Failures only leave
// orphans behind, so they are logged.
func (l *Ledger) discard(ctx context.Context, images []models.Image) {
	for _, img := range images {
		if err := l.blobs.Delete(ctx, img.BlobKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			l.log.Warn("failed to delete image blob", zap.String("key", img.BlobKey), zap.Error(err))
		}
	}
}

func (l *Ledger) update(ctx context.Context, c *models.Checkup) error {
	if err := l.checkups.Update(ctx, c, c.Version); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, store.ErrVersionConflict):
			return ErrStaleWrite
		}
		return fmt.Errorf("updating checkup: %w", err)
	}
	return nil
}

// Image opens the stored content of the index-th image of a checkup.
func (l *Ledger) Image(ctx context.Context, id primitive.ObjectID, req Requester, index int) (*models.Image, io.ReadCloser, error) {
	c, err := l.loadForParty(ctx, id, req)
	if err != nil {
		return nil, nil, err
	}
	if index < 0 || index >= len(c.Images) {
		return nil, nil, ErrNotFound
	}
	img := c.Images[index]

	rc, err := l.blobs.Get(ctx, img.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("opening image: %w", err)
	}
	return &img, rc, nil
}

// ReportInput gathers what the report generator needs for a completed
// checkup the requester is a party to.
func (l *Ledger) ReportInput(ctx context.Context, id primitive.ObjectID, req Requester) (*report.Input, error) {
	c, err := l.loadForParty(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if c.Status != models.StatusCompleted {
		return nil, ErrNotCompleted
	}

	parties, err := l.directory.FindMany(ctx, []primitive.ObjectID{c.PatientID, c.DentistID})
	if err != nil {
		return nil, fmt.Errorf("joining parties: %w", err)
	}
	patient, dentist := parties[c.PatientID], parties[c.DentistID]
	if patient == nil || dentist == nil {
		return nil, fmt.Errorf("checkup %s references a missing user", c.ID.Hex())
	}

	return &report.Input{Checkup: *c, Patient: *patient, Dentist: *dentist}, nil
}

func (l *Ledger) publish(ctx context.Context, typ models.EventType, c *models.Checkup) {
	if l.events == nil {
		return
	}
	l.events.Publish(ctx, models.CheckupEvent{
		Type:       typ,
		CheckupID:  c.ID,
		PatientID:  c.PatientID,
		DentistID:  c.DentistID,
		Status:     c.Status,
		OccurredAt: c.UpdatedAt,
	})
}
