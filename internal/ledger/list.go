package ledger

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/onlyfix-api/internal/models"
)

// ListForPatient returns the patient's checkups, most recent request first,
// each joined with its dentist's name and specialization.
func (l *Ledger) ListForPatient(ctx context.Context, patientID primitive.ObjectID) (*models.CheckupList, error) {
	checkups, err := l.checkups.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing patient checkups: %w", err)
	}

	dentists, err := l.directory.FindMany(ctx, lo.Map(checkups, func(c models.Checkup, _ int) primitive.ObjectID {
		return c.DentistID
	}))
	if err != nil {
		return nil, fmt.Errorf("joining dentists: %w", err)
	}

	return buildList(checkups, func(c *models.Checkup) (*models.PartySummary, *models.PartySummary) {
		return nil, models.DentistSummary(dentists[c.DentistID])
	}), nil
}

// ListForDentist returns the dentist's checkups, most recent request first,
// each joined with the patient's name, email and age.
func (l *Ledger) ListForDentist(ctx context.Context, dentistID primitive.ObjectID) (*models.CheckupList, error) {
	checkups, err := l.checkups.ListByDentist(ctx, dentistID)
	if err != nil {
		return nil, fmt.Errorf("listing dentist checkups: %w", err)
	}

	patients, err := l.directory.FindMany(ctx, lo.Map(checkups, func(c models.Checkup, _ int) primitive.ObjectID {
		return c.PatientID
	}))
	if err != nil {
		return nil, fmt.Errorf("joining patients: %w", err)
	}

	return buildList(checkups, func(c *models.Checkup) (*models.PartySummary, *models.PartySummary) {
		return models.PatientSummary(patients[c.PatientID]), nil
	}), nil
}

// ListMine lists the requester's own checkups according to their role.
func (l *Ledger) ListMine(ctx context.Context, req Requester) (*models.CheckupList, error) {
	switch req.Role {
	case models.RolePatient:
		return l.ListForPatient(ctx, req.ID)
	case models.RoleDentist:
		return l.ListForDentist(ctx, req.ID)
	}
	return nil, ErrAccessDenied
}

func buildList(checkups []models.Checkup, join func(*models.Checkup) (*models.PartySummary, *models.PartySummary)) *models.CheckupList {
	list := &models.CheckupList{Checkups: make([]models.CheckupView, 0, len(checkups))}
	for i := range checkups {
		c := &checkups[i]
		patient, dentist := join(c)
		list.Checkups = append(list.Checkups, models.NewCheckupView(c, patient, dentist))

		switch c.Status {
		case models.StatusPending:
			list.Counts.Pending++
		case models.StatusInProgress:
			list.Counts.InProgress++
		case models.StatusCompleted:
			list.Counts.Completed++
		}
	}
	return list
}
