package directory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/harentsoaR/onlyfix-api/internal/models"
)

const sampleDentistPassword = "password123"

var sampleDentists = []RegisterInput{
	{
		Name:  "Sarah Johnson",
		Email: "dr.sarah@onlyfix.com",
		Phone: "+1-555-0101",
		Dentist: &models.DentistProfile{
			Specialization: "General Dentistry",
			Experience:     8,
			Location:       "New York, NY",
			Availability:   "Mon-Fri 9AM-5PM",
			LicenseNumber:  "DDS-NY-12345",
			Rating:         4.8,
		},
	},
	{
		Name:  "Michael Chen",
		Email: "dr.chen@onlyfix.com",
		Phone: "+1-555-0102",
		Dentist: &models.DentistProfile{
			Specialization: "Orthodontics",
			Experience:     12,
			Location:       "Los Angeles, CA",
			Availability:   "Mon-Sat 8AM-6PM",
			LicenseNumber:  "DDS-CA-67890",
			Rating:         4.9,
		},
	},
	{
		Name:  "Emily Rodriguez",
		Email: "dr.emily@onlyfix.com",
		Phone: "+1-555-0103",
		Dentist: &models.DentistProfile{
			Specialization: "Pediatric Dentistry",
			Experience:     6,
			Location:       "Chicago, IL",
			Availability:   "Tue-Sat 10AM-4PM",
			LicenseNumber:  "DDS-IL-11111",
			Rating:         4.7,
		},
	},
}

// SeedSampleDentists registers the demo dentists when the directory has no
// dentist at all. It returns how many were created.
func (d *Directory) SeedSampleDentists(ctx context.Context) (int, error) {
	n, err := d.users.CountByRole(ctx, models.RoleDentist)
	if err != nil {
		return 0, fmt.Errorf("counting dentists: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	created := 0
	for _, sample := range sampleDentists {
		in := sample
		profile := *sample.Dentist
		in.Dentist = &profile
		in.Role = models.RoleDentist
		in.Password = sampleDentistPassword

		if _, err := d.Register(ctx, in); err != nil {
			return created, fmt.Errorf("seeding %s: %w", in.Email, err)
		}
		created++
	}

	d.log.Info("sample dentists created", zap.Int("count", created))
	return created, nil
}
