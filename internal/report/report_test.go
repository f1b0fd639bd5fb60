package report

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/onlyfix-api/internal/models"
)

func completedInput() Input {
	requested := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	completed := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	return Input{
		Checkup: models.Checkup{
			ID:            primitive.NewObjectID(),
			Status:        models.StatusCompleted,
			RequestDate:   requested,
			CompletedDate: &completed,
			PatientNotes:  "tooth pain",
			Notes:         "cavity filled",
			Images: []models.Image{
				{BlobKey: "k1", Description: "before/after"},
				{BlobKey: "k2"},
			},
		},
		Patient: models.User{
			Name:    "Ann Patient",
			Email:   "ann@example.com",
			Phone:   "+1-555-0000",
			Role:    models.RolePatient,
			Patient: &models.PatientProfile{Age: 34, Address: "12 Elm St"},
		},
		Dentist: models.User{
			Name:    "Sarah Johnson",
			Role:    models.RoleDentist,
			Dentist: &models.DentistProfile{Specialization: "General Dentistry", Location: "New York, NY"},
		},
	}
}

func texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func TestLines_SectionOrder(t *testing.T) {
	generated := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	lines, err := Lines(completedInput(), generated)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"OnlyFix HealthCare",
		"Dental Checkup Report",
		"Patient Information:",
		"Name: Ann Patient",
		"Email: ann@example.com",
		"Age: 34",
		"Phone: +1-555-0000",
		"Address: 12 Elm St",
		"Dentist Information:",
		"Name: Dr. Sarah Johnson",
		"Specialization: General Dentistry",
		"Location: New York, NY",
		"Checkup Details:",
		"Request Date: Mar 2, 2026",
		"Completed Date: Mar 4, 2026",
		"Status: COMPLETED",
		"Patient Notes:",
		"tooth pain",
		"Professional Assessment:",
		"cavity filled",
		"Checkup Images:",
		"Image 1: before/after",
		"Image 2: No description provided",
		"Generated on Mar 5, 2026 by OnlyFix HealthCare System",
	}
	if got := texts(lines); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected lines:\n got %q\nwant %q", got, want)
	}
}

func TestLines_OptionalSectionsOmitted(t *testing.T) {
	in := completedInput()
	in.Checkup.PatientNotes = ""
	in.Checkup.Notes = ""
	in.Checkup.Images = nil
	in.Patient.Phone = ""
	in.Patient.Patient.Address = ""
	in.Dentist.Dentist.Location = ""

	lines, err := Lines(in, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(texts(lines), "\n")
	for _, absent := range []string{"Phone:", "Address:", "Location:", "Patient Notes:", "Professional Assessment:", "Checkup Images:"} {
		if strings.Contains(joined, absent) {
			t.Errorf("unexpected %q in report", absent)
		}
	}
}

func TestRender_NotCompleted(t *testing.T) {
	for _, status := range []models.Status{models.StatusPending, models.StatusInProgress} {
		in := completedInput()
		in.Checkup.Status = status
		in.Checkup.CompletedDate = nil

		out, err := Render(in, time.Now())
		if !errors.Is(err, ErrNotCompleted) {
			t.Errorf("%s: expected ErrNotCompleted, got %v", status, err)
		}
		if out != nil {
			t.Errorf("%s: expected no output", status)
		}
	}
}

func TestRender_Deterministic(t *testing.T) {
	in := completedInput()
	generated := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	a, err := Render(in, generated)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Render(in, generated)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical input produced different bytes")
	}
	if !bytes.HasPrefix(a, []byte("%PDF-")) {
		t.Error("output is not a PDF")
	}
}

func TestRender_OnlyFooterDependsOnGenerationTime(t *testing.T) {
	in := completedInput()

	first, _ := Lines(in, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	second, _ := Lines(in, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))

	if !reflect.DeepEqual(first[:len(first)-1], second[:len(second)-1]) {
		t.Error("body changed with generation time")
	}
	if first[len(first)-1] == second[len(second)-1] {
		t.Error("footer should carry the generation date")
	}
}

func TestRender_ContainsNotes(t *testing.T) {
	out, err := Render(completedInput(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"tooth pain", "cavity filled", "Image 1: before/after"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("expected %q in document", want)
		}
	}
}

func TestRender_NonLatinNotes(t *testing.T) {
	in := completedInput()
	in.Checkup.Notes = "Zahnfüllung ✓ 牙齿"

	out, err := Render(in, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	// cp1252 runes survive as single bytes; the rest fall back to '.'.
	if !bytes.Contains(out, []byte("Zahnf\xfcllung . ..")) {
		t.Error("expected cp1252 encoded notes in document")
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("abc"); got != "checkup-report-abc.pdf" {
		t.Errorf("got %q", got)
	}
}
