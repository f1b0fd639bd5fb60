// Package report renders a completed checkup into a fixed-layout PDF.
//
// Rendering is a pure function of its input: the same checkup, parties and
// generation time always produce the same bytes.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/harentsoaR/onlyfix-api/internal/models"
)

var ErrNotCompleted = errors.New("checkup not completed yet")

const (
	organisation = "OnlyFix HealthCare"
	title        = "Dental Checkup Report"
	dateLayout   = "Jan 2, 2006"
)

// Input is a completed checkup with both parties already resolved.
type Input struct {
	Checkup models.Checkup
	Patient models.User
	Dentist models.User
}

type LineKind int

const (
	KindTitle LineKind = iota
	KindSubtitle
	KindHeading
	KindText
	KindFooter
)

type Line struct {
	Kind LineKind
	Text string
}

// Filename is the attachment name for a checkup's report.
func Filename(checkupID string) string {
	return fmt.Sprintf("checkup-report-%s.pdf", checkupID)
}

// Lines lays out the report content in its fixed section order.
func Lines(in Input, generatedAt time.Time) ([]Line, error) {
	c := in.Checkup
	if c.Status != models.StatusCompleted {
		return nil, ErrNotCompleted
	}

	lines := []Line{
		{KindTitle, organisation},
		{KindSubtitle, title},
		{KindHeading, "Patient Information:"},
		{KindText, "Name: " + in.Patient.Name},
		{KindText, "Email: " + in.Patient.Email},
		{KindText, "Age: " + strconv.Itoa(in.Patient.Age())},
	}
	if in.Patient.Phone != "" {
		lines = append(lines, Line{KindText, "Phone: " + in.Patient.Phone})
	}
	if in.Patient.Patient != nil && in.Patient.Patient.Address != "" {
		lines = append(lines, Line{KindText, "Address: " + in.Patient.Patient.Address})
	}

	lines = append(lines,
		Line{KindHeading, "Dentist Information:"},
		Line{KindText, "Name: Dr. " + in.Dentist.Name},
		Line{KindText, "Specialization: " + in.Dentist.Specialization()},
	)
	if in.Dentist.Dentist != nil && in.Dentist.Dentist.Location != "" {
		lines = append(lines, Line{KindText, "Location: " + in.Dentist.Dentist.Location})
	}

	lines = append(lines,
		Line{KindHeading, "Checkup Details:"},
		Line{KindText, "Request Date: " + formatDate(c.RequestDate)},
		Line{KindText, "Completed Date: " + formatDate(completedAt(c))},
		Line{KindText, "Status: " + strings.ToUpper(string(c.Status))},
	)

	if c.PatientNotes != "" {
		lines = append(lines, Line{KindHeading, "Patient Notes:"}, Line{KindText, c.PatientNotes})
	}
	if c.Notes != "" {
		lines = append(lines, Line{KindHeading, "Professional Assessment:"}, Line{KindText, c.Notes})
	}

	if len(c.Images) > 0 {
		lines = append(lines, Line{KindHeading, "Checkup Images:"})
		for i, img := range c.Images {
			desc := img.Description
			if desc == "" {
				desc = "No description provided"
			}
			lines = append(lines, Line{KindText, fmt.Sprintf("Image %d: %s", i+1, desc)})
		}
	}

	lines = append(lines, Line{KindFooter, fmt.Sprintf("Generated on %s by %s System", formatDate(generatedAt), organisation)})
	return lines, nil
}

// Render produces the PDF document. Image content is listed by description
// only and never embedded.
func Render(in Input, generatedAt time.Time) ([]byte, error) {
	lines, err := Lines(in, generatedAt)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetCompression(false)
	pdf.SetCatalogSort(true)
	stamp := completedAt(in.Checkup)
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.SetTitle(title, false)
	pdf.SetCreator(organisation, false)
	pdf.AddPage()

	// Core fonts only cover cp1252; other runes are written as '.'.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	prev := KindTitle
	for i, line := range lines {
		if i > 0 && line.Kind == KindHeading && prev != KindHeading {
			pdf.Ln(4)
		}
		switch line.Kind {
		case KindTitle:
			pdf.SetFont("Helvetica", "B", 20)
			pdf.CellFormat(0, 10, tr(line.Text), "", 1, "C", false, 0, "")
		case KindSubtitle:
			pdf.SetFont("Helvetica", "", 16)
			pdf.CellFormat(0, 9, tr(line.Text), "", 1, "C", false, 0, "")
			pdf.Ln(8)
		case KindHeading:
			pdf.SetFont("Helvetica", "BU", 14)
			pdf.CellFormat(0, 8, tr(line.Text), "", 1, "L", false, 0, "")
		case KindText:
			pdf.SetFont("Helvetica", "", 12)
			pdf.MultiCell(0, 6, tr(line.Text), "", "L", false)
		case KindFooter:
			pdf.Ln(10)
			pdf.SetFont("Helvetica", "", 10)
			pdf.CellFormat(0, 6, tr(line.Text), "", 1, "C", false, 0, "")
		}
		prev = line.Kind
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func completedAt(c models.Checkup) time.Time {
	if c.CompletedDate != nil {
		return c.CompletedDate.UTC()
	}
	return c.RequestDate.UTC()
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
