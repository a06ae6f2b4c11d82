package services

import (
	"strings"
	"testing"

	"github.com/Lllllllleong/certgen/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestBuildPayload(t *testing.T) {
	rec := &models.Record{
		RecipientName:     "Mr. A B",
		InstituteName:     "Tech Institute",
		StartDate:         "01-06-2024",
		EndDate:           "31-07-2024",
		SupervisorName:    "Dr. C",
		Title:             "Widgets",
		CertificateNumber: "2024/0008",
		CertificateDate:   "01-08-2024",
	}

	got := BuildPayload(rec, DefaultPayloadFields, "Acme Labs")
	want := strings.Join([]string{
		"Student name: Mr. A B",
		"Institute name: Tech Institute",
		"Start date: 01-06-2024",
		"End date: 31-07-2024",
		"Supervisor name: Dr. C",
		"Project title: Widgets",
		"Certificate date: 01-08-2024",
		"Certificate number: 2024/0008",
		"Issued by: Acme Labs",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestBuildPayloadSkipsMissingFields(t *testing.T) {
	rec := &models.Record{
		RecipientName:     "A B",
		SupervisorName:    "   ",
		CertificateNumber: "2024/0001",
	}

	got := BuildPayload(rec, DefaultPayloadFields, "Acme")
	assert.Equal(t, "Student name: A B\nCertificate number: 2024/0001\nIssued by: Acme", got)
	assert.NotContains(t, got, "\n\n")
	assert.NotContains(t, got, "Supervisor")
}

func TestBuildPayloadCustomFields(t *testing.T) {
	rec := &models.Record{
		RecipientName: "A B",
		Attributes:    map[string]string{"grade": "Distinction"},
	}
	fields := []PayloadField{
		{Key: "grade"},
		{Key: models.FieldRecipientName, Label: "Name"},
	}
	assert.Equal(t, "Grade: Distinction\nName: A B\nIssued by: X", BuildPayload(rec, fields, "X"))
}
