package models

import (
	"errors"
	"sort"
)

var (
	ErrNumberAssigned   = errors.New("certificate number already assigned")
	ErrArtifactAssigned = errors.New("artifact already assigned")
)

// Merge field keys exposed to templates and to the verification payload.
const (
	FieldRecipientName     = "recipient_name"
	FieldStudentName       = "student_name"
	FieldBareName          = "bare_name"
	FieldSalutationName    = "salutation_name"
	FieldGender            = "gender"
	FieldInstituteName     = "institute_name"
	FieldStartDate         = "start_date"
	FieldEndDate           = "end_date"
	FieldSupervisorName    = "supervisor_name"
	FieldTitle             = "title"
	FieldProjectTitle      = "project_title"
	FieldCertificateNumber = "certificate_number"
	FieldCertificateDate   = "certificate_date"
	FieldAccessSecret      = "owner_password"
	FieldDownloadLink      = "download_link"
)

// Record is one recipient after normalization. The pipeline fields are
// filled in exactly once each, by the allocator and by the assembler.
type Record struct {
	Line           int
	RecipientName  string
	BareName       string
	SalutationName string
	Gender         string
	InstituteName  string
	StartDate      string
	EndDate        string
	SupervisorName string
	Title          string
	Attributes     map[string]string

	CertificateNumber string
	CertificateDate   string
	AccessSecret      string
	ArtifactPath      string
	DownloadLink      string
}

// AssignNumber sets the certificate number and date.
func (r *Record) AssignNumber(number, date string) error {
	if r.CertificateNumber != "" {
		return ErrNumberAssigned
	}
	r.CertificateNumber = number
	r.CertificateDate = date
	return nil
}

// AssignArtifact sets the access secret and the published path.
func (r *Record) AssignArtifact(secret, path string) error {
	if r.ArtifactPath != "" {
		return ErrArtifactAssigned
	}
	r.AccessSecret = secret
	r.ArtifactPath = path
	return nil
}

// Fields returns the merge fields for this record. Free-text attributes are
// included but never shadow the canonical keys.
func (r *Record) Fields() map[string]string {
	f := make(map[string]string, len(r.Attributes)+16)
	for k, v := range r.Attributes {
		f[k] = v
	}
	f[FieldRecipientName] = r.RecipientName
	f[FieldStudentName] = r.RecipientName
	f[FieldBareName] = r.BareName
	f[FieldSalutationName] = r.SalutationName
	f[FieldGender] = r.Gender
	f[FieldInstituteName] = r.InstituteName
	f[FieldStartDate] = r.StartDate
	f[FieldEndDate] = r.EndDate
	f[FieldSupervisorName] = r.SupervisorName
	f[FieldTitle] = r.Title
	f[FieldProjectTitle] = r.Title
	f[FieldCertificateNumber] = r.CertificateNumber
	f[FieldCertificateDate] = r.CertificateDate
	f[FieldAccessSecret] = r.AccessSecret
	f[FieldDownloadLink] = r.DownloadLink
	return f
}

// AttributeKeys returns the free-text attribute names in sorted order.
func (r *Record) AttributeKeys() []string {
	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CanonicalFields lists every key Fields always provides.
func CanonicalFields() []string {
	return []string{
		FieldRecipientName, FieldStudentName, FieldBareName, FieldSalutationName,
		FieldGender, FieldInstituteName, FieldStartDate, FieldEndDate,
		FieldSupervisorName, FieldTitle, FieldProjectTitle,
		FieldCertificateNumber, FieldCertificateDate, FieldAccessSecret, FieldDownloadLink,
	}
}
