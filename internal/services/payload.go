package services

import (
	"strings"

	"github.com/Lllllllleong/certgen/internal/models"
)

// PayloadField is one allow-listed entry of the verification payload.
type PayloadField struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// DefaultPayloadFields is the order printed into the QR code.
var DefaultPayloadFields = []PayloadField{
	{Key: models.FieldRecipientName, Label: "Student name"},
	{Key: models.FieldInstituteName, Label: "Institute name"},
	{Key: models.FieldStartDate, Label: "Start date"},
	{Key: models.FieldEndDate, Label: "End date"},
	{Key: models.FieldSupervisorName, Label: "Supervisor name"},
	{Key: models.FieldTitle, Label: "Project title"},
	{Key: models.FieldCertificateDate, Label: "Certificate date"},
	{Key: models.FieldCertificateNumber, Label: "Certificate number"},
}

// BuildPayload renders the verification text: one "Label: value" line per
// field present on the record, then the issuer line.
func BuildPayload(rec *models.Record, fields []PayloadField, issuer string) string {
	values := rec.Fields()
	lines := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		v := strings.TrimSpace(values[f.Key])
		if v == "" {
			continue
		}
		label := f.Label
		if label == "" {
			label = labelFor(f.Key)
		}
		lines = append(lines, label+": "+v)
	}
	lines = append(lines, "Issued by: "+issuer)
	return strings.Join(lines, "\n")
}

// labelFor turns "supervisor_name" into "Supervisor name".
func labelFor(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
