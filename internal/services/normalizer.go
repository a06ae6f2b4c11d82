package services

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/certgen/internal/models"
)

// DateLayout is how dates are printed on certificates and in the ledger.
const DateLayout = "02-01-2006"

var (
	recipientKeys = []string{models.FieldRecipientName, models.FieldStudentName, "name"}
	titleKeys     = []string{models.FieldTitle, models.FieldProjectTitle}

	// RequiredColumns lists the column groups every roster must carry. Each
	// group is satisfied by any one of its aliases.
	RequiredColumns = [][]string{
		recipientKeys,
		{models.FieldGender},
		{models.FieldStartDate},
		{models.FieldEndDate},
		{models.FieldSupervisorName},
		titleKeys,
		{models.FieldInstituteName},
	}

	salutationRegex = regexp.MustCompile(`(?i)^(mrs|mr|ms|dr)\.\s*`)

	inputDateLayouts = []string{
		"2006-01-02",
		"02-01-2006",
		"02/01/2006",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"01-02-06",
		"1/2/06",
		"2-Jan-2006",
	}

	errBlank = errors.New("value is empty")
)

// reservedColumns are consumed by the typed fields and never become attributes.
var reservedColumns = map[string]bool{
	models.FieldRecipientName: true, models.FieldStudentName: true, "name": true,
	models.FieldGender: true, models.FieldStartDate: true, models.FieldEndDate: true,
	models.FieldSupervisorName: true, models.FieldTitle: true, models.FieldProjectTitle: true,
	models.FieldInstituteName: true,
	models.FieldCertificateNumber: true, models.FieldCertificateDate: true,
	models.FieldAccessSecret: true, models.FieldDownloadLink: true,
	models.FieldBareName: true, models.FieldSalutationName: true,
}

// MissingColumns returns the required column groups absent from the table,
// named by their primary alias.
func MissingColumns(t *models.Table) []string {
	var missing []string
	for _, group := range RequiredColumns {
		if !t.HasColumn(group...) {
			missing = append(missing, group[0])
		}
	}
	return missing
}

// Normalize turns one raw row into a canonical Record. It does no I/O.
func Normalize(row models.RawRow) (*models.Record, error) {
	rec := &models.Record{
		Line:           row.Line,
		RecipientName:  collapseSpace(row.Get(recipientKeys...)),
		InstituteName:  strings.TrimSpace(row.Get(models.FieldInstituteName)),
		SupervisorName: strings.TrimSpace(row.Get(models.FieldSupervisorName)),
		Title:          strings.TrimSpace(row.Get(titleKeys...)),
		Gender:         normalizeGender(row.Get(models.FieldGender)),
		Attributes:     map[string]string{},
	}

	for _, req := range []struct{ field, value string }{
		{models.FieldRecipientName, rec.RecipientName},
		{models.FieldInstituteName, rec.InstituteName},
		{models.FieldSupervisorName, rec.SupervisorName},
		{models.FieldTitle, rec.Title},
	} {
		if req.value == "" {
			return nil, fmt.Errorf("%s: %w", req.field, errBlank)
		}
	}

	start, err := parseInputDate(row.Get(models.FieldStartDate))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", models.FieldStartDate, err)
	}
	end, err := parseInputDate(row.Get(models.FieldEndDate))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", models.FieldEndDate, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end_date %s is before start_date %s", end.Format(DateLayout), start.Format(DateLayout))
	}
	rec.StartDate = start.Format(DateLayout)
	rec.EndDate = end.Format(DateLayout)

	rec.BareName = BareName(rec.RecipientName)
	rec.SalutationName = SalutationName(rec.BareName, rec.Gender)

	for k, v := range row.Values {
		if reservedColumns[k] {
			continue
		}
		rec.Attributes[k] = strings.TrimSpace(v)
	}
	return rec, nil
}

// BareName strips one leading salutation such as "Mr." or "Dr.".
func BareName(name string) string {
	return strings.TrimSpace(salutationRegex.ReplaceAllString(strings.TrimSpace(name), ""))
}

// SalutationName prefixes the bare name according to gender.
func SalutationName(bare, gender string) string {
	switch gender {
	case "M":
		return "Mr. " + bare
	case "F":
		return "Ms. " + bare
	default:
		return bare
	}
}

func normalizeGender(g string) string {
	g = strings.TrimSpace(g)
	if g == "" {
		return ""
	}
	return strings.ToUpper(string([]rune(g)[:1]))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseInputDate accepts the layouts spreadsheets and CSV exports commonly
// produce, plus raw Excel serial day numbers.
func parseInputDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errBlank
	}
	for _, layout := range inputDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		// Excel's day zero is 1899-12-30 once the 1900 leap-year bug is accounted for.
		base := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
		return base.AddDate(0, 0, int(serial)), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
