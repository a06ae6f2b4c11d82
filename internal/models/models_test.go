package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawRowGet(t *testing.T) {
	row := RawRow{Line: 2, Values: map[string]string{
		"recipient_name": "   ",
		"student_name":   "  A B ",
		"title":          "Widgets",
	}}
	assert.Equal(t, "A B", row.Get("recipient_name", "student_name", "name"))
	assert.Equal(t, "Widgets", row.Get("title", "project_title"))
	assert.Empty(t, row.Get("gender"))
}

func TestRecordAttributeKeys(t *testing.T) {
	r := &Record{Attributes: map[string]string{"grade": "A", "cohort": "2024", "mentor": ""}}
	assert.Equal(t, []string{"cohort", "grade", "mentor"}, r.AttributeKeys())
	assert.Empty(t, (&Record{}).AttributeKeys())
}

func TestRecordAssignOnce(t *testing.T) {
	r := &Record{}
	assert.NoError(t, r.AssignNumber("2024/0008", "01-08-2024"))
	assert.ErrorIs(t, r.AssignNumber("2024/0009", "01-08-2024"), ErrNumberAssigned)
	assert.NoError(t, r.AssignArtifact("abc", "/out/a.pdf"))
	assert.ErrorIs(t, r.AssignArtifact("def", "/out/b.pdf"), ErrArtifactAssigned)
	assert.Equal(t, "2024/0008", r.Fields()[FieldCertificateNumber])
}
