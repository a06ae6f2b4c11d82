package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArtifactName(t *testing.T) {
	n := CertificateNumber{Year: 2024, Counter: 8}
	tests := []struct {
		prefix, name, want string
	}{
		{"", "Mr. A B", "int_cert_2024_0008_a_b.pdf"},
		{"cert", "Dr. Jane  O'Neil-Smith", "cert_2024_0008_jane_o_neil_smith.pdf"},
		{"", "José Müller", "int_cert_2024_0008_josé_müller.pdf"},
		{"", "***", "int_cert_2024_0008_recipient.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ArtifactName(tt.prefix, n, tt.name), tt.name)
	}
}

func TestArtifactNameTruncatesLongNames(t *testing.T) {
	name := ArtifactName("", CertificateNumber{2024, 1}, strings.Repeat("ab ", 60))
	slug := strings.TrimSuffix(strings.TrimPrefix(name, "int_cert_2024_0001_"), ".pdf")
	assert.LessOrEqual(t, len([]rune(slug)), 80)
	assert.False(t, strings.HasSuffix(slug, "_"))
}

func TestPreviewName(t *testing.T) {
	assert.Equal(t, "preview_int_cert_2024_0008_a_b.pdf", PreviewName("int_cert_2024_0008_a_b.pdf"))
}
