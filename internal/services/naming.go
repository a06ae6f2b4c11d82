package services

import (
	"regexp"
	"strings"
)

// nonAlphanumericRegex collapses anything that is not a letter or digit.
var nonAlphanumericRegex = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// DefaultNamePrefix is used when no prefix is configured.
const DefaultNamePrefix = "int_cert"

// sanitizeName converts a recipient name into a file name component:
// salutation stripped, lower-cased, separators collapsed to "_".
func sanitizeName(name string) string {
	lower := strings.ToLower(BareName(name))
	sanitized := nonAlphanumericRegex.ReplaceAllString(lower, "_")
	sanitized = strings.Trim(sanitized, "_")

	const maxLength = 80
	if r := []rune(sanitized); len(r) > maxLength {
		sanitized = strings.Trim(string(r[:maxLength]), "_")
	}
	if sanitized == "" {
		return "recipient"
	}
	return sanitized
}

// ArtifactName is the published file name for a certificate. It is a pure
// function of the number and recipient name, so it is unique per batch.
func ArtifactName(prefix string, n CertificateNumber, recipient string) string {
	if prefix == "" {
		prefix = DefaultNamePrefix
	}
	return prefix + "_" + n.Slug() + "_" + sanitizeName(recipient) + ".pdf"
}

// PreviewName marks an unprotected preview so it can never be mistaken for a
// published certificate.
func PreviewName(final string) string {
	return "preview_" + final
}
