package models

import "time"

// Issuance is the registry entry for one published certificate.
// It is what a verifier looks up by certificate number.
type Issuance struct {
	Number          string    `firestore:"number" json:"number"`
	RecipientName   string    `firestore:"recipientName" json:"recipient_name"`
	Title           string    `firestore:"title,omitempty" json:"title,omitempty"`
	InstituteName   string    `firestore:"instituteName,omitempty" json:"institute_name,omitempty"`
	CertificateDate string    `firestore:"certificateDate" json:"certificate_date"`
	Artifact        string    `firestore:"artifact" json:"artifact"`
	FileHash        string    `firestore:"fileHash" json:"file_hash"`
	DownloadLink    string    `firestore:"downloadLink,omitempty" json:"download_link,omitempty"`
	IssuedAt        time.Time `firestore:"issuedAt" json:"issued_at"`
}
