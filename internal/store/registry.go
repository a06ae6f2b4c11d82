package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/certgen/internal/models"
	"github.com/Lllllllleong/certgen/internal/services"
	_ "modernc.org/sqlite"
)

const issuanceSchema = `
CREATE TABLE IF NOT EXISTS issuances (
	number           TEXT PRIMARY KEY,
	recipient_name   TEXT NOT NULL,
	title            TEXT NOT NULL,
	institute_name   TEXT NOT NULL,
	certificate_date TEXT NOT NULL,
	artifact         TEXT NOT NULL,
	file_hash        TEXT NOT NULL,
	download_link    TEXT NOT NULL DEFAULT '',
	issued_at        TEXT NOT NULL
);`

// SQLiteRegistry is the default local issuance registry.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry opens (and creates, if needed) the database at path.
func NewSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; sqlite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(issuanceSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create issuance table: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

// Record inserts or replaces the issuance for iss.Number. Re-running a failed
// batch reissues the same numbers, so the latest artifact wins.
func (r *SQLiteRegistry) Record(ctx context.Context, iss models.Issuance) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO issuances (number, recipient_name, title, institute_name, certificate_date, artifact, file_hash, download_link, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET
			recipient_name = excluded.recipient_name,
			title = excluded.title,
			institute_name = excluded.institute_name,
			certificate_date = excluded.certificate_date,
			artifact = excluded.artifact,
			file_hash = excluded.file_hash,
			download_link = excluded.download_link,
			issued_at = excluded.issued_at`,
		iss.Number, iss.RecipientName, iss.Title, iss.InstituteName, iss.CertificateDate,
		iss.Artifact, iss.FileHash, iss.DownloadLink, iss.IssuedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record issuance %s: %w", iss.Number, err)
	}
	return nil
}

// Lookup returns services.ErrNotFound for numbers never issued.
func (r *SQLiteRegistry) Lookup(ctx context.Context, number string) (*models.Issuance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT number, recipient_name, title, institute_name, certificate_date, artifact, file_hash, download_link, issued_at
		FROM issuances WHERE number = ?`, number)

	var (
		iss      models.Issuance
		issuedAt string
	)
	err := row.Scan(&iss.Number, &iss.RecipientName, &iss.Title, &iss.InstituteName, &iss.CertificateDate,
		&iss.Artifact, &iss.FileHash, &iss.DownloadLink, &issuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issuance %s: %w", number, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up issuance %s: %w", number, err)
	}
	if iss.IssuedAt, err = time.Parse(time.RFC3339Nano, issuedAt); err != nil {
		return nil, fmt.Errorf("failed to parse issued_at for %s: %w", number, err)
	}
	return &iss, nil
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}
