package services

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Lllllllleong/certgen/internal/models"
)

// LedgerEntry is one processed row of a batch.
type LedgerEntry struct {
	Record    *models.Record
	Line      int
	Published bool
	Err       error
}

// Registry records published certificates for later verification.
type Registry interface {
	Record(ctx context.Context, iss models.Issuance) error
	// Lookup returns ErrNotFound for unknown numbers.
	Lookup(ctx context.Context, number string) (*models.Issuance, error)
	Close() error
}

// Mirror copies published artifacts to shared storage and returns a link.
type Mirror interface {
	Upload(ctx context.Context, localPath, name string) (string, error)
	Close() error
}

// LedgerPath is "<input stem>_DB.csv" inside dir.
func LedgerPath(dir, input string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, stem+"_DB.csv")
}

var ledgerHead = []string{
	"row", models.FieldCertificateNumber, models.FieldCertificateDate,
	models.FieldRecipientName, models.FieldBareName, models.FieldGender,
	models.FieldInstituteName, models.FieldStartDate, models.FieldEndDate,
	models.FieldSupervisorName, models.FieldTitle,
}

var ledgerTail = []string{models.FieldAccessSecret, "artifact", models.FieldDownloadLink, "published", "error"}

// WriteLedger writes the whole ledger in one go, through a temp file and a
// rename, so readers never see a partial ledger.
func WriteLedger(path string, entries []LedgerEntry) error {
	extraCols := ledgerExtraColumns(entries)

	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"ledger-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create ledger temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	header := append(append(append([]string{}, ledgerHead...), extraCols...), ledgerTail...)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger header: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(ledgerRow(e, extraCols)); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write ledger row %d: %w", e.Line, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to publish ledger %s: %w", path, err)
	}
	return nil
}

// ledgerExtraColumns merges the attribute names of every record, in sorted
// order.
func ledgerExtraColumns(entries []LedgerEntry) []string {
	var cols []string
	seen := map[string]bool{}
	for _, e := range entries {
		if e.Record == nil {
			continue
		}
		for _, k := range e.Record.AttributeKeys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func ledgerRow(e LedgerEntry, extraCols []string) []string {
	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}
	r := e.Record
	if r == nil {
		r = &models.Record{}
	}
	row := []string{
		strconv.Itoa(e.Line), r.CertificateNumber, r.CertificateDate,
		r.RecipientName, r.BareName, r.Gender,
		r.InstituteName, r.StartDate, r.EndDate,
		r.SupervisorName, r.Title,
	}
	for _, k := range extraCols {
		row = append(row, r.Attributes[k])
	}
	artifact := ""
	if r.ArtifactPath != "" {
		artifact = filepath.Base(r.ArtifactPath)
	}
	return append(row, r.AccessSecret, artifact, r.DownloadLink, strconv.FormatBool(e.Published), errText)
}

// FileSHA256 returns the hex SHA-256 of a file.
func FileSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
