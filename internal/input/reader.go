// Package input reads recipient rosters from CSV and XLSX files.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Lllllllleong/certgen/internal/models"
	"github.com/Lllllllleong/certgen/internal/services"
	"github.com/xuri/excelize/v2"
)

var columnSepRegex = regexp.MustCompile(`[\s\-]+`)

// NormalizeColumn maps a header cell to its canonical key:
// "Student Name " -> "student_name".
func NormalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Trim(columnSepRegex.ReplaceAllString(name, "_"), "_")
}

// Read loads a roster. The format follows the file extension. All failures are
// *services.InputError.
func Read(path string) (*models.Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &services.InputError{Path: path, Err: services.ErrMissingInput}
		}
		return nil, &services.InputError{Path: path, Err: err}
	}

	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		records, err = readCSV(path)
	case ".xlsx", ".xlsm":
		records, err = readXLSX(path)
	default:
		err = fmt.Errorf("unsupported input format %q", ext)
	}
	if err != nil {
		return nil, &services.InputError{Path: path, Err: err}
	}

	table, err := buildTable(path, records)
	if err != nil {
		return nil, &services.InputError{Path: path, Err: err}
	}
	slog.Debug("Input table read.", "path", path, "rows", len(table.Rows), "columns", len(table.Columns))
	return table, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// readXLSX returns the first sheet. Raw cell values are used so dates arrive
// as serial numbers instead of locale-formatted text.
func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// buildTable keys rows by normalized header. Line numbers are 1-based data
// rows; blank lines are dropped but still counted.
func buildTable(path string, records [][]string) (*models.Table, error) {
	if len(records) == 0 {
		return nil, errors.New("input is empty")
	}
	header := make([]string, len(records[0]))
	seen := make(map[string]bool, len(header))
	var columns []string
	for i, h := range records[0] {
		key := NormalizeColumn(h)
		header[i] = key
		if key == "" {
			continue
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate column %q", key)
		}
		seen[key] = true
		columns = append(columns, key)
	}
	if len(columns) == 0 {
		return nil, errors.New("header row is empty")
	}

	table := &models.Table{Source: path, Columns: columns}
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := models.RawRow{Line: i + 1, Values: make(map[string]string, len(columns))}
		for j, v := range rec {
			if j >= len(header) || header[j] == "" {
				continue
			}
			row.Values[header[j]] = strings.TrimSpace(v)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
