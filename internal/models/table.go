package models

import "strings"

// RawRow is one input row keyed by normalized column name.
type RawRow struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed value of the first key whose value is not blank, so
// an empty primary column falls through to its aliases.
func (r RawRow) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.Values[k]); v != "" {
			return v
		}
	}
	return ""
}

// Table is a roster read from a CSV or XLSX file.
type Table struct {
	Source  string
	Columns []string
	Rows    []RawRow
}

// HasColumn reports whether any of the given column names is present.
func (t *Table) HasColumn(names ...string) bool {
	for _, c := range t.Columns {
		for _, n := range names {
			if c == n {
				return true
			}
		}
	}
	return false
}
