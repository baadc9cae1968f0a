package store

import (
	"strings"
	"time"
)

// prefixed qualifies a column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// prefixScanner scans one leading timestamp column before handing the
// remaining columns to a row scanner.
type prefixScanner struct {
	rows  rowScanner
	first *time.Time
}

func (s prefixScanner) Scan(dest ...interface{}) error {
	return s.rows.Scan(append([]interface{}{s.first}, dest...)...)
}
