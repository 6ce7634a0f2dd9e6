package converter

import (
	"strconv"
	"strings"
)

// headerWidth returns the number of columns up to and including the last
// non-blank cell of row.
func headerWidth(row []string) int {
	for i := len(row) - 1; i >= 0; i-- {
		if strings.TrimSpace(row[i]) != "" {
			return i + 1
		}
	}
	return 0
}

// DeriveHeaders turns the raw header row into column names. Blank cells
// become Column_<n> (1-based) and repeated names get a numeric suffix so
// every name is unique ignoring case. Other names keep their cell text as is.
func DeriveHeaders(raw []string) []string {
	width := headerWidth(raw)
	names := make([]string, width)
	for i := 0; i < width; i++ {
		name := raw[i]
		if strings.TrimSpace(name) == "" {
			name = "Column_" + strconv.Itoa(i+1)
		}
		names[i] = name
	}
	return dedupe(names)
}

// ColumnNames returns the SQL column names for derived headers: spaces and
// hyphens become underscores, then names are made unique again since
// sanitizing can merge two distinct headers.
func ColumnNames(headers []string) []string {
	cols := make([]string, len(headers))
	for i, h := range headers {
		cols[i] = SanitizeColumnName(h)
	}
	return dedupe(cols)
}

// SanitizeColumnName replaces spaces and hyphens with underscores.
func SanitizeColumnName(name string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		candidate := name
		for n := 2; seen[strings.ToLower(candidate)]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}
		seen[strings.ToLower(candidate)] = true
		out[i] = candidate
	}
	return out
}

// quoteIdent quotes a SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
