package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format selects the output sink of a conversion.
type Format int

const (
	FormatDatabase Format = iota
	FormatJSONLines
)

// Formats lists every sink in display order.
var Formats = []Format{FormatDatabase, FormatJSONLines}

// SpreadsheetExtensions are the input extensions accepted for conversion.
var SpreadsheetExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm"}

func (f Format) String() string {
	switch f {
	case FormatDatabase:
		return "db"
	case FormatJSONLines:
		return "jsonl"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Label is the human readable name shown in the UI.
func (f Format) Label() string {
	switch f {
	case FormatDatabase:
		return "SQLite database (.db)"
	case FormatJSONLines:
		return "JSON Lines (.jsonl)"
	}
	return f.String()
}

// Extension returns the output file extension including the dot.
func (f Format) Extension() string {
	return "." + f.String()
}

// ParseFormat accepts the names used on the command line and in config.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "db", "sqlite", "database":
		return FormatDatabase, nil
	case "jsonl", "jsonlines", "ndjson":
		return FormatJSONLines, nil
	}
	return 0, fmt.Errorf("unknown output format %q (must be db or jsonl)", s)
}

// IsSpreadsheet reports whether path has one of the accepted spreadsheet
// extensions. Content is not inspected.
func IsSpreadsheet(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SpreadsheetExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// OutputPath builds the output file path inside outputDir from the input's
// base name.
func OutputPath(inputPath, outputDir string, format Format) string {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, base+format.Extension())
}

type ConversionRequest struct {
	InputPath  string
	OutputPath string
	Format     Format
}

type ConversionResult struct {
	InputFile   string
	OutputFile  string
	Format      Format
	Columns     []string
	RowsWritten int
}

// FileData is a preview of a workbook's first sheet.
type FileData struct {
	SheetName string
	Headers   []string
	Rows      [][]string
	Size      int64
}
