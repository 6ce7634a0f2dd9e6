package converter

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrFileNotFound indicates the input file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrUnsupportedFormat indicates the input extension is not a spreadsheet.
	ErrUnsupportedFormat = errors.New("unsupported file type")

	// ErrCorruptWorkbook indicates the spreadsheet container could not be read.
	ErrCorruptWorkbook = errors.New("corrupt workbook")

	// ErrFileLocked indicates the input or output is held by another process.
	ErrFileLocked = errors.New("file is locked by another process")

	// ErrNoData indicates the worksheet has no data rows below the header.
	ErrNoData = errors.New("no data rows")

	// ErrNoHeaders indicates row 1 of the worksheet has no column headers.
	ErrNoHeaders = errors.New("no headers")
)

// ConversionError is returned for every failed conversion.
type ConversionError struct {
	Op   string // "open", "read", "write"
	Path string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func newConversionError(op, path string, err error) *ConversionError {
	return &ConversionError{Op: op, Path: path, Err: classify(err)}
}

// lockedPatterns are the messages the OS and SQLite use for files held by
// someone else.
var lockedPatterns = []string{
	"used by another process",
	"cannot access the file",
	"database is locked",
	"resource busy",
	"text file busy",
	"sharing violation",
}

// classify attaches a sentinel to known failure signatures so callers can
// use errors.Is.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFileNotFound), errors.Is(err, ErrCorruptWorkbook),
		errors.Is(err, ErrFileLocked), errors.Is(err, ErrNoData),
		errors.Is(err, ErrNoHeaders), errors.Is(err, ErrUnsupportedFormat):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrFileNotFound, err)
	case isCorrupt(err):
		return fmt.Errorf("%w: %w", ErrCorruptWorkbook, err)
	}

	msg := strings.ToLower(err.Error())
	for _, p := range lockedPatterns {
		if strings.Contains(msg, p) {
			return fmt.Errorf("%w: %w", ErrFileLocked, err)
		}
	}
	return err
}

func isCorrupt(err error) bool {
	var syntaxErr *xml.SyntaxError
	return errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, zip.ErrAlgorithm) ||
		errors.Is(err, excelize.ErrWorkbookFileFormat) ||
		errors.As(err, &syntaxErr)
}
