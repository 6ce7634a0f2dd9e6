package converter

import (
	"errors"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// sheetReader streams the first worksheet of a workbook one row at a time.
// Blank rows before the first data row and after the last one are dropped;
// blank rows in between come back as all-empty rows.
type sheetReader struct {
	f     *excelize.File
	sheet string
	rows  *excelize.Rows

	rowNum    int // worksheet row most recently read, 1-based
	totalRows int // from the sheet dimension, 0 when unknown
	totalCols int

	width        int
	started      bool
	pendingBlank int
	next         []string
}

func openSheet(path string) (*sheetReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}

	sheet := f.GetSheetName(0)
	if sheet == "" {
		f.Close()
		return nil, ErrNoData
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &sheetReader{f: f, sheet: sheet, rows: rows}
	r.totalCols, r.totalRows = sheetDimension(f, sheet)
	return r, nil
}

// sheetDimension parses the used range recorded in the sheet, e.g. "A1:D20".
func sheetDimension(f *excelize.File, sheet string) (cols, rows int) {
	dim, err := f.GetSheetDimension(sheet)
	if err != nil || dim == "" {
		return 0, 0
	}
	parts := strings.Split(dim, ":")
	cols, rows, err = excelize.CellNameToCoordinates(parts[len(parts)-1])
	if err != nil {
		return 0, 0
	}
	return cols, rows
}

func (r *sheetReader) Close() error {
	return errors.Join(r.rows.Close(), r.f.Close())
}

// readRaw returns the next worksheet row as excelize reports it.
func (r *sheetReader) readRaw() ([]string, bool, error) {
	if !r.rows.Next() {
		return nil, false, r.rows.Error()
	}
	r.rowNum++

	cols, err := r.rows.Columns()
	if err != nil {
		cols = r.readCells(r.rowNum)
	}
	return cols, true, nil
}

// readCells reads a row cell by cell, leaving cells that fail to read empty.
func (r *sheetReader) readCells(row int) []string {
	width := r.width
	if width == 0 {
		width = r.totalCols
	}
	cells := make([]string, width)
	for c := 1; c <= width; c++ {
		name, err := excelize.CoordinatesToCellName(c, row)
		if err != nil {
			continue
		}
		if v, err := r.f.GetCellValue(r.sheet, name); err == nil {
			cells[c-1] = v
		}
	}
	return cells
}

// Header reads worksheet row 1 and derives the column names.
func (r *sheetReader) Header() ([]string, error) {
	raw, ok, err := r.readRaw()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoData
	}

	headers := DeriveHeaders(raw)
	r.width = len(headers)
	if r.width > 0 {
		// The used range starts at the header, so blank rows below it are
		// interior unless nothing follows them.
		r.started = true
		return headers, nil
	}

	// Row 1 is blank. Report an empty sheet as such before blaming the header.
	if _, err := r.Next(); err != nil {
		if err == io.EOF {
			return nil, ErrNoData
		}
		return nil, err
	}
	return nil, ErrNoHeaders
}

// Next returns the next data row aligned to the header width, or io.EOF.
func (r *sheetReader) Next() ([]string, error) {
	for r.next == nil {
		raw, ok, err := r.readRaw()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, io.EOF
		}
		if isBlank(raw) {
			if r.started {
				r.pendingBlank++
			}
			continue
		}
		r.started = true
		r.next = r.align(raw)
	}

	if r.pendingBlank > 0 {
		r.pendingBlank--
		return make([]string, r.width), nil
	}
	row := r.next
	r.next = nil
	return row, nil
}

// Progress reports the fraction of the sheet read so far.
func (r *sheetReader) Progress() float64 {
	if r.totalRows <= 0 {
		return 0
	}
	p := float64(r.rowNum) / float64(r.totalRows)
	if p > 1 {
		p = 1
	}
	return p
}

func (r *sheetReader) align(raw []string) []string {
	row := make([]string, r.width)
	copy(row, raw)
	return row
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
