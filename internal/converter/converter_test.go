package converter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nconklindev/xlport/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// writeWorkbook saves rows to Sheet1 of a new workbook. nil cells are left
// unset so they are absent from the sheet XML.
func writeWorkbook(t *testing.T, name string, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func convert(t *testing.T, input string, format types.Format) (*types.ConversionResult, string, error) {
	t.Helper()
	out := types.OutputPath(input, filepath.Join(t.TempDir(), "out"), format)
	res, err := Convert(context.Background(), types.ConversionRequest{
		InputPath:  input,
		OutputPath: out,
		Format:     format,
	}, nil)
	return res, out, err
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(b), "\n"), "every line ends with a newline")
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", sqliteDSN(path))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableColumns(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name, type FROM pragma_table_info('data') ORDER BY cid`)
	require.NoError(t, err)
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name, typ string
		require.NoError(t, rows.Scan(&name, &typ))
		assert.Equal(t, "TEXT", typ)
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())
	return cols
}

func TestConvert_JSONLines(t *testing.T) {
	input := writeWorkbook(t, "people.xlsx", [][]any{
		{"Name", "Age"},
		{"Alice", 30},
		{"Bob", nil},
	})

	res, out, err := convert(t, input, types.FormatJSONLines)
	require.NoError(t, err)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "{\"Name\":\"Alice\",\"Age\":\"30\"}\n{\"Name\":\"Bob\",\"Age\":\"\"}\n", string(b))

	assert.Equal(t, "people.jsonl", filepath.Base(res.OutputFile))
	assert.Equal(t, []string{"Name", "Age"}, res.Columns)
	assert.Equal(t, 2, res.RowsWritten)
}

func TestConvert_Database(t *testing.T) {
	input := writeWorkbook(t, "contacts.xlsx", [][]any{
		{"First Name", nil, "e-mail"},
		{"Alice", "x", "alice@example.com"},
		{"Bob", nil, "bob@example.com"},
		{"Carol"},
	})

	res, out, err := convert(t, input, types.FormatDatabase)
	require.NoError(t, err)
	assert.Equal(t, "contacts.db", filepath.Base(out))
	assert.Equal(t, 3, res.RowsWritten)

	db := openDB(t, out)
	assert.Equal(t, []string{"First_Name", "Column_2", "e_mail"}, tableColumns(t, db))

	rows, err := db.Query(`SELECT "First_Name", "Column_2", "e_mail" FROM data ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()

	var got [][]string
	for rows.Next() {
		var a, b, c string
		require.NoError(t, rows.Scan(&a, &b, &c))
		got = append(got, []string{a, b, c})
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, [][]string{
		{"Alice", "x", "alice@example.com"},
		{"Bob", "", "bob@example.com"},
		{"Carol", "", ""},
	}, got)
}

func TestConvert_DatabaseOverwrites(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.db")

	first := writeWorkbook(t, "report.xlsx", [][]any{
		{"A", "B"},
		{"1", "2"},
		{"3", "4"},
	})
	_, err := Convert(context.Background(), types.ConversionRequest{InputPath: first, OutputPath: out, Format: types.FormatDatabase}, nil)
	require.NoError(t, err)

	second := writeWorkbook(t, "report.xlsx", [][]any{
		{"C"},
		{"only"},
	})
	_, err = Convert(context.Background(), types.ConversionRequest{InputPath: second, OutputPath: out, Format: types.FormatDatabase}, nil)
	require.NoError(t, err)

	db := openDB(t, out)
	assert.Equal(t, []string{"C"}, tableColumns(t, db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM data`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestConvert_ValuesAreBound(t *testing.T) {
	hostile := `x'); DROP TABLE data; --`
	input := writeWorkbook(t, "hostile.xlsx", [][]any{
		{`we"ird`, "plain"},
		{hostile, `"quoted"`},
	})

	_, out, err := convert(t, input, types.FormatDatabase)
	require.NoError(t, err)

	db := openDB(t, out)
	assert.Equal(t, []string{`we"ird`, "plain"}, tableColumns(t, db))

	var a, b string
	require.NoError(t, db.QueryRow(`SELECT "we""ird", plain FROM data`).Scan(&a, &b))
	assert.Equal(t, hostile, a)
	assert.Equal(t, `"quoted"`, b)
}

func TestConvert_RowShapes(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
		want [][]string
	}{
		{
			name: "gaps inside a row stay in position",
			rows: [][]any{
				{"A", "B", "C"},
				{"x", nil, "z"},
				{nil, nil, "only c"},
			},
			want: [][]string{{"x", "", "z"}, {"", "", "only c"}},
		},
		{
			name: "interior blank row is kept",
			rows: [][]any{
				{"A", "B"},
				{"1", "2"},
				{},
				{"3"},
			},
			want: [][]string{{"1", "2"}, {"", ""}, {"3", ""}},
		},
		{
			name: "blank rows below the header are kept, trailing ones dropped",
			rows: [][]any{
				{"A"},
				{""},
				{""},
				{"first"},
				{"last"},
				{""},
				{""},
			},
			want: [][]string{{""}, {""}, {"first"}, {"last"}},
		},
		{
			name: "blank row right after the header",
			rows: [][]any{
				{"A"},
				{""},
				{"x"},
			},
			want: [][]string{{""}, {"x"}},
		},
		{
			name: "cells beyond the header are ignored",
			rows: [][]any{
				{"A"},
				{"1", "extra"},
			},
			want: [][]string{{"1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := writeWorkbook(t, "shapes.xlsx", tt.rows)
			res, out, err := convert(t, input, types.FormatJSONLines)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), res.RowsWritten)

			lines := readLines(t, out)
			require.Len(t, lines, len(tt.want))
			for i, line := range lines {
				var obj map[string]string
				require.NoError(t, json.Unmarshal([]byte(line), &obj))
				require.Len(t, obj, len(res.Columns))
				for c, key := range res.Columns {
					assert.Equal(t, tt.want[i][c], obj[key], "row %d column %q", i, key)
				}
			}
		})
	}
}

func TestConvert_HeaderNamesInJSON(t *testing.T) {
	input := writeWorkbook(t, "dupes.xlsx", [][]any{
		{"Name", "name", nil, "Total Amount"},
		{"a", "b", "c", "d"},
	})

	res, out, err := convert(t, input, types.FormatJSONLines)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "name_2", "Column_3", "Total Amount"}, res.Columns)

	lines := readLines(t, out)
	require.Len(t, lines, 1)
	assert.Equal(t, `{"Name":"a","name_2":"b","Column_3":"c","Total Amount":"d"}`, lines[0])
}

func TestConvert_HeaderTextKeptAsIs(t *testing.T) {
	input := writeWorkbook(t, "padded.xlsx", [][]any{
		{" Name ", "Age"},
		{"x", "1"},
	})

	res, out, err := convert(t, input, types.FormatJSONLines)
	require.NoError(t, err)
	assert.Equal(t, []string{" Name ", "Age"}, res.Columns)

	lines := readLines(t, out)
	require.Len(t, lines, 1)
	assert.Equal(t, `{" Name ":"x","Age":"1"}`, lines[0])
}

func TestConvert_JSONEscaping(t *testing.T) {
	value := "<a & b> \"q\" é\tend"
	input := writeWorkbook(t, "escape.xlsx", [][]any{
		{"Text"},
		{value},
	})

	_, out, err := convert(t, input, types.FormatJSONLines)
	require.NoError(t, err)

	lines := readLines(t, out)
	require.Len(t, lines, 1)
	assert.True(t, json.Valid([]byte(lines[0])))
	assert.Contains(t, lines[0], "<a & b>")
	assert.Contains(t, lines[0], "é")
	assert.Contains(t, lines[0], `\"q\"`)

	var obj map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &obj))
	assert.Equal(t, value, obj["Text"])
}

func TestConvert_Failures(t *testing.T) {
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.xlsx")
	require.NoError(t, os.WriteFile(corrupt, []byte("this is not a workbook"), 0644))

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{
			name:  "missing file",
			input: filepath.Join(dir, "missing.xlsx"),
			want:  ErrFileNotFound,
		},
		{
			name:  "unsupported extension",
			input: filepath.Join(dir, "data.csv"),
			want:  ErrUnsupportedFormat,
		},
		{
			name:  "corrupt workbook",
			input: corrupt,
			want:  ErrCorruptWorkbook,
		},
		{
			name:  "empty sheet",
			input: writeWorkbook(t, "empty.xlsx", nil),
			want:  ErrNoData,
		},
		{
			name:  "header only",
			input: writeWorkbook(t, "header.xlsx", [][]any{{"A", "B"}}),
			want:  ErrNoData,
		},
		{
			name:  "header followed by blank rows",
			input: writeWorkbook(t, "blank.xlsx", [][]any{{"A"}, {""}, {""}}),
			want:  ErrNoData,
		},
		{
			name:  "blank header row",
			input: writeWorkbook(t, "noheader.xlsx", [][]any{{}, {"1", "2"}}),
			want:  ErrNoHeaders,
		},
	}

	for _, tt := range tests {
		for _, format := range types.Formats {
			t.Run(tt.name+"/"+format.String(), func(t *testing.T) {
				res, out, err := convert(t, tt.input, format)
				require.Error(t, err)
				assert.Nil(t, res)
				assert.ErrorIs(t, err, tt.want)

				var convErr *ConversionError
				assert.True(t, errors.As(err, &convErr))

				_, statErr := os.Stat(out)
				assert.ErrorIs(t, statErr, os.ErrNotExist, "no output may be written")
			})
		}
	}
}

func TestConvert_OutputNotWritable(t *testing.T) {
	input := writeWorkbook(t, "ok.xlsx", [][]any{{"A"}, {"1"}})

	// A regular file where the output directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	for _, format := range types.Formats {
		_, err := Convert(context.Background(), types.ConversionRequest{
			InputPath:  input,
			OutputPath: types.OutputPath(input, filepath.Join(blocker, "out"), format),
			Format:     format,
		}, nil)

		var convErr *ConversionError
		require.True(t, errors.As(err, &convErr), "format %s", format)
		assert.Equal(t, "write", convErr.Op)
	}
}

// cancelAfter is a context whose Err starts reporting cancellation after n
// calls, so a conversion stops partway through its rows.
type cancelAfter struct {
	context.Context
	n int
}

func (c *cancelAfter) Err() error {
	if c.n == 0 {
		return context.Canceled
	}
	c.n--
	return nil
}

func TestConvert_FailureMidBatchLeavesNoOutput(t *testing.T) {
	rows := [][]any{{"N"}}
	for i := 0; i < 10; i++ {
		rows = append(rows, []any{i})
	}
	input := writeWorkbook(t, "partial.xlsx", rows)

	for _, format := range types.Formats {
		t.Run(format.String(), func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, "partial"+format.Extension())

			ctx := &cancelAfter{Context: context.Background(), n: 3}
			_, err := Convert(ctx, types.ConversionRequest{InputPath: input, OutputPath: out, Format: format}, nil)
			require.ErrorIs(t, err, context.Canceled)

			_, err = os.Stat(out)
			assert.ErrorIs(t, err, os.ErrNotExist)
			_, err = os.Stat(out + "-journal")
			assert.ErrorIs(t, err, os.ErrNotExist)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestSQLiteSink_RollbackOnWriteError(t *testing.T) {
	out := filepath.Join(t.TempDir(), "broken.db")
	ctx := context.Background()

	s, err := openSQLiteSink(ctx, out, []string{"A", "B"})
	require.NoError(t, err)
	require.NoError(t, s.WriteRow(ctx, []string{"1", "2"}))
	require.NoError(t, s.WriteRow(ctx, []string{"3", "4"}))
	require.Error(t, s.WriteRow(ctx, []string{"5"}))
	require.NoError(t, s.Close())

	_, err = os.Stat(out)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(out + "-journal")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConvert_DatabasePathNeedsEscaping(t *testing.T) {
	input := writeWorkbook(t, "plain.xlsx", [][]any{{"A"}, {"1"}, {"2"}})

	for _, name := range []string{"a?b.db", "c#d.db", "e%20f.db", "g h.db"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, name)

			res, err := Convert(context.Background(), types.ConversionRequest{InputPath: input, OutputPath: out, Format: types.FormatDatabase}, nil)
			require.NoError(t, err)
			assert.Equal(t, out, res.OutputFile)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, name, entries[0].Name())

			var n int
			require.NoError(t, openDB(t, out).QueryRow(`SELECT COUNT(*) FROM data`).Scan(&n))
			assert.Equal(t, 2, n)
		})
	}
}

func TestConvert_Progress(t *testing.T) {
	rows := [][]any{{"N"}}
	for i := 0; i < 20; i++ {
		rows = append(rows, []any{i})
	}
	input := writeWorkbook(t, "progress.xlsx", rows)

	progressChan := make(chan float64, 100)
	_, err := Convert(context.Background(), types.ConversionRequest{
		InputPath:  input,
		OutputPath: filepath.Join(t.TempDir(), "progress.jsonl"),
		Format:     types.FormatJSONLines,
	}, progressChan)
	require.NoError(t, err)
	close(progressChan)

	var last float64
	for p := range progressChan {
		assert.GreaterOrEqual(t, p, last)
		last = p
	}
	assert.Equal(t, 1.0, last)
}

func TestConvert_JSONLinesLeavesNoTempFiles(t *testing.T) {
	input := writeWorkbook(t, "tidy.xlsx", [][]any{{"A"}, {"1"}})
	dir := t.TempDir()

	_, err := Convert(context.Background(), types.ConversionRequest{
		InputPath:  input,
		OutputPath: filepath.Join(dir, "tidy.jsonl"),
		Format:     types.FormatJSONLines,
	}, nil)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tidy.jsonl", entries[0].Name())
}

func TestPreview(t *testing.T) {
	input := writeWorkbook(t, "preview.xlsx", [][]any{
		{"Name", nil, "City"},
		{"Alice", "x", "Oslo"},
		{"Bob"},
		{"Carol"},
	})

	data, err := Preview(input, 2)
	require.NoError(t, err)
	assert.Equal(t, "Sheet1", data.SheetName)
	assert.Equal(t, []string{"Name", "Column_2", "City"}, data.Headers)
	assert.Equal(t, [][]string{{"Alice", "x", "Oslo"}, {"Bob", "", ""}}, data.Rows)
	assert.Positive(t, data.Size)

	_, err = Preview(filepath.Join(t.TempDir(), "missing.xlsx"), 2)
	assert.ErrorIs(t, err, ErrFileNotFound)
}
