package converter

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/nconklindev/xlport/internal/types"

	_ "modernc.org/sqlite"
)

// TableName is the table the database sink writes into.
const TableName = "data"

// sink receives data rows. Nothing is visible at the output path until
// Commit succeeds; Close releases resources and discards uncommitted work.
type sink interface {
	WriteRow(ctx context.Context, row []string) error
	Commit() error
	Close() error
}

func openSink(ctx context.Context, format types.Format, path string, headers []string) (sink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	switch format {
	case types.FormatDatabase:
		return openSQLiteSink(ctx, path, headers)
	case types.FormatJSONLines:
		return openJSONLSink(path, headers)
	}
	return nil, fmt.Errorf("unknown output format %v", format)
}

type sqliteSink struct {
	path      string
	db        *sql.DB
	tx        *sql.Tx
	stmt      *sql.Stmt
	committed bool
}

func openSQLiteSink(ctx context.Context, path string, headers []string) (_ *sqliteSink, err error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, err
	}
	// One connection so the transaction and the statement share it.
	db.SetMaxOpenConns(1)

	s := &sqliteSink{path: path, db: db}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	cols := ColumnNames(headers)
	defs := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		defs[i] = quoted[i] + " TEXT"
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(TableName), strings.Join(defs, ", "))
	if _, err = s.tx.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(TableName), strings.Join(quoted, ", "), placeholders)
	s.stmt, err = s.tx.PrepareContext(ctx, insert)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	return s, nil
}

func (s *sqliteSink) WriteRow(ctx context.Context, row []string) error {
	args := make([]any, len(row))
	for i, v := range row {
		args[i] = v
	}
	_, err := s.stmt.ExecContext(ctx, args...)
	return err
}

func (s *sqliteSink) Commit() error {
	if err := s.stmt.Close(); err != nil {
		return err
	}
	if err := s.tx.Commit(); err != nil {
		return err
	}
	s.committed = true
	return nil
}

func (s *sqliteSink) Close() error {
	var errs []error
	if !s.committed {
		if s.stmt != nil {
			s.stmt.Close()
		}
		if s.tx != nil {
			if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				errs = append(errs, err)
			}
		}
	}
	errs = append(errs, s.db.Close())
	if !s.committed {
		for _, p := range []string{s.path, s.path + "-journal"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// sqliteDSN returns a file: URI for path. The driver cuts a plain DSN at the
// first '?', so characters like '?', '#' and '%' in file names must be
// escaped.
func sqliteDSN(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths: file:/C:/dir/out.db
		p = "/" + p
	}
	return "file:" + (&url.URL{Path: p}).EscapedPath()
}

type jsonlSink struct {
	path      string
	tmp       *os.File
	w         *bufio.Writer
	keys      [][]byte
	buf       bytes.Buffer
	enc       *json.Encoder
	committed bool
}

func openJSONLSink(path string, headers []string) (*jsonlSink, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, err
	}

	s := &jsonlSink{path: path, tmp: tmp, w: bufio.NewWriter(tmp)}
	s.enc = json.NewEncoder(&s.buf)
	s.enc.SetEscapeHTML(false)

	s.keys = make([][]byte, len(headers))
	for i, h := range headers {
		k, err := s.encodeString(h)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.keys[i] = k
	}
	return s, nil
}

// encodeString returns the JSON encoding of v without HTML escaping.
func (s *jsonlSink) encodeString(v string) ([]byte, error) {
	s.buf.Reset()
	if err := s.enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.Clone(bytes.TrimSuffix(s.buf.Bytes(), []byte("\n"))), nil
}

// WriteRow writes one object with keys in column order. encoding/json sorts
// map keys, so the object is assembled by hand from encoded strings.
func (s *jsonlSink) WriteRow(_ context.Context, row []string) error {
	s.w.WriteByte('{')
	for i, v := range row {
		if i > 0 {
			s.w.WriteByte(',')
		}
		s.w.Write(s.keys[i])
		s.w.WriteByte(':')
		val, err := s.encodeString(v)
		if err != nil {
			return err
		}
		s.w.Write(val)
	}
	s.w.WriteByte('}')
	return s.w.WriteByte('\n')
}

func (s *jsonlSink) Commit() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if err := s.tmp.Chmod(0644); err != nil {
		return err
	}
	if err := s.tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(s.tmp.Name(), s.path); err != nil {
		return err
	}
	s.committed = true
	return nil
}

func (s *jsonlSink) Close() error {
	if s.committed {
		return nil
	}
	s.tmp.Close()
	if err := os.Remove(s.tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
