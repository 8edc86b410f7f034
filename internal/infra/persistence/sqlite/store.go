// Package sqlite provides the embedded SQLite document store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"crossgeno/internal/docstore/core"
	"crossgeno/internal/infra/persistence/sqldoc"
)

const defaultPath = "crossgeno.db"

// Store is a sqldoc.Store over a single-connection SQLite database file.
type Store struct {
	*sqldoc.Store
	path string
}

var _ core.Store = (*Store)(nil)

// Dialect is the SQLite flavour of the shared SQL document layout.
var Dialect = sqldoc.Dialect{
	Driver:      core.DriverSQLite,
	PayloadType: "BLOB",
	Placeholder: sqldoc.QuestionMark,
	IsDuplicate: isDuplicate,
}

// NewStore opens (creating when needed) the database file at path.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; one connection keeps transactions from
	// failing with SQLITE_BUSY under concurrent submissions.
	db.SetMaxOpenConns(1)
	inner, err := sqldoc.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func isDuplicate(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
