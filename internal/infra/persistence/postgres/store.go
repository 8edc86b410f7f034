// Package postgres provides the PostgreSQL document store. Payloads are
// stored as JSONB beside the promoted index columns.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"crossgeno/internal/docstore/core"
	"crossgeno/internal/infra/persistence/sqldoc"
)

// Compile-time contract assertion ensuring the store satisfies the document store interface.
var _ core.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/crossgeno?sslmode=disable"

	uniqueViolation = "23505"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect is the PostgreSQL flavour of the shared SQL document layout.
var Dialect = sqldoc.Dialect{
	Driver:      core.DriverPostgres,
	PayloadType: "JSONB",
	PayloadCast: "::jsonb",
	Placeholder: sqldoc.Dollar,
	IsDuplicate: isDuplicate,
}

// Store is a sqldoc.Store over a Postgres connection pool.
type Store struct {
	*sqldoc.Store
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), verifies connectivity and ensures the documents table.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	inner, err := sqldoc.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner}, nil
}

// DSNForDatabase builds a local DSN naming the given database.
func DSNForDatabase(database string) string {
	u := url.URL{Scheme: "postgres", Host: "localhost", Path: "/" + database, RawQuery: "sslmode=disable"}
	return u.String()
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
