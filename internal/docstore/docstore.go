// Package docstore re-exports the document store abstraction and selects a
// backend implementation.
package docstore

import (
	"context"
	"fmt"

	"crossgeno/internal/docstore/core"
	"crossgeno/internal/infra/persistence/memory"
	"crossgeno/internal/infra/persistence/postgres"
	"crossgeno/internal/infra/persistence/sqlite"
)

type (
	// Driver identifies a document store backend.
	Driver = core.Driver
	// Document is a schemaless stored record.
	Document = core.Document
	// Filter is an equality match over indexed fields.
	Filter = core.Filter
	// Store is the interface every backend implements.
	Store = core.Store
)

const (
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
)

// Indexed fields usable in a Filter.
const (
	KeyID             = core.KeyID
	KeyVersion        = core.KeyVersion
	KeyPopulationName = core.KeyPopulationName
	KeyPopulationID   = core.KeyPopulationID
)

var (
	ErrDuplicateKey      = core.ErrDuplicateKey
	ErrInvalidKey        = core.ErrInvalidKey
	ErrUnsupportedFilter = core.ErrUnsupportedFilter
)

// Size is the serialized size of doc as every backend stores it.
func Size(doc Document) (int, error) { return core.Size(doc) }

// Options selects and configures a backend.
type Options struct {
	Driver      Driver
	Database    string // database name; names the sqlite file and the default postgres database
	SQLitePath  string
	PostgresDSN string
}

// Open returns the configured backend. Driver defaults to sqlite.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		path := opts.SQLitePath
		if path == "" && opts.Database != "" {
			path = opts.Database + ".db"
		}
		return sqlite.NewStore(ctx, path)
	case DriverPostgres:
		dsn := opts.PostgresDSN
		if dsn == "" && opts.Database != "" {
			dsn = postgres.DSNForDatabase(opts.Database)
		}
		return postgres.NewStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// NewMemory returns an in-process store, mainly for tests.
func NewMemory() Store { return memory.NewStore() }
