// Package sqldoc stores documents in a single relational table, promoting the
// indexed fields to columns and keeping the full document as a JSON payload.
// The sqlite and postgres packages supply a Dialect and share this code.
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"crossgeno/internal/docstore/core"
)

var _ core.Store = (*Store)(nil)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	Driver      core.Driver
	PayloadType string             // column type for the JSON payload
	PayloadCast string             // optional cast applied to the payload placeholder, e.g. "::jsonb"
	Placeholder func(n int) string // placeholder for the n-th (1-based) argument
	IsDuplicate func(error) bool   // reports a primary key violation
}

// QuestionMark is the placeholder style used by sqlite.
func QuestionMark(int) string { return "?" }

// Dollar is the placeholder style used by postgres.
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

var columns = map[string]string{
	core.KeyID:             "id",
	core.KeyVersion:        "version",
	core.KeyPopulationName: "population_name",
	core.KeyPopulationID:   "population_id",
}

// Store implements core.Store on a database/sql handle.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New ensures the documents table exists and returns a store over db.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	for _, stmt := range s.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure documents table: %w", err)
		}
	}
	return s, nil
}

func (s *Store) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		population_name TEXT,
		population_id TEXT,
		version BIGINT NOT NULL DEFAULT 0,
		payload ` + s.dialect.PayloadType + ` NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
		`CREATE INDEX IF NOT EXISTS documents_population_name ON documents (collection, population_name)`,
		`CREATE INDEX IF NOT EXISTS documents_population_id ON documents (collection, population_id)`,
	}
}

// Driver reports the backend identifier.
func (s *Store) Driver() core.Driver { return s.dialect.Driver }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// InsertOne stores doc; a primary key violation maps to core.ErrDuplicateKey.
func (s *Store) InsertOne(ctx context.Context, collection string, doc core.Document) error {
	prepared, payload, err := core.Prepare(doc, "")
	if err != nil {
		return err
	}
	id := prepared.GetString(core.KeyID)
	a := &args{dialect: s.dialect}
	query := `INSERT INTO documents (collection, id, population_name, population_id, version, payload) VALUES (` +
		strings.Join([]string{
			a.add(collection),
			a.add(id),
			a.add(nullableString(prepared, core.KeyPopulationName)),
			a.add(nullableString(prepared, core.KeyPopulationID)),
			a.add(prepared.GetInt64(core.KeyVersion)),
			a.add(string(payload)) + s.dialect.PayloadCast,
		}, ", ") + `)`
	if _, err := s.db.ExecContext(ctx, query, a.values...); err != nil {
		if s.dialect.IsDuplicate != nil && s.dialect.IsDuplicate(err) {
			return fmt.Errorf("%w: %s/%s", core.ErrDuplicateKey, collection, id)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Find returns every matching document ordered by _id.
func (s *Store) Find(ctx context.Context, collection string, filter core.Filter) ([]core.Document, error) {
	a := &args{dialect: s.dialect}
	where, ok, err := a.where(collection, filter)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM documents WHERE `+where+` ORDER BY id`, a.values...)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Document
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := core.Decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// UpdateOne replaces the first matching document. The filter is re-applied
// on the update itself so a concurrent writer that changed the row first
// leaves this call with zero replaced documents.
func (s *Store) UpdateOne(ctx context.Context, collection string, filter core.Filter, replacement core.Document) (n int64, retErr error) {
	tx, id, err := s.claim(ctx, collection, filter)
	if err != nil || tx == nil {
		return 0, err
	}
	defer func() { retErr = finish(tx, retErr) }()

	prepared, payload, err := core.Prepare(replacement, id)
	if err != nil {
		return 0, err
	}
	a := &args{dialect: s.dialect}
	set := strings.Join([]string{
		"population_name = " + a.add(nullableString(prepared, core.KeyPopulationName)),
		"population_id = " + a.add(nullableString(prepared, core.KeyPopulationID)),
		"version = " + a.add(prepared.GetInt64(core.KeyVersion)),
		"payload = " + a.add(string(payload)) + s.dialect.PayloadCast,
	}, ", ")
	where, ok, err := a.where(collection, withID(filter, id))
	if err != nil || !ok {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE documents SET `+set+` WHERE `+where, a.values...)
	if err != nil {
		return 0, fmt.Errorf("update document: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOne removes the first matching document.
func (s *Store) DeleteOne(ctx context.Context, collection string, filter core.Filter) (n int64, retErr error) {
	tx, id, err := s.claim(ctx, collection, filter)
	if err != nil || tx == nil {
		return 0, err
	}
	defer func() { retErr = finish(tx, retErr) }()

	a := &args{dialect: s.dialect}
	where, ok, err := a.where(collection, withID(filter, id))
	if err != nil || !ok {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE `+where, a.values...)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return res.RowsAffected()
}

// claim opens a transaction and selects the id of the first matching
// document. A nil transaction means nothing matched.
func (s *Store) claim(ctx context.Context, collection string, filter core.Filter) (*sql.Tx, string, error) {
	a := &args{dialect: s.dialect}
	where, ok, err := a.where(collection, filter)
	if err != nil || !ok {
		return nil, "", err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin: %w", err)
	}
	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE `+where+` ORDER BY id LIMIT 1`, a.values...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, "", nil
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, "", fmt.Errorf("select document id: %w", err)
	}
	return tx, id, nil
}

func finish(tx *sql.Tx, err error) error {
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if cerr := tx.Commit(); cerr != nil {
		return fmt.Errorf("commit: %w", cerr)
	}
	return nil
}

func withID(filter core.Filter, id string) core.Filter {
	out := make(core.Filter, len(filter)+1)
	for k, v := range filter {
		out[k] = v
	}
	if _, ok := out[core.KeyID]; !ok {
		out[core.KeyID] = id
	}
	return out
}

func nullableString(doc core.Document, key string) any {
	if s, ok := doc[key].(string); ok {
		return s
	}
	return nil
}

type args struct {
	dialect Dialect
	values  []any
}

func (a *args) add(v any) string {
	a.values = append(a.values, v)
	return a.dialect.Placeholder(len(a.values))
}

// where renders the collection clause plus one equality per filter field,
// ordered by filter key (so _id and _version precede population_name).
// ok is false when a value can never match its column.
func (a *args) where(collection string, filter core.Filter) (string, bool, error) {
	if err := core.ValidateFilter(filter); err != nil {
		return "", false, err
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	clauses := []string{"collection = " + a.add(collection)}
	for _, k := range keys {
		col := columns[k]
		v := filter[k]
		if col == "version" {
			n, ok := integer(v)
			if !ok {
				return "", false, nil
			}
			clauses = append(clauses, col+" = "+a.add(n))
			continue
		}
		str, ok := v.(string)
		if !ok {
			return "", false, nil
		}
		clauses = append(clauses, col+" = "+a.add(str))
	}
	return strings.Join(clauses, " AND "), true, nil
}

func integer(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
	}
	return 0, false
}
