// Package core defines the document store abstraction used for population
// documents and variety records, independent of any backend.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Driver identifies a concrete document store implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Document is a schemaless record. Values must be JSON encodable.
type Document map[string]any

// Filter is a top-level equality match over the indexed fields.
type Filter map[string]any

// Indexed fields usable in a Filter.
const (
	KeyID             = "_id"
	KeyVersion        = "_version"
	KeyPopulationName = "population_name"
	KeyPopulationID   = "population_id"
)

var filterKeys = map[string]struct{}{
	KeyID:             {},
	KeyVersion:        {},
	KeyPopulationName: {},
	KeyPopulationID:   {},
}

// Store is the outbound interface to the document database.
type Store interface {
	// InsertOne stores doc; fails with ErrDuplicateKey if its _id exists.
	// A missing _id is generated.
	InsertOne(ctx context.Context, collection string, doc Document) error
	// Find returns every document matching filter, ordered by _id.
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// UpdateOne replaces the first document matching filter, keeping its _id.
	// It reports how many documents were replaced (0 or 1).
	UpdateOne(ctx context.Context, collection string, filter Filter, replacement Document) (int64, error)
	// DeleteOne removes the first document matching filter.
	DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error)
	Driver() Driver
	Close() error
}

var (
	// ErrDuplicateKey is returned when an insert collides with an existing _id.
	ErrDuplicateKey = errors.New("docstore: duplicate key")
	// ErrInvalidKey is returned for field names the backend cannot store.
	ErrInvalidKey = errors.New("docstore: invalid field name")
	// ErrUnsupportedFilter is returned for filters over non-indexed fields.
	ErrUnsupportedFilter = errors.New("docstore: unsupported filter")
)

// Encode serializes a document the way every backend stores it.
func Encode(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}

// Decode parses a stored payload. Numbers decode as json.Number.
func Decode(payload []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Size is the serialized size of doc in bytes.
func Size(doc Document) (int, error) {
	b, err := Encode(doc)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Canonical round-trips doc through its stored encoding so nested structs
// become plain maps and every number is a json.Number.
func Canonical(doc Document) (Document, []byte, error) {
	payload, err := Encode(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode document: %w", err)
	}
	out, err := Decode(payload)
	if err != nil {
		return nil, nil, err
	}
	if out == nil {
		out = Document{}
	}
	return out, payload, nil
}

// Prepare copies doc, sets its _id (to id when given, otherwise keeping the
// existing one or generating one), validates field names and returns the
// canonical document with its stored encoding.
func Prepare(doc Document, id string) (Document, []byte, error) {
	cp := make(Document, len(doc)+1)
	for k, v := range doc {
		cp[k] = v
	}
	switch {
	case id != "":
		cp[KeyID] = id
	case cp[KeyID] == nil:
		cp[KeyID] = uuid.NewString()
	}
	if s, ok := cp[KeyID].(string); !ok || s == "" {
		return nil, nil, fmt.Errorf("%w: _id must be a non-empty string", ErrInvalidKey)
	}
	out, payload, err := Canonical(cp)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateKeys(out); err != nil {
		return nil, nil, err
	}
	return out, payload, nil
}

// ValidateKeys rejects field names containing '.' or starting with '$' at any depth.
func ValidateKeys(doc Document) error {
	return validateValue(map[string]any(doc), "")
}

func validateValue(v any, path string) error {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if k == "" || strings.Contains(k, ".") || strings.HasPrefix(k, "$") {
				return fmt.Errorf("%w: %q at %q", ErrInvalidKey, k, path)
			}
			if err := validateValue(child, path+"/"+k); err != nil {
				return err
			}
		}
	case Document:
		return validateValue(map[string]any(t), path)
	case []any:
		for i, child := range t {
			if err := validateValue(child, path+"/"+strconv.Itoa(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateFilter ensures every filter key is indexed and every value scalar.
func ValidateFilter(f Filter) error {
	for k, v := range f {
		if _, ok := filterKeys[k]; !ok {
			return fmt.Errorf("%w: field %q", ErrUnsupportedFilter, k)
		}
		if _, ok := scalarKey(v); !ok {
			return fmt.Errorf("%w: value for %q is %T", ErrUnsupportedFilter, k, v)
		}
	}
	return nil
}

// Matches reports whether doc satisfies every clause of f. A missing
// _version compares as zero.
func Matches(doc Document, f Filter) bool {
	for k, want := range f {
		have, ok := doc[k]
		if !ok && k == KeyVersion {
			have, ok = int64(0), true
		}
		if !ok {
			return false
		}
		wk, wok := scalarKey(want)
		hk, hok := scalarKey(have)
		if !wok || !hok || wk != hk {
			return false
		}
	}
	return true
}

// scalarKey maps comparable scalars to a representation where equal strings
// and equal numbers of any Go numeric type collide.
func scalarKey(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return "s:" + t, true
	case bool:
		return "b:" + strconv.FormatBool(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return "n:" + strconv.FormatInt(i, 10), true
		}
		f, err := t.Float64()
		if err != nil {
			return "", false
		}
		return numberKey(f), true
	case int:
		return "n:" + strconv.FormatInt(int64(t), 10), true
	case int32:
		return "n:" + strconv.FormatInt(int64(t), 10), true
	case int64:
		return "n:" + strconv.FormatInt(t, 10), true
	case float64:
		return numberKey(t), true
	}
	return "", false
}

func numberKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return "n:" + strconv.FormatInt(int64(f), 10)
	}
	return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
}

// GetString returns a string field or "".
func (d Document) GetString(key string) string {
	s, _ := d[key].(string)
	return s
}

// GetInt64 returns a numeric field or 0.
func (d Document) GetInt64(key string) int64 {
	switch t := d[key].(type) {
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0
			}
			return int64(f)
		}
		return i
	case int:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	}
	return 0
}

// GetStrings returns a string-array field; non-string elements are skipped.
func (d Document) GetStrings(key string) []string {
	raw, _ := d[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SortByID orders documents by their _id.
func SortByID(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].GetString(KeyID) < docs[j].GetString(KeyID) })
}
