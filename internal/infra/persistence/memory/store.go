// Package memory provides an in-memory document store used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"crossgeno/internal/docstore/core"
)

// Compile-time contract assertion ensuring memory.Store satisfies the document store interface.
var _ core.Store = (*Store)(nil)

// Store keeps each collection as encoded payloads keyed by _id so callers
// never share mutable state with the store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
}

// NewStore constructs an empty in-memory document store.
func NewStore() *Store {
	return &Store{collections: make(map[string]map[string][]byte)}
}

// Driver reports the memory driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// InsertOne stores doc under its _id.
func (s *Store) InsertOne(ctx context.Context, collection string, doc core.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepared, payload, err := core.Prepare(doc, "")
	if err != nil {
		return err
	}
	id := prepared.GetString(core.KeyID)
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collection(collection)
	if _, exists := coll[id]; exists {
		return fmt.Errorf("%w: %s/%s", core.ErrDuplicateKey, collection, id)
	}
	coll[id] = payload
	return nil
}

// Find returns decoded copies of every matching document ordered by _id.
func (s *Store) Find(ctx context.Context, collection string, filter core.Filter) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := core.ValidateFilter(filter); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches, err := s.matching(collection, filter)
	if err != nil {
		return nil, err
	}
	out := make([]core.Document, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.doc)
	}
	return out, nil
}

// UpdateOne replaces the first matching document (by _id order).
func (s *Store) UpdateOne(ctx context.Context, collection string, filter core.Filter, replacement core.Document) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := core.ValidateFilter(filter); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	matches, err := s.matching(collection, filter)
	if err != nil || len(matches) == 0 {
		return 0, err
	}
	id := matches[0].id
	_, payload, err := core.Prepare(replacement, id)
	if err != nil {
		return 0, err
	}
	s.collections[collection][id] = payload
	return 1, nil
}

// DeleteOne removes the first matching document (by _id order).
func (s *Store) DeleteOne(ctx context.Context, collection string, filter core.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := core.ValidateFilter(filter); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	matches, err := s.matching(collection, filter)
	if err != nil || len(matches) == 0 {
		return 0, err
	}
	delete(s.collections[collection], matches[0].id)
	return 1, nil
}

// Len reports how many documents a collection holds.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

type match struct {
	id  string
	doc core.Document
}

// matching must be called with s.mu held.
func (s *Store) matching(collection string, filter core.Filter) ([]match, error) {
	coll := s.collections[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []match
	for _, id := range ids {
		doc, err := core.Decode(coll[id])
		if err != nil {
			return nil, err
		}
		if core.Matches(doc, filter) {
			out = append(out, match{id: id, doc: doc})
		}
	}
	return out, nil
}

func (s *Store) collection(name string) map[string][]byte {
	coll, ok := s.collections[name]
	if !ok {
		coll = make(map[string][]byte)
		s.collections[name] = coll
	}
	return coll
}
