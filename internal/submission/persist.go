package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"crossgeno/internal/docstore"
	"crossgeno/internal/failure"
	"crossgeno/pkg/domain"
)

// DefaultMaxDocumentBytes is the largest serialized document the stores accept.
const DefaultMaxDocumentBytes = 16 * 1024 * 1024

// Persister writes Population Documents, splitting those whose serialized
// size exceeds MaxDocumentBytes into parts sharing one population_id.
type Persister struct {
	Store            docstore.Store
	Collection       string
	MaxDocumentBytes int
}

// PersistResult describes what was written.
type PersistResult struct {
	Parts   int
	PartIDs []string
	Bytes   int // serialized size of the unsplit document
}

// Persist stores doc. Either every part is inserted or, after a failed part,
// the parts already written are removed and PersistenceFailed is returned.
func (p Persister) Persist(ctx context.Context, doc *domain.PopulationDocument) (PersistResult, error) {
	whole := storageDocument(doc, doc.ID, 1, 1, doc.Markers)
	size, err := docstore.Size(whole)
	if err != nil {
		return PersistResult{}, failure.Wrap(failure.PersistenceFailed, err, "encode population %s", doc.ID)
	}
	limit := p.limit()
	if size <= limit {
		if err := p.Store.InsertOne(ctx, p.Collection, whole); err != nil {
			return PersistResult{}, failure.Wrap(failure.PersistenceFailed, err, "insert population %s", doc.ID)
		}
		return PersistResult{Parts: 1, PartIDs: []string{doc.ID}, Bytes: size}, nil
	}

	groups, err := partition(doc, limit)
	if err != nil {
		return PersistResult{}, err
	}
	res := PersistResult{Parts: len(groups), Bytes: size}
	for i, markers := range groups {
		partID := PartID(doc.ID, i+1)
		part := storageDocument(doc, partID, i+1, len(groups), markers)
		if err := fitPart(part, limit); err != nil {
			cleanupErr := p.compensate(ctx, res.PartIDs)
			return PersistResult{}, failure.Wrap(failure.PersistenceFailed, errors.Join(err, cleanupErr),
				"part %s of population %s", partID, doc.ID)
		}
		if err := p.Store.InsertOne(ctx, p.Collection, part); err != nil {
			cleanupErr := p.compensate(ctx, res.PartIDs)
			return PersistResult{}, failure.Wrap(failure.PersistenceFailed, errors.Join(err, cleanupErr),
				"insert part %d/%d of population %s", i+1, len(groups), doc.ID)
		}
		res.PartIDs = append(res.PartIDs, partID)
	}
	return res, nil
}

func (p Persister) limit() int {
	if p.MaxDocumentBytes > 0 {
		return p.MaxDocumentBytes
	}
	return DefaultMaxDocumentBytes
}

// fitPart checks the encoded size of a part against limit.
func fitPart(part docstore.Document, limit int) error {
	n, err := docstore.Size(part)
	if err != nil {
		return fmt.Errorf("encode part: %w", err)
	}
	if n > limit {
		return fmt.Errorf("encoded size %d exceeds %d bytes", n, limit)
	}
	return nil
}

// compensate deletes already inserted parts; failures are collected, not fatal.
func (p Persister) compensate(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if _, err := p.Store.DeleteOne(context.WithoutCancel(ctx), p.Collection, docstore.Filter{docstore.KeyID: id}); err != nil {
			errs = append(errs, fmt.Errorf("remove part %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// PartID names the n-th (1-based) part of a split population.
func PartID(populationID string, n int) string {
	return fmt.Sprintf("%s-p%04d", populationID, n)
}

func storageDocument(doc *domain.PopulationDocument, id string, part, parts int, markers map[string]*domain.MarkerEntry) docstore.Document {
	if markers == nil {
		markers = map[string]*domain.MarkerEntry{}
	}
	return docstore.Document{
		domain.FieldID:             id,
		domain.FieldPopulationID:   doc.ID,
		domain.FieldPart:           part,
		domain.FieldParts:          parts,
		domain.FieldParentA:        doc.ParentA,
		domain.FieldParentB:        doc.ParentB,
		domain.FieldPopulationName: doc.PopulationName,
		domain.FieldMarkers:        markers,
	}
}

// partition greedily fills parts with markers in key order. The envelope is
// sized with the widest part numbering that could occur so every part's
// real size is at most the estimate.
func partition(doc *domain.PopulationDocument, limit int) ([]map[string]*domain.MarkerEntry, error) {
	names := doc.MarkerNames()
	widest := len(names)
	if widest < 1 {
		widest = 1
	}
	envelope, err := docstore.Size(storageDocument(doc, PartID(doc.ID, widest), widest, widest, nil))
	if err != nil {
		return nil, failure.Wrap(failure.PersistenceFailed, err, "encode population %s", doc.ID)
	}
	if len(names) == 0 || envelope >= limit {
		return nil, failure.New(failure.PersistenceFailed,
			"population %s cannot be split: envelope needs %d of %d bytes", doc.ID, envelope, limit)
	}

	var groups []map[string]*domain.MarkerEntry
	current := map[string]*domain.MarkerEntry{}
	used := envelope
	for _, name := range names {
		cost, err := entrySize(name, doc.Markers[name])
		if err != nil {
			return nil, failure.Wrap(failure.PersistenceFailed, err, "encode marker %s", name)
		}
		if envelope+cost > limit {
			return nil, failure.New(failure.PersistenceFailed,
				"marker %s alone needs %d bytes, over the %d byte document limit", name, envelope+cost, limit)
		}
		sep := 0
		if len(current) > 0 {
			sep = 1 // comma between map members
		}
		if used+sep+cost > limit {
			groups = append(groups, current)
			current = map[string]*domain.MarkerEntry{}
			used, sep = envelope, 0
		}
		current[name] = doc.Markers[name]
		used += sep + cost
	}
	return append(groups, current), nil
}

// entrySize is the encoded length of `"name":{...}` inside the markers object.
func entrySize(name string, entry *domain.MarkerEntry) (int, error) {
	key, err := json.Marshal(name)
	if err != nil {
		return 0, err
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return 0, err
	}
	return len(key) + 1 + len(val), nil
}

// partNumber reads an integer counter from a stored part.
func partNumber(doc docstore.Document, key string) (int, error) {
	switch v := doc[key].(type) {
	case json.Number:
		n, err := strconv.Atoi(v.String())
		if err != nil {
			return 0, fmt.Errorf("%s is not an integer: %w", key, err)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("%s missing", key)
	default:
		return int(doc.GetInt64(key)), nil
	}
}
