package submission

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"crossgeno/internal/docstore"
	"crossgeno/internal/failure"
	"crossgeno/pkg/domain"
)

// DefaultVarietyAttempts bounds the optimistic retry loop of Upsert.
const DefaultVarietyAttempts = 5

var varietyNamespace = uuid.MustParse("6f1c2a4e-8d53-5b0e-9a7c-3e2f4b1d9c80")

// VarietyID is the deterministic record id for a variety name. Concurrent
// first references to one name therefore collide on insert instead of
// creating two records.
func VarietyID(name string) string {
	return uuid.NewSHA1(varietyNamespace, []byte(name)).String()
}

// VarietyIndex maintains the variety name -> population ids index.
type VarietyIndex struct {
	Store       docstore.Store
	Collection  string
	MaxAttempts int
}

// Upsert appends populationID to the record for name, creating it when
// absent. Writes are compare-and-swap on _version; a lost race re-reads and
// tries again up to MaxAttempts times.
func (v VarietyIndex) Upsert(ctx context.Context, name, populationID string) error {
	attempts := v.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultVarietyAttempts
	}
	for attempt := 0; attempt < attempts; attempt++ {
		records, err := v.Store.Find(ctx, v.Collection, docstore.Filter{docstore.KeyPopulationName: name})
		if err != nil {
			return failure.Wrap(failure.PersistenceFailed, err, "query variety %q", name)
		}
		switch len(records) {
		case 0:
			err := v.Store.InsertOne(ctx, v.Collection, varietyDocument(VarietyID(name), name, []string{populationID}, 1))
			if err == nil {
				return nil
			}
			if !errors.Is(err, docstore.ErrDuplicateKey) {
				return failure.Wrap(failure.PersistenceFailed, err, "insert variety %q", name)
			}
		case 1:
			rec := recordFromDocument(records[0])
			ids := append(rec.VarietyIDs, populationID)
			filter := docstore.Filter{
				docstore.KeyID:             rec.ID,
				docstore.KeyPopulationName: name,
				docstore.KeyVersion:        rec.Version,
			}
			n, err := v.Store.UpdateOne(ctx, v.Collection, filter, varietyDocument(rec.ID, name, ids, rec.Version+1))
			if err != nil {
				return failure.Wrap(failure.PersistenceFailed, err, "update variety %q", name)
			}
			if n == 1 {
				return nil
			}
		default:
			return failure.New(failure.AmbiguousVariety, "%d records named %q", len(records), name)
		}
		if err := ctx.Err(); err != nil {
			return failure.Wrap(failure.PersistenceFailed, err, "upsert variety %q", name)
		}
	}
	return failure.New(failure.PersistenceFailed, "variety %q still contended after %d attempts", name, attempts)
}

// Lookup returns the record for name; ok is false when none exists.
func (v VarietyIndex) Lookup(ctx context.Context, name string) (domain.VarietyRecord, bool, error) {
	records, err := v.Store.Find(ctx, v.Collection, docstore.Filter{docstore.KeyPopulationName: name})
	if err != nil {
		return domain.VarietyRecord{}, false, failure.Wrap(failure.PersistenceFailed, err, "query variety %q", name)
	}
	switch len(records) {
	case 0:
		return domain.VarietyRecord{}, false, nil
	case 1:
		return recordFromDocument(records[0]), true, nil
	default:
		return domain.VarietyRecord{}, false, failure.New(failure.AmbiguousVariety, "%d records named %q", len(records), name)
	}
}

func varietyDocument(id, name string, ids []string, version int64) docstore.Document {
	return docstore.Document{
		domain.FieldID:             id,
		domain.FieldPopulationName: name,
		domain.FieldVarietyIDs:     ids,
		domain.FieldVersion:        version,
	}
}

// recordFromDocument tolerates records written without a _version, which
// compare as version 0.
func recordFromDocument(doc docstore.Document) domain.VarietyRecord {
	return domain.VarietyRecord{
		ID:             doc.GetString(domain.FieldID),
		PopulationName: doc.GetString(domain.FieldPopulationName),
		VarietyIDs:     doc.GetStrings(domain.FieldVarietyIDs),
		Version:        doc.GetInt64(domain.FieldVersion),
	}
}
