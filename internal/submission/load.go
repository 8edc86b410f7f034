package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"crossgeno/internal/docstore"
	"crossgeno/internal/failure"
	"crossgeno/internal/genotype"
	"crossgeno/pkg/domain"
)

// ErrPopulationNotFound is returned when no stored part carries the id.
var ErrPopulationNotFound = errors.New("population not found")

// LoadPopulation reassembles the population document id from its stored
// parts. Marker and accession keys are returned unescaped.
func (s *Service) LoadPopulation(ctx context.Context, id string) (*domain.PopulationDocument, error) {
	var doc *domain.PopulationDocument
	err := s.run(ctx, OpLoadPopulation, func(ctx context.Context) error {
		var err error
		doc, err = s.loadPopulation(ctx, id)
		return err
	})
	return doc, err
}

func (s *Service) loadPopulation(ctx context.Context, id string) (*domain.PopulationDocument, error) {
	coll := s.settings.PopulationsCollection
	parts, err := s.store.Find(ctx, coll, docstore.Filter{docstore.KeyPopulationID: id})
	if err != nil {
		return nil, failure.Wrap(failure.PersistenceFailed, err, "query population %s", id)
	}
	if len(parts) == 0 {
		// documents written before part envelopes existed carry only _id
		parts, err = s.store.Find(ctx, coll, docstore.Filter{docstore.KeyID: id})
		if err != nil {
			return nil, failure.Wrap(failure.PersistenceFailed, err, "query population %s", id)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPopulationNotFound, id)
	}
	return assemble(id, parts)
}

func assemble(id string, parts []docstore.Document) (*domain.PopulationDocument, error) {
	first := parts[0]
	doc := &domain.PopulationDocument{
		ID:             id,
		ParentA:        first.GetString(domain.FieldParentA),
		ParentB:        first.GetString(domain.FieldParentB),
		PopulationName: first.GetString(domain.FieldPopulationName),
		Markers:        make(map[string]*domain.MarkerEntry),
	}

	total := 1
	if _, ok := first[domain.FieldParts]; ok {
		n, err := partNumber(first, domain.FieldParts)
		if err != nil {
			return nil, fmt.Errorf("population %s: %w", id, err)
		}
		total = n
	}
	if total != len(parts) {
		return nil, fmt.Errorf("population %s: found %d of %d parts", id, len(parts), total)
	}

	seen := make(map[int]bool, total)
	for _, part := range parts {
		n := 1
		if _, ok := part[domain.FieldPart]; ok {
			var err error
			if n, err = partNumber(part, domain.FieldPart); err != nil {
				return nil, fmt.Errorf("population %s: %w", id, err)
			}
		}
		if n < 1 || n > total || seen[n] {
			return nil, fmt.Errorf("population %s: unexpected part %d of %d", id, n, total)
		}
		seen[n] = true

		markers, err := decodeMarkers(part)
		if err != nil {
			return nil, fmt.Errorf("population %s part %d: %w", id, n, err)
		}
		for key, entry := range markers {
			name := genotype.UnescapeKey(key)
			if _, dup := doc.Markers[name]; dup {
				return nil, fmt.Errorf("population %s: marker %q stored in more than one part", id, name)
			}
			calls := make(map[string]string, len(entry.Genotypes))
			for accession, call := range entry.Genotypes {
				calls[genotype.UnescapeKey(accession)] = call
			}
			entry.Genotypes = calls
			doc.Markers[name] = entry
		}
	}
	return doc, nil
}

// decodeMarkers converts the generic markers object of a stored part back
// into typed entries.
func decodeMarkers(part docstore.Document) (map[string]*domain.MarkerEntry, error) {
	raw, ok := part[domain.FieldMarkers]
	if !ok || raw == nil {
		return map[string]*domain.MarkerEntry{}, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode markers: %w", err)
	}
	var markers map[string]*domain.MarkerEntry
	if err := json.Unmarshal(encoded, &markers); err != nil {
		return nil, fmt.Errorf("decode markers: %w", err)
	}
	for key, entry := range markers {
		if entry == nil {
			return nil, fmt.Errorf("marker %q is null", key)
		}
		if entry.Genotypes == nil {
			entry.Genotypes = map[string]string{}
		}
	}
	return markers, nil
}

// VarietyPopulations lists, in submission order, the ids of populations that
// name variety as a parent. An unknown variety yields an empty list.
func (s *Service) VarietyPopulations(ctx context.Context, name string) ([]string, error) {
	var ids []string
	err := s.run(ctx, OpVarietyPopulations, func(ctx context.Context) error {
		rec, ok, err := s.variety.Lookup(ctx, name)
		if err != nil {
			return err
		}
		ids = []string{}
		if ok {
			ids = rec.VarietyIDs
		}
		return nil
	})
	return ids, err
}
