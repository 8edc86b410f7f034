package genotype

import (
	"errors"

	"crossgeno/internal/failure"
	"crossgeno/pkg/domain"
)

// Builder folds classified rows into a population document.
type Builder struct {
	Accessions Normalizer
}

// Build runs the chromosome, position, parent and genotype passes in order.
// The first failing row aborts the build and no document is returned.
func (b Builder) Build(id string, table Classified) (*domain.PopulationDocument, error) {
	doc := &domain.PopulationDocument{
		ID:      id,
		Markers: make(map[string]*domain.MarkerEntry),
	}
	if err := b.addChromosomes(doc, table.Chromosomes); err != nil {
		return nil, err
	}
	if err := b.addMappingPositions(doc, table.Positions); err != nil {
		return nil, err
	}
	parentA, err := parentName(table.ParentA)
	if err != nil {
		return nil, err
	}
	parentB, err := parentName(table.ParentB)
	if err != nil {
		return nil, err
	}
	doc.ParentA = parentA
	doc.ParentB = parentB
	doc.PopulationName = domain.PopulationName(parentA, parentB)

	for _, row := range table.Genotypes {
		if err := b.addGenotypes(doc, row); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (b Builder) addChromosomes(doc *domain.PopulationDocument, row ClassifiedRow) error {
	for _, f := range row.Row.Fields() {
		if f.Name == domain.IDField {
			continue
		}
		if f.Value == "" {
			return failure.AtRow(failure.MissingChromosome, row.Index, f.Name, "no chromosome for marker")
		}
		key, err := escapeAt(row.Index, f.Name)
		if err != nil {
			return err
		}
		doc.Markers[key] = &domain.MarkerEntry{
			Chromosome: f.Value,
			Genotypes:  make(map[string]string),
		}
	}
	return nil
}

func (b Builder) addMappingPositions(doc *domain.PopulationDocument, row ClassifiedRow) error {
	for _, f := range row.Row.Fields() {
		if f.Name == domain.IDField {
			continue
		}
		marker, err := lookupMarker(doc, row.Index, f.Name)
		if err != nil {
			return err
		}
		marker.MappingPosition = f.Value
	}
	return nil
}

func parentName(row ClassifiedRow) (string, error) {
	name, ok := row.Row.ID()
	if !ok || name == "" {
		return "", failure.AtRow(failure.MissingParentID, row.Index, domain.IDField, row.Role.String()+" row has no id")
	}
	return name, nil
}

func (b Builder) addGenotypes(doc *domain.PopulationDocument, row ClassifiedRow) error {
	raw, ok := row.Row.ID()
	if !ok || raw == "" {
		return failure.AtRow(failure.MissingAccession, row.Index, domain.IDField, "genotype row has no accession")
	}
	canonical, err := b.Accessions.Normalize(raw)
	if err != nil {
		return locate(err, row.Index, domain.IDField)
	}
	accession, err := escapeAt(row.Index, canonical)
	if err != nil {
		return err
	}
	for _, f := range row.Row.Fields() {
		if f.Name == domain.IDField {
			continue
		}
		marker, err := lookupMarker(doc, row.Index, f.Name)
		if err != nil {
			return err
		}
		marker.Genotypes[accession] = f.Value
	}
	return nil
}

func lookupMarker(doc *domain.PopulationDocument, rowIndex int, name string) (*domain.MarkerEntry, error) {
	key, err := escapeAt(rowIndex, name)
	if err != nil {
		return nil, err
	}
	marker, ok := doc.Markers[key]
	if !ok {
		return nil, failure.AtRow(failure.UnknownMarker, rowIndex, name, "marker is not in the chromosome row")
	}
	return marker, nil
}

func escapeAt(rowIndex int, name string) (string, error) {
	key, err := EscapeKey(name)
	if err != nil {
		return "", locate(err, rowIndex, name)
	}
	return key, nil
}

// locate attaches a row position to a failure raised without one.
func locate(err error, rowIndex int, field string) error {
	var fe *failure.Error
	if errors.As(err, &fe) && fe.Row < 0 {
		located := *fe
		located.Row = rowIndex
		located.Field = field
		return &located
	}
	return err
}
