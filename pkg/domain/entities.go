// Package domain defines the submission, population and variety types shared
// by the table builder, the persistence layer and external callers.
package domain

import "sort"

// EntityType identifies the kind of record an archived object belongs to.
type EntityType string

// EntityPopulation identifies a population document (one accepted cross).
const EntityPopulation EntityType = "population"

// Storage field names shared by population parts and variety records.
const (
	FieldID              = "_id"
	FieldVersion         = "_version"
	FieldPopulationID    = "population_id"
	FieldPopulationName  = "population_name"
	FieldParentA         = "parent_a"
	FieldParentB         = "parent_b"
	FieldMarkers         = "markers"
	FieldPart            = "part"
	FieldParts           = "parts"
	FieldChromosome      = "chromosome"
	FieldMappingPosition = "mapping_position"
	FieldGenotypes       = "genotypes"
	FieldVarietyIDs      = "variety_ids"
)

// MarkerEntry holds the map position of a marker and the calls recorded for it.
type MarkerEntry struct {
	Chromosome      string            `json:"chromosome"`
	MappingPosition string            `json:"mapping_position"`
	Genotypes       map[string]string `json:"genotypes"`
}

// PopulationDocument is the aggregate built from one parental-cross submission.
// Marker and accession keys are stored escaped; LoadPopulation style readers
// return them unescaped.
type PopulationDocument struct {
	ID             string                  `json:"_id"`
	ParentA        string                  `json:"parent_a"`
	ParentB        string                  `json:"parent_b"`
	PopulationName string                  `json:"population_name"`
	Markers        map[string]*MarkerEntry `json:"markers"`
}

// MarkerNames returns the marker keys in ascending order.
func (d *PopulationDocument) MarkerNames() []string {
	names := make([]string, 0, len(d.Markers))
	for name := range d.Markers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VarietyRecord is the secondary index entry for one parental variety.
// PopulationName holds the variety's own name; VarietyIDs lists the population
// documents naming it as a parent, in submission order.
type VarietyRecord struct {
	ID             string   `json:"_id"`
	PopulationName string   `json:"population_name"`
	VarietyIDs     []string `json:"variety_ids"`
	Version        int64    `json:"_version"`
}

// PopulationName derives the cross name from its two parents.
func PopulationName(parentA, parentB string) string {
	return parentA + " x " + parentB
}
