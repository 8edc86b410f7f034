// Package genotype turns a parental-cross genotype table into a population
// document. It performs no I/O; persistence lives in internal/submission.
package genotype

import (
	"fmt"

	"crossgeno/internal/failure"
	"crossgeno/pkg/domain"
)

// Role is the structural meaning of a table row.
type Role int

const (
	RoleChromosomeMap Role = iota
	RolePositionMap
	RoleParentA
	RoleParentB
	RoleGenotype
)

func (r Role) String() string {
	switch r {
	case RoleChromosomeMap:
		return "chromosome_map"
	case RolePositionMap:
		return "position_map"
	case RoleParentA:
		return "parent_a"
	case RoleParentB:
		return "parent_b"
	case RoleGenotype:
		return "genotype"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// MinRows is the two map rows plus the two parent rows.
const MinRows = 4

// ClassifiedRow pairs a row with its role and its index in the submission.
type ClassifiedRow struct {
	Index int
	Role  Role
	Row   domain.Row
}

// Classified is a table whose rows have been assigned roles.
type Classified struct {
	Chromosomes ClassifiedRow
	Positions   ClassifiedRow
	ParentA     ClassifiedRow
	ParentB     ClassifiedRow
	Genotypes   []ClassifiedRow
}

// Classify assigns roles by position: 0 chromosome map, 1 genetic position
// map, 2 and 3 the parents, 4 onwards genotype rows in submission order.
func Classify(table domain.Table) (Classified, error) {
	if len(table) < MinRows {
		return Classified{}, failure.New(failure.MalformedTable, "table has %d rows, need at least %d", len(table), MinRows)
	}
	out := Classified{
		Chromosomes: ClassifiedRow{Index: 0, Role: RoleChromosomeMap, Row: table[0]},
		Positions:   ClassifiedRow{Index: 1, Role: RolePositionMap, Row: table[1]},
		ParentA:     ClassifiedRow{Index: 2, Role: RoleParentA, Row: table[2]},
		ParentB:     ClassifiedRow{Index: 3, Role: RoleParentB, Row: table[3]},
		Genotypes:   make([]ClassifiedRow, 0, len(table)-MinRows),
	}
	for i := MinRows; i < len(table); i++ {
		out.Genotypes = append(out.Genotypes, ClassifiedRow{Index: i, Role: RoleGenotype, Row: table[i]})
	}
	return out, nil
}
