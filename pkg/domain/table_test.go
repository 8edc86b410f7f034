package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeTableKeepsFieldOrder(t *testing.T) {
	table, err := DecodeTable(strings.NewReader(`[
		{"zeta": "1", "alpha": 2.50, "mid": null},
		{"id": "Paragon", "b": "x", "a": "y"}
	]`))
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table))
	}
	var names []string
	for _, f := range table[0].Fields() {
		names = append(names, f.Name+"="+f.Value)
	}
	if got := strings.Join(names, ","); got != "zeta=1,alpha=2.50,mid=" {
		t.Fatalf("unexpected fields %s", got)
	}
	if id, ok := table[1].ID(); !ok || id != "Paragon" {
		t.Fatalf("unexpected id %q (%v)", id, ok)
	}
}

func TestDecodeTableRejectsNestedValues(t *testing.T) {
	cases := map[string]string{
		"not array":    `{"id": "x"}`,
		"row not obj":  `["x"]`,
		"nested obj":   `[{"id": {"a": 1}}]`,
		"nested array": `[{"id": [1]}]`,
		"boolean":      `[{"flag": true}]`,
		"truncated":    `[{"id": "x"`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeTable(strings.NewReader(body)); !errors.Is(err, ErrInvalidTable) {
				t.Fatalf("expected ErrInvalidTable, got %v", err)
			}
		})
	}
}

func TestRowGetLastOccurrenceWins(t *testing.T) {
	row := RowOf("m1", "AA", "m1", "BB")
	if v, _ := row.Get("m1"); v != "BB" {
		t.Fatalf("expected last value, got %q", v)
	}
	if _, ok := row.Get("m2"); ok {
		t.Fatalf("expected missing field")
	}
	if row.Len() != 2 {
		t.Fatalf("expected 2 fields, got %d", row.Len())
	}
}

func TestRowMarshalPreservesOrder(t *testing.T) {
	row := NewRow(Field{Name: "z", Value: "1"}, Field{Name: "a", Value: "<b>"})
	data, err := json.Marshal(Table{row})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Table
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	fields := back[0].Fields()
	if len(fields) != 2 || fields[0].Name != "z" || fields[1].Value != "<b>" {
		t.Fatalf("unexpected fields %+v", fields)
	}
}

func TestFieldsReturnsCopy(t *testing.T) {
	row := RowOf("id", "A")
	fields := row.Fields()
	fields[0].Value = "changed"
	if v, _ := row.ID(); v != "A" {
		t.Fatalf("row mutated through Fields: %q", v)
	}
}

func TestPopulationNameAndMarkerNames(t *testing.T) {
	if got := PopulationName("Paragon", "Watkins 1190"); got != "Paragon x Watkins 1190" {
		t.Fatalf("unexpected name %q", got)
	}
	doc := &PopulationDocument{Markers: map[string]*MarkerEntry{"m2": {}, "m10": {}, "m1": {}}}
	if got := strings.Join(doc.MarkerNames(), ","); got != "m1,m10,m2" {
		t.Fatalf("unexpected order %s", got)
	}
}
