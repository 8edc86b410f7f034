package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPrepareAssignsIDAndCanonicalizes(t *testing.T) {
	type entry struct {
		Chromosome string `json:"chromosome"`
	}
	in := Document{"markers": map[string]entry{"m1": {Chromosome: "1A"}}, "parts": 2}
	doc, payload, err := Prepare(in, "")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if doc.GetString(KeyID) == "" {
		t.Fatalf("expected generated _id")
	}
	if _, ok := in[KeyID]; ok {
		t.Fatalf("input document must not be mutated")
	}
	markers, ok := doc["markers"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested struct to become a map, got %T", doc["markers"])
	}
	if m1, _ := markers["m1"].(map[string]any); m1["chromosome"] != "1A" {
		t.Fatalf("unexpected nested value %v", markers["m1"])
	}
	if _, ok := doc["parts"].(json.Number); !ok {
		t.Fatalf("expected json.Number, got %T", doc["parts"])
	}
	if size, _ := Size(doc); size != len(payload) {
		t.Fatalf("payload length %d differs from size %d", len(payload), size)
	}
}

func TestPrepareForcesGivenID(t *testing.T) {
	doc, _, err := Prepare(Document{KeyID: "old", "a": "b"}, "new")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if doc.GetString(KeyID) != "new" {
		t.Fatalf("expected forced id, got %v", doc[KeyID])
	}
}

func TestPrepareRejectsInvalidKeys(t *testing.T) {
	cases := []Document{
		{"a.b": 1},
		{"$set": 1},
		{"nested": map[string]any{"x.y": 1}},
		{"list": []any{map[string]any{"$x": 1}}},
		{KeyID: 42},
	}
	for _, doc := range cases {
		if _, _, err := Prepare(doc, ""); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for %v, got %v", doc, err)
		}
	}
}

func TestValidateFilter(t *testing.T) {
	if err := ValidateFilter(Filter{KeyPopulationName: "A x B", KeyVersion: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateFilter(Filter{"markers": "x"}); !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("expected ErrUnsupportedFilter for unindexed field, got %v", err)
	}
	if err := ValidateFilter(Filter{KeyID: []string{"x"}}); !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("expected ErrUnsupportedFilter for non-scalar value, got %v", err)
	}
}

func TestMatchesComparesNumbersAcrossTypes(t *testing.T) {
	doc, _, err := Prepare(Document{KeyPopulationName: "A x B", KeyVersion: 2}, "v")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !Matches(doc, Filter{KeyVersion: int64(2), KeyPopulationName: "A x B"}) {
		t.Fatalf("expected json.Number 2 to match int64 2")
	}
	if Matches(doc, Filter{KeyVersion: 3}) {
		t.Fatalf("version 3 must not match")
	}
	if Matches(doc, Filter{KeyPopulationID: "x"}) {
		t.Fatalf("missing field must not match")
	}
	if !Matches(Document{KeyID: "a"}, Filter{KeyVersion: 0}) {
		t.Fatalf("missing _version compares as zero")
	}
	if Matches(Document{KeyID: "1"}, Filter{KeyID: 1}) {
		t.Fatalf("string and number must not match")
	}
}

func TestAccessorsAndSort(t *testing.T) {
	doc, _, err := Prepare(Document{"names": []string{"a", "b"}, KeyVersion: 7}, "id")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := doc.GetStrings("names"); len(got) != 2 || got[1] != "b" {
		t.Fatalf("GetStrings = %v", got)
	}
	if doc.GetInt64(KeyVersion) != 7 {
		t.Fatalf("GetInt64 = %d", doc.GetInt64(KeyVersion))
	}
	if doc.GetString("missing") != "" || doc.GetInt64("missing") != 0 || len(doc.GetStrings("missing")) != 0 {
		t.Fatalf("missing fields must yield zero values")
	}
	docs := []Document{{KeyID: "c"}, {KeyID: "a"}, {KeyID: "b"}}
	SortByID(docs)
	if docs[0].GetString(KeyID) != "a" || docs[2].GetString(KeyID) != "c" {
		t.Fatalf("unexpected order %v", docs)
	}
}
