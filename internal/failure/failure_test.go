package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{err: New(MalformedTable, "table has %d rows", 2), want: "malformed_table: table has 2 rows"},
		{err: AtRow(UnknownMarker, 4, "m3", "marker is not in the chromosome row"), want: `unknown_marker (row 4, field "m3"): marker is not in the chromosome row`},
		{err: AtRow(MissingParentID, 2, "", ""), want: "missing_parent_id (row 2)"},
		{err: &Error{Kind: EscapeFailed, Row: -1, Field: "a\x00b"}, want: `escape_failed (field "a\x00b")`},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestKindsMatchThroughWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("variety: %w", Wrap(PersistenceFailed, cause, "insert %s", "Paragon"))

	if !errors.Is(err, PersistenceFailed) {
		t.Fatalf("expected kind match")
	}
	if errors.Is(err, AmbiguousVariety) {
		t.Fatalf("unexpected kind match")
	}
	if !errors.Is(err, &Error{Kind: PersistenceFailed}) {
		t.Fatalf("expected *Error target match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if k, ok := KindOf(err); !ok || k != PersistenceFailed {
		t.Fatalf("KindOf = %v, %v", k, ok)
	}
	if _, ok := KindOf(cause); ok {
		t.Fatalf("plain errors have no kind")
	}
	if Wrap(PersistenceFailed, nil, "ignored") != nil {
		t.Fatalf("wrapping nil should yield nil")
	}
}
