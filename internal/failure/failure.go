// Package failure defines the error taxonomy shared by table building,
// persistence and variety indexing. Every fatal condition surfaces as a
// *Error whose Kind can be matched with errors.Is.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a submission failure.
type Kind string

const (
	MalformedTable      Kind = "malformed_table"
	MissingChromosome   Kind = "missing_chromosome"
	UnknownMarker       Kind = "unknown_marker"
	MissingParentID     Kind = "missing_parent_id"
	MissingAccession    Kind = "missing_accession"
	EscapeFailed        Kind = "escape_failed"
	NormalizationFailed Kind = "normalization_failed"
	PersistenceFailed   Kind = "persistence_failed"
	AmbiguousVariety    Kind = "ambiguous_variety"
)

// Error lets a bare Kind act as an errors.Is target.
func (k Kind) Error() string { return string(k) }

// Error is a classified failure with an optional location and cause.
type Error struct {
	Kind   Kind
	Row    int    // table row index, -1 when not row specific
	Field  string // field name, empty when not field specific
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Row >= 0 {
		fmt.Fprintf(&b, " (row %d", e.Row)
		if e.Field != "" {
			fmt.Fprintf(&b, ", field %q", e.Field)
		}
		b.WriteString(")")
	} else if e.Field != "" {
		fmt.Fprintf(&b, " (field %q)", e.Field)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches both Kind targets and *Error targets of the same kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return t != nil && e.Kind == t.Kind
	}
	return false
}

// New returns an error of kind k that is not tied to a row.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Row: -1, Detail: fmt.Sprintf(format, args...)}
}

// AtRow returns an error of kind k located at row and field.
func AtRow(k Kind, row int, field, detail string) *Error {
	return &Error{Kind: k, Row: row, Field: field, Detail: detail}
}

// Wrap classifies err as kind k. A nil err yields nil.
func Wrap(k Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Row: -1, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	var k Kind
	if errors.As(err, &k) {
		return k, true
	}
	return "", false
}
