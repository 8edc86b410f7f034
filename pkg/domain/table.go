package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// IDField is the reserved row field naming the row subject (parent or accession).
const IDField = "id"

// ErrInvalidTable reports a submission that is not an array of flat objects
// with scalar values.
var ErrInvalidTable = errors.New("invalid submission table")

// Field is one name/value cell of a row.
type Field struct {
	Name  string
	Value string
}

// Row is an ordered set of fields. Iteration follows submission order so
// builds are deterministic.
type Row struct {
	fields []Field
}

// NewRow builds a row from fields in the given order.
func NewRow(fields ...Field) Row {
	out := make([]Field, len(fields))
	copy(out, fields)
	return Row{fields: out}
}

// RowOf builds a row from alternating name, value pairs.
func RowOf(pairs ...string) Row {
	if len(pairs)%2 != 0 {
		panic("domain.RowOf: odd number of arguments")
	}
	fields := make([]Field, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields = append(fields, Field{Name: pairs[i], Value: pairs[i+1]})
	}
	return Row{fields: fields}
}

// Get returns the value of the named field. When a name repeats, the last
// occurrence wins.
func (r Row) Get(name string) (string, bool) {
	for i := len(r.fields) - 1; i >= 0; i-- {
		if r.fields[i].Name == name {
			return r.fields[i].Value, true
		}
	}
	return "", false
}

// ID returns the reserved id field.
func (r Row) ID() (string, bool) { return r.Get(IDField) }

// Fields returns a copy of the row's fields in order.
func (r Row) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len reports the number of fields.
func (r Row) Len() int { return len(r.fields) }

// MarshalJSON writes the row as an object preserving field order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping its field order. Numbers keep their
// literal text, null becomes the empty string, and nested values are rejected.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: row must be an object", ErrInvalidTable)
	}
	fields := make([]Field, 0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTable, err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected key %v", ErrInvalidTable, keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTable, err)
		}
		var value string
		switch v := valTok.(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case nil:
			value = ""
		default:
			return fmt.Errorf("%w: field %q must be a string or number", ErrInvalidTable, name)
		}
		fields = append(fields, Field{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	r.fields = fields
	return nil
}

// Table is the ordered row sequence of one submission.
type Table []Row

// DecodeTable reads a JSON array of row objects.
func DecodeTable(r io.Reader) (Table, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	table := make(Table, len(raw))
	for i, msg := range raw {
		if err := table[i].UnmarshalJSON(msg); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return table, nil
}
