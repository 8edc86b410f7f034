package genotype

import (
	"strings"

	"crossgeno/internal/failure"
)

// EscapedDot replaces every '.' in marker and accession names so they can be
// used as document field names.
const EscapedDot = "[dot]"

// EscapeKey returns the storage-safe form of a field name.
func EscapeKey(raw string) (string, error) {
	if raw == "" {
		return "", failure.New(failure.EscapeFailed, "empty field name")
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return "", failure.New(failure.EscapeFailed, "field name %q contains a NUL byte", raw)
	}
	if !strings.Contains(raw, ".") {
		return raw, nil
	}
	return strings.ReplaceAll(raw, ".", EscapedDot), nil
}

// UnescapeKey reverses EscapeKey. Names that already contained the
// placeholder before escaping cannot be told apart and come back with dots.
func UnescapeKey(escaped string) string {
	if !strings.Contains(escaped, EscapedDot) {
		return escaped
	}
	return strings.ReplaceAll(escaped, EscapedDot, ".")
}
