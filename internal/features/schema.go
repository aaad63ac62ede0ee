package features

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySchema is returned when a schema has no feature names.
var ErrEmptySchema = errors.New("feature schema is empty")

// Schema is the ordered list of feature names a classifier expects. It is built
// once and never modified; the name index is precomputed for membership tests.
type Schema struct {
	names []string
	index map[string]int
}

// NewSchema validates and indexes an ordered list of feature names.
func NewSchema(names []string) (*Schema, error) {
	if len(names) == 0 {
		return nil, ErrEmptySchema
	}

	index := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("feature %d has an empty name", i)
		}
		if _, dup := index[n]; dup {
			return nil, fmt.Errorf("duplicate feature name %q", n)
		}
		index[n] = i
	}

	return &Schema{names: append([]string(nil), names...), index: index}, nil
}

// MustSchema is NewSchema for static schemas in tests and fixtures.
func MustSchema(names ...string) *Schema {
	s, err := NewSchema(names)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of features.
func (s *Schema) Len() int {
	return len(s.names)
}

// Names returns a copy of the feature names in order.
func (s *Schema) Names() []string {
	return append([]string(nil), s.names...)
}

// Index returns the position of a feature.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Has reports whether the schema contains a feature.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// HasPrefix reports whether any feature name starts with prefix.
func (s *Schema) HasPrefix(prefix string) bool {
	for _, n := range s.names {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

// IndicatorName builds the one-hot column name for a categorical value.
func IndicatorName(field, value string) string {
	return field + "_" + value
}
