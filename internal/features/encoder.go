package features

import (
	"errors"
	"fmt"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
)

var (
	// ErrMissingField means a record lacks a raw field that a schema column needs.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidValue means a numeric raw field could not be parsed.
	ErrInvalidValue = errors.New("invalid value")
)

// Numeric columns copied verbatim when the schema names them.
var numericFields = []string{dataset.ColTenure, dataset.ColMonthlyCharges}

// CategoricalFields are one-hot encoded as "<field>_<value>".
var CategoricalFields = []string{
	dataset.ColContract,
	dataset.ColInternetService,
	dataset.ColTechSupport,
	dataset.ColPaymentMethod,
}

// FieldError reports an encoding failure for one record. Row is the zero-based
// row in the source table, or -1 for a standalone record.
type FieldError struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Err   error  `json:"-"`
}

func (e *FieldError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("row %d: %s: %v", e.Row+1, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Vector is one encoded record aligned to a schema.
type Vector struct {
	schema *Schema
	values []float64
}

// Schema returns the schema the vector is aligned to.
func (v Vector) Schema() *Schema {
	return v.schema
}

// Len returns the vector width.
func (v Vector) Len() int {
	return len(v.values)
}

// Get returns the value of a named feature.
func (v Vector) Get(name string) (float64, bool) {
	if v.schema == nil {
		return 0, false
	}
	i, ok := v.schema.Index(name)
	if !ok {
		return 0, false
	}
	return v.values[i], true
}

// Values returns a copy of the raw values in schema order.
func (v Vector) Values() []float64 {
	return append([]float64(nil), v.values...)
}

// Map returns the vector as feature name to value.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.values))
	for i, n := range v.schema.names {
		out[n] = v.values[i]
	}
	return out
}

// NewVector wraps raw values. The width must match the schema.
func NewVector(schema *Schema, values []float64) (Vector, error) {
	if len(values) != schema.Len() {
		return Vector{}, fmt.Errorf("vector has %d values, schema has %d", len(values), schema.Len())
	}
	return Vector{schema: schema, values: append([]float64(nil), values...)}, nil
}

// plan is the per-schema encoding layout, computed once per Encode or batch.
type plan struct {
	schema       *Schema
	numeric      map[string]int
	total        int
	categoricals []string
	// indicator memoizes "<field>_<value>" lookups; -1 marks an unknown value.
	indicator map[string]map[string]int
}

func newPlan(s *Schema) *plan {
	p := &plan{
		schema:    s,
		numeric:   make(map[string]int),
		total:     -1,
		indicator: make(map[string]map[string]int),
	}
	for _, f := range numericFields {
		if i, ok := s.Index(f); ok {
			p.numeric[f] = i
		}
	}
	if i, ok := s.Index(dataset.ColTotalCharges); ok {
		p.total = i
	}
	for _, f := range CategoricalFields {
		if s.HasPrefix(f + "_") {
			p.categoricals = append(p.categoricals, f)
			p.indicator[f] = make(map[string]int)
		}
	}
	return p
}

func (p *plan) indicatorIndex(field, value string) int {
	cache := p.indicator[field]
	if i, ok := cache[value]; ok {
		return i
	}
	i, ok := p.schema.Index(IndicatorName(field, value))
	if !ok {
		i = -1
	}
	cache[value] = i
	return i
}

func (p *plan) encode(r dataset.Record, row int) ([]float64, error) {
	values := make([]float64, p.schema.Len())

	need := func(field string) (float64, error) {
		v, ok, err := r.Float(field)
		if !ok {
			return 0, &FieldError{Row: row, Field: field, Err: ErrMissingField}
		}
		if err != nil {
			return 0, &FieldError{Row: row, Field: field, Err: ErrInvalidValue}
		}
		return v, nil
	}

	for _, f := range numericFields {
		i, ok := p.numeric[f]
		if !ok {
			continue
		}
		v, err := need(f)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	// TotalCharges is always recomputed from tenure and monthly charge; any
	// stored total on the record is ignored.
	if p.total >= 0 {
		tenure, err := need(dataset.ColTenure)
		if err != nil {
			return nil, err
		}
		charge, err := need(dataset.ColMonthlyCharges)
		if err != nil {
			return nil, err
		}
		values[p.total] = tenure * charge
	}

	for _, f := range p.categoricals {
		raw, ok := r.Value(f)
		if !ok {
			return nil, &FieldError{Row: row, Field: f, Err: ErrMissingField}
		}
		// Unknown categories leave every indicator of the field at zero.
		if i := p.indicatorIndex(f, raw); i >= 0 {
			values[i] = 1
		}
	}

	return values, nil
}

// Encode builds the feature vector of one record. The result always has exactly
// schema.Len() values in schema order.
func Encode(r dataset.Record, s *Schema) (Vector, error) {
	values, err := newPlan(s).encode(r, -1)
	if err != nil {
		return Vector{}, err
	}
	return Vector{schema: s, values: values}, nil
}

// Matrix is a batch of encoded rows aligned to one schema. Rows[i] came from
// source row Source[i] of the input.
type Matrix struct {
	schema *Schema
	Rows   [][]float64
	Source []int
}

// Schema returns the schema of the matrix.
func (m Matrix) Schema() *Schema {
	return m.schema
}

// Len returns the number of rows.
func (m Matrix) Len() int {
	return len(m.Rows)
}

// Vector returns row i as a Vector.
func (m Matrix) Vector(i int) Vector {
	return Vector{schema: m.schema, values: m.Rows[i]}
}

// NewMatrix stacks vectors that share a schema.
func NewMatrix(s *Schema, vectors ...Vector) (Matrix, error) {
	m := Matrix{schema: s, Rows: make([][]float64, 0, len(vectors)), Source: make([]int, 0, len(vectors))}
	for i, v := range vectors {
		if v.schema != s {
			return Matrix{}, fmt.Errorf("vector %d has a different schema", i)
		}
		m.Rows = append(m.Rows, v.Values())
		m.Source = append(m.Source, i)
	}
	return m, nil
}

// EncodeBatch encodes every record. A record that fails is left out of the
// matrix and reported; the remaining rows are still encoded.
func EncodeBatch(records []dataset.Record, s *Schema) (Matrix, []*FieldError) {
	p := newPlan(s)
	m := Matrix{schema: s, Rows: make([][]float64, 0, len(records)), Source: make([]int, 0, len(records))}

	var failures []*FieldError
	for i, r := range records {
		values, err := p.encode(r, i)
		if err != nil {
			var fe *FieldError
			if errors.As(err, &fe) {
				failures = append(failures, fe)
				continue
			}
			failures = append(failures, &FieldError{Row: i, Err: err})
			continue
		}
		m.Rows = append(m.Rows, values)
		m.Source = append(m.Source, i)
	}

	return m, failures
}

// EncodeTable encodes every row of a table.
func EncodeTable(t *dataset.Table, s *Schema) (Matrix, []*FieldError) {
	return EncodeBatch(t.Records(), s)
}
