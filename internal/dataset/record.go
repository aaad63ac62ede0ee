package dataset

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrNotFinite is returned by Record.Float for infinite values.
var ErrNotFinite = errors.New("value is not a finite number")

// isMissing reports whether a raw cell carries no value. NaN spellings count
// as missing, the same way CSV exports of dataframes write empty numbers.
func isMissing(raw string) bool {
	v := strings.TrimSpace(raw)
	if v == "" {
		return true
	}
	return strings.EqualFold(strings.TrimLeft(v, "+-"), "nan")
}

// parseFinite parses a non-missing cell and rejects infinities.
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrNotFinite
	}
	return v, nil
}

// Record is a single customer row keyed by column name. A Record is treated as a
// value: With returns a modified copy and never touches the receiver.
type Record struct {
	values map[string]string
}

// NewRecord builds a record from column/value pairs.
func NewRecord(values map[string]string) Record {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Record{values: cp}
}

// Value returns the trimmed cell for a column. ok is false when the column is
// absent, the cell is empty or it holds NaN.
func (r Record) Value(column string) (string, bool) {
	v, ok := r.values[column]
	if !ok || isMissing(v) {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Has reports whether the column exists on the record, empty or not.
func (r Record) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Float parses a numeric cell. ok is false when the cell is missing; err is set
// when it is present but not a finite number.
func (r Record) Float(column string) (v float64, ok bool, err error) {
	raw, ok := r.Value(column)
	if !ok {
		return 0, false, nil
	}
	v, err = parseFinite(raw)
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

// String returns the trimmed cell or an empty string.
func (r Record) String(column string) string {
	v, _ := r.Value(column)
	return v
}

// With returns a copy of the record with one column replaced.
func (r Record) With(column, value string) Record {
	cp := make(map[string]string, len(r.values)+1)
	for k, v := range r.values {
		cp[k] = v
	}
	cp[column] = value
	return Record{values: cp}
}

// Columns returns the record's column names in sorted order.
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r.values))
	for k := range r.values {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Map returns a copy of the underlying values.
func (r Record) Map() map[string]string {
	cp := make(map[string]string, len(r.values))
	for k, v := range r.values {
		cp[k] = v
	}
	return cp
}

// FormatFloat renders a number the way it is written back into a record.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
