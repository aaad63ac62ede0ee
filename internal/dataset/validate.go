package dataset

import (
	"fmt"
	"strings"
)

// Severity tells callers whether a problem blocks analysis.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityWarning Severity = "warning"
)

// ProblemKind identifies a class of dataset problem.
type ProblemKind string

const (
	KindMissingColumns ProblemKind = "missing_columns"
	KindMissingValues  ProblemKind = "missing_values"
	KindNonNumeric     ProblemKind = "non_numeric"
	KindNegative       ProblemKind = "negative_values"
)

// NonNegativeColumns may not hold values below zero.
var NonNegativeColumns = []string{ColTenure, ColMonthlyCharges}

// Problem is one finding of the validator.
type Problem struct {
	Kind     ProblemKind `json:"kind"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Columns  []string    `json:"columns,omitempty"`
}

// Report is the outcome of Validate. An empty report means the dataset is usable.
type Report struct {
	Problems []Problem `json:"problems"`
}

// Empty reports whether no problems were found.
func (r Report) Empty() bool {
	return len(r.Problems) == 0
}

// Fatal reports whether any problem blocks analysis.
func (r Report) Fatal() bool {
	for _, p := range r.Problems {
		if p.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// Errors returns the fatal problems.
func (r Report) Errors() []Problem {
	return r.filter(SeverityFatal)
}

// Warnings returns the non-blocking problems.
func (r Report) Warnings() []Problem {
	return r.filter(SeverityWarning)
}

func (r Report) filter(s Severity) []Problem {
	var out []Problem
	for _, p := range r.Problems {
		if p.Severity == s {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks a table against the required columns. It never fails: every
// finding is reported as a Problem and the caller decides what to do with it.
func Validate(t *Table, required []string) Report {
	var report Report

	var missing []string
	for _, col := range required {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		report.Problems = append(report.Problems, Problem{
			Kind:     KindMissingColumns,
			Severity: SeverityFatal,
			Message:  fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
			Columns:  missing,
		})
	}

	emptyCells := 0
	var emptyCols []string
	for _, col := range t.columns {
		cells, _ := t.Column(col)
		n := 0
		for _, v := range cells {
			if isMissing(v) {
				n++
			}
		}
		if n > 0 {
			emptyCells += n
			emptyCols = append(emptyCols, col)
		}
	}
	if emptyCells > 0 {
		report.Problems = append(report.Problems, Problem{
			Kind:     KindMissingValues,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("dataset has %d empty or NaN cells in %d columns; results may be incomplete",
				emptyCells, len(emptyCols)),
			Columns: emptyCols,
		})
	}

	if cells, ok := t.Column(ColTenure); ok && !numeric(cells) {
		report.Problems = append(report.Problems, Problem{
			Kind:     KindNonNumeric,
			Severity: SeverityFatal,
			Message:  fmt.Sprintf("column '%s' must be numeric", ColTenure),
			Columns:  []string{ColTenure},
		})
	}

	var negative []string
	for _, col := range NonNegativeColumns {
		if cells, ok := t.Column(col); ok && hasNegative(cells) {
			negative = append(negative, col)
		}
	}
	if len(negative) > 0 {
		report.Problems = append(report.Problems, Problem{
			Kind:     KindNegative,
			Severity: SeverityFatal,
			Message:  fmt.Sprintf("columns must not be negative: %s", strings.Join(negative, ", ")),
			Columns:  negative,
		})
	}

	return report
}

// numeric reports whether every present cell parses as a finite number. Empty
// and NaN cells are missing values, not type errors.
func numeric(cells []string) bool {
	for _, v := range cells {
		if isMissing(v) {
			continue
		}
		if _, err := parseFinite(v); err != nil {
			return false
		}
	}
	return true
}

// hasNegative reports whether any parseable cell is below zero.
func hasNegative(cells []string) bool {
	for _, v := range cells {
		if isMissing(v) {
			continue
		}
		if f, err := parseFinite(v); err == nil && f < 0 {
			return true
		}
	}
	return false
}
