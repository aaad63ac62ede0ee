package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Column names of the Telco customer dataset.
const (
	ColCustomerID       = "customerID"
	ColTenure           = "tenure"
	ColMonthlyCharges   = "MonthlyCharges"
	ColTotalCharges     = "TotalCharges"
	ColContract         = "Contract"
	ColInternetService  = "InternetService"
	ColTechSupport      = "TechSupport"
	ColPaymentMethod    = "PaymentMethod"
	ColChurn            = "Churn"
	ColOnlineSecurity   = "OnlineSecurity"
	ColDeviceProtection = "DeviceProtection"
	ColStreamingTV      = "StreamingTV"
	ColStreamingMovies  = "StreamingMovies"
	ColOnlineBackup     = "OnlineBackup"
)

// RequiredColumns are the columns every dataset must carry before analysis.
var RequiredColumns = []string{
	ColTenure,
	ColMonthlyCharges,
	ColContract,
	ColChurn,
	ColInternetService,
	ColTechSupport,
	ColPaymentMethod,
}

// ServiceColumns are the add-on service flags counted for stickiness.
var ServiceColumns = []string{
	ColOnlineSecurity,
	ColDeviceProtection,
	ColTechSupport,
	ColStreamingTV,
	ColStreamingMovies,
	ColOnlineBackup,
}

// ErrEmptyDataset is returned when a CSV has no header row.
var ErrEmptyDataset = errors.New("dataset has no header row")

// Table is a raw, untyped view of a CSV dataset. Cells keep their original text.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// NewTable builds a table from a header and rows. Short rows are padded with
// empty cells so every row has one cell per column.
func NewTable(columns []string, rows [][]string) (*Table, error) {
	if len(columns) == 0 {
		return nil, ErrEmptyDataset
	}

	index := make(map[string]int, len(columns))
	cols := make([]string, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		index[c] = i
		cols[i] = c
	}

	normalized := make([][]string, len(rows))
	for i, row := range rows {
		if len(row) > len(cols) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i+1, len(row), len(cols))
		}
		cells := make([]string, len(cols))
		copy(cells, row)
		normalized[i] = cells
	}

	return &Table{columns: cols, index: index, rows: normalized}, nil
}

// ReadCSV parses a CSV stream with a header row into a Table.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}

	return NewTable(header, rows)
}

// ReadCSVFile opens and parses a CSV file.
func ReadCSVFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	return ReadCSV(file)
}

// Columns returns a copy of the column names in file order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Cell returns the raw cell at row i for the named column.
func (t *Table) Cell(i int, column string) (string, bool) {
	j, ok := t.index[column]
	if !ok || i < 0 || i >= len(t.rows) {
		return "", false
	}
	return t.rows[i][j], true
}

// Column returns the raw cells of one column.
func (t *Table) Column(name string) ([]string, bool) {
	j, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out, true
}

// Record returns row i as a Record. The record owns its own copy of the cells.
func (t *Table) Record(i int) Record {
	values := make(map[string]string, len(t.columns))
	for j, c := range t.columns {
		values[c] = t.rows[i][j]
	}
	return Record{values: values}
}

// Records returns every row as a Record.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.rows))
	for i := range t.rows {
		out[i] = t.Record(i)
	}
	return out
}
