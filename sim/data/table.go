// Package data holds the tabular inputs of a simulation run: the event dataset
// and the per-subject covariate table (idata). Both are numeric matrices with
// named columns. This package has no dependency on sim/.
package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Table is a numeric matrix with named columns.
type Table struct {
	Columns []string
	Rows    [][]float64
	index   map[string]int
}

// Match pairs a target slot (parameter or compartment index) with a table column.
type Match struct {
	Target int
	Col    int
}

// NewTable validates row widths and indexes column names.
func NewTable(columns []string, rows [][]float64) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		index[c] = i
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(r), len(columns))
		}
	}
	return &Table{Columns: columns, Rows: rows, index: index}, nil
}

// NRow returns the number of rows.
func (t *Table) NRow() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Col returns the index of the named column.
func (t *Table) Col(name string) (int, bool) {
	if t == nil {
		return -1, false
	}
	i, ok := t.index[name]
	return i, ok
}

// Value returns the value at (row, col).
func (t *Table) Value(row, col int) float64 {
	return t.Rows[row][col]
}

// Lookup resolves names to column indices. Names with no column are returned in
// missing, in request order.
func (t *Table) Lookup(names []string) (cols []int, missing []string) {
	for _, n := range names {
		if i, ok := t.Col(n); ok {
			cols = append(cols, i)
		} else {
			missing = append(missing, n)
		}
	}
	return cols, missing
}

// MatchNames pairs each of names (by position) with a column of the same name.
func (t *Table) MatchNames(names []string) []Match {
	var out []Match
	for i, n := range names {
		if c, ok := t.Col(n); ok {
			out = append(out, Match{Target: i, Col: c})
		}
	}
	return out
}

// MatchSuffix pairs each of names with a column named name+suffix.
func (t *Table) MatchSuffix(names []string, suffix string) []Match {
	var out []Match
	for i, n := range names {
		if c, ok := t.Col(n + suffix); ok {
			out = append(out, Match{Target: i, Col: c})
		}
	}
	return out
}

// LoadCSV reads a table from a CSV file with a header row.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return t, nil
}

// ReadCSV parses a header row followed by numeric rows. Empty cells, "." and
// "NA" are read as NaN.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	var rows [][]float64
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		row := make([]float64, len(fields))
		for j, s := range fields {
			v, err := parseCell(s)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %q: %w", line, header[j], err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return NewTable(header, rows)
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", ".", "NA":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
