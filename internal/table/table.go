// Package table holds a header-row CSV dataset in memory and the few column
// operations the cleaning step needs.
package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
)

// naValues are the cell spellings read as missing, following pandas' defaults.
var naValues = map[string]bool{
	"": true, "#N/A": true, "#N/A N/A": true, "#NA": true, "-1.#IND": true,
	"-1.#QNAN": true, "-NaN": true, "-nan": true, "1.#IND": true, "1.#QNAN": true,
	"<NA>": true, "N/A": true, "NA": true, "NULL": true, "NaN": true, "None": true,
	"n/a": true, "nan": true, "null": true,
}

// IsNA reports whether a cell is a missing value.
func IsNA(cell string) bool {
	return naValues[strings.TrimSpace(cell)]
}

// Table is an ordered collection of rows sharing one header. Cells are kept as
// raw strings; typed views are computed per column on demand.
type Table struct {
	Header []string
	Rows   [][]string
}

// Read parses header-row CSV. Short rows are padded with missing cells; rows
// with more fields than the header are an error.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: no columns to parse from file", model.ErrParse)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", model.ErrParse, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrParse, err)
		}
		if len(rec) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d: expected %d fields, saw %d", model.ErrParse, line, len(header), len(rec))
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// ReadFile reads the CSV file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Write serializes the table as CSV: header, then rows, no index column.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFile writes the table to path, replacing any existing file.
func (t *Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	bw := bufio.NewWriter(f)
	err = t.Write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", model.ErrIO, path, err)
	}
	return nil
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Column returns the index of the named column.
func (t *Table) Column(name string) (int, error) {
	for i, h := range t.Header {
		if h == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: column %q not found", model.ErrParse, name)
}

// Values returns the raw cells of the named column.
func (t *Table) Values(name string) ([]string, error) {
	idx, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Floats returns the named column as numbers. Missing cells become NaN; any
// other non-numeric cell is an error.
func (t *Table) Floats(name string) ([]float64, error) {
	cells, err := t.Values(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		if IsNA(c) {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q row %d: %q is not numeric", model.ErrParse, name, i+1, c)
		}
		out[i] = v
	}
	return out, nil
}

// Select returns a new table holding the rows where mask is true, in order.
// The receiver is not modified.
func (t *Table) Select(mask []bool) (*Table, error) {
	if len(mask) != len(t.Rows) {
		return nil, fmt.Errorf("mask length %d does not match %d rows", len(mask), len(t.Rows))
	}
	out := &Table{Header: append([]string(nil), t.Header...)}
	for i, keep := range mask {
		if keep {
			out.Rows = append(out.Rows, append([]string(nil), t.Rows[i]...))
		}
	}
	return out, nil
}

// SetColumn replaces the cells of the named column.
func (t *Table) SetColumn(name string, values []string) error {
	idx, err := t.Column(name)
	if err != nil {
		return err
	}
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %q: %d values for %d rows", name, len(values), len(t.Rows))
	}
	for i, row := range t.Rows {
		row[idx] = values[i]
	}
	return nil
}

// Between marks values with lo <= v <= hi. NaN is never in range.
func Between(values []float64, lo, hi float64) []bool {
	mask := make([]bool, len(values))
	for i, v := range values {
		mask[i] = lo <= v && v <= hi
	}
	return mask
}
