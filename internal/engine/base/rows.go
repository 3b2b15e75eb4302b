package base

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"datapipe/internal/engine/infer"
)

// DefaultBatchRows is the number of rows handed to the backend per insert
// batch.
const DefaultBatchRows = 5000

// DelimiterRune maps a descriptor delimiter string onto the rune the CSV
// reader expects. Empty means comma; "\t" and "tab" select a tab.
func DelimiterRune(s string) rune {
	switch s {
	case "", ",":
		return ','
	case "\t", "\\t", "tab":
		return '\t'
	default:
		return []rune(s)[0]
	}
}

// RowReader streams a delimited file as batches of typed row values. The
// header row is consumed on construction; cell values are converted per the
// inferred column kinds, with empty cells becoming nil.
type RowReader struct {
	cr    *csv.Reader
	cols  []infer.Column
	batch int
	done  bool
}

// NewRowReader wraps r, skipping its header row. A non-positive batchRows
// means DefaultBatchRows.
func NewRowReader(r io.Reader, delimiter rune, cols []infer.Column, batchRows int) (*RowReader, error) {
	if batchRows <= 0 {
		batchRows = DefaultBatchRows
	}
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("rows: read header: %w", err)
	}
	return &RowReader{cr: cr, cols: cols, batch: batchRows}, nil
}

// Next returns the next batch of rows. It returns io.EOF (with no rows) when
// the input is exhausted. Short records are padded with nil; extra cells are
// dropped.
func (rr *RowReader) Next() ([][]any, error) {
	if rr.done {
		return nil, io.EOF
	}
	rows := make([][]any, 0, rr.batch)
	for len(rows) < rr.batch {
		rec, err := rr.cr.Read()
		if err == io.EOF {
			rr.done = true
			break
		}
		if err != nil {
			return rows, fmt.Errorf("rows: read record: %w", err)
		}
		row := make([]any, len(rr.cols))
		for i := range rr.cols {
			if i < len(rec) {
				row[i] = infer.Convert(rr.cols[i].Kind, rec[i])
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, io.EOF
	}
	return rows, nil
}

// ColumnNames extracts the name list from inferred columns.
func ColumnNames(cols []infer.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// QuoteIdent double-quotes a single SQL identifier segment. Backends with a
// different quoting convention provide their own.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
