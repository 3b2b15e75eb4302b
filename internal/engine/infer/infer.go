// Package infer derives a logical table definition from a tabular sample:
// column names from the header row, column kinds from a bounded scan of data
// rows. Engines map the logical kinds onto their own SQL types.
package infer

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Kind is a backend-agnostic column type.
type Kind string

const (
	KindInt  Kind = "int"
	KindReal Kind = "real"
	KindBool Kind = "bool"
	KindText Kind = "text"
)

// Column is one inferred column: a normalized name plus a logical kind.
type Column struct {
	Name string
	Kind Kind
}

// DefaultSampleRows bounds the type-inference scan. Sampling keeps inference
// cheap on large files; TEXT remains the fallback for anything the sample
// misjudges.
const DefaultSampleRows = 1000

// nameCleaner collapses runs of non-alphanumerics into "_".
var nameCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeName turns a raw header cell into a safe column identifier:
// lowercase, underscores for punctuation, prefixed when starting with a
// digit, "col" when empty.
func NormalizeName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = nameCleaner.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "col"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "c_" + s
	}
	return s
}

// FromCSV reads a header row plus up to sampleRows data rows from r and
// returns the inferred columns. A non-positive sampleRows means
// DefaultSampleRows. Delimiter zero means comma.
//
// Kind inference narrows per column: a column is KindInt while every
// non-empty sample parses as an integer, widens to KindReal when a float
// appears, KindBool requires all-boolean samples, and anything else is
// KindText. Columns with no non-empty samples stay KindText.
func FromCSV(r io.Reader, delimiter rune, sampleRows int) ([]Column, error) {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}

	cr := csv.NewReader(r)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("infer: read header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("infer: empty header row")
	}
	stripHeaderBOM(header)

	cols := make([]Column, len(header))
	taken := map[string]bool{}
	for i, raw := range header {
		base := NormalizeName(raw)
		name := base
		// Suffix until unique; a raw header may already carry the suffix a
		// rename would produce (e.g. "a, a, a_2").
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		taken[name] = true
		cols[i] = Column{Name: name, Kind: KindText}
	}

	states := make([]sampleState, len(cols))

	for row := 0; row < sampleRows; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("infer: read sample row: %w", err)
		}
		for i := range cols {
			if i >= len(rec) {
				continue
			}
			states[i].observe(strings.TrimSpace(rec[i]))
		}
	}

	for i := range cols {
		cols[i].Kind = states[i].kind()
	}
	return cols, nil
}

// stripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func stripHeaderBOM(header []string) {
	const utf8BOM = "\uFEFF"
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
}

// Convert parses a raw cell into the Go value matching the column kind.
// Empty cells become nil (SQL NULL). A cell that no longer parses as the
// inferred kind falls back to its raw string; the sample can misjudge.
func Convert(k Kind, v string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	switch k {
	case KindInt:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case KindReal:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case KindBool:
		switch strings.ToLower(v) {
		case "true", "t", "yes", "1":
			return true
		case "false", "f", "no", "0":
			return false
		}
	}
	return v
}

// sampleState tracks which kinds remain possible for one column.
type sampleState struct {
	nonEmpty bool
	notInt   bool
	notReal  bool
	notBool  bool
}

func (s *sampleState) observe(v string) {
	if v == "" {
		return
	}
	s.nonEmpty = true
	if !s.notInt {
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			s.notInt = true
		}
	}
	if !s.notReal {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			s.notReal = true
		}
	}
	if !s.notBool {
		switch strings.ToLower(v) {
		case "true", "false", "t", "f", "yes", "no", "0", "1":
		default:
			s.notBool = true
		}
	}
}

func (s *sampleState) kind() Kind {
	if !s.nonEmpty {
		return KindText
	}
	switch {
	case !s.notInt:
		return KindInt
	case !s.notReal:
		return KindReal
	case !s.notBool:
		return KindBool
	default:
		return KindText
	}
}
