package base

import (
	"io"
	"reflect"
	"strings"
	"testing"

	"datapipe/internal/engine/infer"
)

func TestDelimiterRune(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want rune
	}{
		{"", ','},
		{",", ','},
		{"\t", '\t'},
		{"\\t", '\t'},
		{"tab", '\t'},
		{";", ';'},
		{"|", '|'},
	}
	for _, tc := range cases {
		if got := DelimiterRune(tc.in); got != tc.want {
			t.Errorf("DelimiterRune(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

/*
TestRowReaderBatches verifies batching, header skipping, value conversion per
column kind, and padding of short records.
*/
func TestRowReaderBatches(t *testing.T) {
	t.Parallel()

	cols := []infer.Column{
		{Name: "id", Kind: infer.KindInt},
		{Name: "mass", Kind: infer.KindReal},
		{Name: "name", Kind: infer.KindText},
	}
	src := strings.Join([]string{
		"id,mass,name",
		"1,10.5,wren",
		"2,9,raven",
		"3", // short record
	}, "\n")

	rr, err := NewRowReader(strings.NewReader(src), ',', cols, 2)
	if err != nil {
		t.Fatalf("NewRowReader: %v", err)
	}

	batch1, err := rr.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want1 := [][]any{
		{int64(1), 10.5, "wren"},
		{int64(2), 9.0, "raven"},
	}
	if !reflect.DeepEqual(batch1, want1) {
		t.Errorf("batch 1 = %#v, want %#v", batch1, want1)
	}

	batch2, err := rr.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want2 := [][]any{{int64(3), nil, nil}}
	if !reflect.DeepEqual(batch2, want2) {
		t.Errorf("batch 2 = %#v, want %#v", batch2, want2)
	}

	if _, err := rr.Next(); err != io.EOF {
		t.Errorf("Next after exhaustion = %v, want io.EOF", err)
	}
}

func TestRowReaderHeaderOnly(t *testing.T) {
	t.Parallel()

	cols := []infer.Column{{Name: "a", Kind: infer.KindText}}
	rr, err := NewRowReader(strings.NewReader("a\n"), ',', cols, 0)
	if err != nil {
		t.Fatalf("NewRowReader: %v", err)
	}
	if _, err := rr.Next(); err != io.EOF {
		t.Errorf("Next = %v, want io.EOF for header-only input", err)
	}
}

func TestRowReaderEmptyInput(t *testing.T) {
	t.Parallel()

	if _, err := NewRowReader(strings.NewReader(""), ',', nil, 0); err == nil {
		t.Errorf("expected error for missing header")
	}
}

func TestColumnNames(t *testing.T) {
	t.Parallel()

	cols := []infer.Column{{Name: "a"}, {Name: "b"}}
	if got := ColumnNames(cols); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("ColumnNames = %v", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	if got := QuoteIdent(`weird"name`); got != `"weird""name"` {
		t.Errorf("QuoteIdent = %q", got)
	}
}
