package infer

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"Species Name", "species_name"},
		{"Mass (g)", "mass_g"},
		{"  body-length  ", "body_length"},
		{"2020 count", "c_2020_count"},
		{"", "col"},
		{"!!!", "col"},
		{"already_ok", "already_ok"},
	}
	for _, tc := range cases {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

/*
TestFromCSVKinds verifies type narrowing from the sample: pure integers stay
int, a float widens to real, boolean-looking columns become bool, and mixed
content falls back to text. Empty cells do not affect the kind.
*/
func TestFromCSVKinds(t *testing.T) {
	t.Parallel()

	src := strings.Join([]string{
		"id,mass,alive,name,empty",
		"1,10.5,true,wren,",
		"2,9,false,raven,",
		"3,,t,,",
	}, "\n")

	cols, err := FromCSV(strings.NewReader(src), ',', 0)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}

	want := []Column{
		{Name: "id", Kind: KindInt},
		{Name: "mass", Kind: KindReal},
		{Name: "alive", Kind: KindBool},
		{Name: "name", Kind: KindText},
		{Name: "empty", Kind: KindText},
	}
	if !reflect.DeepEqual(cols, want) {
		t.Errorf("cols = %+v, want %+v", cols, want)
	}
}

/*
TestFromCSVHeaderHandling verifies BOM stripping, name normalization, and
duplicate-name disambiguation.
*/
func TestFromCSVHeaderHandling(t *testing.T) {
	t.Parallel()

	src := "\uFEFFID,Value,Value\n1,a,b\n"
	cols, err := FromCSV(strings.NewReader(src), ',', 0)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	want := []string{"id", "value", "value_2"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

/*
TestFromCSVHeaderSuffixCollision covers duplicate headers colliding with a raw
header that already looks like a rename: every column name must still come out
unique.
*/
func TestFromCSVHeaderSuffixCollision(t *testing.T) {
	t.Parallel()

	cols, err := FromCSV(strings.NewReader("a,a,a_2\n1,2,3\n"), ',', 0)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	want := []string{"a", "a_2", "a_2_2"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestFromCSVSampleBound(t *testing.T) {
	t.Parallel()

	// The float appears after the sample window; the column stays int because
	// inference only scans the bounded sample.
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 5; i++ {
		b.WriteString("1\n")
	}
	b.WriteString("2.5\n")

	cols, err := FromCSV(strings.NewReader(b.String()), ',', 5)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if cols[0].Kind != KindInt {
		t.Errorf("kind = %v, want int (sample-bounded)", cols[0].Kind)
	}
}

func TestFromCSVDelimiter(t *testing.T) {
	t.Parallel()

	cols, err := FromCSV(strings.NewReader("a;b\n1;x\n"), ';', 0)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if len(cols) != 2 || cols[0].Name != "a" || cols[1].Name != "b" {
		t.Errorf("cols = %+v", cols)
	}
}

func TestFromCSVEmptyInput(t *testing.T) {
	t.Parallel()

	if _, err := FromCSV(strings.NewReader(""), ',', 0); err == nil {
		t.Errorf("expected error for empty input")
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind Kind
		in   string
		want any
	}{
		{KindInt, "42", int64(42)},
		{KindInt, "", nil},
		{KindInt, "not-a-number", "not-a-number"},
		{KindReal, "3.25", 3.25},
		{KindBool, "yes", true},
		{KindBool, "F", false},
		{KindText, " padded ", "padded"},
		{KindText, "", nil},
	}
	for _, tc := range cases {
		if got := Convert(tc.kind, tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Convert(%v, %q) = %#v, want %#v", tc.kind, tc.in, got, tc.want)
		}
	}
}
