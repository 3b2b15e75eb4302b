// Package descriptor defines the declarative configuration model for a
// dataset and its tables. A dataset descriptor enumerates one or more logical
// tables plus the metadata and defaults shared between them; the pipeline
// reads descriptors but never mutates them.
//
// Design goals:
//
//  1. Explicitness: optional behavior (archiving, sheet selection, geo data)
//     is carried as explicit optional fields, never inferred from side
//     channels. The probe package turns these fields into a resolved plan.
//  2. Stability: descriptors are plain JSON documents under
//     configs/datasets/*.json; changes to this package should stay
//     backwards-compatible.
//  3. Minimalism: decoding is performed by the standard library; no
//     third-party config framework.
package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Dataset is the owning record for one dataset: identity metadata plus an
// ordered mapping of table name to Table.
type Dataset struct {
	// Name is the unique dataset identifier, e.g. "bird-size".
	Name string `json:"name"`

	// Title is the human-readable dataset title.
	Title string `json:"title,omitempty"`

	// Description is free-form prose describing the dataset.
	Description string `json:"description,omitempty"`

	// Ref optionally points at the dataset's landing page.
	Ref string `json:"ref,omitempty"`

	// Citation is the recommended citation text for the dataset.
	Citation string `json:"citation,omitempty"`

	// Licenses lists the licenses the data is published under.
	Licenses []License `json:"licenses,omitempty"`

	// Keywords are free-form search terms, see MatchesTerms.
	Keywords []string `json:"keywords,omitempty"`

	// Version is the descriptor version string.
	Version string `json:"version,omitempty"`

	// Encoding is the text encoding of the source files (IANA name).
	// Empty means "utf-8"; use TextEncoding for the resolved value.
	Encoding string `json:"encoding,omitempty"`

	// URLs maps logical source names to source URLs. Keys are unique.
	URLs map[string]string `json:"urls,omitempty"`

	// DefaultURL is the fallback source URL used when a table declares none.
	DefaultURL string `json:"default_url,omitempty"`

	// Archive optionally declares a dataset-wide archive policy applied to
	// tables that do not override it.
	Archive *ArchivePolicy `json:"archive,omitempty"`

	// Tables maps table name to Table in declaration order.
	Tables Tables `json:"tables"`
}

// License identifies a single data license by name and optional URL.
type License struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// ArchivePolicy declares how archived source files are handled. A policy on
// the dataset applies to every table that does not declare its own archive
// type; table-level settings take precedence field by field.
type ArchivePolicy struct {
	// Type is the archive format tag: "zip", "tar", "tar.gz", "gz".
	Type string `json:"type"`

	// ExtractAll extracts every member instead of just the table's own file.
	ExtractAll bool `json:"extract_all,omitempty"`

	// KeepInDir preserves the archive's directory layout on extraction.
	// When false, extracted files are flattened into the working directory.
	KeepInDir bool `json:"keep_in_dir,omitempty"`

	// ArchiveName optionally overrides the local filename the archive is
	// downloaded to before extraction.
	ArchiveName string `json:"archive_name,omitempty"`
}

// Table is the passive declarative record of one table's processing hints.
// Every field except Name is optional; the probe derives the active stage set
// from which fields are present.
type Table struct {
	// Name is the destination table name. Populated from the key of the
	// enclosing tables object during decoding.
	Name string `json:"-"`

	// URL overrides the dataset's default source URL for this table.
	URL string `json:"url,omitempty"`

	// Path is the destination/working file path for this table, relative to
	// the engine's working directory.
	Path string `json:"path,omitempty"`

	// Format selects the tabular creation path when set to "tabular".
	// Any other value (including empty) selects the spatial path, which
	// requires engine spatial support.
	Format string `json:"format,omitempty"`

	// DatasetType distinguishes the insertion strategy: "RasterDataset",
	// "VectorDataset", or empty for tabular insertion.
	DatasetType string `json:"dataset_type,omitempty"`

	// Archived is the archive type tag for this table's source. Empty means
	// no extraction for this table unless the dataset declares a policy.
	Archived string `json:"archived,omitempty"`

	// ExtractAll extracts all archive members for this table.
	ExtractAll bool `json:"extract_all,omitempty"`

	// XLSSheets selects a spreadsheet sheet and its workbook file; presence
	// activates the spreadsheet-to-CSV conversion stage.
	XLSSheets *SheetRef `json:"xls_sheets,omitempty"`

	// GeoJSONData names a geo-format source file; presence activates the
	// geojson-to-CSV conversion stage.
	GeoJSONData string `json:"geojson_data,omitempty"`

	// Delimiter is the field delimiter of the table's tabular file. Empty
	// means comma.
	Delimiter string `json:"delimiter,omitempty"`
}

// SheetRef identifies one sheet inside a workbook file. In JSON it is the
// two-element array [sheet_index, "workbook.xlsx"] used by dataset scripts.
type SheetRef struct {
	// Sheet is the zero-based sheet index inside the workbook.
	Sheet int

	// File is the workbook filename inside the source archive or URL.
	File string
}

// UnmarshalJSON decodes the [index, filename] pair form.
func (s *SheetRef) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("descriptor: xls_sheets must be an array: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("descriptor: xls_sheets must have exactly 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &s.Sheet); err != nil {
		return fmt.Errorf("descriptor: xls_sheets[0] must be a sheet index: %w", err)
	}
	if err := json.Unmarshal(pair[1], &s.File); err != nil {
		return fmt.Errorf("descriptor: xls_sheets[1] must be a filename: %w", err)
	}
	return nil
}

// MarshalJSON encodes the [index, filename] pair form.
func (s SheetRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.Sheet, s.File})
}

// TextEncoding returns the dataset's declared text encoding, defaulting to
// "utf-8" when unset.
func (d *Dataset) TextEncoding() string {
	if strings.TrimSpace(d.Encoding) == "" {
		return "utf-8"
	}
	return d.Encoding
}

// ReferenceURL returns a reference URL for the dataset: the explicit ref when
// present, else the sole source URL when exactly one is declared, else "".
func (d *Dataset) ReferenceURL() string {
	if d.Ref != "" {
		return d.Ref
	}
	if len(d.URLs) == 1 {
		for _, u := range d.URLs {
			return u
		}
	}
	return ""
}

// MatchesTerms reports whether every term appears (case-insensitively) in the
// dataset's name, description, or keywords.
func (d *Dataset) MatchesTerms(terms []string) bool {
	parts := append([]string{d.Name, d.Description}, d.Keywords...)
	haystack := strings.ToUpper(strings.Join(parts, " "))
	for _, term := range terms {
		if !strings.Contains(haystack, strings.ToUpper(term)) {
			return false
		}
	}
	return true
}

// Load reads and decodes a dataset descriptor from a JSON file. It does not
// validate; see Validate for static checks.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("descriptor: open %s: %w", path, err)
	}
	defer f.Close()

	var d Dataset
	dec := json.NewDecoder(f)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("descriptor: decode %s: %w", path, err)
	}
	return &d, nil
}
