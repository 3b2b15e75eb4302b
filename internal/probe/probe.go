// Package probe computes, per table, which pipeline stages are active and
// with which parameters. It is a pure function over the immutable dataset and
// table descriptors plus the bound engine's capability surface: no side
// effects, no engine calls, and the same inputs always yield the same plan.
//
// The probe exists so that every optional-attribute decision (archive type,
// sheet selector, geo marker, explicit path, dataset geometry kind) is made
// exactly once, up front. Stages downstream consume the resolved Plan and
// never re-check descriptor fields.
package probe

import (
	"fmt"
	"strings"

	"datapipe/internal/descriptor"
)

// Conversion selects the format-conversion stage variant for a table.
type Conversion int

const (
	// ConvertNone runs no conversion stage.
	ConvertNone Conversion = iota
	// ConvertSpreadsheet converts a workbook sheet to CSV.
	ConvertSpreadsheet
	// ConvertGeoJSON converts a geojson file to CSV.
	ConvertGeoJSON
)

// String returns the variant name for logs and error context.
func (c Conversion) String() string {
	switch c {
	case ConvertSpreadsheet:
		return "spreadsheet"
	case ConvertGeoJSON:
		return "geojson"
	default:
		return "none"
	}
}

// Insertion selects the data-insertion stage variant for a table.
type Insertion int

const (
	// InsertTabular inserts rows from a file or streamed from the source URL.
	InsertTabular Insertion = iota
	// InsertRaster inserts raster data from a local file.
	InsertRaster
	// InsertVector inserts vector data from a local file.
	InsertVector
)

// String returns the variant name for logs and error context.
func (i Insertion) String() string {
	switch i {
	case InsertRaster:
		return "raster"
	case InsertVector:
		return "vector"
	default:
		return "tabular"
	}
}

// Capabilities is the probe's view of the bound engine: only what planning
// needs, so the probe stays decoupled from engine implementations.
type Capabilities struct {
	// Name identifies the engine in diagnostics.
	Name string

	// Spatial reports whether the engine supports spatial table creation and
	// raster/vector insertion.
	Spatial bool
}

// ArchiveStage holds the resolved parameters of an active archive stage.
type ArchiveStage struct {
	// Type is the archive format tag ("zip", "tar", "tar.gz", "gz").
	Type string

	// Files lists the members to extract; nil means extract all.
	Files []string

	// KeepInDir preserves the archive's directory layout on extraction.
	KeepInDir bool

	// ArchiveName optionally overrides the local archive filename.
	ArchiveName string
}

// Plan is the fully resolved, immutable per-table configuration computed
// before any stage runs. Fallbacks between table and dataset settings are
// applied here once, with table settings taking precedence.
type Plan struct {
	// Dataset and Table name the descriptor pair the plan was derived from.
	Dataset string
	Table   string

	// SourceURL is the effective source URL: the table's own URL when
	// present, else the dataset default.
	SourceURL string

	// Archive is non-nil when the archive stage is active.
	Archive *ArchiveStage

	// Conversion selects the format-conversion variant; ConvertNone when the
	// stage is inactive.
	Conversion Conversion

	// ConvertFile is the source filename the conversion downloads and reads
	// (the workbook or the geojson file). Empty when Conversion is
	// ConvertNone.
	ConvertFile string

	// Sheet is the zero-based sheet index for spreadsheet conversion.
	Sheet int

	// Encoding is the dataset's declared text encoding.
	Encoding string

	// Path is the table's destination/working file path; empty when the
	// table is created and inserted directly from the source URL.
	Path string

	// Delimiter is the table file's field delimiter; empty means comma.
	Delimiter string

	// Insertion selects the insertion variant.
	Insertion Insertion

	// FromFile reports whether tabular creation/insertion reads the local
	// file at Path instead of streaming from SourceURL.
	FromFile bool
}

// ConfigError reports a malformed or unresolvable descriptor for one table.
// It is detected before any engine call; the table does not proceed.
type ConfigError struct {
	Dataset string
	Table   string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("probe: dataset %s table %s: %s", e.Dataset, e.Table, e.Reason)
}

// CapabilityError reports that the bound engine lacks a capability the
// table's declared processing kind requires. It is non-fatal to the run: the
// table is skipped and sibling tables still process.
type CapabilityError struct {
	Engine string
	Table  string
	Need   string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("probe: engine %s does not support %s (required by table %s)", e.Engine, e.Need, e.Table)
}

// Resolve computes the Plan for one table.
//
// Rules, in precedence order:
//
//  1. Effective URL: table URL, else dataset default, else *ConfigError.
//  2. Archive stage: active iff the table declares an archive type or the
//     dataset declares a policy. Parameters resolve table-over-dataset; a
//     sheet selector forces the extracted file list to the workbook file.
//  3. Conversion: spreadsheet if xls_sheets is present, else geojson if
//     geojson_data is present. When both are present the spreadsheet wins
//     and the geojson conversion never runs (observed legacy precedence,
//     preserved deliberately).
//  4. Creation path: format "tabular" always proceeds; anything else
//     requires engine spatial support, else *CapabilityError.
//  5. Insertion: RasterDataset/VectorDataset select the spatial insert and
//     exclude the tabular insert; absence selects tabular. Any other value
//     is a *ConfigError.
//  6. Tabular source: file-based iff the archive stage is active or an
//     explicit path is set; else streamed from the source URL.
func Resolve(ds *descriptor.Dataset, tbl descriptor.Table, caps Capabilities) (*Plan, error) {
	url := strings.TrimSpace(tbl.URL)
	if url == "" {
		url = strings.TrimSpace(ds.DefaultURL)
	}
	if url == "" {
		return nil, &ConfigError{
			Dataset: ds.Name,
			Table:   tbl.Name,
			Reason:  "no source url: table has none and dataset has no default_url",
		}
	}

	p := &Plan{
		Dataset:   ds.Name,
		Table:     tbl.Name,
		SourceURL: url,
		Encoding:  ds.TextEncoding(),
		Path:      tbl.Path,
		Delimiter: tbl.Delimiter,
	}

	p.Archive = resolveArchive(ds, tbl)

	switch {
	case tbl.XLSSheets != nil:
		p.Conversion = ConvertSpreadsheet
		p.ConvertFile = tbl.XLSSheets.File
		p.Sheet = tbl.XLSSheets.Sheet
	case tbl.GeoJSONData != "":
		p.Conversion = ConvertGeoJSON
		p.ConvertFile = tbl.GeoJSONData
	}

	if tbl.Format != "tabular" && !caps.Spatial {
		return nil, &CapabilityError{
			Engine: caps.Name,
			Table:  tbl.Name,
			Need:   "spatial processing",
		}
	}

	switch tbl.DatasetType {
	case "":
		p.Insertion = InsertTabular
	case "RasterDataset":
		p.Insertion = InsertRaster
	case "VectorDataset":
		p.Insertion = InsertVector
	default:
		return nil, &ConfigError{
			Dataset: ds.Name,
			Table:   tbl.Name,
			Reason:  fmt.Sprintf("unknown dataset_type %q", tbl.DatasetType),
		}
	}

	p.FromFile = p.Archive != nil || tbl.Path != ""

	return p, nil
}

// resolveArchive applies the table-over-dataset fallback for archive
// settings and returns nil when the stage is inactive.
func resolveArchive(ds *descriptor.Dataset, tbl descriptor.Table) *ArchiveStage {
	if tbl.Archived == "" && ds.Archive == nil {
		return nil
	}

	st := &ArchiveStage{Type: "zip"}

	if ds.Archive != nil {
		if ds.Archive.Type != "" {
			st.Type = ds.Archive.Type
		}
		st.KeepInDir = ds.Archive.KeepInDir
		st.ArchiveName = ds.Archive.ArchiveName
	}
	if tbl.Archived != "" {
		st.Type = tbl.Archived
	}

	extractAll := tbl.ExtractAll || (ds.Archive != nil && ds.Archive.ExtractAll)
	switch {
	case extractAll:
		st.Files = nil
	case tbl.XLSSheets != nil:
		// The workbook is the only member worth extracting; it overrides any
		// path-derived file list.
		st.Files = []string{tbl.XLSSheets.File}
	case tbl.Path != "":
		st.Files = []string{tbl.Path}
	}

	return st
}
