package probe

import (
	"errors"
	"reflect"
	"testing"

	"datapipe/internal/descriptor"
)

var (
	spatialEngine = Capabilities{Name: "postgres", Spatial: true}
	tabularEngine = Capabilities{Name: "sqlite", Spatial: false}
)

func mustResolve(t *testing.T, ds *descriptor.Dataset, tbl descriptor.Table, caps Capabilities) *Plan {
	t.Helper()
	p, err := Resolve(ds, tbl, caps)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return p
}

/*
TestURLPrecedence verifies the effective-URL rule: a table URL wins over the
dataset default, the default applies when the table has none, and neither
yields a ConfigError.
*/
func TestURLPrecedence(t *testing.T) {
	t.Parallel()

	ds := &descriptor.Dataset{Name: "d", DefaultURL: "http://example.com/default.csv"}

	p := mustResolve(t, ds, descriptor.Table{Name: "own", URL: "http://example.com/own.csv", Format: "tabular"}, tabularEngine)
	if p.SourceURL != "http://example.com/own.csv" {
		t.Errorf("SourceURL = %q, want table url", p.SourceURL)
	}

	p = mustResolve(t, ds, descriptor.Table{Name: "fallback", Format: "tabular"}, tabularEngine)
	if p.SourceURL != "http://example.com/default.csv" {
		t.Errorf("SourceURL = %q, want dataset default", p.SourceURL)
	}

	_, err := Resolve(&descriptor.Dataset{Name: "d"}, descriptor.Table{Name: "none", Format: "tabular"}, tabularEngine)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if cfgErr.Table != "none" {
		t.Errorf("ConfigError.Table = %q", cfgErr.Table)
	}
}

/*
TestConversionSelection verifies the conversion variants: a sheet selector
activates the spreadsheet conversion, a geojson marker activates the geojson
conversion, neither leaves the stage inactive, and both on one table let the
spreadsheet win.
*/
func TestConversionSelection(t *testing.T) {
	t.Parallel()

	ds := &descriptor.Dataset{Name: "d", DefaultURL: "http://example.com/x"}

	p := mustResolve(t, ds, descriptor.Table{
		Name: "sheet", Format: "tabular", Path: "s.csv",
		XLSSheets: &descriptor.SheetRef{Sheet: 3, File: "wb.xlsx"},
	}, tabularEngine)
	if p.Conversion != ConvertSpreadsheet || p.ConvertFile != "wb.xlsx" || p.Sheet != 3 {
		t.Errorf("plan = %+v, want spreadsheet conversion of wb.xlsx sheet 3", p)
	}

	p = mustResolve(t, ds, descriptor.Table{
		Name: "geo", Format: "tabular", Path: "g.csv", GeoJSONData: "features.json",
	}, tabularEngine)
	if p.Conversion != ConvertGeoJSON || p.ConvertFile != "features.json" {
		t.Errorf("plan = %+v, want geojson conversion of features.json", p)
	}

	p = mustResolve(t, ds, descriptor.Table{Name: "plain", Format: "tabular"}, tabularEngine)
	if p.Conversion != ConvertNone || p.ConvertFile != "" {
		t.Errorf("plan = %+v, want no conversion", p)
	}

	// Both markers: the spreadsheet wins; the geojson conversion never runs.
	p = mustResolve(t, ds, descriptor.Table{
		Name: "both", Format: "tabular", Path: "b.csv",
		XLSSheets:   &descriptor.SheetRef{Sheet: 0, File: "wb.xlsx"},
		GeoJSONData: "features.json",
	}, tabularEngine)
	if p.Conversion != ConvertSpreadsheet || p.ConvertFile != "wb.xlsx" {
		t.Errorf("plan = %+v, want spreadsheet precedence", p)
	}
}

/*
TestCapabilityMismatch verifies that a non-tabular format on an engine without
spatial support yields a CapabilityError naming the engine and table, while a
spatial engine resolves the same table.
*/
func TestCapabilityMismatch(t *testing.T) {
	t.Parallel()

	ds := &descriptor.Dataset{Name: "d", DefaultURL: "http://example.com/x"}
	tbl := descriptor.Table{Name: "rast", Path: "r.tif", DatasetType: "RasterDataset"}

	_, err := Resolve(ds, tbl, tabularEngine)
	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want *CapabilityError", err)
	}
	if capErr.Engine != "sqlite" || capErr.Table != "rast" {
		t.Errorf("CapabilityError = %+v", capErr)
	}

	p := mustResolve(t, ds, tbl, spatialEngine)
	if p.Insertion != InsertRaster {
		t.Errorf("Insertion = %v, want raster", p.Insertion)
	}
}

/*
TestInsertionVariants verifies the dataset_type dispatch: raster and vector
types select their spatial inserts and exclude the tabular one, absence
selects tabular, and an unknown value is a ConfigError.
*/
func TestInsertionVariants(t *testing.T) {
	t.Parallel()

	ds := &descriptor.Dataset{Name: "d", DefaultURL: "http://example.com/x"}

	cases := []struct {
		name        string
		datasetType string
		want        Insertion
	}{
		{"tabular", "", InsertTabular},
		{"raster", "RasterDataset", InsertRaster},
		{"vector", "VectorDataset", InsertVector},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tbl := descriptor.Table{Name: tc.name, Path: "p", DatasetType: tc.datasetType}
			if tc.datasetType == "" {
				tbl.Format = "tabular"
			}
			p := mustResolve(t, ds, tbl, spatialEngine)
			if p.Insertion != tc.want {
				t.Errorf("Insertion = %v, want %v", p.Insertion, tc.want)
			}
		})
	}

	_, err := Resolve(ds, descriptor.Table{Name: "bad", DatasetType: "PointCloud"}, spatialEngine)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError for unknown dataset_type", err)
	}
}

/*
TestArchiveResolution verifies the table-over-dataset fallback for archive
settings, the zip default, and the file-list selection rules.
*/
func TestArchiveResolution(t *testing.T) {
	t.Parallel()

	// No archive settings anywhere: stage inactive.
	ds := &descriptor.Dataset{Name: "d", DefaultURL: "http://example.com/x"}
	p := mustResolve(t, ds, descriptor.Table{Name: "t", Format: "tabular"}, tabularEngine)
	if p.Archive != nil {
		t.Errorf("Archive = %+v, want nil", p.Archive)
	}

	// Table type only: defaults fill in, file list from path.
	p = mustResolve(t, ds, descriptor.Table{Name: "t", Format: "tabular", Archived: "tar.gz", Path: "data.csv"}, tabularEngine)
	if p.Archive == nil || p.Archive.Type != "tar.gz" {
		t.Fatalf("Archive = %+v, want tar.gz", p.Archive)
	}
	if !reflect.DeepEqual(p.Archive.Files, []string{"data.csv"}) {
		t.Errorf("Files = %v, want [data.csv]", p.Archive.Files)
	}

	// Dataset policy without a type defaults to zip; table type overrides.
	ds = &descriptor.Dataset{
		Name:       "d",
		DefaultURL: "http://example.com/x",
		Archive:    &descriptor.ArchivePolicy{KeepInDir: true, ArchiveName: "raw.bin"},
	}
	p = mustResolve(t, ds, descriptor.Table{Name: "t", Format: "tabular", Path: "data.csv"}, tabularEngine)
	if p.Archive == nil || p.Archive.Type != "zip" || !p.Archive.KeepInDir || p.Archive.ArchiveName != "raw.bin" {
		t.Fatalf("Archive = %+v, want zip policy with keep_in_dir and raw.bin", p.Archive)
	}

	p = mustResolve(t, ds, descriptor.Table{Name: "t", Format: "tabular", Path: "data.csv", Archived: "tar"}, tabularEngine)
	if p.Archive.Type != "tar" {
		t.Errorf("Type = %q, want table override tar", p.Archive.Type)
	}

	// A sheet selector forces the extracted file to the workbook.
	p = mustResolve(t, ds, descriptor.Table{
		Name: "t", Format: "tabular", Path: "out.csv",
		XLSSheets: &descriptor.SheetRef{Sheet: 0, File: "wb.xlsx"},
	}, tabularEngine)
	if !reflect.DeepEqual(p.Archive.Files, []string{"wb.xlsx"}) {
		t.Errorf("Files = %v, want [wb.xlsx]", p.Archive.Files)
	}

	// extract_all clears the member list.
	p = mustResolve(t, ds, descriptor.Table{Name: "t", Format: "tabular", Path: "data.csv", ExtractAll: true}, tabularEngine)
	if p.Archive.Files != nil {
		t.Errorf("Files = %v, want nil for extract_all", p.Archive.Files)
	}
}

/*
TestFromFile verifies the tabular source rule: file-based iff the archive
stage is active or an explicit path is set, else streamed from the URL.
*/
func TestFromFile(t *testing.T) {
	t.Parallel()

	ds := &descriptor.Dataset{Name: "d", DefaultURL: "http://example.com/x"}

	p := mustResolve(t, ds, descriptor.Table{Name: "stream", Format: "tabular"}, tabularEngine)
	if p.FromFile {
		t.Errorf("FromFile = true, want streamed")
	}

	p = mustResolve(t, ds, descriptor.Table{Name: "path", Format: "tabular", Path: "p.csv"}, tabularEngine)
	if !p.FromFile {
		t.Errorf("FromFile = false, want file-based for explicit path")
	}

	p = mustResolve(t, ds, descriptor.Table{Name: "arch", Format: "tabular", Archived: "zip", Path: "p.csv"}, tabularEngine)
	if !p.FromFile {
		t.Errorf("FromFile = false, want file-based for archived table")
	}
}

/*
TestResolveIsPure verifies determinism: resolving the same descriptor twice
yields identical plans and leaves the descriptor unchanged.
*/
func TestResolveIsPure(t *testing.T) {
	t.Parallel()

	ds := &descriptor.Dataset{
		Name:       "d",
		DefaultURL: "http://example.com/x.zip",
		Encoding:   "latin-1",
		Archive:    &descriptor.ArchivePolicy{Type: "zip"},
	}
	tbl := descriptor.Table{
		Name: "t", Format: "tabular", Path: "t.csv", Delimiter: ";",
		XLSSheets: &descriptor.SheetRef{Sheet: 1, File: "wb.xlsx"},
	}

	before := *ds
	p1 := mustResolve(t, ds, tbl, tabularEngine)
	p2 := mustResolve(t, ds, tbl, tabularEngine)
	if !reflect.DeepEqual(p1, p2) {
		t.Errorf("plans differ:\n%+v\n%+v", p1, p2)
	}
	if !reflect.DeepEqual(before, *ds) {
		t.Errorf("dataset mutated by Resolve")
	}
	if p1.Encoding != "latin-1" || p1.Delimiter != ";" {
		t.Errorf("plan = %+v, want encoding and delimiter carried over", p1)
	}
}
