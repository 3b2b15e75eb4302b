package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"datapipe/internal/descriptor"
	"datapipe/internal/engine"
)

// fakeEngine records every operation invoked on it, in order, and can be
// told to fail a specific operation.
type fakeEngine struct {
	name    string
	spatial bool

	ops      []string
	failOp   string
	released int
}

func (f *fakeEngine) record(format string, a ...any) {
	f.ops = append(f.ops, fmt.Sprintf(format, a...))
}

func (f *fakeEngine) fail(op string) error {
	if f.failOp == op {
		return fmt.Errorf("fake: %s failed", op)
	}
	return nil
}

func (f *fakeEngine) Name() string                      { return f.name }
func (f *fakeEngine) SpatialSupport() bool              { return f.spatial }
func (f *fakeEngine) FormatFilename(name string) string { return "/data/" + name }

func (f *fakeEngine) DownloadFile(ctx context.Context, url, filename string) error {
	f.record("download %s %s", url, filename)
	return f.fail("download")
}

func (f *fakeEngine) DownloadArchive(ctx context.Context, url string, spec engine.ArchiveSpec) error {
	f.record("extract %s type=%s files=%v", url, spec.Type, spec.Files)
	return f.fail("extract")
}

func (f *fakeEngine) SpreadsheetToCSV(ctx context.Context, src, dst string, sheet int, encoding string) error {
	f.record("xls2csv %s -> %s sheet=%d enc=%s", src, dst, sheet, encoding)
	return f.fail("xls2csv")
}

func (f *fakeEngine) GeoJSONToCSV(ctx context.Context, src, dst string) error {
	f.record("geo2csv %s -> %s", src, dst)
	return f.fail("geo2csv")
}

func (f *fakeEngine) CreateTable(ctx context.Context, tbl descriptor.Table, src engine.Source) error {
	f.record("create %s url=%s path=%s", tbl.Name, src.URL, src.Path)
	return f.fail("create")
}

func (f *fakeEngine) InsertFromFile(ctx context.Context, tbl descriptor.Table, path string) error {
	f.record("insert-file %s %s", tbl.Name, path)
	return f.fail("insert-file")
}

func (f *fakeEngine) InsertFromURL(ctx context.Context, tbl descriptor.Table, url string) error {
	f.record("insert-url %s %s", tbl.Name, url)
	return f.fail("insert-url")
}

func (f *fakeEngine) InsertRaster(ctx context.Context, path string) error {
	f.record("insert-raster %s", path)
	return f.fail("insert-raster")
}

func (f *fakeEngine) InsertVector(ctx context.Context, path string) error {
	f.record("insert-vector %s", path)
	return f.fail("insert-vector")
}

func (f *fakeEngine) ReleaseFiles() error {
	f.released++
	f.record("release")
	return f.fail("release")
}

func (f *fakeEngine) Close() error { return nil }

// dataset builds a one-or-more-table dataset in declaration order.
func dataset(name, defaultURL string, pairs ...any) *descriptor.Dataset {
	ds := &descriptor.Dataset{Name: name, DefaultURL: defaultURL}
	for i := 0; i < len(pairs); i += 2 {
		ds.Tables.Add(pairs[i].(string), pairs[i+1].(descriptor.Table))
	}
	return ds
}

func runWith(t *testing.T, eng *fakeEngine, ds *descriptor.Dataset) *Report {
	t.Helper()
	rep, err := New(eng).Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rep
}

/*
TestRunStreamedTabular covers the minimal table: no archive, no conversion,
no explicit path. The table is created from and inserted directly from the
source URL, and cleanup still runs.
*/
func TestRunStreamedTabular(t *testing.T) {
	eng := &fakeEngine{name: "sqlite"}
	ds := dataset("d", "http://example.com/data.csv",
		"sites", descriptor.Table{Name: "sites", Format: "tabular"})

	rep := runWith(t, eng, ds)

	want := []string{
		"create sites url=http://example.com/data.csv path=",
		"insert-url sites http://example.com/data.csv",
		"release",
	}
	if !reflect.DeepEqual(eng.ops, want) {
		t.Errorf("ops = %v, want %v", eng.ops, want)
	}
	if got := rep.Results[0].Status; got != StatusInstalled {
		t.Errorf("status = %s, want installed", got)
	}
}

/*
TestRunArchivedSpreadsheet covers the full stage chain: an archived workbook
is extracted, the selected sheet converted to CSV, and the table created from
and inserted from the converted file.
*/
func TestRunArchivedSpreadsheet(t *testing.T) {
	eng := &fakeEngine{name: "sqlite"}
	ds := dataset("d", "http://example.com/wb.zip",
		"refs", descriptor.Table{
			Name: "refs", Format: "tabular", Archived: "zip", Path: "refs.csv",
			XLSSheets: &descriptor.SheetRef{Sheet: 1, File: "wb.xlsx"},
		})

	rep := runWith(t, eng, ds)

	want := []string{
		"extract http://example.com/wb.zip type=zip files=[wb.xlsx]",
		"xls2csv wb.xlsx -> refs.csv sheet=1 enc=utf-8",
		"create refs url= path=refs.csv",
		"insert-file refs refs.csv",
		"release",
	}
	if !reflect.DeepEqual(eng.ops, want) {
		t.Errorf("ops = %v, want %v", eng.ops, want)
	}
	if got := rep.Results[0].Status; got != StatusInstalled {
		t.Errorf("status = %s, want installed", got)
	}
}

/*
TestRunUnarchivedConversion verifies that a conversion without an archive
stage downloads the source file first.
*/
func TestRunUnarchivedConversion(t *testing.T) {
	eng := &fakeEngine{name: "sqlite"}
	ds := dataset("d", "http://example.com/features.json",
		"geo", descriptor.Table{
			Name: "geo", Format: "tabular", Path: "geo.csv",
			GeoJSONData: "features.json",
		})

	runWith(t, eng, ds)

	want := []string{
		"download http://example.com/features.json features.json",
		"geo2csv features.json -> geo.csv",
		"create geo url= path=geo.csv",
		"insert-file geo geo.csv",
		"release",
	}
	if !reflect.DeepEqual(eng.ops, want) {
		t.Errorf("ops = %v, want %v", eng.ops, want)
	}
}

/*
TestRunCapabilitySkip verifies that a table whose processing kind the engine
cannot serve is skipped without a single engine data operation, and that its
tabular siblings still install.
*/
func TestRunCapabilitySkip(t *testing.T) {
	eng := &fakeEngine{name: "sqlite"}
	ds := dataset("d", "http://example.com/x",
		"rast", descriptor.Table{Name: "rast", Path: "r.tif", DatasetType: "RasterDataset"},
		"sites", descriptor.Table{Name: "sites", Format: "tabular"})

	rep := runWith(t, eng, ds)

	if got := rep.Results[0].Status; got != StatusSkipped {
		t.Errorf("rast status = %s, want skipped", got)
	}
	if got := rep.Results[1].Status; got != StatusInstalled {
		t.Errorf("sites status = %s, want installed", got)
	}

	// No engine operation may mention the skipped table.
	for _, op := range eng.ops {
		if op != "release" && len(op) >= 4 && op[:4] != "crea" && op[:4] != "inse" {
			t.Errorf("unexpected op %q", op)
		}
	}
	installed, skipped, failed := rep.Counts()
	if installed != 1 || skipped != 1 || failed != 0 {
		t.Errorf("counts = %d/%d/%d, want 1/1/0", installed, skipped, failed)
	}
	if err := rep.Err(); err != nil {
		t.Errorf("Err() = %v, want nil for a skip", err)
	}
}

/*
TestRunSpatialInserts verifies the raster and vector insertion variants on a
spatial engine: each table gets a create stage sourced from its data file,
then one spatial insert, and never a tabular insert.
*/
func TestRunSpatialInserts(t *testing.T) {
	eng := &fakeEngine{name: "postgres", spatial: true}
	ds := dataset("d", "http://example.com/x",
		"rast", descriptor.Table{Name: "rast", Path: "r.tif", DatasetType: "RasterDataset"},
		"vect", descriptor.Table{Name: "vect", Path: "v.shp", DatasetType: "VectorDataset"})

	rep := runWith(t, eng, ds)

	want := []string{
		"create rast url= path=r.tif",
		"insert-raster r.tif",
		"release",
		"create vect url= path=v.shp",
		"insert-vector v.shp",
		"release",
	}
	if !reflect.DeepEqual(eng.ops, want) {
		t.Errorf("ops = %v, want %v", eng.ops, want)
	}
	for i, res := range rep.Results {
		if res.Status != StatusInstalled {
			t.Errorf("result %d = %+v, want installed", i, res)
		}
	}
}

/*
TestRunFailureIsolation verifies that a failing stage marks only its own
table failed, later stages of that table are not invoked, cleanup still runs,
and the next table processes normally.
*/
func TestRunFailureIsolation(t *testing.T) {
	eng := &fakeEngine{name: "sqlite", failOp: "create"}
	ds := dataset("d", "http://example.com/x",
		"broken", descriptor.Table{Name: "broken", Format: "tabular"},
		"fine", descriptor.Table{Name: "fine", Format: "tabular"})

	rep := runWith(t, eng, ds)

	if got := rep.Results[0]; got.Status != StatusFailed || got.Stage != "create" {
		t.Errorf("broken result = %+v, want failed at create", got)
	}
	if got := rep.Results[1].Status; got != StatusFailed {
		// Both tables hit the failing create op; the point is that the second
		// table was attempted at all.
		t.Errorf("fine status = %s", got)
	}

	// No insert ran, cleanup ran once per table.
	for _, op := range eng.ops {
		if op[:6] == "insert" {
			t.Errorf("insert ran after failed create: %q", op)
		}
	}
	if eng.released != 2 {
		t.Errorf("released = %d, want 2 (cleanup after each table)", eng.released)
	}
	if err := rep.Err(); err == nil {
		t.Errorf("Err() = nil, want joined failure")
	}
}

/*
TestRunTableOrder verifies tables process in declaration order, not
lexicographic order.
*/
func TestRunTableOrder(t *testing.T) {
	eng := &fakeEngine{name: "sqlite"}
	ds := dataset("d", "http://example.com/x",
		"zebra", descriptor.Table{Name: "zebra", Format: "tabular"},
		"alpha", descriptor.Table{Name: "alpha", Format: "tabular"})

	rep := runWith(t, eng, ds)

	if rep.Results[0].Table != "zebra" || rep.Results[1].Table != "alpha" {
		t.Errorf("order = %s, %s; want zebra, alpha", rep.Results[0].Table, rep.Results[1].Table)
	}
}

/*
TestRunMissingURL verifies that an unresolvable source URL fails the table at
resolve time with no engine operations and no cleanup stage.
*/
func TestRunMissingURL(t *testing.T) {
	eng := &fakeEngine{name: "sqlite"}
	ds := dataset("d", "",
		"orphan", descriptor.Table{Name: "orphan", Format: "tabular"})

	rep := runWith(t, eng, ds)

	res := rep.Results[0]
	if res.Status != StatusFailed || res.Stage != "resolve" {
		t.Errorf("result = %+v, want failed at resolve", res)
	}
	if len(eng.ops) != 0 {
		t.Errorf("ops = %v, want none", eng.ops)
	}
}

/*
TestRunCancelledContext verifies that cancellation between tables surfaces as
a Run error rather than a per-table failure.
*/
func TestRunCancelledContext(t *testing.T) {
	eng := &fakeEngine{name: "sqlite"}
	ds := dataset("d", "http://example.com/x",
		"sites", descriptor.Table{Name: "sites", Format: "tabular"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(eng).Run(ctx, ds)
	if err == nil {
		t.Fatalf("Run with cancelled context: expected error")
	}
}

func TestReportSummary(t *testing.T) {
	rep := &Report{
		Dataset: "d",
		Results: []TableResult{
			{Table: "a", Status: StatusInstalled},
			{Table: "b", Status: StatusSkipped},
			{Table: "c", Status: StatusFailed, Err: fmt.Errorf("boom")},
		},
	}
	want := "dataset d: 1 installed, 1 skipped, 1 failed"
	if got := rep.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
