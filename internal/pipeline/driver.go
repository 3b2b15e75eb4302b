// Package pipeline drives the installation of one dataset: for each table, in
// declared order, it resolves a plan and walks the fixed stage sequence
// extract, convert, create, insert, cleanup, invoking the bound engine for
// each active stage.
//
// The driver is deliberately thin. It owns sequencing, per-table isolation,
// and result accounting; all I/O lives behind the engine interface, and all
// descriptor interpretation lives in the probe. Tables are processed
// sequentially: a failure in one table is recorded and the run moves on to the
// next.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"datapipe/internal/descriptor"
	"datapipe/internal/engine"
	"datapipe/internal/metrics"
	"datapipe/internal/probe"
)

// Driver installs a dataset's tables through an engine.
type Driver struct {
	eng engine.Engine

	// Verbose enables per-stage progress logging.
	Verbose bool
}

// New returns a Driver bound to eng.
func New(eng engine.Engine) *Driver {
	return &Driver{eng: eng}
}

// Run processes every table of ds in declared order and returns the per-table
// report. Run itself returns an error only for run-level problems (nil
// dataset, context cancellation between tables); per-table failures are
// reported in the Report, not as a Run error.
func (d *Driver) Run(ctx context.Context, ds *descriptor.Dataset) (*Report, error) {
	if ds == nil {
		return nil, fmt.Errorf("pipeline: nil dataset")
	}

	rep := &Report{Dataset: ds.Name}
	caps := probe.Capabilities{
		Name:    d.eng.Name(),
		Spatial: d.eng.SpatialSupport(),
	}

	for _, name := range ds.Tables.Names() {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("pipeline: dataset %s: %w", ds.Name, err)
		}

		tbl, _ := ds.Tables.Get(name)
		res := d.runTable(ctx, ds, tbl, caps)
		rep.Results = append(rep.Results, res)
		metrics.RecordTable(ds.Name, string(res.Status))

		switch res.Status {
		case StatusInstalled:
			log.Printf("pipeline: installed dataset=%s table=%s", ds.Name, name)
		case StatusSkipped:
			log.Printf("pipeline: skipped dataset=%s table=%s reason=%q", ds.Name, name, res.Err)
		case StatusFailed:
			log.Printf("pipeline: failed dataset=%s table=%s stage=%s err=%q", ds.Name, name, res.Stage, res.Err)
		}
	}

	return rep, nil
}

// runTable resolves the plan for one table and executes its active stages.
// The cleanup stage runs regardless of earlier failures so file handles never
// leak into the next table's run.
func (d *Driver) runTable(ctx context.Context, ds *descriptor.Dataset, tbl descriptor.Table, caps Capabilities) TableResult {
	plan, err := d.resolve(ds, tbl, caps)
	if err != nil {
		var capErr *probe.CapabilityError
		if errors.As(err, &capErr) {
			return TableResult{Table: tbl.Name, Status: StatusSkipped, Stage: "resolve", Err: err}
		}
		return TableResult{Table: tbl.Name, Status: StatusFailed, Stage: "resolve", Err: err}
	}

	stage, err := d.runStages(ctx, tbl, plan)

	// cleanup always runs, even after a failed stage
	if cerr := d.stage(plan, "cleanup", func() error { return d.eng.ReleaseFiles() }); cerr != nil {
		if err == nil {
			stage, err = "cleanup", cerr
		} else {
			log.Printf("pipeline: cleanup after failure dataset=%s table=%s err=%v", ds.Name, tbl.Name, cerr)
		}
	}

	if err != nil {
		return TableResult{
			Table:  tbl.Name,
			Status: StatusFailed,
			Stage:  stage,
			Err:    fmt.Errorf("pipeline: table %s: %s: %w", tbl.Name, stage, err),
		}
	}
	return TableResult{Table: tbl.Name, Status: StatusInstalled}
}

// Capabilities aliases the probe capability surface so callers of the package
// deal with a single import.
type Capabilities = probe.Capabilities

// resolve wraps probe.Resolve with stage metrics.
func (d *Driver) resolve(ds *descriptor.Dataset, tbl descriptor.Table, caps Capabilities) (*probe.Plan, error) {
	start := time.Now()
	plan, err := probe.Resolve(ds, tbl, caps)
	metrics.RecordStage(ds.Name, tbl.Name, "resolve", err, time.Since(start))
	return plan, err
}

// runStages executes the active stages of the plan in fixed order and returns
// the name of the failing stage alongside its error.
func (d *Driver) runStages(ctx context.Context, tbl descriptor.Table, plan *probe.Plan) (string, error) {
	if plan.Archive != nil {
		err := d.stage(plan, "extract", func() error {
			return d.eng.DownloadArchive(ctx, plan.SourceURL, engine.ArchiveSpec{
				Type:        plan.Archive.Type,
				Files:       plan.Archive.Files,
				KeepInDir:   plan.Archive.KeepInDir,
				ArchiveName: plan.Archive.ArchiveName,
			})
		})
		if err != nil {
			return "extract", err
		}
	}

	if plan.Conversion != probe.ConvertNone {
		if err := d.stage(plan, "convert", func() error { return d.convert(ctx, plan) }); err != nil {
			return "convert", err
		}
	}

	switch plan.Insertion {
	case probe.InsertTabular:
		src := engine.Source{URL: plan.SourceURL}
		if plan.FromFile {
			src = engine.Source{Path: plan.Path}
		}
		if err := d.stage(plan, "create", func() error { return d.eng.CreateTable(ctx, tbl, src) }); err != nil {
			return "create", err
		}
		err := d.stage(plan, "insert", func() error {
			if plan.FromFile {
				return d.eng.InsertFromFile(ctx, tbl, plan.Path)
			}
			return d.eng.InsertFromURL(ctx, tbl, plan.SourceURL)
		})
		if err != nil {
			return "insert", err
		}

	case probe.InsertRaster, probe.InsertVector:
		src := engine.Source{Path: plan.Path}
		if err := d.stage(plan, "create", func() error { return d.eng.CreateTable(ctx, tbl, src) }); err != nil {
			return "create", err
		}
		err := d.stage(plan, "insert", func() error {
			if plan.Insertion == probe.InsertRaster {
				return d.eng.InsertRaster(ctx, plan.Path)
			}
			return d.eng.InsertVector(ctx, plan.Path)
		})
		if err != nil {
			return "insert", err
		}
	}

	return "", nil
}

// convert runs the resolved conversion variant. When the archive stage was
// inactive the source file is first downloaded; otherwise extraction already
// placed it in the working directory.
func (d *Driver) convert(ctx context.Context, plan *probe.Plan) error {
	if plan.Archive == nil {
		if err := d.eng.DownloadFile(ctx, plan.SourceURL, plan.ConvertFile); err != nil {
			return err
		}
	}

	src, dst := plan.ConvertFile, plan.Path

	switch plan.Conversion {
	case probe.ConvertSpreadsheet:
		return d.eng.SpreadsheetToCSV(ctx, src, dst, plan.Sheet, plan.Encoding)
	case probe.ConvertGeoJSON:
		return d.eng.GeoJSONToCSV(ctx, src, dst)
	default:
		return nil
	}
}

// stage times fn and records the outcome under the given stage name.
func (d *Driver) stage(plan *probe.Plan, name string, fn func() error) error {
	if d.Verbose {
		log.Printf("pipeline: stage=%s dataset=%s table=%s", name, plan.Dataset, plan.Table)
	}
	start := time.Now()
	err := fn()
	metrics.RecordStage(plan.Dataset, plan.Table, name, err, time.Since(start))
	return err
}
