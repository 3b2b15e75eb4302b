// Package descriptor provides the dataset configuration model.
//
// This file adds a lightweight linter/validator for Dataset values. It
// performs static checks over a decoded Dataset and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests. It checks
// exactly the invariants the pipeline relies on before touching an engine;
// engine-side failures are out of its scope.
package descriptor

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a descriptor issue.
type IssueSeverity string

const (
	// SeverityError indicates a descriptor error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a descriptor warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Dataset.
//
// Path is a dotted path into the descriptor (e.g. "tables.sites.url",
// "archive.type"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// knownArchiveTypes are the archive format tags extraction understands.
var knownArchiveTypes = map[string]struct{}{
	"zip":    {},
	"tar":    {},
	"tar.gz": {},
	"tgz":    {},
	"gz":     {},
}

// knownDatasetTypes are the recognized insertion strategy tags.
var knownDatasetTypes = map[string]struct{}{
	"RasterDataset": {},
	"VectorDataset": {},
}

// Validate performs static validation / linting of a Dataset.
//
// It does not mutate the dataset. Instead it returns a slice of Issue values;
// callers decide whether to treat warnings as fatal.
//
// Example:
//
//	ds, err := descriptor.Load(path)
//	if err != nil { ... }
//	for _, iss := range descriptor.Validate(ds) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func Validate(d *Dataset) []Issue {
	var issues []Issue

	if strings.TrimSpace(d.Name) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "name",
			Message:  "name must not be empty; it identifies the dataset in logs and metrics",
		})
	}

	if d.Archive != nil {
		issues = append(issues, validateArchive("archive", d.Archive.Type)...)
	}

	if d.Tables.Len() == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "tables",
			Message:  "at least one table is required",
		})
	}

	for _, name := range d.Tables.Names() {
		tbl, _ := d.Tables.Get(name)
		issues = append(issues, validateTable(d, tbl)...)
	}

	return issues
}

// validateTable checks a single table against the dataset defaults.
func validateTable(d *Dataset, t Table) []Issue {
	var issues []Issue
	prefix := "tables." + t.Name

	// Every table must resolve to exactly one non-empty source URL before
	// processing. This is a configuration error, not a runtime one.
	if strings.TrimSpace(t.URL) == "" && strings.TrimSpace(d.DefaultURL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".url",
			Message:  "table has no url and the dataset declares no default_url",
		})
	}

	if t.Archived != "" {
		issues = append(issues, validateArchive(prefix+".archived", t.Archived)...)
	}

	// An archive stage with neither extract_all nor a path has no file list
	// to extract (unless a sheet selector forces one).
	archived := t.Archived != "" || d.Archive != nil
	extractAll := t.ExtractAll || (d.Archive != nil && d.Archive.ExtractAll)
	if archived && !extractAll && t.Path == "" && t.XLSSheets == nil {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     prefix + ".path",
			Message:  "archived table has no path, extract_all, or xls_sheets; nothing selects the file to extract",
		})
	}

	if t.DatasetType != "" {
		if _, ok := knownDatasetTypes[t.DatasetType]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     prefix + ".dataset_type",
				Message:  fmt.Sprintf("unknown dataset_type %q; expected RasterDataset or VectorDataset", t.DatasetType),
			})
		}
	}

	if t.XLSSheets != nil {
		if t.XLSSheets.Sheet < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     prefix + ".xls_sheets",
				Message:  fmt.Sprintf("sheet index must not be negative, got %d", t.XLSSheets.Sheet),
			})
		}
		if strings.TrimSpace(t.XLSSheets.File) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     prefix + ".xls_sheets",
				Message:  "workbook filename must not be empty",
			})
		}
		if t.Path == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     prefix + ".path",
				Message:  "xls_sheets conversion requires a destination path",
			})
		}
	}

	if t.GeoJSONData != "" && t.Path == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".path",
			Message:  "geojson_data conversion requires a destination path",
		})
	}

	// Both markers on one table is legal; the spreadsheet conversion wins.
	// Warn so descriptor authors notice the geojson marker is inert.
	if t.XLSSheets != nil && t.GeoJSONData != "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     prefix + ".geojson_data",
			Message:  "both xls_sheets and geojson_data declared; only the spreadsheet conversion will run",
		})
	}

	return issues
}

// validateArchive checks an archive type tag.
func validateArchive(path, typ string) []Issue {
	if strings.TrimSpace(typ) == "" {
		// Empty type on the dataset policy defaults to zip at resolve time.
		return nil
	}
	if _, ok := knownArchiveTypes[typ]; !ok {
		return []Issue{{
			Severity: SeverityWarning,
			Path:     path,
			Message:  fmt.Sprintf("unknown archive type %q; extraction will fail unless an engine supports it", typ),
		}}
	}
	return nil
}
