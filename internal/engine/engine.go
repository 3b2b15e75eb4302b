// Package engine defines the installation backend contract consumed by the
// pipeline driver, plus a factory registry so binaries can select a backend
// by name without importing it directly.
//
// An Engine owns the actual I/O: fetching source files, expanding archives,
// converting formats, creating stored-table schemas, and inserting data. The
// driver only decides which of these operations to invoke, in what order,
// and with what parameters. Success/failure semantics of each operation
// belong to the engine.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"datapipe/internal/descriptor"
)

// Source identifies where a table's definition or rows come from: exactly one
// of URL or Path is set.
type Source struct {
	// URL streams directly from the resolved source URL.
	URL string

	// Path reads the local file inside the engine's working directory.
	Path string
}

// ArchiveSpec carries the resolved parameters for fetching and expanding one
// archived source.
type ArchiveSpec struct {
	// Type is the archive format tag ("zip", "tar", "tar.gz", "gz").
	Type string

	// Files lists the members to extract; nil means extract all.
	Files []string

	// KeepInDir preserves the archive's directory layout on extraction;
	// when false, members are flattened into the working directory.
	KeepInDir bool

	// ArchiveName optionally overrides the local filename the archive is
	// downloaded to.
	ArchiveName string
}

// Engine is the fixed operation surface the pipeline driver drives. All
// blocking operations take a context and return an explicit error; the driver
// does not retry.
type Engine interface {
	// Name identifies the engine in logs and diagnostics.
	Name() string

	// SpatialSupport reports whether the engine can create spatial tables
	// and insert raster/vector data.
	SpatialSupport() bool

	// FormatFilename maps a descriptor-relative filename to its location in
	// the engine's working directory.
	FormatFilename(name string) string

	// DownloadFile fetches url into the working directory as filename.
	DownloadFile(ctx context.Context, url, filename string) error

	// DownloadArchive fetches the archive at url and expands it per spec,
	// ensuring the selected members are locally available.
	DownloadArchive(ctx context.Context, url string, spec ArchiveSpec) error

	// SpreadsheetToCSV converts one workbook sheet to a CSV file at the
	// working-directory-relative path dst, written in the given text encoding.
	SpreadsheetToCSV(ctx context.Context, src, dst string, sheet int, encoding string) error

	// GeoJSONToCSV converts a geojson file to a CSV file at the
	// working-directory-relative path dst.
	GeoJSONToCSV(ctx context.Context, src, dst string) error

	// CreateTable creates the stored-table schema for tbl from src. Schema
	// inference from the source is the engine's concern.
	CreateTable(ctx context.Context, tbl descriptor.Table, src Source) error

	// InsertFromFile inserts rows into tbl from the tabular file at the
	// working-directory-relative path.
	InsertFromFile(ctx context.Context, tbl descriptor.Table, path string) error

	// InsertFromURL inserts rows into tbl streamed from the source URL
	// without local materialization.
	InsertFromURL(ctx context.Context, tbl descriptor.Table, url string) error

	// InsertRaster inserts raster data from the file at the
	// working-directory-relative path.
	InsertRaster(ctx context.Context, path string) error

	// InsertVector inserts vector data from the file at the
	// working-directory-relative path.
	InsertVector(ctx context.Context, path string) error

	// ReleaseFiles closes any file handles opened while processing the
	// current table. The driver calls it once per table.
	ReleaseFiles() error

	// Close releases the engine's connection and resources.
	Close() error
}

// Config carries the settings shared by all engine factories.
type Config struct {
	// Kind selects the registered engine ("sqlite", "postgres", "mysql",
	// "mssql").
	Kind string

	// DSN is the backend connection string, passed through to the driver.
	DSN string

	// DataDir is the working directory for downloaded and extracted files.
	DataDir string
}

// Factory constructs a concrete engine from a Config.
type Factory func(ctx context.Context, cfg Config) (Engine, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) a Factory for the given engine kind. It is
// typically called from backend packages' init() functions.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// Open locates the Factory for cfg.Kind and invokes it. Callers do not need
// to know which backend they are using; they pass the Config and drive the
// returned Engine through the pipeline.
func Open(ctx context.Context, cfg Config) (Engine, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: no engine registered for kind=%q (registered: %v)", cfg.Kind, Kinds())
	}
	return fn(ctx, cfg)
}

// Kinds returns the registered engine kinds, sorted.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
