// Package base implements the engine operations that are identical across
// storage backends: working-directory management, HTTP downloads with a
// content-addressed cache, archive extraction, format conversion, and
// per-table file-handle tracking. Concrete engines embed Base and add only
// the SQL side (create table, insert).
package base

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"datapipe/internal/archive"
	"datapipe/internal/convert"
	"datapipe/internal/engine"
	"datapipe/internal/fetch"
)

// Base carries the non-SQL half of an engine implementation.
type Base struct {
	name    string
	dataDir string
	client  *fetch.Client

	mu   sync.Mutex
	open []*os.File
}

// New constructs a Base for the named engine with dataDir as its working
// directory. The directory is created if missing.
func New(name, dataDir string) (*Base, error) {
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "datapipe", name)
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("engine %s: resolve data dir: %w", name, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("engine %s: create data dir: %w", name, err)
	}
	return &Base{
		name:    name,
		dataDir: abs,
		client:  fetch.NewClient(fetch.Config{}),
	}, nil
}

// Name returns the engine name.
func (b *Base) Name() string { return b.name }

// DataDir returns the engine's working directory.
func (b *Base) DataDir() string { return b.dataDir }

// Fetch returns the engine's download client, for backends that stream rows
// directly from a URL.
func (b *Base) Fetch() *fetch.Client { return b.client }

// FormatFilename maps a descriptor-relative filename into the working
// directory.
func (b *Base) FormatFilename(name string) string {
	return filepath.Join(b.dataDir, filepath.FromSlash(name))
}

// DownloadFile fetches url into the working directory as filename. An
// existing file of the same name is reused; descriptors are immutable per
// run, so a second table referencing the same file never re-downloads it.
func (b *Base) DownloadFile(ctx context.Context, url, filename string) error {
	dest := b.FormatFilename(filename)
	if _, err := os.Stat(dest); err == nil {
		log.Printf("engine %s: reuse cached file %s", b.name, filename)
		return nil
	}
	log.Printf("engine %s: download %s -> %s", b.name, url, filename)
	return b.client.DownloadTo(ctx, url, dest)
}

// DownloadArchive fetches the archive at url (cached under a URL-derived
// name unless spec.ArchiveName overrides it) and expands the selected
// members into the working directory.
func (b *Base) DownloadArchive(ctx context.Context, url string, spec engine.ArchiveSpec) error {
	name := spec.ArchiveName
	if name == "" {
		name = fetch.CacheName(url)
	}
	local := b.FormatFilename(name)

	if _, err := os.Stat(local); err != nil {
		log.Printf("engine %s: download archive %s", b.name, url)
		if err := b.client.DownloadTo(ctx, url, local); err != nil {
			return err
		}
	}

	// Preflight: an archive commonly inflates a few-fold; warn when the
	// volume looks too tight rather than failing mid-extraction.
	if info, err := os.Stat(local); err == nil {
		if free, err := archive.FreeBytes(b.dataDir); err == nil && free < uint64(info.Size())*2 {
			log.Printf("engine %s: low disk space: %d bytes free for a %d byte archive", b.name, free, info.Size())
		}
	}

	return archive.Extract(local, b.dataDir, archive.Options{
		Type:     spec.Type,
		Files:    spec.Files,
		KeepDirs: spec.KeepInDir,
	})
}

// SpreadsheetToCSV converts one workbook sheet to CSV. Paths are
// descriptor-relative.
func (b *Base) SpreadsheetToCSV(ctx context.Context, src, dst string, sheet int, encoding string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return convert.SpreadsheetToCSV(b.FormatFilename(src), b.FormatFilename(dst), sheet, encoding)
}

// GeoJSONToCSV converts a geojson file to CSV. Paths are descriptor-relative.
func (b *Base) GeoJSONToCSV(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return convert.GeoJSONToCSV(b.FormatFilename(src), b.FormatFilename(dst))
}

// OpenFile opens a descriptor-relative file for reading and tracks the
// handle until ReleaseFiles is called.
func (b *Base) OpenFile(name string) (*os.File, error) {
	f, err := os.Open(b.FormatFilename(name))
	if err != nil {
		return nil, fmt.Errorf("engine %s: open %s: %w", b.name, name, err)
	}
	b.mu.Lock()
	b.open = append(b.open, f)
	b.mu.Unlock()
	return f, nil
}

// ReleaseFiles closes every handle opened via OpenFile since the last call.
// Closing an already-closed handle is not an error.
func (b *Base) ReleaseFiles() error {
	b.mu.Lock()
	open := b.open
	b.open = nil
	b.mu.Unlock()

	var firstErr error
	for _, f := range open {
		if err := f.Close(); err != nil && !os.IsNotExist(err) && firstErr == nil {
			if !isAlreadyClosed(err) {
				firstErr = err
			}
		}
	}
	return firstErr
}

// isAlreadyClosed reports whether err is the double-close error from os.File.
func isAlreadyClosed(err error) bool {
	pe, ok := err.(*os.PathError)
	return ok && pe.Err == os.ErrClosed
}
