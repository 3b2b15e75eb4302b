// Package postgres implements the installation engine backed by Postgres via
// pgx v5. Tabular rows are bulk-loaded with the COPY protocol; raster and
// vector data are loaded through the PostGIS command-line tools raster2pgsql
// and shp2pgsql, piped into psql.
package postgres

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"datapipe/internal/descriptor"
	"datapipe/internal/engine"
	"datapipe/internal/engine/base"
	"datapipe/internal/engine/infer"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func init() {
	engine.Register("postgres", func(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
		return New(ctx, cfg)
	})
}

// Engine is the Postgres-backed installation engine.
type Engine struct {
	*base.Base
	pool    *pgxpool.Pool
	dsn     string
	schemas base.SchemaCache
}

// New opens a pgx connection pool from cfg.DSN (URI or keyword/value form).
func New(ctx context.Context, cfg engine.Config) (*Engine, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	b, err := base.New("postgres", cfg.DataDir)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Engine{Base: b, pool: pool, dsn: cfg.DSN}, nil
}

// SpatialSupport reports true; raster and vector loads go through the PostGIS
// tools.
func (e *Engine) SpatialSupport() bool { return true }

// CreateTable infers the schema from src and recreates the table. For raster
// and vector tables the PostGIS loaders emit their own CREATE statements, so
// only the stale table is dropped here.
func (e *Engine) CreateTable(ctx context.Context, tbl descriptor.Table, src engine.Source) error {
	if tbl.DatasetType != "" {
		name := base.QuoteIdent(tableFor(src.Path))
		if _, err := e.pool.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			return fmt.Errorf("postgres: drop %s: %w", tbl.Name, err)
		}
		return nil
	}

	cols, err := e.InferColumns(ctx, src, tbl.Delimiter)
	if err != nil {
		return fmt.Errorf("postgres: infer %s: %w", tbl.Name, err)
	}
	e.schemas.Put(tbl.Name, cols)

	name := base.QuoteIdent(infer.NormalizeName(tbl.Name))
	if _, err := e.pool.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("postgres: drop %s: %w", tbl.Name, err)
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = base.QuoteIdent(c.Name) + " " + sqlType(c.Kind)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err := e.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create %s: %w", tbl.Name, err)
	}
	return nil
}

// InsertFromFile bulk-loads rows from the working-directory file at path.
func (e *Engine) InsertFromFile(ctx context.Context, tbl descriptor.Table, path string) error {
	f, err := e.OpenFile(path)
	if err != nil {
		return err
	}
	return e.insert(ctx, tbl, f)
}

// InsertFromURL bulk-loads rows streamed from the source URL.
func (e *Engine) InsertFromURL(ctx context.Context, tbl descriptor.Table, url string) error {
	rc, err := e.Fetch().Open(ctx, url)
	if err != nil {
		return err
	}
	defer rc.Close()
	return e.insert(ctx, tbl, rc)
}

func (e *Engine) insert(ctx context.Context, tbl descriptor.Table, r io.Reader) error {
	cols, ok := e.schemas.Get(tbl.Name)
	if !ok {
		return fmt.Errorf("postgres: insert %s: table was not created", tbl.Name)
	}

	rr, err := base.NewRowReader(r, base.DelimiterRune(tbl.Delimiter), cols, 0)
	if err != nil {
		return fmt.Errorf("postgres: insert %s: %w", tbl.Name, err)
	}

	ident := pgx.Identifier{infer.NormalizeName(tbl.Name)}
	names := base.ColumnNames(cols)

	for {
		rows, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("postgres: insert %s: %w", tbl.Name, err)
		}
		if _, err := e.pool.CopyFrom(ctx, ident, names, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("postgres: copy into %s: %w", tbl.Name, err)
		}
	}
	return nil
}

// InsertRaster loads a raster file through raster2pgsql piped into psql. The
// target table name is derived from the filename.
func (e *Engine) InsertRaster(ctx context.Context, path string) error {
	local := e.FormatFilename(path)
	return e.pipeLoader(ctx,
		exec.CommandContext(ctx, "raster2pgsql", "-Y", "-I", local, tableFor(path)))
}

// InsertVector loads a shapefile through shp2pgsql piped into psql. The
// target table name is derived from the filename.
func (e *Engine) InsertVector(ctx context.Context, path string) error {
	local := e.FormatFilename(path)
	return e.pipeLoader(ctx,
		exec.CommandContext(ctx, "shp2pgsql", "-d", "-I", local, tableFor(path)))
}

// pipeLoader runs a PostGIS loader command and feeds its SQL output into psql
// connected with the engine's DSN.
func (e *Engine) pipeLoader(ctx context.Context, loader *exec.Cmd) error {
	psql := exec.CommandContext(ctx, "psql", e.dsn)

	pipe, err := loader.StdoutPipe()
	if err != nil {
		return fmt.Errorf("postgres: loader pipe: %w", err)
	}
	psql.Stdin = pipe

	if err := loader.Start(); err != nil {
		return fmt.Errorf("postgres: start %s: %w", loader.Path, err)
	}
	if err := psql.Start(); err != nil {
		_ = loader.Wait()
		return fmt.Errorf("postgres: start psql: %w", err)
	}

	loaderErr := loader.Wait()
	psqlErr := psql.Wait()
	if loaderErr != nil {
		return fmt.Errorf("postgres: %s: %w", filepath.Base(loader.Path), loaderErr)
	}
	if psqlErr != nil {
		return fmt.Errorf("postgres: psql: %w", psqlErr)
	}
	return nil
}

// Close closes the connection pool.
func (e *Engine) Close() error {
	e.pool.Close()
	return nil
}

// tableFor derives a table name from a data filename.
func tableFor(path string) string {
	b := filepath.Base(path)
	b = strings.TrimSuffix(b, filepath.Ext(b))
	return infer.NormalizeName(b)
}

// sqlType maps a logical column kind onto a Postgres type.
func sqlType(k infer.Kind) string {
	switch k {
	case infer.KindInt:
		return "BIGINT"
	case infer.KindReal:
		return "DOUBLE PRECISION"
	case infer.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
