// Package mssql implements the installation engine backed by Microsoft SQL
// Server. Rows are inserted through the go-mssqldb bulk copy API (CopyIn)
// inside a transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"datapipe/internal/descriptor"
	"datapipe/internal/engine"
	"datapipe/internal/engine/base"
	"datapipe/internal/engine/infer"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
)

func init() {
	engine.Register("mssql", func(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
		return New(ctx, cfg)
	})
}

// Engine is the SQL Server-backed installation engine.
type Engine struct {
	*base.Base
	db      *sql.DB
	schemas base.SchemaCache
}

// New opens a SQL Server connection from cfg.DSN. The DSN is validated with
// msdsn before opening, to fail fast on obvious mistakes.
func New(ctx context.Context, cfg engine.Config) (*Engine, error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql: dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}

	b, err := base.New("mssql", cfg.DataDir)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Engine{Base: b, db: db}, nil
}

// SpatialSupport reports false; SQL Server installs tabular data only.
func (e *Engine) SpatialSupport() bool { return false }

// CreateTable infers the schema from src and recreates the table.
func (e *Engine) CreateTable(ctx context.Context, tbl descriptor.Table, src engine.Source) error {
	cols, err := e.InferColumns(ctx, src, tbl.Delimiter)
	if err != nil {
		return fmt.Errorf("mssql: infer %s: %w", tbl.Name, err)
	}
	e.schemas.Put(tbl.Name, cols)

	name := msIdent(infer.NormalizeName(tbl.Name))
	drop := fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s",
		infer.NormalizeName(tbl.Name), name)
	if _, err := e.db.ExecContext(ctx, drop); err != nil {
		return fmt.Errorf("mssql: drop %s: %w", tbl.Name, err)
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = msIdent(c.Name) + " " + sqlType(c.Kind)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("mssql: create %s: %w", tbl.Name, err)
	}
	return nil
}

// InsertFromFile bulk-copies rows from the working-directory file at path.
func (e *Engine) InsertFromFile(ctx context.Context, tbl descriptor.Table, path string) error {
	f, err := e.OpenFile(path)
	if err != nil {
		return err
	}
	return e.insert(ctx, tbl, f)
}

// InsertFromURL bulk-copies rows streamed from the source URL.
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
		return fmt.Errorf("mssql: insert %s: table was not created", tbl.Name)
	}

	rr, err := base.NewRowReader(r, base.DelimiterRune(tbl.Delimiter), cols, 0)
	if err != nil {
		return fmt.Errorf("mssql: insert %s: %w", tbl.Name, err)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(
		infer.NormalizeName(tbl.Name), mssql.BulkOptions{}, base.ColumnNames(cols)...))
	if err != nil {
		rollback()
		return fmt.Errorf("mssql: prepare bulk: %w", err)
	}

	for {
		rows, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = stmt.Close()
			rollback()
			return fmt.Errorf("mssql: insert %s: %w", tbl.Name, err)
		}
		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				_ = stmt.Close()
				rollback()
				return fmt.Errorf("mssql: bulk row: %w", err)
			}
		}
	}

	// A final Exec with no args flushes the bulk copy.
	_, err = stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return fmt.Errorf("mssql: bulk finalize: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit %s: %w", tbl.Name, err)
	}
	return nil
}

// InsertRaster is unreachable behind SpatialSupport.
func (e *Engine) InsertRaster(ctx context.Context, path string) error {
	return fmt.Errorf("mssql: raster data not supported")
}

// InsertVector is unreachable behind SpatialSupport.
func (e *Engine) InsertVector(ctx context.Context, path string) error {
	return fmt.Errorf("mssql: vector data not supported")
}

// Close closes the database connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// msIdent quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// sqlType maps a logical column kind onto a SQL Server type.
func sqlType(k infer.Kind) string {
	switch k {
	case infer.KindInt:
		return "BIGINT"
	case infer.KindReal:
		return "FLOAT"
	case infer.KindBool:
		return "BIT"
	default:
		return "NVARCHAR(MAX)"
	}
}
