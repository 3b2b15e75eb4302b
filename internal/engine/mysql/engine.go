// Package mysql implements the installation engine backed by MySQL/MariaDB
// via database/sql and the go-sql-driver. Rows are inserted with a prepared
// statement inside a single transaction.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"datapipe/internal/descriptor"
	"datapipe/internal/engine"
	"datapipe/internal/engine/base"
	"datapipe/internal/engine/infer"

	_ "github.com/go-sql-driver/mysql"
)

func init() {
	engine.Register("mysql", func(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
		return New(ctx, cfg)
	})
}

// Engine is the MySQL-backed installation engine.
type Engine struct {
	*base.Base
	db      *sql.DB
	schemas base.SchemaCache
}

// New opens a MySQL connection from cfg.DSN, for example:
//
//	"user:pass@tcp(127.0.0.1:3306)/dbname"
func New(ctx context.Context, cfg engine.Config) (*Engine, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}

	b, err := base.New("mysql", cfg.DataDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Engine{Base: b, db: db}, nil
}

// SpatialSupport reports false; MySQL installs tabular data only.
func (e *Engine) SpatialSupport() bool { return false }

// CreateTable infers the schema from src and recreates the table.
func (e *Engine) CreateTable(ctx context.Context, tbl descriptor.Table, src engine.Source) error {
	cols, err := e.InferColumns(ctx, src, tbl.Delimiter)
	if err != nil {
		return fmt.Errorf("mysql: infer %s: %w", tbl.Name, err)
	}
	e.schemas.Put(tbl.Name, cols)

	name := myIdent(infer.NormalizeName(tbl.Name))
	if _, err := e.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("mysql: drop %s: %w", tbl.Name, err)
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = myIdent(c.Name) + " " + sqlType(c.Kind)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("mysql: create %s: %w", tbl.Name, err)
	}
	return nil
}

// InsertFromFile inserts rows from the working-directory file at path.
func (e *Engine) InsertFromFile(ctx context.Context, tbl descriptor.Table, path string) error {
	f, err := e.OpenFile(path)
	if err != nil {
		return err
	}
	return e.insert(ctx, tbl, f)
}

// InsertFromURL inserts rows streamed from the source URL.
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
		return fmt.Errorf("mysql: insert %s: table was not created", tbl.Name)
	}

	rr, err := base.NewRowReader(r, base.DelimiterRune(tbl.Delimiter), cols, 0)
	if err != nil {
		return fmt.Errorf("mysql: insert %s: %w", tbl.Name, err)
	}

	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = myIdent(c.Name)
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		myIdent(infer.NormalizeName(tbl.Name)),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("mysql: prepare insert: %w", err)
	}
	defer stmt.Close()

	for {
		rows, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("mysql: insert %s: %w", tbl.Name, err)
		}
		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("mysql: insert %s: %w", tbl.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mysql: commit %s: %w", tbl.Name, err)
	}
	return nil
}

// InsertRaster is unreachable behind SpatialSupport.
func (e *Engine) InsertRaster(ctx context.Context, path string) error {
	return fmt.Errorf("mysql: raster data not supported")
}

// InsertVector is unreachable behind SpatialSupport.
func (e *Engine) InsertVector(ctx context.Context, path string) error {
	return fmt.Errorf("mysql: vector data not supported")
}

// Close closes the database connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// myIdent quotes a MySQL identifier with backticks.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// sqlType maps a logical column kind onto a MySQL type.
func sqlType(k infer.Kind) string {
	switch k {
	case infer.KindInt:
		return "BIGINT"
	case infer.KindReal:
		return "DOUBLE"
	case infer.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
