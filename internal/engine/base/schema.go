package base

import (
	"context"
	"fmt"
	"io"
	"sync"

	"datapipe/internal/engine"
	"datapipe/internal/engine/infer"
)

// OpenSource opens a table source for reading: the tracked working-directory
// file when src.Path is set, else the streamed HTTP body of src.URL.
func (b *Base) OpenSource(ctx context.Context, src engine.Source) (io.ReadCloser, error) {
	if src.Path != "" {
		return b.OpenFile(src.Path)
	}
	if src.URL != "" {
		return b.client.Open(ctx, src.URL)
	}
	return nil, fmt.Errorf("engine %s: source has neither path nor url", b.name)
}

// InferColumns opens the source and derives its column definitions from the
// header plus a bounded row sample. URL sources are fetched once here and
// again at insert time; sources are not assumed seekable.
func (b *Base) InferColumns(ctx context.Context, src engine.Source, delimiter string) ([]infer.Column, error) {
	rc, err := b.OpenSource(ctx, src)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return infer.FromCSV(rc, DelimiterRune(delimiter), 0)
}

// SchemaCache remembers the columns inferred at table creation so the insert
// stage reuses them instead of re-deriving the schema. Safe for concurrent
// use.
type SchemaCache struct {
	mu sync.RWMutex
	m  map[string][]infer.Column
}

// Put stores the columns for a table name.
func (c *SchemaCache) Put(table string, cols []infer.Column) {
	c.mu.Lock()
	if c.m == nil {
		c.m = map[string][]infer.Column{}
	}
	c.m[table] = cols
	c.mu.Unlock()
}

// Get returns the cached columns for a table name.
func (c *SchemaCache) Get(table string) ([]infer.Column, bool) {
	c.mu.RLock()
	cols, ok := c.m[table]
	c.mu.RUnlock()
	return cols, ok
}
