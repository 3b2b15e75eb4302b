package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tables is an ordered mapping of table name to Table. JSON object key order
// is preserved during decoding so that tables install in the order the
// descriptor declares them, which keeps processing deterministic.
type Tables struct {
	names  []string
	byName map[string]Table
}

// Len returns the number of tables.
func (t *Tables) Len() int { return len(t.names) }

// Names returns the table names in declaration order. The returned slice is
// shared; callers must not modify it.
func (t *Tables) Names() []string { return t.names }

// Get returns the table for name and whether it exists.
func (t *Tables) Get(name string) (Table, bool) {
	tbl, ok := t.byName[name]
	return tbl, ok
}

// Add appends a table under name, replacing any previous entry with the same
// name while keeping its original position. Used by tests and programmatic
// descriptor construction.
func (t *Tables) Add(name string, tbl Table) {
	tbl.Name = name
	if t.byName == nil {
		t.byName = map[string]Table{}
	}
	if _, exists := t.byName[name]; !exists {
		t.names = append(t.names, name)
	}
	t.byName[name] = tbl
}

// UnmarshalJSON decodes a JSON object of name -> Table while recording key
// order. Duplicate keys are rejected.
func (t *Tables) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("descriptor: tables: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("descriptor: tables must be a JSON object, got %v", tok)
	}

	t.names = nil
	t.byName = map[string]Table{}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("descriptor: tables key: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("descriptor: tables key must be a string, got %v", keyTok)
		}
		if _, dup := t.byName[name]; dup {
			return fmt.Errorf("descriptor: duplicate table %q", name)
		}

		var tbl Table
		if err := dec.Decode(&tbl); err != nil {
			return fmt.Errorf("descriptor: table %q: %w", name, err)
		}
		tbl.Name = name
		t.names = append(t.names, name)
		t.byName[name] = tbl
	}

	// Consume closing '}'.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("descriptor: tables: %w", err)
	}
	return nil
}

// MarshalJSON encodes the tables as a JSON object in declaration order.
func (t Tables) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, name := range t.names {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(t.byName[name])
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}
