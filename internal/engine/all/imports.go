// Package all wires all built-in installation engines into the engine
// factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete engine to run, which in
// turn register their factories with the engine package.
//
// In other words, importing this package makes the following engine kinds
// available at runtime:
//
//   - "postgres" (datapipe/internal/engine/postgres)
//   - "mysql"    (datapipe/internal/engine/mysql)
//   - "mssql"    (datapipe/internal/engine/mssql)
//   - "sqlite"   (datapipe/internal/engine/sqlite)
//
// Typical usage (in cmd/datapipe/main.go or a similar wiring layer):
//
//	import (
//	    _ "datapipe/internal/engine/all" // enable all built-in engines
//
//	    "datapipe/internal/engine"
//	)
//
//	eng, err := engine.Open(ctx, engine.Config{Kind: "sqlite", DSN: dsn})
//
// If a binary should support only a subset of engines, define an alternative
// wiring package that imports just the required backends instead of this one.
package all

import (
	_ "datapipe/internal/engine/mssql"
	_ "datapipe/internal/engine/mysql"
	_ "datapipe/internal/engine/postgres"
	_ "datapipe/internal/engine/sqlite"
)
