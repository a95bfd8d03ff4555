//go:build cgo && duckdb && linux && (amd64 || arm64)

// DuckDB is only registered for Linux cgo builds so the default binary stays
// CGO-free. Enable it with:
//
//	CGO_ENABLED=1 go build -tags duckdb
package drivers

import (
	_ "github.com/marcboeker/go-duckdb"
)
