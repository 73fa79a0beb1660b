//go:build cgo_sqlite
// +build cgo_sqlite

package storage

// This file is compiled when building with CGO and the cgo_sqlite tag.
// It uses the C SQLite library with the FTS5 extension compiled in.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "cgo_sqlite,fts5" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

// connString builds the driver DSN. Pragmas ride on the DSN so every
// pooled connection gets them, not just the first one opened.
func connString(dbPath string, busyTimeoutMS int) string {
	return fmt.Sprintf(
		"%s?_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL&_busy_timeout=%d",
		dbPath, busyTimeoutMS)
}
