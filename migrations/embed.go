// Package migrations embeds the state database schema into the binary.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// FS returns the state database migrations.
func FS() fs.FS {
	return files
}
