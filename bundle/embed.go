// Package bundle exposes the asset tree shipped with lexhost.
//
// The tree has two folders: server-data holds the read-only .db files that
// get provisioned into the writable database directory, and dist holds the
// browser UI served by the API.
package bundle

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

//go:embed all:assets
var assets embed.FS

// Embedded returns the compiled-in asset tree rooted at its top level.
func Embedded() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		// fs.Sub only fails on an invalid path literal.
		panic(err)
	}
	return sub
}

// Open returns the embedded tree when dir is empty, otherwise the directory
// on disk. The directory must exist.
func Open(dir string) (fs.FS, error) {
	if dir == "" {
		return Embedded(), nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening bundle: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening bundle: %s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}
