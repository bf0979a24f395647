// lexhost provisions the SQLite databases shipped in its bundle and serves
// a read-only query bridge over them.
//
// Usage:
//
//	lexhost [serve]          provision in the background and serve the API
//	lexhost provision        run the version-gated copy once
//	lexhost query <db> <sql> print a query result as JSON
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/arutha/lexhost/internal/cli"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.versionCode=3"
var (
	version     = "dev"     // Semantic version (e.g., "1.0.0")
	versionCode = "1"       // Integer compared against the stored marker
	commit      = "unknown" // Git commit hash
	date        = "unknown" // Build date
)

func main() {
	// Cancel on Ctrl+C and SIGTERM so serve shuts down gracefully
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code, err := parseVersionCode(versionCode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	info := cli.BuildInfo{
		Version:     version,
		VersionCode: code,
		Commit:      commit,
		Date:        date,
	}
	status := cli.Execute(ctx, info, os.Args[1:])
	cancel()
	os.Exit(status)
}

// parseVersionCode converts the linker-provided version code.
func parseVersionCode(s string) (int, error) {
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid build version code %q: %w", s, err)
	}
	if code < 0 {
		return 0, fmt.Errorf("invalid build version code %d: must not be negative", code)
	}
	return code, nil
}
