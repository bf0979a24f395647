package bridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// unknownError is reported when a failure carries no message.
const unknownError = "unknown error"

// Logger defines the logging interface for the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder receives one call per ExecuteQuery.
type Recorder interface {
	RecordQuery(db string, rows int, duration time.Duration, err error)
}

// Options configures a Bridge.
type Options struct {
	// DatabaseDir holds the provisioned database files.
	DatabaseDir string

	// Assets is the bundle read by ReadAssetFile.
	Assets fs.FS
}

// Bridge executes queries against provisioned databases.
//
// Thread Safety:
//   - Query, ExecuteQuery and ReadAssetFile are safe for concurrent use.
//     Each query opens and closes its own read-only handle.
//   - SetLogger and SetRecorder must be called before the Bridge is shared.
type Bridge struct {
	dir      string
	assets   fs.FS
	logger   Logger
	recorder Recorder
}

// New creates a Bridge.
func New(opts Options) *Bridge {
	return &Bridge{
		dir:    opts.DatabaseDir,
		assets: opts.Assets,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// SetRecorder sets the query metrics recorder.
func (b *Bridge) SetRecorder(r Recorder) {
	b.recorder = r
}

// DatabaseDir returns the directory queries resolve names against.
func (b *Bridge) DatabaseDir() string {
	return b.dir
}

// DatabasePath resolves a database name to its provisioned path.
// Names must be plain file names.
func (b *Bridge) DatabasePath(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, os.PathSeparator) {
		return "", &InvalidNameError{Name: name}
	}
	return filepath.Join(b.dir, name), nil
}

// Query runs query verbatim against the named database and returns the
// rows in cursor order. Cancellation of ctx does not interrupt a query
// once started.
func (b *Bridge) Query(ctx context.Context, dbName, query string) ([]Row, error) {
	path, err := b.DatabasePath(dbName)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, &NotFoundError{Name: dbName}
	}

	return readRows(path, query)
}

// ExecuteQuery runs Query and serializes the outcome. It never fails: any
// error is rendered as an error payload.
func (b *Bridge) ExecuteQuery(ctx context.Context, dbName, query string) string {
	start := time.Now()
	rows, err := b.Query(ctx, dbName, query)

	var out string
	if err == nil {
		var body []byte
		body, err = encodeJSON(rows)
		if err != nil {
			err = fmt.Errorf("encoding result: %w", err)
		} else {
			out = string(body)
		}
	}

	duration := time.Since(start)
	if b.recorder != nil {
		b.recorder.RecordQuery(dbName, len(rows), duration, err)
	}

	if err != nil {
		b.logger.Warn("query failed", "db", dbName, "error", err, "duration", duration)
		return ErrorJSON(err.Error())
	}
	b.logger.Debug("query executed", "db", dbName, "rows", len(rows), "duration", duration)
	return out
}

// ErrorJSON renders msg as {"error": msg}.
func ErrorJSON(msg string) string {
	if msg == "" {
		msg = unknownError
	}
	body, err := encodeJSON(map[string]string{"error": msg})
	if err != nil {
		// A map of strings always encodes.
		return `{"error":"` + unknownError + `"}`
	}
	return string(body)
}

// ReadAssetFile returns the UTF-8 text of a bundled resource. It reports
// false, after logging the cause, when the resource cannot be read.
func (b *Bridge) ReadAssetFile(path string) (string, bool) {
	if b.assets == nil {
		b.logger.Warn("asset read without a bundle", "path", path)
		return "", false
	}

	name := strings.TrimPrefix(path, "/")
	if !fs.ValidPath(name) {
		b.logger.Warn("invalid asset path", "path", path)
		return "", false
	}

	data, err := fs.ReadFile(b.assets, name)
	if err != nil {
		level := b.logger.Error
		if errors.Is(err, fs.ErrNotExist) {
			level = b.logger.Warn
		}
		level("reading asset failed", "path", path, "error", err)
		return "", false
	}

	// Each malformed sequence decodes to U+FFFD.
	text, err := unicode.UTF8.NewDecoder().Bytes(data)
	if err != nil {
		b.logger.Error("decoding asset failed", "path", path, "error", err)
		return "", false
	}
	return string(text), true
}
