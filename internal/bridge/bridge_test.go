package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/arutha/lexhost/internal/infrastructure/database"
)

// newGoldie returns a goldie instance reading testdata/golden/*.golden.
func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// seedDatabase creates dir/name with the given statements.
func seedDatabase(t *testing.T, dir, name string, stmts ...string) {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(dir, name), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test fixture

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seeding %q: %v", stmt, err)
		}
	}
}

// newTestBridge provisions a dictionary.db fixture.
func newTestBridge(t *testing.T) (*Bridge, string) {
	t.Helper()

	dir := t.TempDir()
	seedDatabase(t, dir, "dictionary.db",
		`CREATE TABLE words (id INTEGER PRIMARY KEY, word TEXT NOT NULL, definition TEXT, audio BLOB)`,
		`INSERT INTO words (word, definition, audio) VALUES ('alpha', 'first letter', x'0001')`,
		`INSERT INTO words (word, definition, audio) VALUES ('beta', 'second letter', NULL)`,
		`INSERT INTO words (word, definition, audio) VALUES ('gamma', NULL, x'')`,
	)

	assets := fstest.MapFS{
		"dist/index.html":       &fstest.MapFile{Data: []byte("<html></html>")},
		"server-data/notes.txt": &fstest.MapFile{Data: []byte("héllo")},
		"broken.txt":            &fstest.MapFile{Data: []byte{'o', 'k', 0xff}},
	}

	return New(Options{DatabaseDir: dir, Assets: assets}), dir
}

func TestExecuteQuery_TypeFidelity(t *testing.T) {
	b, _ := newTestBridge(t)

	out := b.ExecuteQuery(context.Background(), "dictionary.db",
		`SELECT 42 AS col_int, 3.14 AS col_real, 'hi' AS col_text, NULL AS col_null, x'DEADBEEF' AS col_blob`)

	newGoldie(t).Assert(t, "type_fidelity", []byte(out))
}

func TestExecuteQuery_DeclaredTypeIgnored(t *testing.T) {
	b, dir := newTestBridge(t)
	seedDatabase(t, dir, "typed.db",
		`CREATE TABLE t (d DATE, ts DATETIME, flag BOOLEAN, at TIMESTAMP, n NUMERIC, r REAL)`,
		`INSERT INTO t VALUES ('2024-01-01', 1700000000, 5, '2024-01-02 03:04:05', 'n/a', 'x')`,
		`INSERT INTO t VALUES (20240101, '2023-11-14T22:13:20Z', 0, 1.5, 7, 2)`,
	)

	got := b.ExecuteQuery(context.Background(), "typed.db", `SELECT * FROM t ORDER BY rowid`)
	want := `[{"d":"2024-01-01","ts":1700000000,"flag":5,"at":"2024-01-02 03:04:05","n":"n/a","r":"x"},` +
		`{"d":20240101,"ts":"2023-11-14T22:13:20Z","flag":0,"at":1.5,"n":7,"r":2}]`
	if got != want {
		t.Errorf("ExecuteQuery() = %s, want %s", got, want)
	}
}

func TestQuery_StorageClasses(t *testing.T) {
	b, _ := newTestBridge(t)

	tests := []struct {
		name  string
		query string
		want  Value
		blob  bool
	}{
		{name: "integer", query: `SELECT 42 AS v`, want: Integer(42)},
		{name: "max integer", query: `SELECT 9223372036854775807 AS v`, want: Integer(9223372036854775807)},
		{name: "real", query: `SELECT 3.14 AS v`, want: Real(3.14)},
		{name: "whole real", query: `SELECT 2.0 AS v`, want: Real(2)},
		{name: "text", query: `SELECT 'hi' AS v`, want: Text("hi")},
		{name: "numeric text", query: `SELECT '42' AS v`, want: Text("42")},
		{name: "null", query: `SELECT NULL AS v`, want: Null()},
		{name: "blob", query: `SELECT x'DEAD' AS v`, blob: true},
		{name: "empty blob", query: `SELECT x'' AS v`, blob: true},
		{name: "cast keeps class", query: `SELECT CAST(1 AS TEXT) AS v`, want: Text("1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := b.Query(context.Background(), "dictionary.db", tt.query)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(rows) != 1 {
				t.Fatalf("Query() returned %d rows, want 1", len(rows))
			}
			got, ok := rows[0].Get("v")
			if tt.blob {
				if ok {
					t.Errorf("blob column present with %v", got)
				}
				return
			}
			if !ok || got != tt.want {
				t.Errorf("Get(v) = %v, %v; want %v", got, ok, tt.want)
			}
		})
	}
}

func TestQuery_BlankStatement(t *testing.T) {
	b, _ := newTestBridge(t)

	for _, query := range []string{"", "   ", "-- comment only"} {
		rows, err := b.Query(context.Background(), "dictionary.db", query)
		if err != nil {
			t.Errorf("Query(%q) error = %v", query, err)
			continue
		}
		if rows == nil || len(rows) != 0 {
			t.Errorf("Query(%q) = %v, want empty non-nil slice", query, rows)
		}
	}
}

func TestExecuteQuery_RowsInCursorOrder(t *testing.T) {
	b, _ := newTestBridge(t)

	out := b.ExecuteQuery(context.Background(), "dictionary.db",
		`SELECT id, word, definition, audio FROM words ORDER BY id`)

	newGoldie(t).Assert(t, "word_list", []byte(out))
}

func TestExecuteQuery_EmptyResult(t *testing.T) {
	b, _ := newTestBridge(t)

	out := b.ExecuteQuery(context.Background(), "dictionary.db", `SELECT * FROM words WHERE id < 0`)
	if out != "[]" {
		t.Errorf("ExecuteQuery() = %s, want []", out)
	}
}

func TestExecuteQuery_Errors(t *testing.T) {
	b, dir := newTestBridge(t)

	tests := []struct {
		name  string
		db    string
		query string
		want  string
	}{
		{
			name:  "missing file",
			db:    "nope.db",
			query: "SELECT 1",
			want:  "Database file not found: nope.db",
		},
		{
			name:  "path separator",
			db:    "../dictionary.db",
			query: "SELECT 1",
			want:  "File ../dictionary.db contains a path separator",
		},
		{
			name:  "directory name",
			db:    "",
			query: "SELECT 1",
			want:  "Database file not found: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := b.ExecuteQuery(context.Background(), tt.db, tt.query)
			var payload map[string]string
			if err := json.Unmarshal([]byte(out), &payload); err != nil {
				t.Fatalf("output is not JSON: %s", out)
			}
			if payload["error"] != tt.want {
				t.Errorf("error = %q, want %q", payload["error"], tt.want)
			}
		})
	}

	// Missing file must not be created by an open attempt.
	if _, err := os.Stat(filepath.Join(dir, "nope.db")); !os.IsNotExist(err) {
		t.Error("query for a missing database created the file")
	}
}

func TestExecuteQuery_MalformedQuery(t *testing.T) {
	b, _ := newTestBridge(t)

	for _, query := range []string{
		"SELEC * FROM words",
		"SELECT * FROM no_such_table",
	} {
		t.Run(query, func(t *testing.T) {
			out := b.ExecuteQuery(context.Background(), "dictionary.db", query)
			var payload map[string]string
			if err := json.Unmarshal([]byte(out), &payload); err != nil {
				t.Fatalf("output is not an error object: %s", out)
			}
			if payload["error"] == "" {
				t.Errorf("error message is empty in %s", out)
			}
		})
	}
}

func TestExecuteQuery_ReadOnly(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx := context.Background()

	out := b.ExecuteQuery(ctx, "dictionary.db", `DELETE FROM words`)
	if !strings.HasPrefix(out, `{"error":`) {
		t.Fatalf("DELETE through the bridge = %s, want error payload", out)
	}

	rows, err := b.Query(ctx, "dictionary.db", `SELECT COUNT(*) AS n FROM words`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if v, _ := rows[0].Get("n"); v.Int() != 3 {
		t.Errorf("row count after DELETE = %d, want 3", v.Int())
	}
}

func TestExecuteQuery_DuplicateColumns(t *testing.T) {
	b, _ := newTestBridge(t)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "last wins", query: `SELECT 1 AS a, 2 AS a`, want: `[{"a":2}]`},
		{name: "blob does not replace", query: `SELECT 1 AS a, x'00' AS a`, want: `[{"a":1}]`},
		{name: "null replaces", query: `SELECT 1 AS a, NULL AS a`, want: `[{"a":null}]`},
		{name: "only blob", query: `SELECT x'00' AS a`, want: `[{}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.ExecuteQuery(context.Background(), "dictionary.db", tt.query); got != tt.want {
				t.Errorf("ExecuteQuery() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExecuteQuery_TextIsNotHTMLEscaped(t *testing.T) {
	b, _ := newTestBridge(t)

	got := b.ExecuteQuery(context.Background(), "dictionary.db", `SELECT '<b>&"' AS t`)
	want := `[{"t":"<b>&\""}]`
	if got != want {
		t.Errorf("ExecuteQuery() = %s, want %s", got, want)
	}
}

func TestExecuteQuery_NonFiniteReal(t *testing.T) {
	b, _ := newTestBridge(t)

	out := b.ExecuteQuery(context.Background(), "dictionary.db", `SELECT 1e999 AS inf`)
	if !strings.HasPrefix(out, `{"error":`) {
		t.Errorf("ExecuteQuery() = %s, want error payload", out)
	}
}

func TestExecuteQuery_ReleasesHandle(t *testing.T) {
	b, dir := newTestBridge(t)
	ctx := context.Background()

	for _, query := range []string{
		`SELECT * FROM words`,
		`SELECT * FROM words WHERE nonsense`,
	} {
		b.ExecuteQuery(ctx, "dictionary.db", query)

		db, err := database.Open(ctx, database.Config{Path: filepath.Join(dir, "dictionary.db")})
		if err != nil {
			t.Fatalf("database.Open() error = %v", err)
		}
		if _, err := db.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
			t.Errorf("exclusive lock after %q: %v", query, err)
		} else if _, err := db.ExecContext(ctx, "COMMIT"); err != nil {
			t.Errorf("COMMIT error = %v", err)
		}
		db.Close() //nolint:errcheck // Test cleanup
	}
}

func TestExecuteQuery_Concurrent(t *testing.T) {
	b, _ := newTestBridge(t)

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := b.ExecuteQuery(context.Background(), "dictionary.db", `SELECT word FROM words WHERE id = 2`)
			if out != `[{"word":"beta"}]` {
				errs <- out
			}
		}()
	}
	wg.Wait()
	close(errs)

	for out := range errs {
		t.Errorf("concurrent ExecuteQuery() = %s", out)
	}
}

func TestExecuteQuery_CancelledContext(t *testing.T) {
	b, _ := newTestBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if out := b.ExecuteQuery(ctx, "dictionary.db", `SELECT 1 AS one`); out != `[{"one":1}]` {
		t.Errorf("ExecuteQuery() with cancelled context = %s, want [{\"one\":1}]", out)
	}
}

type recordedQuery struct {
	db   string
	rows int
	err  error
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedQuery
}

func (f *fakeRecorder) RecordQuery(db string, rows int, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedQuery{db: db, rows: rows, err: err})
}

func TestExecuteQuery_Recorder(t *testing.T) {
	b, _ := newTestBridge(t)
	rec := &fakeRecorder{}
	b.SetRecorder(rec)

	b.ExecuteQuery(context.Background(), "dictionary.db", `SELECT * FROM words`)
	b.ExecuteQuery(context.Background(), "missing.db", `SELECT 1`)

	if len(rec.calls) != 2 {
		t.Fatalf("recorder calls = %d, want 2", len(rec.calls))
	}
	if rec.calls[0].rows != 3 || rec.calls[0].err != nil {
		t.Errorf("first call = %+v, want 3 rows without error", rec.calls[0])
	}
	if !errors.Is(rec.calls[1].err, ErrNotFound) {
		t.Errorf("second call error = %v, want ErrNotFound", rec.calls[1].err)
	}
}

func TestQuery_TypedErrors(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx := context.Background()

	if _, err := b.Query(ctx, "a/b.db", "SELECT 1"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Query(a/b.db) error = %v, want ErrInvalidName", err)
	}
	if _, err := b.Query(ctx, `a\b.db`, "SELECT 1"); !errors.Is(err, ErrInvalidName) {
		t.Errorf(`Query(a\b.db) error = %v, want ErrInvalidName`, err)
	}

	_, err := b.Query(ctx, "missing.db", "SELECT 1")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Name != "missing.db" {
		t.Errorf("Query(missing.db) error = %v, want *NotFoundError", err)
	}
}

func TestErrorJSON(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{msg: "boom", want: `{"error":"boom"}`},
		{msg: "", want: `{"error":"unknown error"}`},
		{msg: `near "x": syntax error`, want: `{"error":"near \"x\": syntax error"}`},
		{msg: "a < b", want: `{"error":"a < b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := ErrorJSON(tt.msg); got != tt.want {
				t.Errorf("ErrorJSON(%q) = %s, want %s", tt.msg, got, tt.want)
			}
		})
	}
}

func TestReadAssetFile(t *testing.T) {
	b, _ := newTestBridge(t)

	tests := []struct {
		name   string
		path   string
		want   string
		wantOK bool
	}{
		{name: "present", path: "server-data/notes.txt", want: "héllo", wantOK: true},
		{name: "leading slash", path: "/dist/index.html", want: "<html></html>", wantOK: true},
		{name: "invalid utf-8 replaced", path: "broken.txt", want: "ok\uFFFD", wantOK: true},
		{name: "absent", path: "server-data/missing.txt", wantOK: false},
		{name: "escaping path", path: "../etc/passwd", wantOK: false},
		{name: "directory", path: "dist", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := b.ReadAssetFile(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("ReadAssetFile(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ReadAssetFile(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestReadAssetFile_NoBundle(t *testing.T) {
	b := New(Options{DatabaseDir: t.TempDir()})
	if _, ok := b.ReadAssetFile("anything"); ok {
		t.Error("ReadAssetFile() without a bundle reported ok")
	}
}
