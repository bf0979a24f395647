package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arutha/lexhost/internal/infrastructure/config"
	"github.com/arutha/lexhost/internal/infrastructure/influxdb"
)

// fakeServer answers /ping and records line protocol posted to /api/v2/write.
type fakeServer struct {
	*httptest.Server

	mu           sync.Mutex
	lines        []string
	healthy      bool
	rejectWrites bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	f := &fakeServer{healthy: true}
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		healthy := f.healthy
		f.mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
		f.mu.Lock()
		if f.rejectWrites {
			f.mu.Unlock()
			http.Error(w, `{"code":"invalid","message":"rejected"}`, http.StatusBadRequest)
			return
		}
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "lexhost-test-token",
		Org:           "lexhost",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// assertLine checks a line protocol entry starts with prefix and contains parts.
func assertLine(t *testing.T, line, prefix string, parts ...string) {
	t.Helper()
	if !strings.HasPrefix(line, prefix) {
		t.Errorf("line %q does not start with %q", line, prefix)
	}
	for _, part := range parts {
		if !strings.Contains(line, part) {
			t.Errorf("line %q missing %q", line, part)
		}
	}
}

func connect(t *testing.T, url string) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(context.Background(), testConfig(url), "kiosk", nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	client, err := influxdb.Connect(context.Background(), cfg, "", nil)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() returned a client when disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := influxdb.Connect(context.Background(), testConfig("http://127.0.0.1:1"), "", nil)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	srv := newFakeServer(t)
	srv.healthy = false

	_, err := influxdb.Connect(context.Background(), testConfig(srv.URL), "", nil)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	srv := newFakeServer(t)
	cfg := testConfig(srv.URL)
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := influxdb.Connect(context.Background(), cfg, "", nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestHealthCheck(t *testing.T) {
	srv := newFakeServer(t)
	client := connect(t, srv.URL)
	defer client.Close() //nolint:errcheck // Test cleanup

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	srv.mu.Lock()
	srv.healthy = false
	srv.mu.Unlock()
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() expected error for unhealthy server, got nil")
	}
}

func TestRecordQuery(t *testing.T) {
	srv := newFakeServer(t)
	client := connect(t, srv.URL)

	client.RecordQuery("dictionary.db", 3, 1500*time.Microsecond, nil)
	client.RecordQuery("missing.db", 0, time.Millisecond, errors.New("not found"))
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := srv.written()
	if len(lines) != 2 {
		t.Fatalf("written lines = %v, want 2", lines)
	}
	assertLine(t, lines[0], "bridge_query,", "app=kiosk", "db=dictionary.db", "status=ok", "rows=3i", "duration_ms=1.5")
	assertLine(t, lines[1], "bridge_query,", "app=kiosk", "db=missing.db", "status=error", `error="not found"`)
}

func TestRecordProvisioning(t *testing.T) {
	srv := newFakeServer(t)
	client := connect(t, srv.URL)

	client.RecordProvisioning(7, 2, 20*time.Millisecond, "")
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := srv.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want 1", lines)
	}
	assertLine(t, lines[0], "provisioning,", "app=kiosk", "status=ok", "version_code=7i", "copied=2i", "duration_ms=20")
}

func TestWriteErrorsReachCallback(t *testing.T) {
	srv := newFakeServer(t)
	srv.rejectWrites = true

	errs := make(chan error, 4)
	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL), "", func(err error) {
		select {
		case errs <- err:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	client.RecordQuery("dictionary.db", 1, time.Millisecond, nil)

	select {
	case <-errs:
	case <-time.After(10 * time.Second):
		t.Fatal("write error not delivered to callback")
	}
}

func TestClosedAndNilClient(t *testing.T) {
	srv := newFakeServer(t)
	client := connect(t, srv.URL)
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// No-ops after close
	client.RecordQuery("x.db", 1, time.Millisecond, nil)
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}
	if n := len(srv.written()); n != 0 {
		t.Errorf("written %d lines after Close(), want 0", n)
	}

	var nilClient *influxdb.Client
	nilClient.RecordProvisioning(1, 1, time.Millisecond, "")
	nilClient.RecordQuery("x.db", 0, 0, nil)
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
