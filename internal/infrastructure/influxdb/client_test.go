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

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
	"github.com/nerrad567/chimp-relay/internal/infrastructure/influxdb"
)

// fakeInflux answers pings and records line-protocol writes.
type fakeInflux struct {
	*httptest.Server

	mu    sync.Mutex
	lines []string
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "chimp-test-token",
		Org:           "chimp",
		Bucket:        "relay",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg, nil)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(url), nil)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteDeliveryAndRun(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL), map[string]string{"client_id": "chimp"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteDelivery("chimp/topic", 1, 5, 1, time.Now())
	client.WriteRun(influxdb.RunResult{
		RunID:     "run-1",
		Topic:     "chimp/topic",
		Messages:  4,
		Completed: true,
		Duration:  2 * time.Second,
	})

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := srv.written()
	if len(lines) != 2 {
		t.Fatalf("written lines = %d, want 2: %v", len(lines), lines)
	}

	var delivery, run string
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, influxdb.MeasurementDeliveries):
			delivery = l
		case strings.HasPrefix(l, influxdb.MeasurementRuns):
			run = l
		}
	}

	for _, want := range []string{"client_id=chimp", "topic=chimp/topic", "seq=1i", "payload_bytes=5i"} {
		if !strings.Contains(delivery, want) {
			t.Errorf("delivery line %q missing %q", delivery, want)
		}
	}
	for _, want := range []string{"outcome=completed", "messages=4i", "duration_ms=2000i", `run_id="run-1"`} {
		if !strings.Contains(run, want) {
			t.Errorf("run line %q missing %q", run, want)
		}
	}
}

func TestWriteRun_Outcomes(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteRun(influxdb.RunResult{RunID: "a", Topic: "t", Err: errors.New("connect timed out")})
	client.WriteRun(influxdb.RunResult{RunID: "b", Topic: "t", Messages: 2})
	client.Close() //nolint:errcheck // Flushes

	joined := strings.Join(srv.written(), "\n")
	for _, want := range []string{"outcome=failed", "outcome=incomplete", `error="connect timed out"`} {
		if !strings.Contains(joined, want) {
			t.Errorf("written points missing %q:\n%s", want, joined)
		}
	}
}

func TestWriteAfterClose(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL), nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close() //nolint:errcheck // Test

	// Must not panic or write.
	client.WriteDelivery("chimp/topic", 1, 0, 0, time.Now())
	client.Flush()

	if client.IsOpen() {
		t.Error("IsOpen() = true after Close()")
	}
	if n := len(srv.written()); n != 0 {
		t.Errorf("written lines after Close() = %d, want 0", n)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}
