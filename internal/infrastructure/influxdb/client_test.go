package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/lanwake/internal/infrastructure/config"
	"github.com/nerrad567/lanwake/internal/infrastructure/influxdb"
)

// fakeServer answers the InfluxDB v2 ping and write endpoints.
type fakeServer struct {
	*httptest.Server
	writes       chan string
	healthy      atomic.Bool
	rejectWrites atomic.Bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{writes: make(chan string, 16)}
	fs.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		if !fs.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		if fs.rejectWrites.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"code":"invalid","message":"partial write: field type conflict"}`) //nolint:errcheck // test server
			return
		}
		body, _ := io.ReadAll(r.Body)
		fs.writes <- r.URL.Query().Get("bucket") + "\n" + string(body)
		w.WriteHeader(http.StatusNoContent)
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           fs.URL,
		Token:         "lanwake-test-token",
		Org:           "lanwake",
		Bucket:        "history",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// nextWrite waits for the fake server to receive a write batch.
func (fs *fakeServer) nextWrite(t *testing.T) string {
	t.Helper()
	select {
	case body := <-fs.writes:
		return body
	case <-time.After(3 * time.Second):
		t.Fatal("no write received")
		return ""
	}
}

func connect(t *testing.T, fs *fakeServer) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(fs.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := newFakeServer(t).config()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := newFakeServer(t).config()
	cfg.URL = "http://127.0.0.1:1"

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	fs := newFakeServer(t)
	fs.healthy.Store(false)

	_, err := influxdb.Connect(fs.config())
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	fs := newFakeServer(t)
	cfg := fs.config()
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false with defaulted batch settings")
	}
}

func TestHealthCheck(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	fs.healthy.Store(false)
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() expected error for unhealthy server")
	}
}

func TestWriteStatusChange(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	client.WriteStatusChange("nas", "online", "checking", at)
	client.Flush()

	body := fs.nextWrite(t)
	for _, want := range []string{
		"history\n",
		"device_reachability,",
		"device_id=nas",
		`status="online"`,
		"online=1i",
		`previous="checking"`,
		"1792411200000000000",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("write body %q missing %q", body, want)
		}
	}
}

func TestWriteStatusChange_OfflineIsZero(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	client.WriteStatusChange("nas", "offline", "online", time.Now())
	client.Flush()

	body := fs.nextWrite(t)
	if !strings.Contains(body, "online=0i") {
		t.Errorf("write body %q missing online=0i", body)
	}
}

func TestWriteWake(t *testing.T) {
	tests := []struct {
		name    string
		sendErr error
		want    []string
	}{
		{
			name: "sent",
			want: []string{"wake_requests,", "device_id=nas", "result=sent", "destinations=2i"},
		},
		{
			name:    "failed",
			sendErr: errors.New("network unreachable"),
			want:    []string{"result=failed", `error="network unreachable"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeServer(t)
			client := connect(t, fs)

			client.WriteWake("nas", 2, tt.sendErr, time.Now())
			client.Flush()

			body := fs.nextWrite(t)
			for _, want := range tt.want {
				if !strings.Contains(body, want) {
					t.Errorf("write body %q missing %q", body, want)
				}
			}
		})
	}
}

func TestWriteStatusChange_FirstEventHasNoPrevious(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	client.WriteStatusChange("nas", "unknown", "", time.Now())
	client.Flush()

	body := fs.nextWrite(t)
	if strings.Contains(body, "previous=") {
		t.Errorf("write body %q has a previous field for the first event", body)
	}
}

func TestWriteRejected(t *testing.T) {
	fs := newFakeServer(t)
	fs.rejectWrites.Store(true)
	client := connect(t, fs)

	errCh := make(chan error, 4)
	client.SetOnError(func(err error) { errCh <- err })

	client.WriteWake("nas", 2, nil, time.Now())
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("rejected write was not reported")
	}
	if got := client.FailedWrites(); got != 1 {
		t.Errorf("FailedWrites() = %d, want 1", got)
	}
}

func TestClose(t *testing.T) {
	fs := newFakeServer(t)
	client, err := influxdb.Connect(fs.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	// Writes and flushes after Close are no-ops.
	client.WriteStatusChange("nas", "online", "offline", time.Now())
	client.Flush()
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
