package internal

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/sse"
	"github.com/localnative/localnative/internal/store"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), store.DefaultFileName)
	cfg.App.HTTP.Port = 0
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestOpen_RequiresConfig(t *testing.T) {
	if _, err := Open(context.Background(), WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestOpen_WiresEngine(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Open(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	if rt.Store.Path() != cfg.Store.Path {
		t.Errorf("path = %q, want %q", rt.Store.Path(), cfg.Store.Path)
	}

	out := rt.Engine.Run(context.Background(), []byte(`{"action":"insert","title":"t","url":"u","tags":"a b","description":"","comments":"","annotations":"","is_public":false,"limit":10,"offset":0}`))
	var res models.QueryResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	if res.Count != 1 {
		t.Errorf("count = %d, want 1", res.Count)
	}
}

func TestRunHost_AnswersFrames(t *testing.T) {
	cfg := testConfig(t)

	var in bytes.Buffer
	cmd := []byte(`{"action":"select","limit":10,"offset":0}`)
	_ = binary.Write(&in, binary.NativeEndian, uint32(len(cmd)))
	in.Write(cmd)

	var out bytes.Buffer
	if err := RunHost(context.Background(), &in, &out, WithConfig(cfg), WithLogOutput(io.Discard)); err != nil {
		t.Fatal(err)
	}

	var n uint32
	if err := binary.Read(&out, binary.NativeEndian, &n); err != nil {
		t.Fatal(err)
	}
	if int(n) != out.Len() {
		t.Fatalf("frame length %d, body %d", n, out.Len())
	}
	if !strings.Contains(out.String(), `"count":0`) {
		t.Errorf("response = %s", out.String())
	}
}

func TestHTTPHandler_HealthAndAPI(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Open(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	h := newHTTPHandler(rt.Engine, cfg, broker, nil)

	for _, path := range []string{"/health/live", "/health/ready", "/api/version"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/upload", nil))
	if rec.Code == http.StatusOK {
		t.Error("upload route should be absent without an inbox")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inbox.Enabled = true
	cfg.Inbox.Dir = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, WithConfig(cfg), WithLogOutput(io.Discard)) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
