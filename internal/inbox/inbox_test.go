package inbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/localnative/localnative/internal/notes"
	"github.com/localnative/localnative/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// dropStore creates a store file with the given note titles and returns its bytes.
func dropStore(t *testing.T, titles ...string) []byte {
	t.Helper()
	svc := testutil.TestNotes(t)
	testutil.SeedNotes(t, svc, titles...)
	path := svc.Store().Path()
	if err := svc.Store().Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDir_PathRejectsTraversal(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "../x.sqlite3", "a/b.sqlite3", ".hidden.sqlite3", "notes.txt"} {
		if _, err := d.Path(name); err == nil {
			t.Errorf("Path(%q) should fail", name)
		}
	}
	p, err := d.Path("phone.sqlite3")
	if err != nil || filepath.Dir(p) != d.Root() {
		t.Errorf("Path(phone.sqlite3) = %q, %v", p, err)
	}
}

func TestDir_WriteAndList(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Write("b.sqlite3", strings.NewReader("bb")); err != nil {
		t.Fatal(err)
	}
	n, err := d.Write("a.sqlite3", strings.NewReader("a"))
	if err != nil || n != 1 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	os.WriteFile(filepath.Join(d.Root(), "ignored.txt"), []byte("x"), 0o644)

	entries, err := d.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want 2", entries)
	}
	matches, _ := filepath.Glob(filepath.Join(d.Root(), ".inbox-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestProcess_MergesAndArchives(t *testing.T) {
	ctx := context.Background()
	local := testutil.TestNotes(t)
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	in := New(d, local, testLogger())

	data := dropStore(t, "from-phone", "from-phone-2")
	if _, err := d.Write("phone.sqlite3", bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}

	res, err := in.Process(ctx, "phone.sqlite3")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Stats.Pulled != 2 || res.Duplicate {
		t.Errorf("result = %+v", res)
	}
	if n, _ := local.CountAll(ctx); n != 2 {
		t.Errorf("local count = %d, want 2", n)
	}
	if _, err := os.Stat(d.MergedPath(res.Checksum)); err != nil {
		t.Errorf("archived file missing: %v", err)
	}
	if entries, _ := d.List(); len(entries) != 0 {
		t.Errorf("pending after merge: %+v", entries)
	}

	// the same bytes dropped again are discarded
	if _, err := d.Write("again.sqlite3", bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}
	res, err = in.Process(ctx, "again.sqlite3")
	if err != nil || !res.Duplicate {
		t.Fatalf("second Process = %+v, %v", res, err)
	}
	if entries, _ := d.List(); len(entries) != 0 {
		t.Errorf("duplicate not discarded: %+v", entries)
	}
}

type failingMerger struct{}

func (failingMerger) SyncViaAttach(context.Context, string) (notes.AttachStats, error) {
	return notes.AttachStats{}, errors.New("boom")
}

func TestProcess_FailureLeavesFile(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Write("bad.sqlite3", strings.NewReader("not a database")); err != nil {
		t.Fatal(err)
	}
	in := New(d, failingMerger{}, nil)
	if _, err := in.Process(context.Background(), "bad.sqlite3"); err == nil {
		t.Fatal("expected merge failure")
	}
	if entries, _ := d.List(); len(entries) != 1 {
		t.Errorf("failed file should stay pending: %+v", entries)
	}
}

func TestWatch_MergesDroppedFile(t *testing.T) {
	local := testutil.TestNotes(t)
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	in := New(d, local, testLogger())

	// present before the watcher starts
	if _, err := d.Write("early.sqlite3", bytes.NewReader(dropStore(t, "early"))); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var merged []string
	done := make(chan error, 1)
	go func() {
		done <- in.Watch(ctx, func(r Result) {
			mu.Lock()
			merged = append(merged, r.Name)
			mu.Unlock()
		})
	}()

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		n, _ := local.CountAll(context.Background())
		return n == 1
	}, "pre-existing file not merged")

	if err := os.WriteFile(filepath.Join(d.Root(), "late.sqlite3"), dropStore(t, "late"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		n, _ := local.CountAll(context.Background())
		return n == 2
	}, "dropped file not merged by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(merged) == 2
	}, "callback not called for both files")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch = %v", err)
	}
}
