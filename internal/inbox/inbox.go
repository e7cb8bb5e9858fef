// Package inbox merges store files dropped into a watched directory into
// the local store with attach-sync.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/localnative/localnative/internal/checksum"
	"github.com/localnative/localnative/internal/notes"
)

// settle is how long a file must stay quiet before it is merged.
const settle = 200 * time.Millisecond

// Merger attach-syncs another store file into the local store.
type Merger interface {
	SyncViaAttach(ctx context.Context, uri string) (notes.AttachStats, error)
}

// Result reports what happened to one inbox file.
type Result struct {
	Name      string            `json:"name"`
	Checksum  string            `json:"checksum"`
	Duplicate bool              `json:"duplicate"`
	Stats     notes.AttachStats `json:"stats"`
}

// Inbox processes files in a Dir.
type Inbox struct {
	dir    *Dir
	merger Merger
	logger *slog.Logger

	// mu serializes Process so a file is never merged twice concurrently.
	mu sync.Mutex
}

// New creates an Inbox over dir.
func New(dir *Dir, m Merger, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Inbox{dir: dir, merger: m, logger: logger.With(slog.String("component", "inbox"))}
}

// Dir returns the backing directory.
func (in *Inbox) Dir() *Dir {
	return in.dir
}

// Process merges name and archives it under merged/<sha256>.sqlite3. A file
// whose digest was already archived is discarded without merging. A failed
// merge leaves the file in place.
func (in *Inbox) Process(ctx context.Context, name string) (Result, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	res := Result{Name: name}
	path, err := in.dir.Path(name)
	if err != nil {
		return res, err
	}
	sum, err := checksum.SumFile(path)
	if err != nil {
		return res, fmt.Errorf("inbox: %s: %w", name, err)
	}
	res.Checksum = sum

	if _, err := os.Stat(in.dir.MergedPath(sum)); err == nil {
		res.Duplicate = true
		in.logger.Info("inbox: already merged", slog.String("name", name), slog.String("checksum", sum))
		return res, in.dir.Discard(name)
	}

	res.Stats, err = in.merger.SyncViaAttach(ctx, path)
	if err != nil {
		in.logger.Warn("inbox: merge failed", slog.String("name", name), slog.String("error", err.Error()))
		return res, err
	}
	if err := in.dir.Archive(name, sum); err != nil {
		return res, err
	}
	in.logger.Info("inbox: merged",
		slog.String("name", name),
		slog.Int64("pulled", res.Stats.Pulled),
		slog.Int64("pushed", res.Stats.Pushed))
	return res, nil
}

// Scan processes every pending file. Failures are logged and skipped.
func (in *Inbox) Scan(ctx context.Context) []Result {
	entries, err := in.dir.List()
	if err != nil {
		in.logger.Warn("inbox: scan failed", slog.String("error", err.Error()))
		return nil
	}
	var out []Result
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		res, err := in.Process(ctx, e.Name)
		if err == nil {
			out = append(out, res)
		}
	}
	return out
}

// Watch scans the directory once and then merges files as they appear,
// until ctx is cancelled. cb, if non-nil, is called after each success.
func (in *Inbox) Watch(ctx context.Context, cb func(Result)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(in.dir.Root()); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", in.dir.Root(), err)
	}
	in.logger.Info("inbox: started", slog.String("dir", in.dir.Root()))

	for _, res := range in.Scan(ctx) {
		if cb != nil {
			cb(res)
		}
	}

	// Writers may still be copying a file when Create fires; merge once
	// the directory has been quiet for settle.
	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func(name string) {
		pending[name] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(settle)
			timerCh = timer.C
		} else {
			timer.Reset(settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			in.logger.Info("inbox: stopped")
			return nil

		case <-timerCh:
			for name := range pending {
				delete(pending, name)
				res, err := in.Process(ctx, name)
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				if err == nil && cb != nil {
					cb(res)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !accepts(name) || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			schedule(name)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
