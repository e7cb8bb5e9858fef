package inbox

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Suffix marks files the inbox accepts.
const Suffix = ".sqlite3"

// MergedDir is the subdirectory receiving processed files.
const MergedDir = "merged"

// Entry describes a pending store file.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Dir is the drop directory backing an Inbox.
type Dir struct {
	root string // absolute path
}

// NewDir creates root and its merged subdirectory if needed.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("inbox: resolve root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, MergedDir), 0o755); err != nil {
		return nil, fmt.Errorf("inbox: mkdir: %w", err)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute directory path.
func (d *Dir) Root() string {
	return d.root
}

// Path resolves a plain file name under the root, rejecting anything that
// is not a bare *.sqlite3 name.
func (d *Dir) Path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("inbox: file name is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("inbox: invalid file name: %s", name)
	}
	if !strings.HasSuffix(cleaned, Suffix) {
		return "", fmt.Errorf("inbox: %s is not a %s file", name, Suffix)
	}
	return filepath.Join(d.root, cleaned), nil
}

// List returns the pending files, oldest first.
func (d *Dir) List() ([]Entry, error) {
	items, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("inbox: list: %w", err)
	}
	var out []Entry
	for _, it := range items {
		if it.IsDir() || !accepts(it.Name()) {
			continue
		}
		info, err := it.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("inbox: stat %s: %w", it.Name(), err)
		}
		out = append(out, Entry{Name: it.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Name < out[j].Name
		}
		return out[i].ModTime.Before(out[j].ModTime)
	})
	return out, nil
}

// Write atomically stores r as name: tmp file, fsync, rename.
func (d *Dir) Write(name string, r io.Reader) (int64, error) {
	abs, err := d.Path(name)
	if err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(d.root, ".inbox-tmp-*")
	if err != nil {
		return 0, fmt.Errorf("inbox: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return 0, fmt.Errorf("inbox: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("inbox: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("inbox: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return 0, fmt.Errorf("inbox: rename: %w", err)
	}
	success = true
	return n, nil
}

// MergedPath returns where a file with the given digest is archived.
func (d *Dir) MergedPath(sum string) string {
	return filepath.Join(d.root, MergedDir, sum+Suffix)
}

// Archive moves name into the merged directory under its digest, along
// with any SQLite sidecar files.
func (d *Dir) Archive(name, sum string) error {
	abs, err := d.Path(name)
	if err != nil {
		return err
	}
	dst := d.MergedPath(sum)
	if err := os.Rename(abs, dst); err != nil {
		return fmt.Errorf("inbox: archive %s: %w", name, err)
	}
	for _, side := range []string{"-wal", "-shm", "-journal"} {
		_ = os.Rename(abs+side, dst+side)
	}
	return nil
}

// Discard removes name and its sidecar files.
func (d *Dir) Discard(name string) error {
	abs, err := d.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("inbox: remove %s: %w", name, err)
	}
	for _, side := range []string{"-wal", "-shm", "-journal"} {
		_ = os.Remove(abs + side)
	}
	return nil
}

func accepts(name string) bool {
	return strings.HasSuffix(name, Suffix) && !strings.HasPrefix(name, ".")
}
