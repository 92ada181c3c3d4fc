package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// File is a blob backend storing the whole token map in a single file,
// written atomically (temp file + rename) with owner-only permissions —
// the filesystem analogue of the browser's web-local/web-session
// backends, adapted from the teacher's atomic-write FileStore.
//
// File stands in for web-local/web-session, which the host has no API
// for: Select builds a File for both the localStorage and the
// sessionStorage cascade entries.
type File struct {
	path string
}

var _ Backend = (*File)(nil)
var _ Prober = (*File)(nil)

// NewFile creates a File backend rooted at path, creating parent
// directories with 0700 permissions if necessary.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: file path cannot be empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("storage: creating directory %s: %w", dir, err)
	}
	return &File{path: path}, nil
}

func (f *File) Name() string { return "file" }
func (f *File) Keyed() bool  { return false }

// Path returns the backing file's path, used by crosstab's fsnotify
// source to know what to watch.
func (f *File) Path() string { return f.path }

// Probe performs a write-and-delete availability check, matching
// spec.md §4.1's construction-time probe for web-local/web-session.
func (f *File) Probe(ctx context.Context) error {
	probePath := f.path + ".probe"
	if err := os.WriteFile(probePath, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("storage: file backend unavailable: %w", err)
	}
	return os.Remove(probePath)
}

func (f *File) GetItem(_ context.Context, _ string) (string, bool, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: reading %s: %w", f.path, err)
	}
	return string(data), true, nil
}

func (f *File) SetItem(_ context.Context, _ string, value string) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return fmt.Errorf("storage: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("storage: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("storage: renaming into place: %w", err)
	}
	return nil
}

func (f *File) RemoveItem(ctx context.Context, subkey string) error {
	return f.Clear(ctx)
}

func (f *File) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: clearing %s: %w", f.path, err)
	}
	return nil
}
