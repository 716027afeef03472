package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Filesystem implements Backend using the local filesystem.
type Filesystem struct {
	root string
}

// NewFilesystem creates a new filesystem backend rooted at the given path.
// The directory will be created if it does not exist.
func NewFilesystem(root string) (*Filesystem, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, dirPerm); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}
	return &Filesystem{root: absRoot}, nil
}

// Root returns the root directory path.
func (fsys *Filesystem) Root() string {
	return fsys.root
}

// Create opens key with O_CREATE|O_EXCL.
func (fsys *Filesystem) Create(_ context.Context, key string) (io.WriteCloser, error) {
	path := fsys.keyToPath(key)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return nil, mapError("creating file", err)
	}
	return &syncCloser{f: f}, nil
}

// Replace writes to a temp file in the same directory and renames it over key.
func (fsys *Filesystem) Replace(_ context.Context, key string, r io.Reader) error {
	path := fsys.keyToPath(key)
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return mapError("creating temp file", err)
	}
	tmpPath := tmp.Name()

	// Clean up temp file on error
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return mapError("renaming temp file", err)
	}

	success = true
	return nil
}

// Read opens the file at key.
func (fsys *Filesystem) Read(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(fsys.keyToPath(key))
	if err != nil {
		return nil, mapError("opening file", err)
	}
	return f, nil
}

// Stat reports whether key is absent, a file or a directory. Symlinks are
// followed.
func (fsys *Filesystem) Stat(_ context.Context, key string) (EntryKind, error) {
	info, err := os.Stat(fsys.keyToPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EntryAbsent, nil
		}
		return EntryAbsent, fmt.Errorf("stat path: %w", err)
	}
	if info.IsDir() {
		return EntryDir, nil
	}
	return EntryFile, nil
}

// MkdirAll creates the directory at key.
func (fsys *Filesystem) MkdirAll(_ context.Context, key string) error {
	path := fsys.keyToPath(key)
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return mapError(fmt.Sprintf("creating directory %s", path), err)
	}
	return nil
}

// Remove deletes the file at key.
func (fsys *Filesystem) Remove(_ context.Context, key string) error {
	err := os.Remove(fsys.keyToPath(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

// keyToPath converts a key to a filesystem path.
func (fsys *Filesystem) keyToPath(key string) string {
	return filepath.Join(fsys.root, filepath.FromSlash(key))
}

// mapError tags filesystem errors with the backend sentinels while keeping
// the original error in the chain.
func mapError(action string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w: %w", action, ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%s: %w: %w", action, ErrExists, err)
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}

// syncCloser flushes a file to disk before closing it.
type syncCloser struct {
	f *os.File
}

func (s *syncCloser) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// ReadFrom lets io.Copy use the file's copy fast path.
func (s *syncCloser) ReadFrom(r io.Reader) (int64, error) {
	return s.f.ReadFrom(r)
}

func (s *syncCloser) Close() error {
	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("syncing file: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	return nil
}

// Compile-time interface checks
var (
	_ Backend = (*Filesystem)(nil)
)
