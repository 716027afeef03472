// Package backend provides the filesystem primitives the bindle store is
// built on: exclusive creation, atomic replacement and typed stat.
package backend

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when a key does not exist in the backend.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when an exclusive create finds the key taken.
	ErrExists = errors.New("already exists")
)

// EntryKind describes what, if anything, is stored at a key.
type EntryKind int

const (
	// EntryAbsent means nothing exists at the key.
	EntryAbsent EntryKind = iota
	// EntryFile means a regular file (or other non-directory) exists.
	EntryFile
	// EntryDir means a directory exists.
	EntryDir
)

func (k EntryKind) String() string {
	switch k {
	case EntryAbsent:
		return "absent"
	case EntryFile:
		return "file"
	case EntryDir:
		return "dir"
	default:
		return "unknown"
	}
}

// Backend defines the storage primitives used by the engine.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Create opens key for exclusive creation. It fails with ErrExists if
	// anything already exists at key; the check and the create are one
	// atomic operation. The parent directory must exist.
	// The caller must close the returned WriteCloser.
	Create(ctx context.Context, key string) (io.WriteCloser, error)

	// Replace atomically writes the content of r to key, creating or
	// overwriting it. Readers observe either the old or the new content.
	Replace(ctx context.Context, key string, r io.Reader) error

	// Read retrieves data at the given key.
	// Returns ErrNotFound if the key does not exist.
	// The caller must close the returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat reports the kind of entry at key.
	Stat(ctx context.Context, key string) (EntryKind, error)

	// MkdirAll creates the directory at key and any missing parents.
	// It succeeds if the directory already exists.
	MkdirAll(ctx context.Context, key string) error

	// Remove deletes the file at key.
	// Returns nil if the key does not exist (idempotent).
	Remove(ctx context.Context, key string) error
}
