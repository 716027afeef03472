package backend

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestInstrumented(t *testing.T) *InstrumentedBackend {
	t.Helper()
	fsys, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return NewInstrumentedBackend(fsys, "filesystem")
}

func TestInstrumentedBackend_CreateRead(t *testing.T) {
	ib := newTestInstrumented(t)
	ctx := context.Background()

	require.NoError(t, ib.MkdirAll(ctx, "test"))
	writeCreate(t, ib, "test/key", []byte("hello, instrumented backend"))

	rc, err := ib.Read(ctx, "test/key")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello, instrumented backend", string(got))
	require.NoError(t, rc.Close())
}

func TestInstrumentedBackend_CreateExists(t *testing.T) {
	ib := newTestInstrumented(t)
	ctx := context.Background()

	require.NoError(t, ib.MkdirAll(ctx, "test"))
	writeCreate(t, ib, "test/key", []byte("x"))

	_, err := ib.Create(ctx, "test/key")
	require.ErrorIs(t, err, ErrExists)
}

func TestInstrumentedBackend_Read_NotFound(t *testing.T) {
	ib := newTestInstrumented(t)

	_, err := ib.Read(context.Background(), "nonexistent/key")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInstrumentedBackend_StatReplaceRemove(t *testing.T) {
	ib := newTestInstrumented(t)
	ctx := context.Background()

	require.NoError(t, ib.MkdirAll(ctx, "present"))
	require.NoError(t, ib.Replace(ctx, "present/key", strings.NewReader("data")))

	kind, err := ib.Stat(ctx, "present/key")
	require.NoError(t, err)
	require.Equal(t, EntryFile, kind)

	require.NoError(t, ib.Remove(ctx, "present/key"))
	kind, err = ib.Stat(ctx, "present/key")
	require.NoError(t, err)
	require.Equal(t, EntryAbsent, kind)
}

func TestInstrumentedBackend_Unwrap(t *testing.T) {
	fsys, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	ib := NewInstrumentedBackend(fsys, "filesystem")
	require.Same(t, fsys, ib.Unwrap())
}

func TestOutcomeFromError(t *testing.T) {
	require.Equal(t, "success", outcomeFromError(nil))
	require.Equal(t, "not_found", outcomeFromError(mapError("x", ErrNotFound)))
	require.Equal(t, "exists", outcomeFromError(mapError("x", ErrExists)))
	require.Equal(t, "error", outcomeFromError(io.ErrUnexpectedEOF))
}
