package backend

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/wolfeidau/bindle-store/telemetry"
)

// InstrumentedBackend wraps a Backend with metrics recording.
type InstrumentedBackend struct {
	backend Backend
	name    string
}

// NewInstrumentedBackend creates a new instrumented backend wrapper.
func NewInstrumentedBackend(b Backend, name string) *InstrumentedBackend {
	return &InstrumentedBackend{backend: b, name: name}
}

func (ib *InstrumentedBackend) Create(ctx context.Context, key string) (io.WriteCloser, error) {
	start := time.Now()
	wc, err := ib.backend.Create(ctx, key)
	if err != nil {
		telemetry.RecordBackendOp(ctx, ib.name, "create", outcomeFromError(err), time.Since(start), 0)
		return nil, err
	}
	return &countingWriter{ctx: ctx, w: wc, name: ib.name, start: start}, nil
}

func (ib *InstrumentedBackend) Replace(ctx context.Context, key string, r io.Reader) error {
	start := time.Now()
	cr := &countingReader{r: r}
	err := ib.backend.Replace(ctx, key, cr)
	telemetry.RecordBackendOp(ctx, ib.name, "replace", outcomeFromError(err), time.Since(start), cr.n)
	return err
}

func (ib *InstrumentedBackend) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := ib.backend.Read(ctx, key)
	telemetry.RecordBackendOp(ctx, ib.name, "read", outcomeFromError(err), time.Since(start), 0)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (ib *InstrumentedBackend) Stat(ctx context.Context, key string) (EntryKind, error) {
	start := time.Now()
	kind, err := ib.backend.Stat(ctx, key)
	telemetry.RecordBackendOp(ctx, ib.name, "stat", outcomeFromError(err), time.Since(start), 0)
	return kind, err
}

func (ib *InstrumentedBackend) MkdirAll(ctx context.Context, key string) error {
	start := time.Now()
	err := ib.backend.MkdirAll(ctx, key)
	telemetry.RecordBackendOp(ctx, ib.name, "mkdir", outcomeFromError(err), time.Since(start), 0)
	return err
}

func (ib *InstrumentedBackend) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := ib.backend.Remove(ctx, key)
	telemetry.RecordBackendOp(ctx, ib.name, "remove", outcomeFromError(err), time.Since(start), 0)
	return err
}

// Unwrap returns the underlying backend.
func (ib *InstrumentedBackend) Unwrap() Backend {
	return ib.backend
}

func outcomeFromError(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExists):
		return "exists"
	default:
		return "error"
	}
}

// countingReader wraps a reader and counts bytes read.
type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// countingWriter records the create op, with bytes written, when closed.
type countingWriter struct {
	ctx   context.Context
	w     io.WriteCloser
	name  string
	start time.Time
	n     int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countingWriter) Close() error {
	err := cw.w.Close()
	telemetry.RecordBackendOp(cw.ctx, cw.name, "create", outcomeFromError(err), time.Since(cw.start), cw.n)
	return err
}

// Compile-time interface checks
var (
	_ Backend = (*InstrumentedBackend)(nil)
)
