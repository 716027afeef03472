package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	bindle "github.com/wolfeidau/bindle-store"
	"github.com/wolfeidau/bindle-store/backend"
	"github.com/wolfeidau/bindle-store/indexsync"
	"github.com/wolfeidau/bindle-store/layout"
	"github.com/wolfeidau/bindle-store/search"
	"github.com/wolfeidau/bindle-store/telemetry"
)

// FileStorage stores invoices and parcels under a root directory using the
// layout package's naming scheme.
//
// Every lifecycle change to an invoice is handed to a Syncer. Copies made
// with Clone share the root and the Syncer.
type FileStorage struct {
	layout          layout.Layout
	backend         backend.Backend
	syncer          indexsync.Syncer
	logger          *slog.Logger
	scheme          bindle.IDScheme
	scanConcurrency int
}

// Option configures a FileStorage.
type Option func(*FileStorage)

// WithIndexer sends index events synchronously to idx, guarded by a
// reader/writer lock.
func WithIndexer(idx search.Indexer) Option {
	return func(s *FileStorage) {
		s.syncer = indexsync.NewDirect(idx)
	}
}

// WithSyncer sets the index synchronisation strategy.
func WithSyncer(syncer indexsync.Syncer) Option {
	return func(s *FileStorage) {
		s.syncer = syncer
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FileStorage) {
		s.logger = logger
	}
}

// WithIDScheme selects how invoice ids are derived. Every engine sharing a
// root must use the same scheme.
func WithIDScheme(scheme bindle.IDScheme) Option {
	return func(s *FileStorage) {
		s.scheme = scheme
	}
}

// WithScanConcurrency bounds the number of concurrent parcel existence
// checks made by CreateInvoice. Zero, the default, checks every parcel
// concurrently.
func WithScanConcurrency(n int) Option {
	return func(s *FileStorage) {
		if n >= 0 {
			s.scanConcurrency = n
		}
	}
}

// New creates a FileStorage rooted at root, creating the directory if
// needed.
func New(root string, opts ...Option) (*FileStorage, error) {
	fsys, err := backend.NewFilesystem(root)
	if err != nil {
		return nil, fmt.Errorf("creating filesystem backend: %w", err)
	}

	s := &FileStorage{
		layout:  layout.New(fsys.Root()),
		backend: backend.NewInstrumentedBackend(fsys, "filesystem"),
		syncer:  indexsync.Discard{},
		logger:  slog.Default(),
		scheme:  bindle.IDConcat,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Clone returns a handle sharing the root and index of s.
func (s *FileStorage) Clone() *FileStorage {
	c := *s
	return &c
}

// Layout returns the on-disk layout of the store.
func (s *FileStorage) Layout() layout.Layout {
	return s.layout
}

// InvoiceID returns the canonical id for name and version under the
// store's scheme.
func (s *FileStorage) InvoiceID(name, version string) bindle.ID {
	return s.scheme.InvoiceID(name, version)
}

// syncIndex hands an event to the syncer. Failures are logged and
// discarded: the manifest on disk is authoritative.
func (s *FileStorage) syncIndex(ctx context.Context, op indexsync.Op, invoiceID string, inv *bindle.Invoice) {
	if err := s.syncer.Sync(ctx, op, inv); err != nil {
		s.logger.Error("index update failed",
			"invoice_id", invoiceID,
			"op", op,
			telemetry.ErrAttr(err),
		)
	}
}

// ensureDir creates the resource directory dir. A non-directory already at
// dir fails with KindExists; an existing directory is reused.
func (s *FileStorage) ensureDir(ctx context.Context, op, dir string) error {
	kind, err := s.backend.Stat(ctx, dir)
	if err != nil {
		return ioError(op, dir, err)
	}
	if kind == backend.EntryFile {
		return newError(KindExists, op, dir, fs.ErrExist)
	}
	if err := s.backend.MkdirAll(ctx, dir); err != nil {
		return ioError(op, dir, err)
	}
	return nil
}

// observe records the outcome of a storage operation.
func observe(ctx context.Context, op string, start time.Time, err error) {
	telemetry.RecordStorageOp(ctx, op, telemetry.Outcome(err), time.Since(start))
}

var _ Storage = (*FileStorage)(nil)
