package storage

import (
	"bytes"
	"context"
	"io"
	"slices"
	"time"

	"github.com/sourcegraph/conc/pool"

	bindle "github.com/wolfeidau/bindle-store"
	"github.com/wolfeidau/bindle-store/backend"
	"github.com/wolfeidau/bindle-store/indexsync"
	"github.com/wolfeidau/bindle-store/layout"
	"github.com/wolfeidau/bindle-store/telemetry"
)

const (
	opCreateInvoice    = "create_invoice"
	opGetInvoice       = "get_invoice"
	opGetYankedInvoice = "get_yanked_invoice"
	opYankInvoice      = "yank_invoice"
)

// CreateInvoice writes the manifest for inv and returns the labels of its
// parcels that have no directory in storage. The invoice is created even
// when parcels are missing; callers upload those afterwards.
//
// The manifest is created exclusively. A second create of the same invoice
// fails with a KindIO error wrapping fs.ErrExist and leaves the first
// manifest untouched.
func (s *FileStorage) CreateInvoice(ctx context.Context, inv *bindle.Invoice) (missing []bindle.Label, err error) {
	start := time.Now()
	defer func() { observe(ctx, opCreateInvoice, start, err) }()

	if inv.IsYanked() {
		return nil, newError(KindCreateYanked, opCreateInvoice, inv.Name(), nil)
	}

	id := s.scheme.ID(inv).String()
	key := layout.InvoiceTOMLKey(id)

	data, err := bindle.MarshalInvoice(inv)
	if err != nil {
		return nil, newError(KindUnserializable, opCreateInvoice, key, err)
	}

	if err := s.ensureDir(ctx, opCreateInvoice, layout.InvoiceKey(id)); err != nil {
		return nil, err
	}
	if err := s.createFile(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, ioError(opCreateInvoice, key, err)
	}

	s.syncIndex(ctx, indexsync.OpCreate, id, inv)

	missing = []bindle.Label{}
	if inv.HasParcels() {
		missing = s.missingParcels(ctx, inv.Parcels)
	}
	telemetry.RecordMissingParcels(ctx, len(missing))

	s.logger.Debug("invoice created",
		"invoice_id", id,
		"name", inv.Name(),
		"missing", len(missing),
	)
	return missing, nil
}

// GetInvoice loads the invoice identified by "<name>/<version>". A yanked
// invoice fails with ErrYanked.
func (s *FileStorage) GetInvoice(ctx context.Context, id string) (inv *bindle.Invoice, err error) {
	start := time.Now()
	defer func() { observe(ctx, opGetInvoice, start, err) }()

	inv, err = s.loadInvoice(ctx, opGetInvoice, id)
	if err != nil {
		return nil, err
	}
	if inv.IsYanked() {
		return nil, newError(KindYanked, opGetInvoice, id, nil)
	}
	return inv, nil
}

// GetYankedInvoice loads the invoice identified by "<name>/<version>"
// regardless of its yanked flag.
func (s *FileStorage) GetYankedInvoice(ctx context.Context, id string) (inv *bindle.Invoice, err error) {
	start := time.Now()
	defer func() { observe(ctx, opGetYankedInvoice, start, err) }()

	return s.loadInvoice(ctx, opGetYankedInvoice, id)
}

// YankInvoice sets inv's yanked flag, sends it to the index and overwrites
// the manifest at inv's path with it.
//
// The manifest is not read first. Callers are expected to pass an invoice
// they loaded with GetYankedInvoice; any other content in inv replaces what
// was stored, and an invoice that was never created is written as a new
// yanked manifest.
func (s *FileStorage) YankInvoice(ctx context.Context, inv *bindle.Invoice) (err error) {
	start := time.Now()
	defer func() { observe(ctx, opYankInvoice, start, err) }()

	id := s.scheme.ID(inv).String()
	key := layout.InvoiceTOMLKey(id)

	inv.MarkYanked()
	s.syncIndex(ctx, indexsync.OpYank, id, inv)

	data, err := bindle.MarshalInvoice(inv)
	if err != nil {
		return newError(KindUnserializable, opYankInvoice, key, err)
	}
	if err := s.backend.MkdirAll(ctx, layout.InvoiceKey(id)); err != nil {
		return ioError(opYankInvoice, layout.InvoiceKey(id), err)
	}
	if err := s.backend.Replace(ctx, key, bytes.NewReader(data)); err != nil {
		return ioError(opYankInvoice, key, err)
	}

	s.logger.Debug("invoice yanked", "invoice_id", id, "name", inv.Name())
	return nil
}

// loadInvoice parses a "<name>/<version>" identifier and reads the manifest
// stored at its id.
func (s *FileStorage) loadInvoice(ctx context.Context, op, id string) (*bindle.Invoice, error) {
	name, version, err := bindle.ParseInvoiceName(id)
	if err != nil {
		return nil, newError(KindNotFound, op, id, err)
	}

	key := layout.InvoiceTOMLKey(s.scheme.InvoiceID(name, version).String())
	data, err := s.readFile(ctx, key)
	if err != nil {
		return nil, ioError(op, key, err)
	}
	inv, err := bindle.UnmarshalInvoice(data)
	if err != nil {
		return nil, newError(KindMalformed, op, key, err)
	}
	return inv, nil
}

type parcelCheck struct {
	index   int
	label   bindle.Label
	missing bool
}

// missingParcels checks every parcel directory concurrently and returns the
// labels of those with no directory, in input order. A failed check, or a
// non-directory at the parcel path, counts as missing.
func (s *FileStorage) missingParcels(ctx context.Context, parcels []bindle.Parcel) []bindle.Label {
	p := pool.NewWithResults[parcelCheck]()
	if s.scanConcurrency > 0 {
		p = p.WithMaxGoroutines(s.scanConcurrency)
	}
	for i, parcel := range parcels {
		p.Go(func() parcelCheck {
			kind, err := s.backend.Stat(ctx, layout.ParcelKey(parcel.Label.SHA256))
			if err != nil {
				s.logger.Warn("parcel check failed",
					"sha256", parcel.Label.SHA256,
					telemetry.ErrAttr(err),
				)
			}
			return parcelCheck{
				index:   i,
				label:   parcel.Label,
				missing: err != nil || kind != backend.EntryDir,
			}
		})
	}

	checks := p.Wait()
	slices.SortFunc(checks, func(a, b parcelCheck) int { return a.index - b.index })

	missing := make([]bindle.Label, 0, len(checks))
	for _, c := range checks {
		if c.missing {
			missing = append(missing, c.label)
		}
	}
	return missing
}

// createFile exclusively creates key and copies r into it. Whatever was
// written before a failed copy stays on disk.
func (s *FileStorage) createFile(ctx context.Context, key string, r io.Reader) error {
	w, err := s.backend.Create(ctx, key)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *FileStorage) readFile(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.backend.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
