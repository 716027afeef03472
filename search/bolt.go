package search

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	bindle "github.com/wolfeidau/bindle-store"
)

var bucketInvoices = []byte("invoices") // name\x00version -> invoice TOML

// BoltEngine is a persistent index keyed by exact name and version.
type BoltEngine struct {
	db     *bbolt.DB
	logger *slog.Logger
	noSync bool
}

// BoltOption configures a BoltEngine.
type BoltOption func(*BoltEngine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) BoltOption {
	return func(e *BoltEngine) {
		e.logger = logger
	}
}

// WithNoSync disables fsync per transaction.
// Use only for testing.
func WithNoSync(noSync bool) BoltOption {
	return func(e *BoltEngine) {
		e.noSync = noSync
	}
}

// OpenBoltEngine opens (or creates) the index database at path.
func OpenBoltEngine(path string, opts ...BoltOption) (*BoltEngine, error) {
	e := &BoltEngine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  e.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketInvoices)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket %s: %w", bucketInvoices, err)
	}

	e.db = db
	e.logger.Debug("opened search index", "path", path)
	return e, nil
}

// Close closes the database.
func (e *BoltEngine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Index implements Indexer.
func (e *BoltEngine) Index(_ context.Context, inv *bindle.Invoice) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketInvoices)
		key := []byte(indexKey(inv.Bindle.Name, inv.Bindle.Version))

		var current *bindle.Invoice
		if val := bucket.Get(key); val != nil {
			existing, err := bindle.UnmarshalInvoice(val)
			if err != nil {
				return fmt.Errorf("decoding indexed invoice %s: %w", inv.Name(), err)
			}
			current = existing
		}

		merged := merge(current, *inv)
		data, err := bindle.MarshalInvoice(&merged)
		if err != nil {
			return fmt.Errorf("encoding invoice %s: %w", inv.Name(), err)
		}
		return bucket.Put(key, data)
	})
}

// Query implements Searcher. An empty version scans every version of name.
func (e *BoltEngine) Query(_ context.Context, name, version string, opts QueryOptions) ([]bindle.Invoice, error) {
	var results []bindle.Invoice
	err := e.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketInvoices)

		collect := func(val []byte) error {
			inv, err := bindle.UnmarshalInvoice(val)
			if err != nil {
				return fmt.Errorf("decoding indexed invoice: %w", err)
			}
			if inv.IsYanked() && !opts.Yanked {
				return nil
			}
			results = append(results, *inv)
			return nil
		}

		if version != "" {
			if val := bucket.Get([]byte(indexKey(name, version))); val != nil {
				return collect(val)
			}
			return nil
		}

		prefix := []byte(indexKey(name, ""))
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := collect(v); err != nil {
				return err
			}
		}
		return nil
	})
	return results, err
}

var _ Engine = (*BoltEngine)(nil)
