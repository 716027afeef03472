// Package search provides index implementations the storage engine keeps in
// step with invoice create and yank events.
package search

import (
	"context"

	bindle "github.com/wolfeidau/bindle-store"
)

// Indexer accepts an invoice and indexes it. Implementations must be
// idempotent: applying the same invoice twice leaves the index unchanged,
// and a yanked entry is never un-yanked.
type Indexer interface {
	Index(ctx context.Context, inv *bindle.Invoice) error
}

// QueryOptions tunes a query.
type QueryOptions struct {
	// Yanked includes yanked invoices in the results.
	Yanked bool
}

// Searcher looks up indexed invoices by exact name and optional version.
type Searcher interface {
	Query(ctx context.Context, name, version string, opts QueryOptions) ([]bindle.Invoice, error)
}

// Engine is an index that can also be queried.
type Engine interface {
	Indexer
	Searcher
}

// merge returns the invoice to store given the currently indexed copy.
// Yank is monotonic, so an incoming unyanked copy of a yanked entry keeps
// the flag.
func merge(current *bindle.Invoice, incoming bindle.Invoice) bindle.Invoice {
	if current != nil && current.IsYanked() && !incoming.IsYanked() {
		incoming.MarkYanked()
	}
	return incoming
}

// indexKey joins name and version with a NUL byte. Names may contain "/",
// so the "<name>/<version>" form cannot be used as a key.
func indexKey(name, version string) string {
	return name + "\x00" + version
}

// NoopIndexer discards everything.
type NoopIndexer struct{}

// Index implements Indexer.
func (NoopIndexer) Index(context.Context, *bindle.Invoice) error { return nil }

var _ Indexer = NoopIndexer{}
