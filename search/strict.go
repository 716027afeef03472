package search

import (
	"context"
	"sort"
	"sync"

	bindle "github.com/wolfeidau/bindle-store"
)

// StrictEngine is an in-memory index matching invoices by exact name and
// version.
type StrictEngine struct {
	mu       sync.RWMutex
	invoices map[string]bindle.Invoice
}

// NewStrictEngine returns an empty StrictEngine.
func NewStrictEngine() *StrictEngine {
	return &StrictEngine{invoices: make(map[string]bindle.Invoice)}
}

// Index implements Indexer.
func (e *StrictEngine) Index(_ context.Context, inv *bindle.Invoice) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := indexKey(inv.Bindle.Name, inv.Bindle.Version)
	var current *bindle.Invoice
	if existing, ok := e.invoices[key]; ok {
		current = &existing
	}
	e.invoices[key] = merge(current, *inv)
	return nil
}

// Query implements Searcher. An empty version matches every version of
// name. Results are sorted by version string.
func (e *StrictEngine) Query(_ context.Context, name, version string, opts QueryOptions) ([]bindle.Invoice, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var results []bindle.Invoice
	for _, inv := range e.invoices {
		if inv.Bindle.Name != name {
			continue
		}
		if version != "" && inv.Bindle.Version != version {
			continue
		}
		if inv.IsYanked() && !opts.Yanked {
			continue
		}
		results = append(results, inv)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Bindle.Version < results[j].Bindle.Version
	})
	return results, nil
}

// Len returns the number of indexed invoices.
func (e *StrictEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.invoices)
}

var _ Engine = (*StrictEngine)(nil)
