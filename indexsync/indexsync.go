// Package indexsync propagates invoice lifecycle events from the storage
// engine to a search index.
//
// The filesystem is the source of truth; the index is a derived mirror. A
// Syncer never makes a storage operation fail: the engine logs whatever it
// returns and carries on.
package indexsync

import (
	"context"
	"sync"

	bindle "github.com/wolfeidau/bindle-store"
	"github.com/wolfeidau/bindle-store/search"
	"github.com/wolfeidau/bindle-store/telemetry"
)

// Op names the lifecycle event being propagated.
type Op string

const (
	OpCreate Op = "create"
	OpYank   Op = "yank"
)

// Syncer receives invoice lifecycle events.
// Implementations must be safe for concurrent use.
type Syncer interface {
	Sync(ctx context.Context, op Op, inv *bindle.Invoice) error
}

// Direct applies events synchronously to a shared index. Every call takes
// the write side of a reader/writer lock for the duration of the index call
// only, so concurrent events serialise on the index and nothing else.
type Direct struct {
	mu    sync.RWMutex
	index search.Indexer
}

// NewDirect wraps index. Share the returned value between engine handles to
// share the index.
func NewDirect(index search.Indexer) *Direct {
	return &Direct{index: index}
}

// Sync implements Syncer.
func (d *Direct) Sync(ctx context.Context, op Op, inv *bindle.Invoice) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.index.Index(ctx, inv)
	telemetry.RecordIndexSync(ctx, "direct", string(op), telemetry.Outcome(err))
	return err
}

// View runs fn with shared access to the index, for read-only use such as
// queries.
func (d *Direct) View(fn func(search.Indexer) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fn(d.index)
}

// Discard drops every event.
type Discard struct{}

// Sync implements Syncer.
func (Discard) Sync(context.Context, Op, *bindle.Invoice) error { return nil }

var (
	_ Syncer = (*Direct)(nil)
	_ Syncer = Discard{}
)
