package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/sourcegraph/conc"
	"go.etcd.io/bbolt"

	bindle "github.com/wolfeidau/bindle-store"
	"github.com/wolfeidau/bindle-store/search"
	"github.com/wolfeidau/bindle-store/telemetry"
)

var bucketEvents = []byte("events") // UUIDv7 (16 bytes, time ordered) -> Event TOML

const (
	defaultPollInterval = 5 * time.Second
	defaultRetryBase    = 500 * time.Millisecond
	defaultRetryMax     = time.Minute
	defaultBatchSize    = 128
)

// Event is one durable index update.
type Event struct {
	ID         string         `toml:"id"`
	Op         Op             `toml:"op"`
	EnqueuedAt time.Time      `toml:"enqueuedAt"`
	Attempts   int            `toml:"attempts"`
	Invoice    bindle.Invoice `toml:"invoice"`
}

// Outbox records events in a bbolt log and delivers them to an index in
// enqueue order, at least once. An event is removed only after the index has
// accepted it, so the index must tolerate redelivery.
type Outbox struct {
	db     *bbolt.DB
	index  search.Indexer
	logger *slog.Logger
	now    func() time.Time
	noSync bool

	pollInterval time.Duration
	retryBase    time.Duration
	retryMax     time.Duration
	batchSize    int

	drainMu sync.Mutex
	notify  chan struct{}

	wg     conc.WaitGroup
	cancel context.CancelFunc
}

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithLogger sets the logger for the outbox.
func WithLogger(logger *slog.Logger) OutboxOption {
	return func(o *Outbox) {
		o.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) OutboxOption {
	return func(o *Outbox) {
		o.now = now
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This risks losing queued events on crash. Use only for testing.
func WithNoSync(noSync bool) OutboxOption {
	return func(o *Outbox) {
		o.noSync = noSync
	}
}

// WithPollInterval sets how often Run checks for events without a notification.
func WithPollInterval(d time.Duration) OutboxOption {
	return func(o *Outbox) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithRetry sets the exponential backoff bounds used after a failed delivery.
func WithRetry(base, limit time.Duration) OutboxOption {
	return func(o *Outbox) {
		if base > 0 {
			o.retryBase = base
		}
		if limit >= o.retryBase {
			o.retryMax = limit
		}
	}
}

// WithBatchSize sets how many events a drain pass reads at once.
func WithBatchSize(n int) OutboxOption {
	return func(o *Outbox) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// OpenOutbox opens (or creates) the event log at path.
func OpenOutbox(path string, index search.Indexer, opts ...OutboxOption) (*Outbox, error) {
	o := &Outbox{
		index:        index,
		logger:       slog.Default(),
		now:          time.Now,
		pollInterval: defaultPollInterval,
		retryBase:    defaultRetryBase,
		retryMax:     defaultRetryMax,
		batchSize:    defaultBatchSize,
		notify:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  o.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("opening outbox: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket %s: %w", bucketEvents, err)
	}
	o.db = db

	o.logger.Debug("opened outbox", "path", path)
	return o, nil
}

// Sync implements Syncer by appending the event to the log. Delivery happens
// in Drain or Run.
func (o *Outbox) Sync(ctx context.Context, op Op, inv *bindle.Invoice) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating event id: %w", err)
	}
	ev := Event{
		ID:         id.String(),
		Op:         op,
		EnqueuedAt: o.now().UTC(),
		Invoice:    *inv,
	}
	data, err := toml.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	err = o.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).Put(id[:], data)
	})
	if err != nil {
		telemetry.RecordIndexSync(ctx, "outbox", string(op), "enqueue_error")
		return fmt.Errorf("appending event: %w", err)
	}

	o.logger.Debug("queued index event", "event_id", ev.ID, "op", op, "invoice", inv.Name())
	o.wake()
	return nil
}

// Pending returns the number of undelivered events.
func (o *Outbox) Pending() (int, error) {
	var n int
	err := o.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEvents).Stats().KeyN
		return nil
	})
	return n, err
}

// Events returns up to limit undelivered events in delivery order.
// A limit of zero or less returns them all.
func (o *Outbox) Events(limit int) ([]Event, error) {
	var events []Event
	err := o.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(events) >= limit {
				return nil
			}
			var ev Event
			if err := toml.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("decoding event %x: %w", k, err)
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

// Drain delivers pending events in order until the log is empty or a
// delivery fails. A failed event stays at the head of the log with its
// attempt count incremented, so later events for the same invoice can never
// overtake it.
func (o *Outbox) Drain(ctx context.Context) (int, error) {
	o.drainMu.Lock()
	defer o.drainMu.Unlock()

	delivered := 0
	defer func() {
		if pending, err := o.Pending(); err == nil {
			telemetry.UpdateOutboxPending(ctx, pending)
		}
	}()

	for {
		events, err := o.Events(o.batchSize)
		if err != nil {
			return delivered, err
		}
		if len(events) == 0 {
			return delivered, nil
		}

		for i := range events {
			if err := ctx.Err(); err != nil {
				return delivered, err
			}
			ev := &events[i]
			if err := o.deliver(ctx, ev); err != nil {
				return delivered, err
			}
			delivered++
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, ev *Event) error {
	id, err := uuid.Parse(ev.ID)
	if err != nil {
		return fmt.Errorf("parsing event id %q: %w", ev.ID, err)
	}

	if err := o.index.Index(ctx, &ev.Invoice); err != nil {
		telemetry.RecordIndexSync(ctx, "outbox", string(ev.Op), telemetry.Outcome(err))
		ev.Attempts++
		if uerr := o.put(id, ev); uerr != nil {
			return errors.Join(err, uerr)
		}
		o.logger.Warn("index delivery failed",
			"event_id", ev.ID,
			"op", ev.Op,
			"invoice", ev.Invoice.Name(),
			"attempts", ev.Attempts,
			telemetry.ErrAttr(err),
		)
		return fmt.Errorf("delivering event %s: %w", ev.ID, err)
	}
	telemetry.RecordIndexSync(ctx, "outbox", string(ev.Op), "success")

	return o.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).Delete(id[:])
	})
}

func (o *Outbox) put(id uuid.UUID, ev *Event) error {
	data, err := toml.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return o.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).Put(id[:], data)
	})
}

// Run delivers events until ctx is cancelled. It drains whenever Sync
// queues an event and every poll interval, backing off exponentially while
// the index keeps failing.
func (o *Outbox) Run(ctx context.Context) error {
	backoff := o.retryBase
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.notify:
		case <-timer.C:
		}

		wait := o.pollInterval
		if n, err := o.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait = backoff
			backoff = min(backoff*2, o.retryMax)
			o.logger.Debug("outbox drain stopped", "delivered", n, "retry_in", wait, telemetry.ErrAttr(err))
		} else {
			backoff = o.retryBase
			if n > 0 {
				o.logger.Debug("outbox drained", "delivered", n)
			}
		}
		timer.Reset(wait)
	}
}

// Start runs the delivery loop in the background until Close.
func (o *Outbox) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.wg.Go(func() {
		if err := o.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("outbox stopped", telemetry.ErrAttr(err))
		}
	})
}

// Close stops a started delivery loop and closes the log.
func (o *Outbox) Close() error {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	if o.db == nil {
		return nil
	}
	return o.db.Close()
}

func (o *Outbox) wake() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

var _ Syncer = (*Outbox)(nil)
