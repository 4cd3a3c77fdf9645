package ledger

import (
	"sync"
	"sync/atomic"

	"github.com/tentenbyte/stockd/internal/errors"
)

// blockSize is the fixed capacity of one storage block. Published events
// live inside blocks that are never reallocated, so a reader copying the
// published prefix is never invalidated by a concurrent writer's growth.
const blockSize = 1024

type block struct {
	events [blockSize]Event
}

type spine []*block

// Ledger is a per-tenant append-only ordered event store with an atomically
// published visible length.
//
// Readers are lock-free: they pair an acquire-load of the published count
// with a copy of exactly that many elements. Writers serialize on an
// internal mutex, append into the block storage, then release-store the new
// count. The count only increases for the lifetime of the process.
type Ledger struct {
	mu sync.Mutex // serializes writers; readers never take it

	blocks    atomic.Pointer[spine]
	published atomic.Int64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	l := &Ledger{}
	s := make(spine, 0)
	l.blocks.Store(&s)
	return l
}

// Append runs the write protocol for a single event:
//
//  1. duplicate trans_id scan over the published prefix
//  2. durability barrier (the durable callback, typically a WAL write);
//     on failure the ledger is unchanged
//  3. unpublished append into block storage
//  4. publication of the new count
//
// Field validation is the caller's responsibility. The durable callback may
// be nil when persistence is disabled.
func (l *Ledger) Append(e Event, durable func(Event) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.published.Load()

	// Duplicate scan is O(n) in the published event count: a known
	// scalability limit of the protocol.
	sp := *l.blocks.Load()
	for i := int64(0); i < n; i++ {
		if sp[i/blockSize].events[i%blockSize].TransID == e.TransID {
			return errors.ErrDuplicateTransactionID
		}
	}

	// Durability barrier: the event must be on disk before it can become
	// visible. A failure leaves memory state exactly as before the call.
	if durable != nil {
		if err := durable(e); err != nil {
			return errors.Wrap(errors.ErrWALWriteFailed, err.Error())
		}
	}

	l.appendSlot(n, e)
	l.published.Store(n + 1)
	return nil
}

// appendSlot writes the event into slot n, growing the block spine when the
// current block set is full. The spine pointer is published before the count,
// so a reader that observes the new count also observes a spine covering it.
func (l *Ledger) appendSlot(n int64, e Event) {
	sp := *l.blocks.Load()
	if int(n/blockSize) == len(sp) {
		grown := make(spine, len(sp)+1)
		copy(grown, sp)
		grown[len(sp)] = &block{}
		l.blocks.Store(&grown)
		sp = grown
	}
	sp[n/blockSize].events[n%blockSize] = e
}

// Load bulk-appends recovered events and publishes them once. It is intended
// for startup recovery, before the ledger receives traffic.
func (l *Ledger) Load(events []Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.published.Load()
	for _, e := range events {
		l.appendSlot(n, e)
		n++
	}
	l.published.Store(n)
}

// Snapshot returns a copy of the published prefix. Two consecutive calls with
// no intervening append return identical sequences.
func (l *Ledger) Snapshot() []Event {
	n := l.published.Load()
	if n == 0 {
		return nil
	}

	sp := *l.blocks.Load()
	out := make([]Event, n)
	for i := int64(0); i < n; i++ {
		out[i] = sp[i/blockSize].events[i%blockSize]
	}
	return out
}

// Len returns the published event count.
func (l *Ledger) Len() int {
	return int(l.published.Load())
}
