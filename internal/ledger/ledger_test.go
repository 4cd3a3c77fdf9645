package ledger

import (
	"fmt"
	"testing"

	"github.com/tentenbyte/stockd/internal/errors"
	"github.com/tentenbyte/stockd/internal/testutil"
)

func TestLedgerAppendAndSnapshot(t *testing.T) {
	l := NewLedger()

	for i := 0; i < 5; i++ {
		e := validEvent()
		e.TransID = fmt.Sprintf("TXN%03d", i)
		if err := l.Append(e, nil); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if l.Len() != 5 {
		t.Fatalf("Len: got %d, want 5", l.Len())
	}

	snap := l.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("Snapshot: got %d events", len(snap))
	}
	for i, e := range snap {
		want := fmt.Sprintf("TXN%03d", i)
		if e.TransID != want {
			t.Errorf("event %d: got %s, want %s (append order broken)", i, e.TransID, want)
		}
	}
}

func TestLedgerDuplicateTransID(t *testing.T) {
	l := NewLedger()

	e := validEvent()
	if err := l.Append(e, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	err := l.Append(e, nil)
	if !errors.Is(err, errors.ErrDuplicateTransactionID) {
		t.Fatalf("duplicate append: got %v", err)
	}
	if l.Len() != 1 {
		t.Fatalf("duplicate mutated ledger: len=%d", l.Len())
	}
}

// A durability failure must abort before any memory mutation, and a retry
// with the same id must succeed (no phantom duplicate).
func TestLedgerDurableFailureIsAtomic(t *testing.T) {
	l := NewLedger()
	e := validEvent()

	failing := func(Event) error { return fmt.Errorf("disk full") }
	err := l.Append(e, failing)
	if !errors.Is(err, errors.ErrWALWriteFailed) {
		t.Fatalf("failed append: got %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("failed append mutated ledger: len=%d", l.Len())
	}

	if err := l.Append(e, nil); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if l.Len() != 1 {
		t.Fatalf("retry: len=%d", l.Len())
	}
}

func TestLedgerGrowsPastBlockSize(t *testing.T) {
	l := NewLedger()

	total := blockSize*2 + 17
	events := make([]Event, total)
	for i := range events {
		e := validEvent()
		e.TransID = fmt.Sprintf("TXN%06d", i)
		events[i] = e
	}
	l.Load(events)

	if l.Len() != total {
		t.Fatalf("Len: got %d, want %d", l.Len(), total)
	}

	snap := l.Snapshot()
	if snap[0].TransID != "TXN000000" || snap[total-1].TransID != fmt.Sprintf("TXN%06d", total-1) {
		t.Fatal("events relocated or reordered across block growth")
	}
}

func TestLedgerSnapshotStability(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 3; i++ {
		e := validEvent()
		e.TransID = fmt.Sprintf("TXN%03d", i)
		l.Append(e, nil)
	}

	a := l.Snapshot()
	b := l.Snapshot()
	if len(a) != len(b) {
		t.Fatalf("snapshots differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].TransID != b[i].TransID {
			t.Fatalf("snapshots differ at %d", i)
		}
	}
}

// Readers running concurrently with a writer must always observe a
// consistent prefix: n events in append order, never a torn or partial one.
func TestLedgerConcurrentReaders(t *testing.T) {
	l := NewLedger()
	h := testutil.NewTestHelper(t)

	const total = 3000
	done := make(chan struct{})

	h.Go(func() error {
		defer close(done)
		for i := 0; i < total; i++ {
			e := validEvent()
			e.TransID = fmt.Sprintf("TXN%06d", i)
			if err := l.Append(e, nil); err != nil {
				return fmt.Errorf("append %d: %v", i, err)
			}
		}
		return nil
	})

	for r := 0; r < 4; r++ {
		h.Go(func() error {
			for {
				snap := l.Snapshot()
				for i, e := range snap {
					want := fmt.Sprintf("TXN%06d", i)
					if e.TransID != want {
						return fmt.Errorf("torn read at %d: got %s, want %s", i, e.TransID, want)
					}
				}
				select {
				case <-done:
					return nil
				default:
				}
			}
		})
	}

	h.Wait()

	if l.Len() != total {
		t.Fatalf("final len: got %d, want %d", l.Len(), total)
	}
}
