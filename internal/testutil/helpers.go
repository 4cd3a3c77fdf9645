// Package testutil provides test helpers for the stockd project.
//
// Using t.Fatal() or t.FailNow() in goroutines causes undefined behavior
// because these methods call runtime.Goexit(), which only terminates the
// current goroutine, not the test goroutine. The helpers here collect errors
// through a channel instead.
package testutil

import (
	"fmt"
	"sync"
	"testing"
)

// TestHelper manages error collection from goroutines.
//
// Usage:
//
//	func TestConcurrent(t *testing.T) {
//	    h := testutil.NewTestHelper(t)
//	    defer h.Wait()
//
//	    for i := 0; i < 10; i++ {
//	        h.Go(func() error {
//	            return doSomething()
//	        })
//	    }
//	}
type TestHelper struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
}

// NewTestHelper creates a new test helper.
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{
		t:      t,
		errors: make(chan error, 100),
	}
}

// Go runs fn in a goroutine. A returned error is collected and reported by
// Wait.
func (h *TestHelper) Go(fn func() error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := fn(); err != nil {
			select {
			case h.errors <- err:
			default:
				// Buffer full; the test still fails on earlier errors.
			}
		}
	}()
}

// Errorf records a test error from a goroutine. Safe to call from any
// goroutine.
func (h *TestHelper) Errorf(format string, args ...interface{}) {
	select {
	case h.errors <- fmt.Errorf(format, args...):
	default:
	}
}

// Wait waits for all goroutines and reports any collected errors. Must be
// called (typically via defer).
func (h *TestHelper) Wait() {
	h.wg.Wait()
	close(h.errors)

	var failed bool
	for err := range h.errors {
		h.t.Errorf("goroutine error: %v", err)
		failed = true
	}
	if failed {
		h.t.FailNow()
	}
}
