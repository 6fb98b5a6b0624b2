// Package locks provides per-key exclusive locks with bounded acquisition.
// Fine-grained locking lets unrelated tasks be claimed in parallel while a
// single task's transitions stay linearizable.
package locks

import (
	"sync"
	"time"

	"github.com/mkretch/quorum/internal/fault"
)

// Table holds one exclusive lock per key. Keys are created lazily and kept
// for the table's lifetime; records are never deleted, so neither are locks.
type Table struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{locks: make(map[string]chan struct{})}
}

// lockFor returns the channel semaphore for a key, creating it if needed.
func (t *Table) lockFor(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[key] = ch
	}
	return ch
}

// Acquire takes the lock for key, waiting at most timeout. It returns a
// release function on success and a busy fault if the deadline expires.
// A non-positive timeout blocks until the lock is available.
func (t *Table) Acquire(key string, timeout time.Duration) (func(), error) {
	ch := t.lockFor(key)

	if timeout <= 0 {
		ch <- struct{}{}
		return func() { <-ch }, nil
	}

	// Fast path first so an uncontended acquire never allocates a timer.
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, fault.New(fault.CodeBusy, "lock on %q not acquired within %s", key, timeout)
	}
}

// TryAcquire takes the lock only if it is immediately available.
func (t *Table) TryAcquire(key string) (func(), bool) {
	ch := t.lockFor(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return nil, false
	}
}
