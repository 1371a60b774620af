// Package blockwake implements the bounded-wait mutex+condvar primitive
// shared by the Frame Ring's blocking GetFree and WaitConverted paths (§2
// "Block/Wake primitive", §4.6, §5 "Suspension points").
//
// Go's sync.Cond has no built-in timeout, so WaitTimeout pairs it with a
// single deferred timer per call rather than spinning or polling.
package blockwake

import (
	"sync"
	"time"

	"github.com/smpte2110/mtl-core/mtlerr"
)

// BlockWake guards a caller-supplied predicate with one mutex and one
// condvar. Notify wakes every waiter to re-check its predicate; Stop
// releases every waiter immediately with mtlerr.ErrTryAgain regardless of
// the predicate.
type BlockWake struct {
	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool
}

// New creates a ready-to-use BlockWake.
func New() *BlockWake {
	bw := &BlockWake{}
	bw.cond = sync.NewCond(&bw.mu)
	return bw
}

// Lock/Unlock expose the underlying mutex so callers can evaluate or mutate
// the guarded state atomically with Wait/Notify/Stop.
func (b *BlockWake) Lock()   { b.mu.Lock() }
func (b *BlockWake) Unlock() { b.mu.Unlock() }

// Notify wakes every blocked waiter so it re-checks its predicate. Callers
// normally hold the lock when they mutate guarded state but Notify itself
// does not require it.
func (b *BlockWake) Notify() {
	b.cond.Broadcast()
}

// Stop marks the primitive stopped and wakes every waiter; stopped waiters
// return mtlerr.ErrTryAgain. Stop is idempotent (§8: "calling stop() N
// times has the same effect as calling it once").
func (b *BlockWake) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Reopen clears the stopped flag for session reuse across test cases.
func (b *BlockWake) Reopen() {
	b.mu.Lock()
	b.stopped = false
	b.mu.Unlock()
}

// Stopped reports the current stopped flag. Caller must hold the lock if it
// needs this to be atomic with other guarded state.
func (b *BlockWake) Stopped() bool {
	return b.stopped
}

// WaitTimeout blocks, with b.mu held, until ready() returns true, the
// primitive is stopped, or timeout elapses. A non-positive timeout probes
// ready() once without blocking. The lock is held on every return path, as
// with sync.Cond.Wait.
func (b *BlockWake) WaitTimeout(timeout time.Duration, ready func() bool) error {
	if ready() {
		return nil
	}
	if b.stopped {
		return mtlerr.ErrTryAgain
	}
	if timeout <= 0 {
		return mtlerr.ErrTimeout
	}

	deadline := time.Now().Add(timeout)
	timedOut := false
	timer := time.AfterFunc(timeout, func() {
		b.mu.Lock()
		timedOut = true
		b.mu.Unlock()
		b.cond.Broadcast()
	})
	defer timer.Stop()

	for !ready() {
		if b.stopped {
			return mtlerr.ErrTryAgain
		}
		if timedOut {
			if time.Now().Before(deadline) {
				// Spurious wake raced the timer; keep waiting for the
				// real deadline.
				timedOut = false
				continue
			}
			return mtlerr.ErrTimeout
		}
		b.cond.Wait()
	}
	return nil
}
