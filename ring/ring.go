// Package ring implements the Frame Ring (§4.1): a fixed-capacity ring of
// frame slots carrying lifecycle state, guarded by one mutex and an optional
// condvar for the blocking get-free path.
package ring

import (
	"time"

	"github.com/smpte2110/mtl-core/blockwake"
	"github.com/smpte2110/mtl-core/frame"
	"github.com/smpte2110/mtl-core/mtlerr"
)

// LateCallback is invoked by DropLate with the slot that was skipped
// because its epoch had already passed.
type LateCallback func(slot *frame.Slot)

// Ring is a fixed-capacity ring of frame.Slot, guarded by a single
// blockwake.BlockWake. The lock is held only across state-transition
// bookkeeping, never across conversion or I/O (§5 Shared-resource policy).
type Ring struct {
	bw *blockwake.BlockWake

	slots    []*frame.Slot
	capacity int
	dir      frame.Direction
	nextSeq  uint64

	onLate LateCallback

	// stats, guarded by bw.
	BadStateCount int
	DropLateCount int
}

// New creates a Ring with the given capacity (1-64 permitted, 3-8 typical
// per §3). capacity must be >= 1.
func New(capacity int, dir frame.Direction) (*Ring, error) {
	if capacity < 1 || capacity > 64 {
		return nil, mtlerr.ErrInvalidArgument
	}
	r := &Ring{
		bw:       blockwake.New(),
		slots:    make([]*frame.Slot, capacity),
		capacity: capacity,
		dir:      dir,
	}
	for i := range r.slots {
		r.slots[i] = frame.NewSlot(i, dir)
	}
	return r, nil
}

// OnLate registers the callback DropLate invokes when it recycles a
// Converted slot whose epoch has already passed.
func (r *Ring) OnLate(cb LateCallback) {
	r.bw.Lock()
	defer r.bw.Unlock()
	r.onLate = cb
}

// Capacity returns the ring's fixed slot count.
func (r *Ring) Capacity() int { return r.capacity }

// Stop marks the ring stopped; any blocked GetFree call returns
// mtlerr.ErrTryAgain immediately, matching the session Stop() contract in
// §4.5/§5. Safe to call more than once (idempotent per §8).
func (r *Ring) Stop() { r.bw.Stop() }

// Reopen clears the stopped flag, allowing a ring to be reused by a fresh
// session lifecycle. Not part of the hot path.
func (r *Ring) Reopen() { r.bw.Reopen() }

// GetFree returns a Free slot. If timeout > 0 and no Free slot exists,
// GetFree blocks on the ring's condvar up to timeout. timeout == 0 is a
// non-blocking probe returning mtlerr.ErrBusy.
func (r *Ring) GetFree(timeout time.Duration) (*frame.Slot, error) {
	r.bw.Lock()
	defer r.bw.Unlock()

	var found *frame.Slot
	err := r.bw.WaitTimeout(timeout, func() bool {
		found = r.findLocked(frame.Free)
		return found != nil
	})
	if err != nil {
		if err == mtlerr.ErrTimeout && timeout <= 0 {
			return nil, mtlerr.ErrBusy
		}
		return nil, err
	}
	return found, nil
}

func (r *Ring) findLocked(state frame.State) *frame.Slot {
	for _, s := range r.slots {
		if s.State == state {
			return s
		}
	}
	return nil
}

// PublishReady advances a slot from Free to Ready and wakes any converter
// task (the caller is expected to have filled slot.Frame already).
func (r *Ring) PublishReady(slot *frame.Slot) error {
	r.bw.Lock()
	slot.Seq = r.nextSeq
	r.nextSeq++
	err := slot.Advance(frame.Ready)
	if err != nil {
		r.BadStateCount++
	}
	r.bw.Unlock()
	r.bw.Notify()
	return err
}

// NextConvertedNewest returns the Converted slot with the highest seq
// number and flips it to InTransmitting, implementing the "transmit the
// newest, drop older" rule from §4.1. Returns nil if no slot is Converted.
func (r *Ring) NextConvertedNewest() *frame.Slot {
	r.bw.Lock()
	defer r.bw.Unlock()

	var newest *frame.Slot
	for _, s := range r.slots {
		if s.State == frame.Converted {
			if newest == nil || s.Seq > newest.Seq {
				newest = s
			}
		}
	}
	if newest == nil {
		return nil
	}
	if err := newest.Advance(frame.InTransmitting); err != nil {
		r.BadStateCount++
		return nil
	}
	return newest
}

// WaitConverted blocks up to timeout for a Converted slot to appear and
// flips it to InUser, the RX counterpart of GetFree's blocking contract.
// timeout<=0 is a non-blocking probe returning mtlerr.ErrBusy.
func (r *Ring) WaitConverted(timeout time.Duration) (*frame.Slot, error) {
	r.bw.Lock()
	defer r.bw.Unlock()

	var found *frame.Slot
	err := r.bw.WaitTimeout(timeout, func() bool {
		found = r.oldestConvertedLocked()
		return found != nil
	})
	if err != nil {
		if err == mtlerr.ErrTimeout && timeout <= 0 {
			return nil, mtlerr.ErrBusy
		}
		return nil, err
	}
	if err := found.Advance(frame.InUser); err != nil {
		r.BadStateCount++
		return nil, err
	}
	return found, nil
}

func (r *Ring) oldestConvertedLocked() *frame.Slot {
	var oldest *frame.Slot
	for _, s := range r.slots {
		if s.State == frame.Converted {
			if oldest == nil || s.Seq < oldest.Seq {
				oldest = s
			}
		}
	}
	return oldest
}

// NextConvertedForUser is the non-blocking form of WaitConverted, used by
// callers that poll rather than block (e.g. a single-threaded demo loop).
func (r *Ring) NextConvertedForUser() *frame.Slot {
	slot, err := r.WaitConverted(0)
	if err != nil {
		return nil
	}
	return slot
}

// Complete advances a slot from InTransmitting to Free and wakes a producer
// blocked on GetFree.
func (r *Ring) Complete(slot *frame.Slot) error {
	r.bw.Lock()
	err := slot.Advance(frame.Free)
	if err != nil {
		r.BadStateCount++
	} else {
		slot.Reset()
	}
	r.bw.Unlock()
	r.bw.Notify()
	return err
}

// DropLate skips the oldest Converted slot when the pacer detects its
// epoch has passed, firing the registered late callback and recycling the
// slot to Free.
func (r *Ring) DropLate() *frame.Slot {
	r.bw.Lock()
	var oldest *frame.Slot
	for _, s := range r.slots {
		if s.State == frame.Converted {
			if oldest == nil || s.Seq < oldest.Seq {
				oldest = s
			}
		}
	}
	if oldest == nil {
		r.bw.Unlock()
		return nil
	}
	oldest.State = frame.Free
	oldest.Reset()
	r.DropLateCount++
	cb := r.onLate
	r.bw.Unlock()

	r.bw.Notify()
	if cb != nil {
		cb(oldest)
	}
	return oldest
}

// Occupancy returns the count of slots in each lifecycle state, the ring
// snapshot used by §4.7 stats and the universal invariant in §8 ("sum of
// slots per state == capacity").
func (r *Ring) Occupancy() map[frame.State]int {
	r.bw.Lock()
	defer r.bw.Unlock()
	out := map[frame.State]int{}
	for _, s := range r.slots {
		out[s.State]++
	}
	return out
}

// AdvancePhase moves a slot to the given target state under the ring lock,
// used by package convert to drive Ready->InConverting->Converted without
// reaching into ring internals.
func (r *Ring) AdvancePhase(slot *frame.Slot, to frame.State) error {
	r.bw.Lock()
	err := slot.Advance(to)
	if err != nil {
		r.BadStateCount++
	}
	r.bw.Unlock()
	r.bw.Notify()
	return err
}

// RecycleToFree forces a slot back to Free outside the normal transition
// graph, used on ConvertFail (§7: "slot recycled, counter incremented").
func (r *Ring) RecycleToFree(slot *frame.Slot) {
	r.bw.Lock()
	slot.State = frame.Free
	slot.Reset()
	r.bw.Unlock()
	r.bw.Notify()
}

// Slots returns the underlying slot slice for read-only inspection (tests,
// stats snapshots). Callers must not mutate slot state directly.
func (r *Ring) Slots() []*frame.Slot {
	return r.slots
}
