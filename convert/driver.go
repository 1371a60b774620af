package convert

import (
	"sync"

	"github.com/smpte2110/mtl-core/frame"
	"github.com/smpte2110/mtl-core/mtlerr"
	"github.com/smpte2110/mtl-core/pixfmt"
	"github.com/smpte2110/mtl-core/ring"
)

// Driver wires a Registry to one session's Ring: it edge-triggers on
// NotifyFrameReady, claims the Ready slot, runs either the selected
// external converter or the built-in fallback, and advances the slot to
// Converted (or recycles it to Free on failure, per §4.2/§7 ConvertFail).
type Driver struct {
	registry *Registry
	ring     *ring.Ring
	req      Request
	extConv  Converter
	extSess  Session
	useExt   bool
	derive   bool // surface == wire: no conversion ever runs (§3 zero-copy)

	mu           sync.Mutex
	pending      bool
	ConvertFails int
}

// NewDriver selects a converter for req (external if one's predicate
// matches, else the built-in table) and returns a Driver bound to ring. In
// derive mode (req.Input == req.Output) no converter is needed at all: the
// session's put-path moves slots Ready->Converted directly and Drain never
// has anything to do, so the driver is built as a pass-through regardless of
// whether the builtin table happens to cover the identity pair.
func NewDriver(registry *Registry, rng *ring.Ring, req Request) (*Driver, error) {
	d := &Driver{registry: registry, ring: rng, req: req}
	if pixfmt.DeriveMode(req.Input, req.Output) {
		d.derive = true
		return d, nil
	}
	if c, ok := registry.Select(req); ok {
		sess, err := c.Create(req)
		if err != nil {
			return nil, err
		}
		d.extConv = c
		d.extSess = sess
		d.useExt = true
		return d, nil
	}
	if !registry.BuiltinSupports(req.Input, req.Output) {
		return nil, mtlerr.ErrUnsupportedFormat
	}
	return d, nil
}

// NotifyFrameReady is the edge-trigger that wakes the converter worker;
// callers (typically the session's worker loop) call Drain afterward to do
// the actual conversion work off the caller's goroutine if desired, or call
// Drain directly from the same goroutine for a synchronous pipeline.
func (d *Driver) NotifyFrameReady() {
	d.mu.Lock()
	d.pending = true
	d.mu.Unlock()
}

// Drain processes every slot currently in Ready, converting it to
// Converted. It is safe to call from a single converter worker goroutine;
// the registry's reentrancy contract (§6) assumes non-concurrent calls
// within one session.
func (d *Driver) Drain() {
	if d.derive {
		return
	}
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	for _, slot := range d.ring.Slots() {
		if slot.State != frame.Ready {
			continue
		}
		d.convertOne(slot)
	}
}

func (d *Driver) convertOne(slot *frame.Slot) {
	if err := d.ring.AdvancePhase(slot, frame.InConverting); err != nil {
		return
	}

	src := slot.Frame.Planes[0][:slot.Frame.DataSize]
	var out []byte
	var err error
	if d.useExt {
		res := d.extSess.GetFrame(src)
		if !res.OK || len(res.Data) == 0 {
			err = mtlerr.ErrConvertFail
		} else {
			out = res.Data
		}
	} else {
		out, err = d.registry.BuiltinConvert(d.req.Input, d.req.Output, d.req.Width, d.req.Height, src)
	}

	if err != nil || len(out) == 0 {
		d.mu.Lock()
		d.ConvertFails++
		d.mu.Unlock()
		d.ring.RecycleToFree(slot)
		d.NotifyFrameReady() // re-notify, per §7 ConvertFail disposition
		return
	}

	slot.Frame.Planes[0] = out
	slot.Frame.DataSize = len(out)
	_ = d.ring.AdvancePhase(slot, frame.Converted)
}

// Close releases the external converter session, if any.
func (d *Driver) Close() {
	if d.extSess != nil {
		d.extSess.Destroy()
	}
}
