package rfc4175

import (
	"sync"

	"github.com/pion/rtp"

	"github.com/smpte2110/mtl-core/frame"
	"github.com/smpte2110/mtl-core/mtlerr"
	"github.com/smpte2110/mtl-core/ring"
)

// entry tracks one in-flight frame being reassembled, keyed by RTP
// timestamp.
type entry struct {
	slot      *frame.Slot
	pktsRecv  [2]int
	bytesSeen int
}

// Depacketizer reassembles RTP packets carrying RFC 4175 payloads into
// frames, publishing each completed frame Ready on the bound Ring (§4.3,
// §4.6). It writes only wire-format bytes into the slot's buffer; the
// convert.Driver bound to the same ring, configured Input=wire/Output=
// surface, performs the Ready->Converted unpacking step, symmetric with
// the TX side's Converted->wire packetization.
type Depacketizer struct {
	mode Mode
	geo  Geometry

	lineBytes  int
	totalBytes int
	pktsTotal  int

	maxInFlight     int
	allowIncomplete bool

	mu      sync.Mutex
	ring    *ring.Ring
	pending map[uint32]*entry
	order   []uint32 // oldest-first tracked timestamps

	PktsReceived   int
	PktsRedundant  int
	PktsOutOfOrder int
	PktsDropped    int
}

// NewDepacketizer builds a Depacketizer for mode/geo bound to rng. mtu is
// the same payload-budget MTU the peer's Packetizer was configured with,
// needed to compute the expected packet count per frame. maxInFlight
// bounds how many distinct RTP timestamps may be reassembling concurrently
// before the oldest is evicted as incomplete.
func NewDepacketizer(mode Mode, geo Geometry, mtu int, rng *ring.Ring, maxInFlight int, allowIncomplete bool) (*Depacketizer, error) {
	lb, err := geo.lineBytes()
	if err != nil {
		return nil, err
	}
	total, err := geo.TotalBytes()
	if err != nil {
		return nil, err
	}
	pktsTotal, err := TotalPackets(mode, mtu, geo)
	if err != nil {
		return nil, err
	}
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Depacketizer{
		mode: mode, geo: geo, lineBytes: lb, totalBytes: total, pktsTotal: pktsTotal,
		maxInFlight: maxInFlight, allowIncomplete: allowIncomplete,
		ring: rng, pending: make(map[uint32]*entry),
	}, nil
}

// Ingest processes one received packet on the given port (0=primary,
// 1=redundant). It returns nil whether or not the packet contributed data;
// errors are reserved for programmer misuse (bad port index).
func (d *Depacketizer) Ingest(pkt *rtp.Packet, port int) error {
	if port != 0 && port != 1 {
		return mtlerr.ErrInvalidArgument
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ts := pkt.Timestamp
	e, ok := d.pending[ts]
	if !ok {
		if d.isOlderThanOldest(ts) {
			d.PktsOutOfOrder++
			d.PktsDropped++
			return nil
		}
		slot, err := d.ring.GetFree(0)
		if err != nil {
			d.PktsDropped++
			return nil
		}
		slot.Frame.RTPTimestamp = ts
		slot.Frame.Width = d.geo.Width
		slot.Frame.Height = d.geo.Height
		slot.Frame.Surface = d.geo.Wire
		if len(slot.Frame.Planes[0]) < d.totalBytes {
			slot.Frame.Planes[0] = make([]byte, d.totalBytes)
		}
		e = &entry{slot: slot}
		d.pending[ts] = e
		d.order = append(d.order, ts)
		if len(d.order) > d.maxInFlight {
			d.evictOldestLocked()
		}
	}

	d.writeSegments(e, pkt.Payload, port)
	d.PktsReceived++
	if e.pktsRecv[0] > 0 && e.pktsRecv[1] > 0 {
		d.PktsRedundant++
	}

	complete := pkt.Marker || e.bytesSeen >= d.totalBytes
	if complete {
		d.finalizeLocked(ts, e)
	}
	return nil
}

func (d *Depacketizer) isOlderThanOldest(ts uint32) bool {
	if len(d.order) == 0 {
		return false
	}
	oldest := d.order[0]
	// modular comparison: ts is older if (oldest - ts) is a small positive
	// delta rather than a huge wraparound value.
	return int32(oldest-ts) > 0 && int32(oldest-ts) < 1<<30
}

func (d *Depacketizer) writeSegments(e *entry, payload []byte, port int) {
	if len(payload) < extSeqSize {
		return
	}
	pos := extSeqSize
	for pos+srdHeaderSize <= len(payload) {
		hdr := decodeSRD(payload[pos : pos+srdHeaderSize])
		pos += srdHeaderSize
		end := pos + int(hdr.Length)
		if end > len(payload) {
			break
		}
		start := int(hdr.RowNumber)*d.lineBytes + int(hdr.RowOffset)
		if start >= 0 && start+int(hdr.Length) <= len(e.slot.Frame.Planes[0]) {
			copy(e.slot.Frame.Planes[0][start:start+int(hdr.Length)], payload[pos:end])
			e.bytesSeen += int(hdr.Length)
		}
		pos = end
		if !hdr.Continuation {
			break
		}
	}
	e.pktsRecv[port]++
}

func (d *Depacketizer) finalizeLocked(ts uint32, e *entry) {
	delete(d.pending, ts)
	for i, o := range d.order {
		if o == ts {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}

	fr := &e.slot.Frame
	fr.DataSize = e.bytesSeen
	fr.PacketsExpected = d.pktsTotal
	fr.PacketsReceived = e.pktsRecv

	switch {
	case e.bytesSeen >= d.totalBytes && e.pktsRecv[0] > 0 && e.pktsRecv[1] > 0:
		fr.Status = frame.StatusReconstructed
	case e.bytesSeen >= d.totalBytes:
		fr.Status = frame.StatusComplete
	default:
		fr.Status = frame.StatusCorrupted
	}

	if fr.Status == frame.StatusCorrupted && !d.allowIncomplete {
		d.ring.RecycleToFree(e.slot)
		return
	}
	_ = d.ring.PublishReady(e.slot)
}

// evictOldestLocked drops the oldest pending reassembly, recycling its slot
// to Free (or publishing it Corrupted/Ready when allowIncomplete is set).
func (d *Depacketizer) evictOldestLocked() {
	ts := d.order[0]
	d.order = d.order[1:]
	e := d.pending[ts]
	delete(d.pending, ts)
	if e == nil {
		return
	}
	if d.allowIncomplete {
		fr := &e.slot.Frame
		fr.DataSize = e.bytesSeen
		fr.Status = frame.StatusCorrupted
		fr.PacketsReceived = e.pktsRecv
		_ = d.ring.PublishReady(e.slot)
		return
	}
	d.ring.RecycleToFree(e.slot)
}
