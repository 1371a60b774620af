package session

import (
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/smpte2110/mtl-core/convert"
	"github.com/smpte2110/mtl-core/frame"
	"github.com/smpte2110/mtl-core/internal/xlog"
	"github.com/smpte2110/mtl-core/mtlerr"
	"github.com/smpte2110/mtl-core/pixfmt"
	"github.com/smpte2110/mtl-core/rfc4175"
	"github.com/smpte2110/mtl-core/ring"
)

// DetectedMeta is delivered to the AutoDetect reply callback once the RX
// loop has inferred stream geometry from the first frame (§4.6).
type DetectedMeta struct {
	Width, Height int
	FPS           float64
	Interlaced    bool
}

// RXConfig configures one RX session.
type RXConfig struct {
	RingCapacity        int
	Geo                 rfc4175.Geometry
	Mode                rfc4175.Mode
	MTU                 int
	MaxInFlight         int
	ReceiveIncomplete   bool
	Redundant           bool
	AutoDetect          bool
	EnableTimingParser  bool
	ConvertReq          convert.Request
}

// NotifyDetected is called synchronously, exactly once, when AutoDetect
// geometry has been inferred; the RX loop blocks on its return value
// before allocating the full Frame Ring (§4.6).
type NotifyDetected func(meta DetectedMeta) (accept bool)

// RXSession drives NIC burst -> Codec -> Frame Ring, with optional
// auto-detect, dual-port redundancy, and a timing-compliance parser
// (§4.6).
type RXSession struct {
	lifecycle

	mu      sync.Mutex
	cfg     RXConfig
	ring    *ring.Ring
	driver  *convert.Driver
	dep     *rfc4175.Depacketizer
	cb      Callbacks
	id      string
	stats   Stats
	timing  *TimingReport

	detected    bool
	detectFn    NotifyDetected
	detectRows  map[uint16]bool
	detectTS    uint32
	detectFirst bool
}

// TimingReport is the optional timing parser's report (§4.6). Only
// InterPacketMinNs and InterPacketMaxNs are measured; VRXMin and VRXMax
// keep their initial values and Compliant is never set.
type TimingReport struct {
	VRXMin, VRXMax             int64
	InterPacketMinNs           int64
	InterPacketMaxNs           int64
	Compliant                  bool
	lastPacketNs               int64
}

// NewRXSession builds and wires an RX session's ring, converter driver
// (wire->surface direction), and depacketizer from cfg. When cfg.AutoDetect
// is set, Geo may be zero-valued; call ArmAutoDetect before ingesting
// packets.
func NewRXSession(id string, cfg RXConfig, reg *convert.Registry, cb Callbacks) (*RXSession, error) {
	s := &RXSession{lifecycle: newLifecycle(), cfg: cfg, cb: cb, id: id}
	if cfg.EnableTimingParser {
		s.timing = &TimingReport{VRXMin: 1 << 62, InterPacketMinNs: 1 << 62}
	}
	if cfg.AutoDetect {
		s.detectRows = map[uint16]bool{}
		return s, nil
	}
	if err := s.allocate(reg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RXSession) allocate(reg *convert.Registry) error {
	rng, err := ring.New(s.cfg.RingCapacity, frame.RX)
	if err != nil {
		return err
	}
	drv, err := convert.NewDriver(reg, rng, s.cfg.ConvertReq)
	if err != nil {
		return err
	}
	dep, err := rfc4175.NewDepacketizer(s.cfg.Mode, s.cfg.Geo, s.cfg.MTU, rng, s.cfg.MaxInFlight, s.cfg.ReceiveIncomplete)
	if err != nil {
		return err
	}
	s.ring = rng
	s.driver = drv
	s.dep = dep
	return nil
}

// ArmAutoDetect registers the synchronous notify_detected callback; it
// must be called before the first packet is ingested when cfg.AutoDetect
// is set.
func (s *RXSession) ArmAutoDetect(fn NotifyDetected) { s.detectFn = fn }

// Start transitions Created->Started.
func (s *RXSession) Start() error { return s.start() }

// Stop is async-signal-safe and idempotent.
func (s *RXSession) Stop() {
	s.stop()
	if s.ring != nil {
		s.ring.Stop()
	}
}

// Destroy transitions Stopped->Destroyed.
func (s *RXSession) Destroy() error {
	if s.driver != nil {
		s.driver.Close()
	}
	return s.destroy()
}

// IngestPacket feeds one received packet, on the given port (0=primary,
// 1=redundant), into the auto-detect watcher (if armed and not yet
// resolved) or the depacketizer.
func (s *RXSession) IngestPacket(reg *convert.Registry, pkt *rtp.Packet, port int, recvNs uint64) error {
	if s.isStopped() {
		return mtlerr.ErrTryAgain
	}
	if s.cfg.AutoDetect && !s.detected {
		if done := s.observeForDetect(pkt); done {
			meta := s.inferredMeta()
			accept := true
			if s.detectFn != nil {
				accept = s.detectFn(meta)
			}
			if !accept {
				return mtlerr.ErrInvalidArgument
			}
			s.cfg.Geo.Width = meta.Width
			s.cfg.Geo.Height = meta.Height
			if err := s.allocate(reg); err != nil {
				return err
			}
			s.detected = true
		} else {
			return nil
		}
	}

	if s.timing != nil {
		s.updateTiming(recvNs)
	}
	xlog.Emit(xlog.TPFrameNext, s.id, -1, uint64(pkt.Header.Timestamp))
	if err := s.dep.Ingest(pkt, port); err != nil {
		return err
	}
	if pixfmt.DeriveMode(s.cfg.ConvertReq.Input, s.cfg.ConvertReq.Output) {
		// Derive mode: the reassembled wire bytes are the surface bytes, so
		// Ready slots move straight to Converted.
		for _, slot := range s.ring.Slots() {
			if slot.State == frame.Ready {
				_ = s.ring.AdvancePhase(slot, frame.Converted)
			}
		}
	} else {
		s.driver.NotifyFrameReady()
		s.driver.Drain()
	}

	s.mu.Lock()
	s.stats.PktsReceived = uint64(s.dep.PktsReceived)
	s.stats.PktsRedundant = uint64(s.dep.PktsRedundant)
	s.stats.PktsOutOfOrder = uint64(s.dep.PktsOutOfOrder)
	s.mu.Unlock()
	return nil
}

func (s *RXSession) observeForDetect(pkt *rtp.Packet) bool {
	if !s.detectFirst {
		s.detectTS = pkt.Header.Timestamp
		s.detectFirst = true
	}
	if pkt.Header.Timestamp != s.detectTS {
		return true
	}
	if len(pkt.Payload) >= extSeqAndHeaderMin {
		rowWord := uint16(pkt.Payload[2])<<8 | uint16(pkt.Payload[3])
		s.detectRows[rowWord&0x7FFF] = true
	}
	return pkt.Header.Marker
}

const extSeqAndHeaderMin = 6

func (s *RXSession) inferredMeta() DetectedMeta {
	maxRow := uint16(0)
	for r := range s.detectRows {
		if r > maxRow {
			maxRow = r
		}
	}
	return DetectedMeta{Width: s.cfg.Geo.Width, Height: int(maxRow) + 1, FPS: 60}
}

func (s *RXSession) updateTiming(recvNs uint64) {
	t := s.timing
	if t.lastPacketNs != 0 {
		delta := int64(recvNs) - t.lastPacketNs
		if delta < t.InterPacketMinNs {
			t.InterPacketMinNs = delta
		}
		if delta > t.InterPacketMaxNs {
			t.InterPacketMaxNs = delta
		}
	}
	t.lastPacketNs = int64(recvNs)
}

// TimingReportSnapshot returns a copy of the current timing report, or nil
// if the timing parser was not enabled.
func (s *RXSession) TimingReportSnapshot() *TimingReport {
	if s.timing == nil {
		return nil
	}
	cp := *s.timing
	return &cp
}

// GetFrame returns the oldest Converted slot (RX in-order delivery,
// Converted->InUser), blocking up to timeout if none is ready.
func (s *RXSession) GetFrame(timeout time.Duration) (*frame.Slot, error) {
	s.mu.Lock()
	s.stats.GetFrameTry++
	s.mu.Unlock()

	if s.isStopped() {
		return nil, mtlerr.ErrTryAgain
	}
	slot, err := s.ring.WaitConverted(timeout)
	if err != nil {
		if s.isStopped() {
			return nil, mtlerr.ErrTryAgain
		}
		return nil, err
	}
	s.mu.Lock()
	s.stats.GetFrameSucc++
	s.mu.Unlock()
	return slot, nil
}

// PutFrame returns a consumed slot to Free.
func (s *RXSession) PutFrame(slot *frame.Slot) error {
	return s.ring.Complete(slot)
}

// Stats returns a snapshot of this session's counters.
func (s *RXSession) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	if s.ring != nil {
		occ := s.ring.Occupancy()
		st.BuffersFree = occ[frame.Free]
		st.BuffersInUse = s.ring.Capacity() - occ[frame.Free]
	}
	return st
}
