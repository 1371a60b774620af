package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/smpte2110/mtl-core/convert"
	"github.com/smpte2110/mtl-core/frame"
	"github.com/smpte2110/mtl-core/internal/xlog"
	"github.com/smpte2110/mtl-core/mtlerr"
	"github.com/smpte2110/mtl-core/nic"
	"github.com/smpte2110/mtl-core/pacing"
	"github.com/smpte2110/mtl-core/pixfmt"
	"github.com/smpte2110/mtl-core/ptp"
	"github.com/smpte2110/mtl-core/rfc4175"
	"github.com/smpte2110/mtl-core/ring"
	"github.com/smpte2110/mtl-core/rtcp"
)

// TXConfig configures one TX session.
type TXConfig struct {
	RingCapacity int
	Geo          rfc4175.Geometry
	Mode         rfc4175.Mode
	MTU          int
	PayloadType  uint8
	SSRC         uint32
	ConvertReq   convert.Request
	Pacing       pacing.Config
	DropOnLate   bool
	Queue        int
	RetainFrames int // 0 disables the NACK retransmission buffer
}

// TXSession drives Frame Ring -> Converter -> Codec -> Pacer -> NIC burst
// (§4.5).
type TXSession struct {
	lifecycle

	mu       sync.Mutex
	cfg      TXConfig
	ring     *ring.Ring
	driver   *convert.Driver
	pktz     *rfc4175.Packetizer
	pacer    *pacing.Pacer
	nicDrv   nic.Driver
	ptpSrc   ptp.Source
	nackBuf  *rtcp.NackBuffer
	cb       Callbacks
	seq      uint32
	id       string
	stats    Stats
}

// NewTXSession builds and wires a TX session's ring, converter driver,
// packetizer, and pacer from cfg.
func NewTXSession(id string, cfg TXConfig, reg *convert.Registry, nicDrv nic.Driver, ptpSrc ptp.Source, cb Callbacks) (*TXSession, error) {
	rng, err := ring.New(cfg.RingCapacity, frame.TX)
	if err != nil {
		return nil, err
	}
	drv, err := convert.NewDriver(reg, rng, cfg.ConvertReq)
	if err != nil {
		return nil, err
	}
	pktz, err := rfc4175.NewPacketizer(cfg.Mode, cfg.Geo, cfg.MTU, cfg.PayloadType, cfg.SSRC)
	if err != nil {
		return nil, err
	}
	totalPkts, err := rfc4175.TotalPackets(cfg.Mode, cfg.MTU, cfg.Geo)
	if err != nil {
		return nil, err
	}
	pacingCfg := cfg.Pacing
	pacingCfg.TotalPkts = totalPkts
	pacer := pacing.New(pacingCfg)

	var nackBuf *rtcp.NackBuffer
	if cfg.RetainFrames > 0 {
		nackBuf = rtcp.NewNackBuffer(cfg.RetainFrames)
	}

	rng.OnLate(func(slot *frame.Slot) {
		if cb.FrameLate != nil {
			cb.FrameLate(slot.Seq)
		}
	})

	return &TXSession{
		lifecycle: newLifecycle(),
		cfg:       cfg, ring: rng, driver: drv, pktz: pktz, pacer: pacer,
		nicDrv: nicDrv, ptpSrc: ptpSrc, nackBuf: nackBuf, cb: cb, id: id,
	}, nil
}

// Start transitions Created->Started.
func (s *TXSession) Start() error { return s.start() }

// Stop is async-signal-safe and idempotent (§4.5/§5): it flips the atomic
// stopped flag and broadcasts the ring's condvar so any blocked GetFrame
// returns immediately with ErrTryAgain.
func (s *TXSession) Stop() {
	s.stop()
	s.ring.Stop()
}

// Destroy transitions Stopped->Destroyed. The caller must have joined any
// worker goroutines driving this session first.
func (s *TXSession) Destroy() error {
	s.driver.Close()
	return s.destroy()
}

// GetFrame returns a Free slot, blocking up to timeout if none is free.
// timeout<=0 is a non-blocking probe. Returns ErrTryAgain immediately if
// the session has been stopped.
func (s *TXSession) GetFrame(timeout time.Duration) (*frame.Slot, error) {
	s.mu.Lock()
	s.stats.GetFrameTry++
	s.mu.Unlock()

	if s.isStopped() {
		return nil, mtlerr.ErrTryAgain
	}
	slot, err := s.ring.GetFree(timeout)
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

// PutFrame publishes a slot the application has filled via its own plane
// buffers. In derive mode (surface format == wire format) the slot moves
// directly to Converted with no pixel copy (§3 invariant); otherwise it
// moves to Ready and the converter driver is notified.
func (s *TXSession) PutFrame(slot *frame.Slot) error {
	return s.putFrameLocked(slot, false)
}

// PutExtFrame is PutFrame for a caller-owned external buffer; frame_done
// fires exactly once for this buffer when transmission completes.
func (s *TXSession) PutExtFrame(slot *frame.Slot, extBuf []byte) error {
	slot.Frame.Planes[0] = extBuf
	slot.Frame.DataSize = len(extBuf)
	return s.putFrameLocked(slot, true)
}

func (s *TXSession) putFrameLocked(slot *frame.Slot, ext bool) error {
	if err := s.ring.PublishReady(slot); err != nil {
		return err
	}
	s.mu.Lock()
	s.stats.PutFrame++
	s.mu.Unlock()
	xlog.Emit(xlog.TPFramePut, s.id, slot.Index, slot.Seq)

	if pixfmt.DeriveMode(s.cfg.ConvertReq.Input, s.cfg.ConvertReq.Output) {
		return s.ring.AdvancePhase(slot, frame.Converted)
	}
	s.driver.NotifyFrameReady()
	s.driver.Drain()
	return nil
}

// Tick drives one pacing epoch: it drains pending conversions, pulls the
// newest Converted slot (newest-wins, §4.1), checks for lateness, and if
// still on time packetizes and submits the frame to the NIC.
func (s *TXSession) Tick() error {
	s.driver.Drain()

	slot := s.ring.NextConvertedNewest()
	if slot == nil {
		return nil
	}

	taiNs := s.ptpSrc.NowNs()
	epoch := s.pacer.EpochStart(taiNs)
	if s.pacer.CheckLate(taiNs, epoch) {
		if s.cfg.DropOnLate {
			s.ring.RecycleToFree(slot)
			s.mu.Lock()
			s.stats.EpochsMissed++
			s.mu.Unlock()
			if s.cb.FrameLate != nil {
				s.cb.FrameLate(slot.Seq)
			}
			return nil
		}
	}

	rtpTs := rfc4175.TimestampFromTAI(taiNs)
	slot.Frame.RTPTimestamp = rtpTs
	packets, err := s.pktz.Packetize(slot.Frame.Planes[0][:slot.Frame.DataSize], atomic.AddUint32(&s.seq, 0), rtpTs, slot.Frame.SecondField)
	if err != nil {
		s.ring.RecycleToFree(slot)
		return err
	}
	atomic.AddUint32(&s.seq, uint32(len(packets)))

	nicPkts := make([]nic.Packet, len(packets))
	for i, p := range packets {
		raw, err := p.Marshal()
		if err != nil {
			return err
		}
		nicPkts[i] = nic.Packet{Data: raw, LaunchNs: s.pacer.TxNs(epoch, i)}
	}
	if _, err := s.nicDrv.TxBurst(s.cfg.Queue, nicPkts); err != nil {
		return err
	}
	if s.nackBuf != nil {
		s.nackBuf.Retain(rtpTs, packets)
	}

	s.mu.Lock()
	s.stats.BuffersProcessed++
	s.stats.BytesProcessed += uint64(slot.Frame.DataSize)
	s.mu.Unlock()

	xlog.Emit(xlog.TPFrameDone, s.id, slot.Index, slot.Seq)
	if s.cb.FrameDone != nil {
		s.cb.FrameDone(&slot.Frame)
	}
	return s.ring.Complete(slot)
}

// Stats returns a snapshot of this session's counters, under its lock.
func (s *TXSession) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	occ := s.ring.Occupancy()
	st := s.stats
	st.BuffersFree = occ[frame.Free]
	st.BuffersInUse = s.ring.Capacity() - occ[frame.Free]
	return st
}
