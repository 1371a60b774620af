// Package pacing implements the ST 2110-21 pacer (§4.4): epoch alignment,
// narrow/wide per-packet transmit-time computation, the VRX bucket, and the
// late-frame drop policy. The resync/maxWait/drop shape follows the
// teacher's PTS-based internal pacer; the epoch and VRX math are new.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/smpte2110/mtl-core/internal/xlog"
)

// Method selects how the pacer hands packets to the NIC (§4.4).
type Method uint8

const (
	RL Method = iota
	TSC
	TSN
)

// Profile is an ST 2110-21 timing profile: the fraction of T_frame
// reserved before the first packet of a frame may be transmitted.
type Profile struct {
	Name          string
	TrOffsetFrac  float64
}

var (
	NarrowProfile = Profile{Name: "narrow", TrOffsetFrac: 43.0 / 1125.0}
	WideProfile   = Profile{Name: "wide", TrOffsetFrac: 20.0 / 1125.0}
)

// ProfileFor selects narrow or wide by height, per the §4.4 "table by
// (height, fps)" - in practice ST 2110-21 keys off the active line count;
// 1080-line and taller formats use the narrow profile tolerance, smaller
// formats use wide.
func ProfileFor(height int, fps float64) Profile {
	if height >= 1080 {
		return NarrowProfile
	}
	return WideProfile
}

// Config configures one Pacer instance.
type Config struct {
	FPS         float64
	TotalPkts   int
	Profile     Profile
	Method      Method
	LinkRateBps float64 // line-rate bits/sec, used by the VRX bucket
	VRXStartNs  int64   // start-VRX bias; default 0 per §9 Open Questions
	PacketBytes int     // nominal packet size, used to size the RL limiter burst
}

// Pacer computes per-packet transmit epochs and tracks the VRX bucket and
// late-frame statistics for one TX session.
type Pacer struct {
	cfg      Config
	tFrameNs int64
	trOffNs  int64
	ttrsNs   int64

	limiter *rate.Limiter

	vrx int64

	EpochsMissed int
}

// New builds a Pacer from cfg. TotalPkts and FPS must be positive.
func New(cfg Config) *Pacer {
	tFrameNs := int64(float64(time.Second) / cfg.FPS)
	trOffNs := int64(float64(tFrameNs) * cfg.Profile.TrOffsetFrac)
	ttrsNs := int64(float64(tFrameNs-trOffNs) / float64(cfg.TotalPkts))

	p := &Pacer{
		cfg: cfg, tFrameNs: tFrameNs, trOffNs: trOffNs, ttrsNs: ttrsNs,
		vrx: cfg.VRXStartNs,
	}
	if cfg.Method == RL && cfg.LinkRateBps > 0 {
		packetsPerSec := cfg.LinkRateBps / float64(cfg.PacketBytes*8)
		p.limiter = rate.NewLimiter(rate.Limit(packetsPerSec), cfg.TotalPkts)
	}
	return p
}

// EpochStart returns the PTP-aligned frame epoch boundary at or after
// taiNs: ceil(taiNs / T_frame) * T_frame.
func (p *Pacer) EpochStart(taiNs uint64) uint64 {
	tf := uint64(p.tFrameNs)
	return ((taiNs + tf - 1) / tf) * tf
}

// TxNs returns the transmit epoch, in TAI nanoseconds, for packet index k
// (0-based) within the frame whose epoch starts at epochStartNs.
func (p *Pacer) TxNs(epochStartNs uint64, k int) uint64 {
	return epochStartNs + uint64(p.trOffNs) + uint64(k)*uint64(p.ttrsNs)
}

// Ttrs returns the inter-packet transmit spacing for this pacer's profile.
func (p *Pacer) Ttrs() time.Duration { return time.Duration(p.ttrsNs) }

// WaitRL blocks, when the Method is RL, until the rate limiter admits the
// next packet; it is a no-op for TSC/TSN (those methods attach a launch
// time to the NIC descriptor instead of blocking here).
func (p *Pacer) WaitRL(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// UpdateVRX decrements the VRX bucket by the nominal drain rate for one
// T_trs interval minus the bits the just-sent packet actually occupied
// (§4.4: "decrements by T_trs * link_rate - packet_bytes * 8").
func (p *Pacer) UpdateVRX(packetBytes int) int64 {
	drain := int64(float64(p.ttrsNs) / float64(time.Second) * p.cfg.LinkRateBps)
	p.vrx -= drain - int64(packetBytes*8)
	return p.vrx
}

// VRX returns the current bucket value.
func (p *Pacer) VRX() int64 { return p.vrx }

// CheckLate reports whether wallNowNs exceeds epochStartNs by more than one
// T_trs - the late-frame condition in §4.4 - and increments EpochsMissed if
// so. Callers combine this with the Frame Ring's DropLate when the session
// is configured drop-on-late.
func (p *Pacer) CheckLate(wallNowNs, epochStartNs uint64) bool {
	if wallNowNs <= epochStartNs {
		return false
	}
	late := wallNowNs - epochStartNs
	if int64(late) <= p.ttrsNs {
		return false
	}
	p.EpochsMissed++
	xlog.DebugLog("pacing: epoch missed by %dns (epoch=%d now=%d)\n", late, epochStartNs, wallNowNs)
	return true
}
