// Package rtcp implements the optional RFC 4585 NACK-based retransmission
// feature (§6): an auxiliary buffer retains the last K frames' packets, and
// on a TransportLayerNack receipt the packets matching the lost sequence
// numbers are returned for the caller to resend; this package sends nothing.
package rtcp

import (
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// NackBuffer retains recently transmitted packets keyed by sequence number
// so a TransportLayerNack can be served without re-running the codec.
type NackBuffer struct {
	mu         sync.Mutex
	maxFrames  int
	frameOrder []uint32
	frames     map[uint32][]*rtp.Packet
	bySeq      map[uint16]*rtp.Packet
}

// NewNackBuffer retains packets for up to maxFrames distinct RTP
// timestamps before evicting the oldest.
func NewNackBuffer(maxFrames int) *NackBuffer {
	if maxFrames < 1 {
		maxFrames = 1
	}
	return &NackBuffer{
		maxFrames: maxFrames,
		frames:    map[uint32][]*rtp.Packet{},
		bySeq:     map[uint16]*rtp.Packet{},
	}
}

// Retain records one frame's packets, keyed by its RTP timestamp.
func (b *NackBuffer) Retain(ts uint32, packets []*rtp.Packet) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.frames[ts]; !exists {
		b.frameOrder = append(b.frameOrder, ts)
	}
	b.frames[ts] = packets
	for _, p := range packets {
		b.bySeq[p.Header.SequenceNumber] = p
	}

	for len(b.frameOrder) > b.maxFrames {
		evictTs := b.frameOrder[0]
		b.frameOrder = b.frameOrder[1:]
		for _, p := range b.frames[evictTs] {
			delete(b.bySeq, p.Header.SequenceNumber)
		}
		delete(b.frames, evictTs)
	}
}

// HandleNack resolves a received TransportLayerNack against the buffer,
// returning the retained packets that should be resent. Sequence numbers
// for which no packet is retained (already evicted, or never sent on this
// port) are silently skipped.
func (b *NackBuffer) HandleNack(nack *rtcp.TransportLayerNack) []*rtp.Packet {
	b.mu.Lock()
	defer b.mu.Unlock()

	var resend []*rtp.Packet
	for _, pair := range nack.Nacks {
		for _, seq := range pair.PacketList() {
			if p, ok := b.bySeq[seq]; ok {
				resend = append(resend, p)
			}
		}
	}
	return resend
}

// Len reports how many distinct frames are currently retained.
func (b *NackBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frameOrder)
}
