package rtcp

import (
	"testing"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

func mkPacket(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}
}

func TestHandleNackResendsRetainedPackets(t *testing.T) {
	buf := NewNackBuffer(4)
	buf.Retain(100, []*rtp.Packet{mkPacket(10), mkPacket(11), mkPacket(12)})

	nack := &rtcp.TransportLayerNack{
		Nacks: []rtcp.NackPair{{PacketID: 11}},
	}
	resend := buf.HandleNack(nack)
	if len(resend) != 1 || resend[0].Header.SequenceNumber != 11 {
		t.Fatalf("HandleNack = %+v, want [seq 11]", resend)
	}
}

func TestRetainEvictsOldestBeyondMaxFrames(t *testing.T) {
	buf := NewNackBuffer(2)
	buf.Retain(1, []*rtp.Packet{mkPacket(1)})
	buf.Retain(2, []*rtp.Packet{mkPacket(2)})
	buf.Retain(3, []*rtp.Packet{mkPacket(3)})

	if buf.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", buf.Len())
	}
	nack := &rtcp.TransportLayerNack{Nacks: []rtcp.NackPair{{PacketID: 1}}}
	if resend := buf.HandleNack(nack); len(resend) != 0 {
		t.Fatalf("evicted packet should not resend, got %+v", resend)
	}
}
