package rfc4175

import (
	"github.com/pion/rtp"

	"github.com/smpte2110/mtl-core/pixfmt"
)

// Packetizer serializes one frame's wire-format byte buffer into a slice of
// RTP packets (§4.3). A Packetizer is bound to one geometry/mode for its
// whole lifetime; sequence numbers are assigned by the caller (the TX
// session owns the 32-bit counter split across base+extension fields).
type Packetizer struct {
	mode        Mode
	geo         Geometry
	pg          pixfmt.PixelGroup
	lineBytes   int
	budget      int
	singleLine  bool
	payloadType uint8
	ssrc        uint32
}

// NewPacketizer builds a Packetizer for mode over geo, splitting payloads to
// fit within mtuPayload bytes (the UDP MTU budget minus RTP header, per §3
// Non-goals — the RTP/UDP/IP headers themselves are the NIC/socket shim's
// concern, out of scope here).
func NewPacketizer(mode Mode, geo Geometry, mtuPayload int, payloadType uint8, ssrc uint32) (*Packetizer, error) {
	pg, ok := pixfmt.Group(geo.Wire)
	if !ok || !geo.Wire.IsWire() {
		return nil, pixfmt.ErrNotWireFormat(geo.Wire)
	}
	lb, err := geo.lineBytes()
	if err != nil {
		return nil, err
	}
	budget, singleLine := payloadBudget(mode, mtuPayload, pg)
	if budget <= 0 {
		return nil, pixfmt.ErrMTUTooSmall
	}
	return &Packetizer{
		mode: mode, geo: geo, pg: pg, lineBytes: lb, budget: budget,
		singleLine: singleLine, payloadType: payloadType, ssrc: ssrc,
	}, nil
}

// segment is one (row, byteOffset, length) slice of the wire buffer that
// will become one SRD within a packet.
type segment struct {
	row    int
	offset int
	length int
}

// groupSegments lays out the whole frame's wire bytes into an ordered list
// of packet groups, each a list of row-bounded segments.
//
// In SingleLine mode a packet never crosses a scanline (§4.3: "no extra-SRD
// header"), so each row is independently chopped into budget-sized pieces
// and each piece is its own one-segment group.
//
// In BlockPacking/GeneralPacking mode a packet is filled to p.budget bytes
// regardless of row boundaries: a group accumulates segments until it hits
// the budget, and a segment ends either at the budget or at the end of a
// row, whichever comes first. A packet whose payload is drawn from more
// than one row therefore carries more than one SRD, chained via the
// Continuation flag, matching the "extra-SRD header appears whenever a
// packet crosses a scanline boundary" rule.
func (p *Packetizer) groupSegments() [][]segment {
	if p.singleLine {
		var groups [][]segment
		for row := 0; row < p.geo.Height; row++ {
			off := 0
			for off < p.lineBytes {
				n := p.lineBytes - off
				if n > p.budget {
					n = p.budget
				}
				groups = append(groups, []segment{{row: row, offset: off, length: n}})
				off += n
			}
		}
		return groups
	}

	var groups [][]segment
	var cur []segment
	used := 0
	row, off := 0, 0
	for row < p.geo.Height {
		if used == p.budget {
			groups = append(groups, cur)
			cur = nil
			used = 0
		}
		n := p.lineBytes - off
		if n > p.budget-used {
			n = p.budget - used
		}
		cur = append(cur, segment{row: row, offset: off, length: n})
		used += n
		off += n
		if off >= p.lineBytes {
			row++
			off = 0
		}
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// Packetize splits src (p.geo's full wire-format byte buffer) into RTP
// packets. baseSeq is the 32-bit sequence counter value of the first
// packet; rtpTimestamp is the frame's 90 kHz media clock value; fieldID
// marks a second-field (interlaced) frame.
func (p *Packetizer) Packetize(src []byte, baseSeq uint32, rtpTimestamp uint32, fieldID bool) ([]*rtp.Packet, error) {
	total, err := p.geo.TotalBytes()
	if err != nil {
		return nil, err
	}
	if len(src) < total {
		return nil, pixfmt.ErrNotWireFormat(p.geo.Wire)
	}

	groups := p.groupSegments()
	packets := make([]*rtp.Packet, 0, len(groups))

	for i, group := range groups {
		seq := baseSeq + uint32(i)
		payload := make([]byte, 0, p.budget+extSeqSize+2*srdHeaderSize)
		payload = append(payload, byte(seq>>24), byte(seq>>16))

		for j, s := range group {
			hdr := SRD{
				Length:       uint16(s.length),
				FieldID:      fieldID,
				RowNumber:    uint16(s.row),
				Continuation: j < len(group)-1,
				RowOffset:    uint16(s.offset),
			}
			enc := encodeSRD(hdr)
			payload = append(payload, enc[:]...)
			start := s.row*p.lineBytes + s.offset
			payload = append(payload, src[start:start+s.length]...)
		}

		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(groups)-1,
				PayloadType:    p.payloadType,
				SequenceNumber: uint16(seq),
				Timestamp:      rtpTimestamp,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}
