// Package rfc4175 implements the RFC 4175 RTP payload codec (§4.3): it
// packetizes a frame's wire-format bytes into RTP packets carrying one or
// more Sample Row Data (SRD) headers, and depacketizes the reverse,
// reassembling frames keyed by RTP timestamp. Surface<->wire pixel-format
// conversion is deliberately not this package's job — that is the
// convert.Driver's, wired symmetrically on TX and RX around the wire-format
// bytes this codec produces and consumes.
package rfc4175

import (
	"github.com/smpte2110/mtl-core/pixfmt"
)

// Mode is the packing mode selected at session creation (§4.3).
type Mode uint8

const (
	SingleLine Mode = iota
	BlockPacking
	GeneralPacking
)

func (m Mode) String() string {
	switch m {
	case SingleLine:
		return "GPM_SL"
	case BlockPacking:
		return "BPM"
	case GeneralPacking:
		return "GPM"
	default:
		return "unknown"
	}
}

// blockPackingPayload is the fixed BPM payload size mandated by §4.3.
const blockPackingPayload = 1260

// srdHeaderSize is the wire size, in bytes, of one SRD header: Length(2) +
// FieldID|RowNumber(2) + Continuation|RowOffset(2).
const srdHeaderSize = 6

// extSeqSize is the wire size of the leading Extended Sequence Number
// field that rides at the start of every RFC 4175 payload.
const extSeqSize = 2

// Geometry bundles the dimensions and wire pixel-group shared by the
// packetizer and depacketizer for one session.
type Geometry struct {
	Width, Height int
	Wire          pixfmt.Format
}

// lineBytes returns the packed byte length of one scanline in g.Wire.
func (g Geometry) lineBytes() (int, error) {
	pg, ok := pixfmt.Group(g.Wire)
	if !ok || !g.Wire.IsWire() {
		return 0, pixfmt.ErrNotWireFormat(g.Wire)
	}
	if g.Width%pg.Coverage != 0 {
		return 0, pixfmt.ErrNotWireFormat(g.Wire)
	}
	return (g.Width / pg.Coverage) * pg.Size, nil
}

// TotalBytes returns the packed byte length of a full frame in g.Wire.
func (g Geometry) TotalBytes() (int, error) {
	lb, err := g.lineBytes()
	if err != nil {
		return 0, err
	}
	return lb * g.Height, nil
}

// payloadBudget returns the maximum payload bytes (excluding extSeq and SRD
// headers) a packet may carry under mode for this geometry, and whether a
// single packet is forbidden from spanning more than one scanline.
func payloadBudget(mode Mode, mtuPayload int, pg pixfmt.PixelGroup) (budget int, singleLineOnly bool) {
	switch mode {
	case SingleLine:
		budget = mtuPayload - extSeqSize - srdHeaderSize
		singleLineOnly = true
	case BlockPacking:
		budget = blockPackingPayload
		singleLineOnly = false
	case GeneralPacking:
		budget = mtuPayload - extSeqSize - 2*srdHeaderSize
		singleLineOnly = false
	}
	if pg.Size > 0 {
		budget -= budget % pg.Size
	}
	return budget, singleLineOnly
}

// TotalPackets computes the packet count a Packetize call over this
// geometry and mode will produce, matching §4.3's analytic formulas.
func TotalPackets(mode Mode, mtuPayload int, g Geometry) (int, error) {
	pg, ok := pixfmt.Group(g.Wire)
	if !ok {
		return 0, pixfmt.ErrNotWireFormat(g.Wire)
	}
	lb, err := g.lineBytes()
	if err != nil {
		return 0, err
	}
	budget, singleLineOnly := payloadBudget(mode, mtuPayload, pg)
	if budget <= 0 {
		return 0, pixfmt.ErrMTUTooSmall
	}
	if singleLineOnly {
		pktsPerLine := ceilDiv(lb, budget)
		return pktsPerLine * g.Height, nil
	}
	total, err := g.TotalBytes()
	if err != nil {
		return 0, err
	}
	return ceilDiv(total, budget), nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// TimestampFromTAI converts a TAI nanosecond instant to the 32-bit modular
// 90 kHz RTP media clock value per §4.3.
func TimestampFromTAI(taiNs uint64) uint32 {
	return uint32((taiNs * 90000 / 1_000_000_000) & 0xFFFFFFFF)
}
