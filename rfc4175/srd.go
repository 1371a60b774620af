package rfc4175

// SRD is one Sample Row Data header: the per-packet descriptor of which
// row, byte offset, and byte length a payload segment covers (§4.3).
type SRD struct {
	Length       uint16 // payload byte length of this segment
	FieldID      bool   // second-field flag, top bit of RowNumber
	RowNumber    uint16 // 15-bit scanline index
	Continuation bool   // Continuation flag, top bit of RowOffset
	RowOffset    uint16 // 15-bit byte offset of the first sample in the row
}

func encodeSRD(h SRD) [srdHeaderSize]byte {
	var b [srdHeaderSize]byte
	b[0] = byte(h.Length >> 8)
	b[1] = byte(h.Length)

	row := h.RowNumber & 0x7FFF
	if h.FieldID {
		row |= 0x8000
	}
	b[2] = byte(row >> 8)
	b[3] = byte(row)

	off := h.RowOffset & 0x7FFF
	if h.Continuation {
		off |= 0x8000
	}
	b[4] = byte(off >> 8)
	b[5] = byte(off)
	return b
}

func decodeSRD(b []byte) SRD {
	length := uint16(b[0])<<8 | uint16(b[1])
	rowWord := uint16(b[2])<<8 | uint16(b[3])
	offWord := uint16(b[4])<<8 | uint16(b[5])
	return SRD{
		Length:       length,
		FieldID:      rowWord&0x8000 != 0,
		RowNumber:    rowWord & 0x7FFF,
		Continuation: offWord&0x8000 != 0,
		RowOffset:    offWord & 0x7FFF,
	}
}
