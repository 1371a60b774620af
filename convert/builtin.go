package convert

import (
	"encoding/binary"
	"fmt"

	"github.com/smpte2110/mtl-core/pixfmt"
)

// builtinTable is the internal converter fallback from §4.2: implemented
// without hardware assist, covering the nine enumerated surface/wire pairs.
// Conversion is pure on (input plane pointers, output plane pointers,
// width, height); round-trip conversion at 10/12 bit is lossless.
type builtinTable struct{}

func newBuiltinTable() *builtinTable { return &builtinTable{} }

type pairKey struct{ in, out pixfmt.Format }

func (t *builtinTable) supports(input, output pixfmt.Format) bool {
	_, ok := builtinFuncs[pairKey{input, output}]
	return ok
}

func (t *builtinTable) convert(input, output pixfmt.Format, width, height int, src []byte) ([]byte, error) {
	fn, ok := builtinFuncs[pairKey{input, output}]
	if !ok {
		return nil, fmt.Errorf("convert: unsupported pair %s -> %s", input, output)
	}
	return fn(width, height, src)
}

type convertFunc func(width, height int, src []byte) ([]byte, error)

var builtinFuncs map[pairKey]convertFunc

func init() {
	builtinFuncs = map[pairKey]convertFunc{
		{pixfmt.YUV422P10LE, pixfmt.RFC4175_422_10_PG2_BE}: yuv422p10leToPG2BE10,
		{pixfmt.RFC4175_422_10_PG2_BE, pixfmt.YUV422P10LE}: pg2BE10ToYUV422P10LE,
		{pixfmt.YUV422P12LE, pixfmt.RFC4175_422_12_PG2_BE}: yuv422p12leToPG2BE12,
		{pixfmt.RFC4175_422_12_PG2_BE, pixfmt.YUV422P12LE}: pg2BE12ToYUV422P12LE,
		{pixfmt.GBRP10LE, pixfmt.RFC4175_RGB_10_PG4_BE}:     gbrp10leToRGBPG4BE10,
		{pixfmt.RFC4175_RGB_10_PG4_BE, pixfmt.GBRP10LE}:     rgbPG4BE10ToGBRP10LE,
		{pixfmt.GBRP12LE, pixfmt.RFC4175_RGB_12_PG2_BE}:     gbrp12leToRGBPG2BE12,
		{pixfmt.RFC4175_RGB_12_PG2_BE, pixfmt.GBRP12LE}:     rgbPG2BE12ToGBRP12LE,
		{pixfmt.YUV444P10LE, pixfmt.RFC4175_444_10_PG4_BE}:  yuv444p10leToPG4BE10,
		{pixfmt.RFC4175_444_10_PG4_BE, pixfmt.YUV444P10LE}:  pg4BE10ToYUV444P10LE,
		{pixfmt.YUV444P12LE, pixfmt.RFC4175_444_12_PG2_BE}:  yuv444p12leToPG2BE12,
		{pixfmt.RFC4175_444_12_PG2_BE, pixfmt.YUV444P12LE}:  pg2BE12ToYUV444P12LE,
		{pixfmt.UYVY, pixfmt.RFC4175_422_10_PG2_BE}:         uyvyToPG2BE10Lossy,
		{pixfmt.RFC4175_422_10_PG2_BE, pixfmt.UYVY}:         pg2BE10ToUYVYLossy,
		{pixfmt.RFC4175_422_10_PG2_BE, pixfmt.YUV422P}:      pg2BE10ToYUV422PLossy,
		{pixfmt.RFC4175_422_10_PG2_BE, pixfmt.YUV420P}:      pg2BE10ToYUV420PLossy,
	}
}

// --- generic bit packing helpers ---------------------------------------
//
// RFC 4175 packs samples MSB-first into a big-endian bitstream with no gaps
// between samples of the same bit width (10-bit groups therefore pack N
// samples into ceil(10*N/8) bytes with zero trailer bits whenever N is a
// multiple of 4; 12-bit samples pack two per three bytes exactly, per §4.2).

// packBits10 packs n 10-bit samples MSB-first into a big-endian bitstream.
func packBits10(samples []uint16) []byte {
	out := make([]byte, (len(samples)*10+7)/8)
	bitPos := 0
	for _, s := range samples {
		v := uint32(s & 0x3FF)
		for b := 9; b >= 0; b-- {
			bit := (v >> uint(b)) & 1
			byteIdx := bitPos / 8
			shift := 7 - uint(bitPos%8)
			out[byteIdx] |= byte(bit << shift)
			bitPos++
		}
	}
	return out
}

// unpackBits10 unpacks n 10-bit samples MSB-first from a big-endian
// bitstream.
func unpackBits10(data []byte, n int) []uint16 {
	out := make([]uint16, n)
	bitPos := 0
	for i := 0; i < n; i++ {
		var v uint32
		for b := 0; b < 10; b++ {
			byteIdx := bitPos / 8
			shift := 7 - uint(bitPos%8)
			bit := (data[byteIdx] >> shift) & 1
			v = (v << 1) | uint32(bit)
			bitPos++
		}
		out[i] = uint16(v)
	}
	return out
}

// packBits12 packs n 12-bit samples MSB-first (two samples per three
// bytes, exactly, per §4.2: "12-bit groups pack two pixels into 3 bytes
// each component big-endian").
func packBits12(samples []uint16) []byte {
	out := make([]byte, (len(samples)*12+7)/8)
	bitPos := 0
	for _, s := range samples {
		v := uint32(s & 0xFFF)
		for b := 11; b >= 0; b-- {
			bit := (v >> uint(b)) & 1
			byteIdx := bitPos / 8
			shift := 7 - uint(bitPos%8)
			out[byteIdx] |= byte(bit << shift)
			bitPos++
		}
	}
	return out
}

func unpackBits12(data []byte, n int) []uint16 {
	out := make([]uint16, n)
	bitPos := 0
	for i := 0; i < n; i++ {
		var v uint32
		for b := 0; b < 12; b++ {
			byteIdx := bitPos / 8
			shift := 7 - uint(bitPos%8)
			bit := (data[byteIdx] >> shift) & 1
			v = (v << 1) | uint32(bit)
			bitPos++
		}
		out[i] = uint16(v)
	}
	return out
}

func le16Slice(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return out
}

func toLE16Bytes(v []uint16) []byte {
	out := make([]byte, len(v)*2)
	for i, s := range v {
		binary.LittleEndian.PutUint16(out[i*2:], s)
	}
	return out
}

// --- YUV422P10LE <-> 422-10-pg2-be --------------------------------------
//
// Component order per pixel group (2 pixels): Cb, Y0, Cr, Y1. The surface
// planes are laid out Y, U(Cb), V(Cr), each 10-bit little-endian samples,
// chroma subsampled 2:1 horizontally.

func yuv422p10leToPG2BE10(width, height int, src []byte) ([]byte, error) {
	ySize := width * height * 2
	cSize := (width / 2) * height * 2
	if len(src) < ySize+2*cSize {
		return nil, fmt.Errorf("convert: short YUV422P10LE input")
	}
	y := le16Slice(src[:ySize])
	u := le16Slice(src[ySize : ySize+cSize])
	v := le16Slice(src[ySize+cSize : ySize+2*cSize])

	groupsPerLine := width / 2
	out := make([]byte, 0, height*groupsPerLine*5)
	for row := 0; row < height; row++ {
		yRow := y[row*width : (row+1)*width]
		uRow := u[row*groupsPerLine : (row+1)*groupsPerLine]
		vRow := v[row*groupsPerLine : (row+1)*groupsPerLine]
		for g := 0; g < groupsPerLine; g++ {
			samples := []uint16{uRow[g], yRow[g*2], vRow[g], yRow[g*2+1]}
			out = append(out, packBits10(samples)...)
		}
	}
	return out, nil
}

func pg2BE10ToYUV422P10LE(width, height int, src []byte) ([]byte, error) {
	groupsPerLine := width / 2
	groupBytes := 5
	expect := height * groupsPerLine * groupBytes
	if len(src) < expect {
		return nil, fmt.Errorf("convert: short 422-10-pg2-be input")
	}

	y := make([]uint16, width*height)
	u := make([]uint16, groupsPerLine*height)
	v := make([]uint16, groupsPerLine*height)

	off := 0
	for row := 0; row < height; row++ {
		for g := 0; g < groupsPerLine; g++ {
			samples := unpackBits10(src[off:off+groupBytes], 4)
			off += groupBytes
			u[row*groupsPerLine+g] = samples[0]
			y[row*width+g*2] = samples[1]
			v[row*groupsPerLine+g] = samples[2]
			y[row*width+g*2+1] = samples[3]
		}
	}
	out := append([]byte{}, toLE16Bytes(y)...)
	out = append(out, toLE16Bytes(u)...)
	out = append(out, toLE16Bytes(v)...)
	return out, nil
}

// --- YUV422P12LE <-> 422-12-pg2-be --------------------------------------

func yuv422p12leToPG2BE12(width, height int, src []byte) ([]byte, error) {
	ySize := width * height * 2
	cSize := (width / 2) * height * 2
	if len(src) < ySize+2*cSize {
		return nil, fmt.Errorf("convert: short YUV422P12LE input")
	}
	y := le16Slice(src[:ySize])
	u := le16Slice(src[ySize : ySize+cSize])
	v := le16Slice(src[ySize+cSize : ySize+2*cSize])

	groupsPerLine := width / 2
	out := make([]byte, 0, height*groupsPerLine*6)
	for row := 0; row < height; row++ {
		yRow := y[row*width : (row+1)*width]
		uRow := u[row*groupsPerLine : (row+1)*groupsPerLine]
		vRow := v[row*groupsPerLine : (row+1)*groupsPerLine]
		for g := 0; g < groupsPerLine; g++ {
			samples := []uint16{uRow[g], yRow[g*2], vRow[g], yRow[g*2+1]}
			out = append(out, packBits12(samples)...)
		}
	}
	return out, nil
}

func pg2BE12ToYUV422P12LE(width, height int, src []byte) ([]byte, error) {
	groupsPerLine := width / 2
	groupBytes := 6
	expect := height * groupsPerLine * groupBytes
	if len(src) < expect {
		return nil, fmt.Errorf("convert: short 422-12-pg2-be input")
	}

	y := make([]uint16, width*height)
	u := make([]uint16, groupsPerLine*height)
	v := make([]uint16, groupsPerLine*height)

	off := 0
	for row := 0; row < height; row++ {
		for g := 0; g < groupsPerLine; g++ {
			samples := unpackBits12(src[off:off+groupBytes], 4)
			off += groupBytes
			u[row*groupsPerLine+g] = samples[0]
			y[row*width+g*2] = samples[1]
			v[row*groupsPerLine+g] = samples[2]
			y[row*width+g*2+1] = samples[3]
		}
	}
	out := append([]byte{}, toLE16Bytes(y)...)
	out = append(out, toLE16Bytes(u)...)
	out = append(out, toLE16Bytes(v)...)
	return out, nil
}

// --- GBRP10LE <-> RGB-10-pg4-be -----------------------------------------
//
// Four pixels of three 10-bit components (G, B, R) pack into fifteen bytes:
// three consecutive 5-byte sub-groups, each packing four components.

func gbrp10leToRGBPG4BE10(width, height int, src []byte) ([]byte, error) {
	planeSize := width * height * 2
	if len(src) < 3*planeSize {
		return nil, fmt.Errorf("convert: short GBRP10LE input")
	}
	g := le16Slice(src[:planeSize])
	b := le16Slice(src[planeSize : 2*planeSize])
	r := le16Slice(src[2*planeSize : 3*planeSize])

	out := make([]byte, 0, height*(width/4)*15)
	for row := 0; row < height; row++ {
		base := row * width
		for px := 0; px+4 <= width; px += 4 {
			var samples []uint16
			for i := 0; i < 4; i++ {
				samples = append(samples, g[base+px+i], b[base+px+i], r[base+px+i])
			}
			out = append(out, packBits10(samples)...)
		}
	}
	return out, nil
}

func rgbPG4BE10ToGBRP10LE(width, height int, src []byte) ([]byte, error) {
	groupsPerLine := width / 4
	groupBytes := 15
	expect := height * groupsPerLine * groupBytes
	if len(src) < expect {
		return nil, fmt.Errorf("convert: short RGB-10-pg4-be input")
	}
	g := make([]uint16, width*height)
	b := make([]uint16, width*height)
	r := make([]uint16, width*height)

	off := 0
	for row := 0; row < height; row++ {
		base := row * width
		for gi := 0; gi < groupsPerLine; gi++ {
			samples := unpackBits10(src[off:off+groupBytes], 12)
			off += groupBytes
			for i := 0; i < 4; i++ {
				g[base+gi*4+i] = samples[i*3]
				b[base+gi*4+i] = samples[i*3+1]
				r[base+gi*4+i] = samples[i*3+2]
			}
		}
	}
	out := append([]byte{}, toLE16Bytes(g)...)
	out = append(out, toLE16Bytes(b)...)
	out = append(out, toLE16Bytes(r)...)
	return out, nil
}

// --- GBRP12LE <-> RGB-12-pg2-be -----------------------------------------
//
// Two pixels of three 12-bit components pack into nine bytes (matching the
// pixel group table's {Coverage:2, Size:9}).

func gbrp12leToRGBPG2BE12(width, height int, src []byte) ([]byte, error) {
	planeSize := width * height * 2
	if len(src) < 3*planeSize {
		return nil, fmt.Errorf("convert: short GBRP12LE input")
	}
	g := le16Slice(src[:planeSize])
	b := le16Slice(src[planeSize : 2*planeSize])
	r := le16Slice(src[2*planeSize : 3*planeSize])

	out := make([]byte, 0, height*(width/2)*9)
	for row := 0; row < height; row++ {
		base := row * width
		for px := 0; px+2 <= width; px += 2 {
			samples := []uint16{
				g[base+px], b[base+px], r[base+px],
				g[base+px+1], b[base+px+1], r[base+px+1],
			}
			out = append(out, packBits12(samples)...)
		}
	}
	return out, nil
}

func rgbPG2BE12ToGBRP12LE(width, height int, src []byte) ([]byte, error) {
	groupsPerLine := width / 2
	groupBytes := 9
	expect := height * groupsPerLine * groupBytes
	if len(src) < expect {
		return nil, fmt.Errorf("convert: short RGB-12-pg2-be input")
	}
	g := make([]uint16, width*height)
	b := make([]uint16, width*height)
	r := make([]uint16, width*height)

	off := 0
	for row := 0; row < height; row++ {
		base := row * width
		for gi := 0; gi < groupsPerLine; gi++ {
			samples := unpackBits12(src[off:off+groupBytes], 6)
			off += groupBytes
			for i := 0; i < 2; i++ {
				g[base+gi*2+i] = samples[i*3]
				b[base+gi*2+i] = samples[i*3+1]
				r[base+gi*2+i] = samples[i*3+2]
			}
		}
	}
	out := append([]byte{}, toLE16Bytes(g)...)
	out = append(out, toLE16Bytes(b)...)
	out = append(out, toLE16Bytes(r)...)
	return out, nil
}

// --- YUV444P10LE <-> 444-10-pg4-be --------------------------------------
//
// Four pixels of three 10-bit components (Y, Cb, Cr) pack into fifteen
// bytes, same sub-grouping shape as the RGB-10 pair above.

func yuv444p10leToPG4BE10(width, height int, src []byte) ([]byte, error) {
	planeSize := width * height * 2
	if len(src) < 3*planeSize {
		return nil, fmt.Errorf("convert: short YUV444P10LE input")
	}
	y := le16Slice(src[:planeSize])
	u := le16Slice(src[planeSize : 2*planeSize])
	v := le16Slice(src[2*planeSize : 3*planeSize])

	out := make([]byte, 0, height*(width/4)*15)
	for row := 0; row < height; row++ {
		base := row * width
		for px := 0; px+4 <= width; px += 4 {
			var samples []uint16
			for i := 0; i < 4; i++ {
				samples = append(samples, y[base+px+i], u[base+px+i], v[base+px+i])
			}
			out = append(out, packBits10(samples)...)
		}
	}
	return out, nil
}

func pg4BE10ToYUV444P10LE(width, height int, src []byte) ([]byte, error) {
	groupsPerLine := width / 4
	groupBytes := 15
	expect := height * groupsPerLine * groupBytes
	if len(src) < expect {
		return nil, fmt.Errorf("convert: short 444-10-pg4-be input")
	}
	y := make([]uint16, width*height)
	u := make([]uint16, width*height)
	v := make([]uint16, width*height)

	off := 0
	for row := 0; row < height; row++ {
		base := row * width
		for gi := 0; gi < groupsPerLine; gi++ {
			samples := unpackBits10(src[off:off+groupBytes], 12)
			off += groupBytes
			for i := 0; i < 4; i++ {
				y[base+gi*4+i] = samples[i*3]
				u[base+gi*4+i] = samples[i*3+1]
				v[base+gi*4+i] = samples[i*3+2]
			}
		}
	}
	out := append([]byte{}, toLE16Bytes(y)...)
	out = append(out, toLE16Bytes(u)...)
	out = append(out, toLE16Bytes(v)...)
	return out, nil
}

// --- YUV444P12LE <-> 444-12-pg2-be --------------------------------------
//
// Two pixels of three 12-bit components pack into nine bytes, same shape as
// the RGB-12 pair above.

func yuv444p12leToPG2BE12(width, height int, src []byte) ([]byte, error) {
	planeSize := width * height * 2
	if len(src) < 3*planeSize {
		return nil, fmt.Errorf("convert: short YUV444P12LE input")
	}
	y := le16Slice(src[:planeSize])
	u := le16Slice(src[planeSize : 2*planeSize])
	v := le16Slice(src[2*planeSize : 3*planeSize])

	out := make([]byte, 0, height*(width/2)*9)
	for row := 0; row < height; row++ {
		base := row * width
		for px := 0; px+2 <= width; px += 2 {
			samples := []uint16{
				y[base+px], u[base+px], v[base+px],
				y[base+px+1], u[base+px+1], v[base+px+1],
			}
			out = append(out, packBits12(samples)...)
		}
	}
	return out, nil
}

func pg2BE12ToYUV444P12LE(width, height int, src []byte) ([]byte, error) {
	groupsPerLine := width / 2
	groupBytes := 9
	expect := height * groupsPerLine * groupBytes
	if len(src) < expect {
		return nil, fmt.Errorf("convert: short 444-12-pg2-be input")
	}
	y := make([]uint16, width*height)
	u := make([]uint16, width*height)
	v := make([]uint16, width*height)

	off := 0
	for row := 0; row < height; row++ {
		base := row * width
		for gi := 0; gi < groupsPerLine; gi++ {
			samples := unpackBits12(src[off:off+groupBytes], 6)
			off += groupBytes
			for i := 0; i < 2; i++ {
				y[base+gi*2+i] = samples[i*3]
				u[base+gi*2+i] = samples[i*3+1]
				v[base+gi*2+i] = samples[i*3+2]
			}
		}
	}
	out := append([]byte{}, toLE16Bytes(y)...)
	out = append(out, toLE16Bytes(u)...)
	out = append(out, toLE16Bytes(v)...)
	return out, nil
}

// --- UYVY -> 422-10-pg2-be (lossy, 8-bit source) ------------------------
//
// UYVY carries 8-bit samples; converting to the 10-bit wire format widens
// each sample by two zero low bits (the reverse direction would drop the
// lowest two bits, per §4.2 "lossy: lowest 2 bits dropped").

func uyvyToPG2BE10Lossy(width, height int, src []byte) ([]byte, error) {
	expect := width * height * 2
	if len(src) < expect {
		return nil, fmt.Errorf("convert: short UYVY input")
	}
	groupsPerLine := width / 2
	out := make([]byte, 0, height*groupsPerLine*5)
	for row := 0; row < height; row++ {
		line := src[row*width*2 : (row+1)*width*2]
		for g := 0; g < groupsPerLine; g++ {
			o := g * 4
			u8, y0, v8, y1 := line[o], line[o+1], line[o+2], line[o+3]
			samples := []uint16{
				uint16(u8) << 2, uint16(y0) << 2, uint16(v8) << 2, uint16(y1) << 2,
			}
			out = append(out, packBits10(samples)...)
		}
	}
	return out, nil
}

// --- RFC4175_422_10_PG2_BE -> UYVY/YUV422P/YUV420P (lossy, decode) ------
//
// The three lossy 8-bit downconversions from the wire format (§4.2): each
// drops the lowest two bits of every sample. UYVY and YUV422P keep the
// wire's native 4:2:2 chroma siting; YUV420P additionally halves the
// chroma vertically by averaging adjacent row pairs.

func pg2BE10ToUYVYLossy(width, height int, src []byte) ([]byte, error) {
	groupsPerLine := width / 2
	groupBytes := 5
	expect := height * groupsPerLine * groupBytes
	if len(src) < expect {
		return nil, fmt.Errorf("convert: short 422-10-pg2-be input")
	}
	out := make([]byte, 0, height*width*2)
	off := 0
	for row := 0; row < height; row++ {
		for g := 0; g < groupsPerLine; g++ {
			samples := unpackBits10(src[off:off+groupBytes], 4)
			off += groupBytes
			out = append(out, byte(samples[0]>>2), byte(samples[1]>>2), byte(samples[2]>>2), byte(samples[3]>>2))
		}
	}
	return out, nil
}

func pg2BE10ToYUV422PLossy(width, height int, src []byte) ([]byte, error) {
	groupsPerLine := width / 2
	groupBytes := 5
	expect := height * groupsPerLine * groupBytes
	if len(src) < expect {
		return nil, fmt.Errorf("convert: short 422-10-pg2-be input")
	}
	y := make([]byte, width*height)
	u := make([]byte, groupsPerLine*height)
	v := make([]byte, groupsPerLine*height)

	off := 0
	for row := 0; row < height; row++ {
		for g := 0; g < groupsPerLine; g++ {
			samples := unpackBits10(src[off:off+groupBytes], 4)
			off += groupBytes
			u[row*groupsPerLine+g] = byte(samples[0] >> 2)
			y[row*width+g*2] = byte(samples[1] >> 2)
			v[row*groupsPerLine+g] = byte(samples[2] >> 2)
			y[row*width+g*2+1] = byte(samples[3] >> 2)
		}
	}
	out := append([]byte{}, y...)
	out = append(out, u...)
	out = append(out, v...)
	return out, nil
}

func pg2BE10ToYUV420PLossy(width, height int, src []byte) ([]byte, error) {
	full, err := pg2BE10ToYUV422PLossy(width, height, src)
	if err != nil {
		return nil, err
	}
	ySize := width * height
	cW := width / 2
	cSize422 := cW * height
	y := full[:ySize]
	u422 := full[ySize : ySize+cSize422]
	v422 := full[ySize+cSize422 : ySize+2*cSize422]

	cH := height / 2
	u420 := make([]byte, cW*cH)
	v420 := make([]byte, cW*cH)
	for row := 0; row < cH; row++ {
		top, bot := row*2, row*2+1
		for col := 0; col < cW; col++ {
			u420[row*cW+col] = byte((int(u422[top*cW+col]) + int(u422[bot*cW+col]) + 1) / 2)
			v420[row*cW+col] = byte((int(v422[top*cW+col]) + int(v422[bot*cW+col]) + 1) / 2)
		}
	}
	out := append([]byte{}, y...)
	out = append(out, u420...)
	out = append(out, v420...)
	return out, nil
}
