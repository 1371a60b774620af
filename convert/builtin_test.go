package convert

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/smpte2110/mtl-core/pixfmt"
)

func le16(vals ...uint16) []byte {
	out := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

// TestRoundTrip422_10 exercises §8's round-trip property: decode(encode(frame))
// == frame for a supported surface format at 10 bits.
func TestRoundTrip422_10(t *testing.T) {
	const width, height = 4, 2
	reg := NewRegistry()

	y := []uint16{0x200, 0x201, 0x202, 0x203, 0x100, 0x101, 0x102, 0x103}
	u := []uint16{0x111, 0x222, 0x055, 0x066}
	v := []uint16{0x333, 0x044, 0x099, 0x0aa}

	var src []byte
	src = append(src, le16(y...)...)
	src = append(src, le16(u...)...)
	src = append(src, le16(v...)...)

	wire, err := reg.BuiltinConvert(pixfmt.YUV422P10LE, pixfmt.RFC4175_422_10_PG2_BE, width, height, src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	back, err := reg.BuiltinConvert(pixfmt.RFC4175_422_10_PG2_BE, pixfmt.YUV422P10LE, width, height, wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !bytes.Equal(back, src) {
		t.Fatalf("round trip mismatch:\n got  %v\n want %v", back, src)
	}
}

func TestRoundTrip422_12(t *testing.T) {
	const width, height = 4, 1
	reg := NewRegistry()

	y := []uint16{0xFFF, 0x000, 0x800, 0x0AA}
	u := []uint16{0x123, 0x456}
	v := []uint16{0x789, 0xABC}

	var src []byte
	src = append(src, le16(y...)...)
	src = append(src, le16(u...)...)
	src = append(src, le16(v...)...)

	wire, err := reg.BuiltinConvert(pixfmt.YUV422P12LE, pixfmt.RFC4175_422_12_PG2_BE, width, height, src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := reg.BuiltinConvert(pixfmt.RFC4175_422_12_PG2_BE, pixfmt.YUV422P12LE, width, height, wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(back, src) {
		t.Fatalf("round trip mismatch:\n got  %v\n want %v", back, src)
	}
}

func TestRoundTripGBRP10(t *testing.T) {
	const width, height = 4, 1
	reg := NewRegistry()

	g := []uint16{0x001, 0x3FF, 0x200, 0x123}
	b := []uint16{0x002, 0x3FE, 0x1FF, 0x321}
	r := []uint16{0x003, 0x3FD, 0x0FF, 0x111}

	var src []byte
	src = append(src, le16(g...)...)
	src = append(src, le16(b...)...)
	src = append(src, le16(r...)...)

	wire, err := reg.BuiltinConvert(pixfmt.GBRP10LE, pixfmt.RFC4175_RGB_10_PG4_BE, width, height, src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := reg.BuiltinConvert(pixfmt.RFC4175_RGB_10_PG4_BE, pixfmt.GBRP10LE, width, height, wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(back, src) {
		t.Fatalf("round trip mismatch:\n got  %v\n want %v", back, src)
	}
}

func TestBuiltinSupportsOnlyEnumeratedPairs(t *testing.T) {
	reg := NewRegistry()
	cases := []struct {
		in, out pixfmt.Format
		want    bool
	}{
		{pixfmt.YUV422P10LE, pixfmt.RFC4175_422_10_PG2_BE, true},
		{pixfmt.GBRP12LE, pixfmt.RFC4175_RGB_12_PG2_BE, true},
		{pixfmt.YUV444P10LE, pixfmt.RFC4175_444_10_PG4_BE, true},
		{pixfmt.RGB8, pixfmt.RFC4175_422_10_PG2_BE, false},
	}
	for _, c := range cases {
		got := reg.BuiltinSupports(c.in, c.out)
		if got != c.want {
			t.Errorf("BuiltinSupports(%s, %s) = %v, want %v", c.in, c.out, got, c.want)
		}
	}
}
