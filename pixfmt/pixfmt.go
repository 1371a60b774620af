// Package pixfmt is the tagged-variant pixel format data model: surface
// formats (the application's in-memory layout) and wire formats (RFC 4175
// on-the-wire layout), plus the pixel-group (coverage, size) table that
// drives both the converter registry and the RFC 4175 codec.
package pixfmt

import (
	"errors"
	"fmt"
)

// ErrMTUTooSmall is returned when a packing-mode payload budget collapses to
// zero or less once SRD headers are accounted for.
var ErrMTUTooSmall = errors.New("pixfmt: mtu too small for pixel group")

// ErrNotWireFormat reports that f cannot be used as an RFC 4175 wire format
// for the requested geometry (not a wire format, or the width does not
// divide evenly into whole pixel groups).
func ErrNotWireFormat(f Format) error {
	return fmt.Errorf("pixfmt: %s is not usable as a wire format for this geometry", f)
}

// Format is a tagged variant over every surface and wire pixel format the
// core knows about. The zero value is invalid.
type Format uint8

const (
	Invalid Format = iota

	// Surface formats (application-facing, little-endian in memory).
	YUV422P10LE
	YUV422P12LE
	YUV444P10LE
	YUV444P12LE
	GBRP10LE
	GBRP12LE
	V210
	Y210
	UYVY
	YUV422P
	YUV420P
	RGB8
	RGB10LE
	RGB12LE

	// Wire formats (RFC 4175 big-endian pixel-group payloads).
	RFC4175_422_10_PG2_BE
	RFC4175_422_12_PG2_BE
	RFC4175_444_10_PG4_BE
	RFC4175_444_12_PG2_BE
	RFC4175_RGB_10_PG4_BE
	RFC4175_RGB_12_PG2_BE
)

var names = map[Format]string{
	Invalid:               "invalid",
	YUV422P10LE:           "YUV422P10LE",
	YUV422P12LE:           "YUV422P12LE",
	YUV444P10LE:           "YUV444P10LE",
	YUV444P12LE:           "YUV444P12LE",
	GBRP10LE:              "GBRP10LE",
	GBRP12LE:              "GBRP12LE",
	V210:                  "V210",
	Y210:                  "Y210",
	UYVY:                  "UYVY",
	YUV422P:               "YUV422P",
	YUV420P:               "YUV420P",
	RGB8:                  "RGB8",
	RGB10LE:               "RGB10LE",
	RGB12LE:               "RGB12LE",
	RFC4175_422_10_PG2_BE: "422-10-pg2-be",
	RFC4175_422_12_PG2_BE: "422-12-pg2-be",
	RFC4175_444_10_PG4_BE: "444-10-pg4-be",
	RFC4175_444_12_PG2_BE: "444-12-pg2-be",
	RFC4175_RGB_10_PG4_BE: "RGB-10-pg4-be",
	RFC4175_RGB_12_PG2_BE: "RGB-12-pg2-be",
}

func (f Format) String() string {
	if n, ok := names[f]; ok {
		return n
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// IsWire reports whether f is one of the six RFC 4175 wire formats.
func (f Format) IsWire() bool {
	switch f {
	case RFC4175_422_10_PG2_BE, RFC4175_422_12_PG2_BE, RFC4175_444_10_PG4_BE,
		RFC4175_444_12_PG2_BE, RFC4175_RGB_10_PG4_BE, RFC4175_RGB_12_PG2_BE:
		return true
	}
	return false
}

// IsSurface reports whether f is an application-facing surface format.
func (f Format) IsSurface() bool {
	return f != Invalid && !f.IsWire()
}

// PixelGroup describes the indivisible tuple of samples a format packs per
// N pixels: Coverage pixels occupy Size bytes.
type PixelGroup struct {
	Coverage int // pixels per group
	Size     int // bytes per group
}

// BytesPerPixel returns the average (possibly fractional) bytes-per-pixel
// of a pixel group, used for line/frame byte-size computation.
func (pg PixelGroup) BytesPerPixel() float64 {
	return float64(pg.Size) / float64(pg.Coverage)
}

var pixelGroups = map[Format]PixelGroup{
	YUV422P10LE:           {Coverage: 1, Size: 4}, // 2 bytes/plane-sample average per 2:1 chroma, modelled per-pixel
	YUV422P12LE:           {Coverage: 1, Size: 4},
	YUV444P10LE:           {Coverage: 1, Size: 6},
	YUV444P12LE:           {Coverage: 1, Size: 6},
	GBRP10LE:              {Coverage: 1, Size: 6},
	GBRP12LE:              {Coverage: 1, Size: 6},
	V210:                  {Coverage: 6, Size: 16},
	Y210:                  {Coverage: 2, Size: 8},
	UYVY:                  {Coverage: 2, Size: 4},
	YUV422P:               {Coverage: 2, Size: 4},
	YUV420P:               {Coverage: 2, Size: 3},
	RGB8:                  {Coverage: 1, Size: 3},
	RGB10LE:               {Coverage: 1, Size: 6},
	RGB12LE:               {Coverage: 1, Size: 6},
	RFC4175_422_10_PG2_BE: {Coverage: 2, Size: 5},
	RFC4175_422_12_PG2_BE: {Coverage: 2, Size: 6},
	RFC4175_444_10_PG4_BE: {Coverage: 4, Size: 15},
	RFC4175_444_12_PG2_BE: {Coverage: 2, Size: 9},
	RFC4175_RGB_10_PG4_BE: {Coverage: 4, Size: 15},
	RFC4175_RGB_12_PG2_BE: {Coverage: 2, Size: 9},
}

// Group returns the pixel-group (coverage, size) for f. ok is false for
// formats with no registered pixel group.
func Group(f Format) (pg PixelGroup, ok bool) {
	pg, ok = pixelGroups[f]
	return pg, ok
}

// ConversionPair is one of the eleven enumerated surface/wire conversions
// §3 and §4.2 permit; the Cartesian product of all surface and wire formats
// is explicitly not supported.
type ConversionPair struct {
	Surface Format
	Wire    Format
	Lossy   bool // true for the 8-bit downconversions (lowest 2 bits dropped)
}

// SupportedPairs enumerates the (surface, wire) pairs listed in §4.2. The
// built-in scalar table in package convert does not cover all of them: it
// has no V210 or Y210 conversion, and converts YUV422P and YUV420P only in
// the wire-to-surface direction.
var SupportedPairs = []ConversionPair{
	{Surface: YUV422P10LE, Wire: RFC4175_422_10_PG2_BE},
	{Surface: YUV422P12LE, Wire: RFC4175_422_12_PG2_BE},
	{Surface: V210, Wire: RFC4175_422_10_PG2_BE},
	{Surface: Y210, Wire: RFC4175_422_10_PG2_BE},
	{Surface: YUV444P10LE, Wire: RFC4175_444_10_PG4_BE},
	{Surface: YUV444P12LE, Wire: RFC4175_444_12_PG2_BE},
	{Surface: GBRP10LE, Wire: RFC4175_RGB_10_PG4_BE},
	{Surface: GBRP12LE, Wire: RFC4175_RGB_12_PG2_BE},
	{Surface: UYVY, Wire: RFC4175_422_10_PG2_BE, Lossy: true},
	{Surface: YUV422P, Wire: RFC4175_422_10_PG2_BE, Lossy: true},
	{Surface: YUV420P, Wire: RFC4175_422_10_PG2_BE, Lossy: true},
}

// IsSupportedPair reports whether (surface, wire) is listed in
// SupportedPairs; it does not check the built-in converter table.
func IsSupportedPair(surface, wire Format) bool {
	for _, p := range SupportedPairs {
		if p.Surface == surface && p.Wire == wire {
			return true
		}
	}
	return false
}

// DeriveMode reports whether surface and wire are equal, in which case §3's
// "derive mode" applies: InConverting/Converted are skipped entirely and no
// pixel copy occurs.
func DeriveMode(surface, wire Format) bool {
	return surface == wire
}
