// Package convert implements the Converter Registry (§4.2): it brokers
// pixel-format conversion between an application's surface format and the
// on-wire RFC 4175 format, either via a registered external converter
// (CPU/GPU/FPGA) or the built-in scalar fallback table.
package convert

import (
	"sync"

	"github.com/smpte2110/mtl-core/pixfmt"
)

// Device is the converter's execution device preference (§3 Convert
// request).
type Device uint8

const (
	Auto Device = iota
	CPU
	GPU
	FPGA
	TestInternal
)

// Request describes one conversion the registry must satisfy.
type Request struct {
	Input      pixfmt.Format
	Output     pixfmt.Format
	Width      int
	Height     int
	FPS        float64
	Interlaced bool
	FrameCount int
	Device     Device
}

// Result is what a converter hands back to PutFrame.
type Result struct {
	Data []byte
	OK   bool
}

// Converter is the plugin ABI entry points an external converter exposes
// (§6 "Plugin ABI (Converter)"): Probe/Create/Destroy plus the
// notify/put-frame pair. A converter must be reentrant across concurrent
// sessions but may assume non-concurrent calls within one session.
type Converter interface {
	Name() string
	Device() Device
	Probe(req Request) bool
	Create(req Request) (Session, error)
}

// Session is a converter instance bound to one media session.
type Session interface {
	// GetFrame is called on the edge-triggered notify; it performs the
	// conversion and returns the result that will be handed to PutFrame by
	// the caller.
	GetFrame(input []byte) Result
	Destroy()
}

// registration is one entry in the registry's insertion-ordered list.
type registration struct {
	conv Converter
}

// Registry walks registrations in insertion order until one satisfies the
// request's predicate; selection is immutable for the session lifetime
// once Select has been called.
type Registry struct {
	mu    sync.Mutex
	regs  []registration
	built *builtinTable
}

// NewRegistry creates a Registry with the built-in scalar fallback table
// preloaded (never participates in insertion-order selection; it is only
// reached when no registered converter's predicate matches).
func NewRegistry() *Registry {
	return &Registry{built: newBuiltinTable()}
}

// Register appends an external converter to the insertion-ordered list.
func (r *Registry) Register(c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = append(r.regs, registration{conv: c})
}

// Select walks registrations in insertion order and returns the first
// converter whose Probe(req) returns true. If none match, it returns
// (nil, false); it does not consult the built-in table, which callers check
// separately with BuiltinSupports.
func (r *Registry) Select(req Request) (Converter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.regs {
		if reg.conv.Device() != Auto && req.Device != Auto && reg.conv.Device() != req.Device {
			continue
		}
		if reg.conv.Probe(req) {
			return reg.conv, true
		}
	}
	return nil, false
}

// BuiltinSupports reports whether the built-in scalar fallback can drive
// (input, output), per the nine enumerated pairs in §4.2.
func (r *Registry) BuiltinSupports(input, output pixfmt.Format) bool {
	return r.built.supports(input, output)
}

// BuiltinConvert runs the built-in scalar converter for (input, output),
// reading from src and writing a freshly allocated destination buffer.
func (r *Registry) BuiltinConvert(input, output pixfmt.Format, width, height int, src []byte) ([]byte, error) {
	return r.built.convert(input, output, width, height, src)
}
