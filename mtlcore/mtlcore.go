// Package mtlcore is the engine's public boundary: a tagged Session
// variant over the media types the core can carry, and the process-wide
// NIC-library handle registry with acquire/release refcounting (§9
// "Polymorphism" and "Global mutable state"). The session package does not
// use the registry itself; callers acquire and release handles.
package mtlcore

import (
	"sync"

	"github.com/smpte2110/mtl-core/mtlerr"
	"github.com/smpte2110/mtl-core/nic"
	"github.com/smpte2110/mtl-core/session"
)

// MediaKind is the tagged variant's discriminant (§9: "prefer a tagged
// variant over {Video20, Video22, Audio30, Ancillary40} at the public
// boundary, dispatched by exhaustive match"). Only Video20 (ST 2110-20
// uncompressed video) is implemented by this engine; the others are named
// here so switches over MediaKind, such as Dispatch, list every kind.
type MediaKind uint8

const (
	Video20 MediaKind = iota
	Video22           // ST 2110-22 compressed video — out of scope (§1 Non-goals: "does not compress video")
	Audio30           // ST 2110-30 audio — out of scope
	Ancillary40       // ST 2110-40 ancillary data — out of scope
)

func (k MediaKind) String() string {
	switch k {
	case Video20:
		return "Video20"
	case Video22:
		return "Video22"
	case Audio30:
		return "Audio30"
	case Ancillary40:
		return "Ancillary40"
	default:
		return "Unknown"
	}
}

// Session is the tagged variant over the media-specific session types.
// Exactly one of TX/RX is non-nil once Kind==Video20; the others are
// reserved for future media kinds and are always nil today.
type Session struct {
	Kind MediaKind
	TX   *session.TXSession
	RX   *session.RXSession
}

// Dispatch exhaustively matches on s.Kind, calling videoFn for Video20 and
// returning ErrUnsupportedFormat for every other (currently unimplemented)
// kind. The Go compiler does not check switch coverage; a MediaKind that
// no case names falls to the default branch and gets ErrUnsupportedFormat.
func (s *Session) Dispatch(videoFn func(tx *session.TXSession, rx *session.RXSession) error) error {
	switch s.Kind {
	case Video20:
		return videoFn(s.TX, s.RX)
	case Video22, Audio30, Ancillary40:
		return mtlerr.ErrUnsupportedFormat
	default:
		return mtlerr.ErrUnsupportedFormat
	}
}

// NICHandle is the process-wide resource a hosting NIC library init call
// returns (§9 "Global mutable state": "one NIC init per process").
type NICHandle struct {
	Driver nic.Driver
}

// HandleRegistry is a lazily-initialized, explicitly injectable
// acquire/release-refcounted holder for the process-wide NIC handle. Tests
// construct their own HandleRegistry rather than reaching for a package-
// level singleton, per §9's explicit injectability requirement.
type HandleRegistry struct {
	mu       sync.Mutex
	refcount int
	handle   *NICHandle
	initFn   func() (*NICHandle, error)
	closeFn  func(*NICHandle)
}

// NewHandleRegistry builds a registry that lazily calls initFn on first
// Acquire and closeFn (if non-nil) when the refcount returns to zero.
func NewHandleRegistry(initFn func() (*NICHandle, error), closeFn func(*NICHandle)) *HandleRegistry {
	return &HandleRegistry{initFn: initFn, closeFn: closeFn}
}

// Acquire returns the shared handle, initializing it on the first call and
// incrementing the refcount on every call.
func (r *HandleRegistry) Acquire() (*NICHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil {
		h, err := r.initFn()
		if err != nil {
			return nil, err
		}
		r.handle = h
	}
	r.refcount++
	return r.handle, nil
}

// Release decrements the refcount, closing the handle via closeFn when it
// reaches zero.
func (r *HandleRegistry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refcount == 0 {
		return
	}
	r.refcount--
	if r.refcount == 0 && r.handle != nil {
		if r.closeFn != nil {
			r.closeFn(r.handle)
		}
		r.handle = nil
	}
}

// Refcount reports the current acquire count, for tests.
func (r *HandleRegistry) Refcount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refcount
}
