// Package frame defines the Frame and FrameSlot types shared by the TX and
// RX session state machines (§3 DATA MODEL).
package frame

import (
	"fmt"

	"github.com/smpte2110/mtl-core/mtlerr"
	"github.com/smpte2110/mtl-core/pixfmt"
)

// Status reports the completeness of a received (or, for TX, the intended)
// frame.
type Status uint8

const (
	StatusComplete Status = iota
	StatusReconstructed
	StatusCorrupted
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "Complete"
	case StatusReconstructed:
		return "Reconstructed"
	case StatusCorrupted:
		return "Corrupted"
	default:
		return "Unknown"
	}
}

// MaxPlanes is the maximum number of plane pointers a Frame carries (planar
// YUV 4:2:2/4:4:4 and the GBR planar variants never exceed three, capacity
// of four leaves headroom for an alpha plane).
const MaxPlanes = 4

// MaxPorts is the maximum number of redundant receive ports tracked per
// frame (§4.6 Redundancy: primary + one redundant port).
const MaxPorts = 2

// Frame is the logical video (or other essence) frame carried by one
// FrameSlot.
type Frame struct {
	Width       int
	Height      int
	Interlaced  bool
	SecondField bool
	Surface     pixfmt.Format

	Planes    [MaxPlanes][]byte
	Stride    [MaxPlanes]int
	BufSize   int
	DataSize  int

	RTPTimestamp uint32 // 90kHz modular media clock
	PTPTimestamp uint64 // ns TAI

	Status Status

	PacketsExpected int
	PacketsReceived [MaxPorts]int

	UserMeta []byte // rides alongside the frame, up to MTU - RTP header
	UserPtr  any
}

// State is the tagged variant over a FrameSlot's lifecycle position. TX and
// RX sessions use the same type but only traverse the arrows legal for
// their direction (§3):
//
//	Free -> Ready -> InConverting -> Converted -> InTransmitting -> Free  (TX)
//	Free -> Ready -> InConverting -> Converted -> InUser -> Free          (RX)
//
// TX has no use for InUser: the newest-Converted slot goes straight to
// InTransmitting (ring.NextConvertedNewest). InUser exists for RX, where the
// application holds a delivered frame before it is released back to Free.
type State uint8

const (
	Free State = iota
	Ready
	InConverting
	Converted
	InUser
	InTransmitting
)

func (s State) String() string {
	switch s {
	case Free:
		return "Free"
	case Ready:
		return "Ready"
	case InConverting:
		return "InConverting"
	case Converted:
		return "Converted"
	case InUser:
		return "InUser"
	case InTransmitting:
		return "InTransmitting"
	default:
		return "Unknown"
	}
}

// txEdges and rxEdges encode the one-way transition graphs from §3. Any
// transition not present is a hard error (BadState).
var txEdges = map[State]State{
	Free:           Ready,
	Ready:          InConverting, // or Converted directly in derive mode, handled by callers
	InConverting:   Converted,
	Converted:      InTransmitting,
	InTransmitting: Free,
}

var rxEdges = map[State]State{
	Free:         Ready,
	Ready:        InConverting,
	InConverting: Converted,
	Converted:    InUser,
	InUser:       Free,
}

// Direction selects which one-way graph a Slot enforces.
type Direction uint8

const (
	TX Direction = iota
	RX
)

// Slot is a fixed element of the Frame Ring.
type Slot struct {
	Index     int
	Dir       Direction
	Frame     Frame
	State     State
	Seq       uint64 // monotonically increasing seq-number
	Digest    [32]byte
	HasDigest bool
	DoneFired bool // frame-done callback fired flag
	UserMeta  []byte
}

// NewSlot constructs a Free slot at the given ring index.
func NewSlot(index int, dir Direction) *Slot {
	return &Slot{Index: index, Dir: dir, State: Free}
}

// CanAdvance reports whether from->to is a legal one-way transition for the
// slot's direction, treating the derive-mode shortcut (Ready directly to
// Converted, skipping InConverting) as legal too.
func (s *Slot) CanAdvance(to State) bool {
	edges := txEdges
	if s.Dir == RX {
		edges = rxEdges
	}
	if edges[s.State] == to {
		return true
	}
	// Derive mode: Ready -> Converted directly.
	if s.State == Ready && to == Converted {
		return true
	}
	return false
}

// Advance moves the slot from its current state to `to`, or returns a
// *mtlerr.StateError and forces the slot back to Free without applying the
// transition (§4.1 failure semantics: "the slot is forced to Free to avoid
// ring deadlock").
func (s *Slot) Advance(to State) error {
	if !s.CanAdvance(to) {
		from := s.State
		s.State = Free
		return mtlerr.NewStateError(s.Index, from.String(), to.String())
	}
	s.State = to
	return nil
}

// Reset clears a slot back to its zero Free state, releasing frame buffers.
func (s *Slot) Reset() {
	s.Frame = Frame{}
	s.State = Free
	s.DoneFired = false
	s.HasDigest = false
	s.UserMeta = nil
}

func (s *Slot) String() string {
	return fmt.Sprintf("slot[%d] state=%s seq=%d", s.Index, s.State, s.Seq)
}
