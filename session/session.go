// Package session implements the TX and RX session state machines (§4.5,
// §4.6): the glue driving Frame Ring -> Codec -> Pacer -> NIC (TX) and NIC
// -> Codec -> Frame Ring (RX), plus the stats surface (§4.7) and the
// Created->Started->Stopped->Destroyed lifecycle shared by both.
package session

import (
	"sync/atomic"

	"github.com/smpte2110/mtl-core/frame"
	"github.com/smpte2110/mtl-core/mtlerr"
)

// State is the session lifecycle state machine (§4.5/§4.6).
type State uint8

const (
	Created State = iota
	Started
	Stopped
	Destroyed
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Started:
		return "Started"
	case Stopped:
		return "Stopped"
	case Destroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// EventKind is the lifecycle event passed to Callbacks.Event (§4.5).
type EventKind uint8

const (
	VSync EventKind = iota
	FatalError
	RecoveryError
)

// Callbacks are the non-blocking hooks a session fires; all may run from
// the pacer or NIC-completion context and must not block (§4.5/§5).
type Callbacks struct {
	FrameAvailable func()
	FrameDone      func(fr *frame.Frame)
	FrameLate      func(epochSkipped uint64)
	Event          func(kind EventKind)
}

// Stats is the snapshot surface §4.7 names, read under the session's lock.
type Stats struct {
	BuffersProcessed uint64
	BytesProcessed   uint64
	BuffersDropped   uint64
	BuffersFree      int
	BuffersInUse     int
	EpochsMissed     uint64 // TX only
	PktsReceived     uint64
	PktsRedundant    uint64
	PktsOutOfOrder   uint64
	GetFrameTry      uint64
	GetFrameSucc     uint64
	PutFrame         uint64
	ConvertFail      uint64
}

// lifecycle is the async-signal-safe Created/Started/Stopped/Destroyed
// bookkeeping shared by TXSession and RXSession: stop() per §5 must reduce
// to one relaxed atomic store plus one lock-free condvar signal, so the
// stopped flag lives outside the session mutex entirely.
type lifecycle struct {
	state   atomic.Int32
	stopped atomic.Bool
}

func newLifecycle() lifecycle {
	l := lifecycle{}
	l.state.Store(int32(Created))
	return l
}

func (l *lifecycle) State() State { return State(l.state.Load()) }

func (l *lifecycle) start() error {
	if !l.state.CompareAndSwap(int32(Created), int32(Started)) {
		return mtlerr.NewStateError(-1, l.State().String(), Started.String())
	}
	return nil
}

// stop is idempotent and safe to call from a signal handler: a relaxed
// atomic store plus (by the caller, immediately after) a single condvar
// broadcast on the ring is the entire operation (§5 Cancellation).
func (l *lifecycle) stop() {
	l.stopped.Store(true)
	l.state.CompareAndSwap(int32(Started), int32(Stopped))
	l.state.CompareAndSwap(int32(Created), int32(Stopped))
}

func (l *lifecycle) isStopped() bool { return l.stopped.Load() }

func (l *lifecycle) destroy() error {
	if !l.state.CompareAndSwap(int32(Stopped), int32(Destroyed)) {
		return mtlerr.NewStateError(-1, l.State().String(), Destroyed.String())
	}
	return nil
}
