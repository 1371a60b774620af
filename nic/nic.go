// Package nic defines the NIC driver contract (§6) the engine consumes -
// tx_burst/rx_burst plus DMA memory (un)registration - and a simulated,
// in-process driver used by tests and the cmd/mtl-txsim / cmd/mtl-rxsim
// demo tools in place of a real poll-mode NIC.
package nic

import (
	"sync"
	"unsafe"

	"golang.org/x/time/rate"

	"github.com/smpte2110/mtl-core/mtlerr"
)

// Packet is one packet handed to or received from a NIC queue.
type Packet struct {
	Data      []byte
	LaunchNs  uint64 // TX: requested launch time; RX: hardware receive timestamp
}

// Driver is the NIC contract §6 specifies: burst submit/receive plus
// explicit DMA memory mapping.
type Driver interface {
	TxBurst(queue int, packets []Packet) (accepted int, err error)
	RxBurst(queue int, max int) ([]Packet, error)
	RegisterMem(virt []byte) (iova uint64, err error)
	UnregisterMem(iova uint64) error
}

// memRegistry is the process-wide DMA mapping registry, shared by every
// SimDriver. It is keyed by each registered buffer's start address; an
// address inside a registered buffer is not matched to that mapping.
type memRegistry struct {
	mu       sync.Mutex
	byAddr   map[uintptr]uint64
	byIova   map[uint64][]byte
	nextIova uint64
}

func newMemRegistry() *memRegistry {
	return &memRegistry{byAddr: map[uintptr]uint64{}, byIova: map[uint64][]byte{}, nextIova: 1}
}

func (m *memRegistry) register(virt []byte) (uint64, error) {
	if len(virt) == 0 {
		return 0, mtlerr.ErrInvalidArgument
	}
	addr := uintptr(unsafe.Pointer(&virt[0]))
	m.mu.Lock()
	defer m.mu.Unlock()
	if iova, ok := m.byAddr[addr]; ok {
		return iova, nil
	}
	iova := m.nextIova
	m.nextIova++
	m.byAddr[addr] = iova
	m.byIova[iova] = virt
	return iova, nil
}

func (m *memRegistry) unregister(iova uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	virt, ok := m.byIova[iova]
	if !ok {
		return mtlerr.ErrInvalidArgument
	}
	delete(m.byIova, iova)
	delete(m.byAddr, uintptr(unsafe.Pointer(&virt[0])))
	return nil
}

// SimQueue is one simulated hardware queue: a bounded channel standing in
// for the NIC's ring buffer, plus a token-bucket burst-rate bound.
type SimQueue struct {
	ch      chan Packet
	limiter *rate.Limiter
}

// SimDriver simulates a poll-mode NIC entirely in-process: packets
// submitted to TxBurst on queue i are retrievable via RxBurst on queue i
// of the same SimDriver, letting TX and RX
// sessions in the same process (or a test) exercise the full pipeline
// without real hardware.
type SimDriver struct {
	mem    *memRegistry
	mu     sync.Mutex
	queues map[int]*SimQueue
}

// processMem is the memory registry every SimDriver in the process shares.
var processMem = newMemRegistry()

// NewSimDriver creates a SimDriver with no queues. A queue first used by
// TxBurst or RxBurst is created with a backlog depth of 256 packets and no
// rate bound; call Queue first to choose other values.
func NewSimDriver() *SimDriver {
	return &SimDriver{mem: processMem, queues: map[int]*SimQueue{}}
}

// Queue returns (creating if needed) the shared simulated queue for index
// q, bounded to depth entries and limited to burstPerSec packets/second -
// zero disables the rate bound.
func (d *SimDriver) Queue(q, depth int, burstPerSec float64) *SimQueue {
	d.mu.Lock()
	defer d.mu.Unlock()
	sq, ok := d.queues[q]
	if !ok {
		sq = &SimQueue{ch: make(chan Packet, depth)}
		if burstPerSec > 0 {
			sq.limiter = rate.NewLimiter(rate.Limit(burstPerSec), depth)
		}
		d.queues[q] = sq
	}
	return sq
}

// TxBurst enqueues as many packets as fit without blocking, returning how
// many were accepted (§6: "enqueues up to a bounded burst and returns the
// number accepted").
func (d *SimDriver) TxBurst(queue int, packets []Packet) (int, error) {
	sq := d.Queue(queue, 256, 0)
	accepted := 0
	for _, p := range packets {
		if sq.limiter != nil && !sq.limiter.Allow() {
			break
		}
		select {
		case sq.ch <- p:
			accepted++
		default:
			return accepted, nil
		}
	}
	return accepted, nil
}

// RxBurst drains up to max packets already queued, without blocking.
func (d *SimDriver) RxBurst(queue int, max int) ([]Packet, error) {
	sq := d.Queue(queue, 256, 0)
	out := make([]Packet, 0, max)
	for len(out) < max {
		select {
		case p := <-sq.ch:
			out = append(out, p)
		default:
			return out, nil
		}
	}
	return out, nil
}

// RegisterMem installs a DMA mapping for virt, returning a simulated iova.
func (d *SimDriver) RegisterMem(virt []byte) (uint64, error) { return d.mem.register(virt) }

// UnregisterMem removes a previously registered mapping.
func (d *SimDriver) UnregisterMem(iova uint64) error { return d.mem.unregister(iova) }
