// Package device implements the MWr dispatcher (C4), TX engine (C5), and RX
// engine plus tap reader (C6): the core state machine that turns host BAR4
// writes into tap traffic and back. Stats accounting follows
// internal/driver/device/controller.go's DeviceStats/DeviceStatsSnapshot
// split, with atomic counters in place of its mutex; callers read a
// plain-value snapshot.
package device

import (
	"sync"
	"sync/atomic"

	"snic/internal/transport"
	"snic/internal/wire"
)

// RX slot states.
type rxState int

const (
	rxInit rxState = iota
	rxReady
	rxBusy
	rxDone
)

// RXSlot is the singleton in-flight RX descriptor slot, guarded by a mutex
// and condition variable rather than the original device's unsynchronized
// busy-wait: the known race is fixed here, not reproduced.
type RXSlot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state rxState

	descAddr uint64
	desc     wire.Descriptor
	handle   transport.Handle
}

func newRXSlot() *RXSlot {
	s := &RXSlot{state: rxInit}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// BeginDoorbell waits (cooperatively, via the condition variable, not a spin)
// while the slot is READY or BUSY, then records the descriptor, its address
// descAddr, and the handle, and transitions to READY.
func (s *RXSlot) BeginDoorbell(h transport.Handle, descAddr uint64, desc wire.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.state == rxReady || s.state == rxBusy {
		s.cond.Wait()
	}
	s.descAddr = descAddr
	s.desc = desc
	s.handle = h
	s.state = rxReady
	s.cond.Broadcast()
}

// ClaimForTap attempts READY -> BUSY. Returns the claimed descriptor, address,
// and handle, and true, or zero values and false if the slot was not READY
// (the frame is dropped rather than queued).
func (s *RXSlot) ClaimForTap() (addr uint64, desc wire.Descriptor, h transport.Handle, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != rxReady {
		return 0, wire.Descriptor{}, nil, false
	}
	s.state = rxBusy
	s.cond.Broadcast()
	return s.descAddr, s.desc, s.handle, true
}

// Complete transitions BUSY -> DONE, unblocking any doorbell waiting to
// replace this slot.
func (s *RXSlot) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = rxDone
	s.cond.Broadcast()
}

// State is the fields of one emulated NIC instance.
type State struct {
	bar4Base    atomic.Uint64
	txBase      atomic.Uint64
	rxBase      atomic.Uint64
	txIRQ       atomic.Value // wire.MSIXEntry
	rxIRQ       atomic.Value // wire.MSIXEntry

	RX    *RXSlot
	Stats *Stats

	bar0 atomic.Value // wire.BAR0
}

// NewState returns a freshly initialized, unbound device state.
func NewState() *State {
	return &State{RX: newRXSlot(), Stats: &Stats{}}
}

// SetBAR0 / BAR0 publish and read the read-only identity block, following
// the same atomic.Value publish pattern as TXIRQ/RXIRQ since BAR0 is set
// once at startup and read concurrently by internal/status.
func (s *State) SetBAR0(b wire.BAR0) { s.bar0.Store(b) }

func (s *State) BAR0() wire.BAR0 {
	v, _ := s.bar0.Load().(wire.BAR0)
	return v
}

// SetBAR4Base publishes the BAR4 base learned from the OOB client. Readers
// use acquire-ordered loads via atomic.Uint64 to observe the publish safely
// from another goroutine.
func (s *State) SetBAR4Base(v uint64) { s.bar4Base.Store(v) }
func (s *State) BAR4Base() uint64     { return s.bar4Base.Load() }

// SetTXIRQ / SetRXIRQ record the MSI-X vectors the OOB client discovered.
func (s *State) SetTXIRQ(e wire.MSIXEntry) { s.txIRQ.Store(e) }
func (s *State) SetRXIRQ(e wire.MSIXEntry) { s.rxIRQ.Store(e) }

func (s *State) TXIRQ() wire.MSIXEntry {
	v, _ := s.txIRQ.Load().(wire.MSIXEntry)
	return v
}

func (s *State) RXIRQ() wire.MSIXEntry {
	v, _ := s.rxIRQ.Load().(wire.MSIXEntry)
	return v
}

// TXBase / RXBase are the descriptor-ring base addresses, rebased on writes
// to BAR4 offset 0 / 8 respectively. Zero means unset.
func (s *State) TXBase() uint64     { return s.txBase.Load() }
func (s *State) SetTXBase(v uint64) { s.txBase.Store(v) }
func (s *State) RXBase() uint64     { return s.rxBase.Load() }
func (s *State) SetRXBase(v uint64) { s.rxBase.Store(v) }

// Stats holds atomically-updated event counters, exposed read-only via
// Snapshot so the counters themselves never escape to callers.
type Stats struct {
	TotalTX   atomic.Uint64
	TotalRX   atomic.Uint64
	TXErrors  atomic.Uint64
	RXDrops   atomic.Uint64
	IRQsTX    atomic.Uint64
	IRQsRX    atomic.Uint64
}

// StatsSnapshot is a plain-value copy of Stats for callers (internal/status,
// internal/mgmtclient) that must not hold a mutex or atomics.
type StatsSnapshot struct {
	TotalTX  uint64
	TotalRX  uint64
	TXErrors uint64
	RXDrops  uint64
	IRQsTX   uint64
	IRQsRX   uint64
}

// Snapshot returns a consistent-enough point-in-time copy of the counters.
func (st *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalTX:  st.TotalTX.Load(),
		TotalRX:  st.TotalRX.Load(),
		TXErrors: st.TXErrors.Load(),
		RXDrops:  st.RXDrops.Load(),
		IRQsTX:   st.IRQsTX.Load(),
		IRQsRX:   st.IRQsRX.Load(),
	}
}
