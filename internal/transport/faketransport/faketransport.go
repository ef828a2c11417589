// Package faketransport is an in-memory stand-in for the TLP transport used
// by tests: a byte-addressable fake host plus DMA read/write against it,
// faithful enough to drive dispatch/TX/RX scenarios without a real NetTLP
// adapter.
package faketransport

import (
	"sync"

	"snic/internal/transport"
)

// Tag implements transport.Handle with a plain int.
type Tag int

func (t Tag) Tag() int { return int(t) }

var _ transport.DMA = (*Host)(nil)

// DMAWrite records one DMA write the device issued, for assertions like "the
// TX IRQ was raised exactly once" or "the payload DMA carried these bytes".
type DMAWrite struct {
	Tag  int
	Addr uint64
	Data []byte
}

// Host models host-physical memory as a sparse byte map, plus a log of every
// DMA write the device has performed against it.
type Host struct {
	mu     sync.Mutex
	mem    map[uint64][]byte
	writes []DMAWrite

	// ShortReadAt, if set, caps every read starting at this address to
	// ShortReadLen bytes, to exercise the "short DMA read" error paths.
	ShortReadAt  uint64
	ShortReadLen int
	FailReadAt   uint64
}

// NewHost returns an empty fake host.
func NewHost() *Host {
	return &Host{mem: make(map[uint64][]byte)}
}

// Place writes b into host memory starting at addr, for test setup.
func (h *Host) Place(addr uint64, b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	h.mem[addr] = cp
}

// Read returns a copy of the n bytes at addr, zero-filled where unset.
func (h *Host) Read(addr uint64, n int) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readLocked(addr, n)
}

func (h *Host) readLocked(addr uint64, n int) []byte {
	out := make([]byte, n)
	b, ok := h.mem[addr]
	if ok {
		copy(out, b)
	}
	return out
}

// DMARead implements transport.DMA.
func (h *Host) DMARead(tag transport.Handle, addr uint64, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.FailReadAt != 0 && addr == h.FailReadAt {
		return 0, errFakeDMA("read")
	}

	n := len(buf)
	if h.ShortReadAt != 0 && addr == h.ShortReadAt && h.ShortReadLen < n {
		n = h.ShortReadLen
	}
	copy(buf, h.readLocked(addr, n))
	return n, nil
}

// DMAWrite implements transport.DMA and records the write for assertions.
func (h *Host) DMAWrite(tag transport.Handle, addr uint64, buf []byte) (int, error) {
	h.mu.Lock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	h.mem[addr] = cp
	t := 0
	if tag != nil {
		t = tag.Tag()
	}
	h.writes = append(h.writes, DMAWrite{Tag: t, Addr: addr, Data: cp})
	h.mu.Unlock()
	return len(buf), nil
}

// Writes returns a snapshot of every DMA write recorded so far.
func (h *Host) Writes() []DMAWrite {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]DMAWrite, len(h.writes))
	copy(out, h.writes)
	return out
}

// WritesTo filters Writes to those landing at addr.
func (h *Host) WritesTo(addr uint64) []DMAWrite {
	var out []DMAWrite
	for _, w := range h.Writes() {
		if w.Addr == addr {
			out = append(out, w)
		}
	}
	return out
}

type errFakeDMA string

func (e errFakeDMA) Error() string { return "faketransport: simulated DMA " + string(e) + " failure" }

// Event is one MWr the fake Session's Run loop will deliver to the callback.
type Event struct {
	Tag     transport.Handle
	Header  transport.MWrHeader
	Payload []byte
}

// Session is a fake transport.Session: it delivers a fixed, pre-queued list
// of MWr events to Run's callback, then blocks until Stop is called.
type Session struct {
	*Host
	events []Event
	stop   chan struct{}
}

var _ transport.Session = (*Session)(nil)

// NewSession returns a fake session over host that will deliver events, in
// order, once Run is called.
func NewSession(host *Host, events ...Event) *Session {
	return &Session{Host: host, events: events, stop: make(chan struct{})}
}

// Run delivers every queued event to cb, then blocks until Stop is called.
func (s *Session) Run(cb transport.MWrCallback) error {
	for _, ev := range s.events {
		_ = cb(ev.Tag, ev.Header, ev.Payload)
	}
	<-s.stop
	return nil
}

// Stop unblocks Run.
func (s *Session) Stop() {
	close(s.stop)
}
