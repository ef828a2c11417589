// Package transport models the TLP transport library as an external
// collaborator: it delivers MWr callbacks and offers DMA read/write
// primitives, but its wire-level implementation is out of scope for this
// repository. This package only fixes the contract the rest of the code
// depends on.
package transport

// Handle identifies the originating PCIe transaction tag an MWr event arrived
// on. Any DMA issued while servicing that event must reuse the same handle,
// since up to 16 tags may be in flight concurrently.
type Handle interface {
	Tag() int
}

// DMA is the read/write primitive the transport offers against host memory.
// A short read or write is reported via n < len(buf) with a nil error, as the
// original C library does; callers are responsible for checking the count.
type DMA interface {
	DMARead(h Handle, addr uint64, buf []byte) (int, error)
	DMAWrite(h Handle, addr uint64, buf []byte) (int, error)
}

// MWrHeader carries the fields the dispatcher needs out of a Memory Write
// TLP header: the target host-physical address the write landed on.
type MWrHeader struct {
	Addr uint64
}

// MWrCallback is invoked by the transport for every host MWr. Returning a
// non-nil error does not stop the transport's callback loop; the dispatcher
// in internal/device always returns nil and logs instead.
type MWrCallback func(h Handle, hdr MWrHeader, payload []byte) error

// StopCallbacks asks the transport to exit its blocking callback loop between
// events. The coordinator reaches this operation through Session.Stop, which
// it calls once when its context is cancelled.
type StopCallbacks func()

// Session is the full transport contract the coordinator depends on: DMA
// primitives plus a blocking callback loop and a way to stop it. A concrete
// TLP transport library implementing this is out of scope here; tests and
// the coordinator's own tests supply a fake.
type Session interface {
	DMA
	// Run blocks, invoking cb for every MWr event, until Stop is called.
	Run(cb MWrCallback) error
	// Stop asks Run to return between events.
	Stop()
}
