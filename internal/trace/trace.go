// Package trace attaches an optional XDP program to the tap interface and
// counts frames crossing it via a ring buffer, off the TX/RX hot path.
// Attach/ring-buffer-read shape is adapted from
// internal/driver/device/eBPF_driver.go's NewEBPFDriver/ReadNonce, retargeted
// from a USB nonce-batcher program to a frame counter on a tap interface.
// Failure to load is logged and non-fatal: this is diagnostics only and
// never gates TX/RX correctness.
package trace

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net"
	"sync/atomic"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// frameEvent matches the struct the XDP program writes to its ring buffer:
// one event per observed frame, carrying its length.
type frameEvent struct {
	Length uint32
}

// bpfObjects are the programs/maps the XDP counter program exposes. Loading
// real compiled bytecode requires bpf2go/clang, which this checkout cannot
// invoke; loadObjects below is a stub mirroring eBPF_driver.go's own
// LoadBpfObjects stub, kept as the seam a generated loader would fill.
type bpfObjects struct {
	XDPFrameCounter *ebpf.Program `ebpf:"xdp_frame_counter"`
	FrameEvents     *ebpf.Map     `ebpf:"frame_events"`
}

func (o *bpfObjects) Close() error {
	if o.XDPFrameCounter != nil {
		o.XDPFrameCounter.Close()
	}
	if o.FrameEvents != nil {
		o.FrameEvents.Close()
	}
	return nil
}

func loadObjects(obj *bpfObjects, opts *ebpf.CollectionOptions) error {
	return nil
}

// Tracer attaches to one tap interface for the process lifetime.
type Tracer struct {
	objs    bpfObjects
	xdpLink link.Link
	reader  *ringbuf.Reader
	iface   string

	frames atomic.Uint64
}

// Attach loads the XDP frame counter and attaches it to the named interface.
func Attach(ifaceName string) (*Tracer, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("trace: remove memlock rlimit: %w", err)
	}

	t := &Tracer{iface: ifaceName}

	if err := loadObjects(&t.objs, nil); err != nil {
		return nil, fmt.Errorf("trace: load eBPF objects: %w", err)
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("trace: lookup interface %s: %w", ifaceName, err)
	}

	l, err := link.AttachXDP(link.XDPOptions{
		Program:   t.objs.XDPFrameCounter,
		Interface: iface.Index,
	})
	if err != nil {
		return nil, fmt.Errorf("trace: attach XDP to %s: %w", ifaceName, err)
	}
	t.xdpLink = l

	reader, err := ringbuf.NewReader(t.objs.FrameEvents)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("trace: open ring buffer: %w", err)
	}
	t.reader = reader

	log.Printf("trace: attached XDP frame counter to %s", ifaceName)
	return t, nil
}

// AttachBestEffort is Attach, but logs and returns nil on failure instead of
// propagating an error: tracing never gates startup.
func AttachBestEffort(ifaceName string) *Tracer {
	t, err := Attach(ifaceName)
	if err != nil {
		log.Printf("trace: not installing tap tracer: %v", err)
		return nil
	}
	return t
}

// Run drains the ring buffer until Close is called, incrementing the frame
// counter for every event.
func (t *Tracer) Run() {
	for {
		record, err := t.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return
			}
			log.Printf("trace: ring buffer read failed: %v", err)
			continue
		}

		var ev frameEvent
		if err := binary.Read(bytes.NewReader(record.RawSample), binary.LittleEndian, &ev); err != nil {
			log.Printf("trace: decode frame event failed: %v", err)
			continue
		}
		t.frames.Add(1)
	}
}

// Frames returns the number of frames observed so far.
func (t *Tracer) Frames() uint64 { return t.frames.Load() }

// Close detaches the XDP program and closes the ring buffer reader.
func (t *Tracer) Close() error {
	if t.reader != nil {
		_ = t.reader.Close()
	}
	if t.xdpLink != nil {
		if err := t.xdpLink.Close(); err != nil {
			return fmt.Errorf("trace: close XDP link: %w", err)
		}
	}
	return t.objs.Close()
}
