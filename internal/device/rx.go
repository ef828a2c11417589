package device

import (
	"context"
	"encoding/binary"
	"log"

	"snic/internal/transport"
	"snic/internal/wire"
)

// tapReader is the subset of tapdev.Tap the RX engine's pump loop needs.
type tapReader interface {
	PollRead(ctx context.Context, timeoutMillis int, buf []byte) (int, error)
}

// RXEngine implements the RX pipeline (C6): the inline doorbell handler and
// the tap-reader pump that completes it.
type RXEngine struct {
	State *State
	DMA   transport.DMA
	Tap   tapReader

	// PollTimeoutMillis is the tap poll window; 500 ms by default,
	// overridable in tests so they don't wait out the real timeout.
	PollTimeoutMillis int
}

// NewRXEngine wires an RX engine against shared device state.
func NewRXEngine(s *State, dma transport.DMA, tap tapReader) *RXEngine {
	return &RXEngine{State: s, DMA: dma, Tap: tap, PollTimeoutMillis: 500}
}

// Doorbell runs the inline RX handler steps for index idx: fetch the
// descriptor, wait for the slot to be free, then record the descriptor and
// mark the slot READY for the tap reader to claim.
func (e *RXEngine) Doorbell(h transport.Handle, idx uint32) {
	rxBase := e.State.RXBase()
	if rxBase == 0 {
		log.Printf("device: rx: doorbell with RX base unset, dropping")
		return
	}

	descAddr := wire.DescriptorAddr(rxBase, idx)
	descBuf := make([]byte, wire.DescriptorSize)
	n, err := e.DMA.DMARead(h, descAddr, descBuf)
	if err != nil || n < wire.DescriptorSize {
		log.Printf("device: rx: short/failed descriptor read at %#x: n=%d err=%v", descAddr, n, err)
		return
	}
	desc := wire.GetDescriptor(descBuf)

	e.State.RX.BeginDoorbell(h, descAddr, desc)
}

// Pump is the tap-reader goroutine body (C6): poll the tap, and on every
// frame, try to complete the outstanding RX slot. Runs for the process
// lifetime; returns when ctx is cancelled.
func (e *RXEngine) Pump(ctx context.Context) {
	buf := make([]byte, wire.MaxRXPacket)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := e.Tap.PollRead(ctx, e.PollTimeoutMillis, buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("device: rx: tap poll failed: %v", err)
			continue
		}
		if n == 0 {
			continue
		}

		e.complete(buf[:n])
	}
}

func (e *RXEngine) complete(frame []byte) {
	addr, desc, h, ok := e.State.RX.ClaimForTap()
	if !ok {
		e.State.Stats.RXDrops.Add(1)
		return
	}

	if _, err := e.DMA.DMAWrite(h, desc.Addr, frame); err != nil {
		log.Printf("device: rx: payload DMA write failed: %v", err)
		e.State.RX.Complete()
		return
	}

	desc.Length = uint64(len(frame))
	descBuf := make([]byte, wire.DescriptorSize)
	wire.PutDescriptor(descBuf, desc)
	if _, err := e.DMA.DMAWrite(h, addr, descBuf); err != nil {
		log.Printf("device: rx: descriptor writeback failed: %v", err)
		e.State.RX.Complete()
		return
	}

	e.raiseIRQ(h)
	e.State.Stats.TotalRX.Add(1)
	e.State.RX.Complete()
}

func (e *RXEngine) raiseIRQ(h transport.Handle) {
	irq := e.State.RXIRQ()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], irq.Data)
	if _, err := e.DMA.DMAWrite(h, irq.Addr, buf[:]); err != nil {
		log.Printf("device: rx: IRQ DMA write failed: %v", err)
		return
	}
	e.State.Stats.IRQsRX.Add(1)
}
