package device

import (
	"encoding/binary"
	"log"

	"snic/internal/transport"
	"snic/internal/wire"
)

// tapWriter is the subset of tapdev.Tap the TX engine needs; modeled as an
// interface so tests can substitute a plain byte sink.
type tapWriter interface {
	Write(b []byte) (int, error)
}

// TXEngine implements the TX pipeline (C5).
type TXEngine struct {
	State *State
	DMA   transport.DMA
	Tap   tapWriter
}

// NewTXEngine wires a TX engine against shared device state.
func NewTXEngine(s *State, dma transport.DMA, tap tapWriter) *TXEngine {
	return &TXEngine{State: s, DMA: dma, Tap: tap}
}

// Doorbell runs the TX completion sequence for index idx: read the
// descriptor, read the packet it names, write it to the tap, raise the TX
// IRQ. Every path ends in raiseIRQ so the host driver is never left waiting
// for a completion.
func (e *TXEngine) Doorbell(h transport.Handle, idx uint32) {
	defer e.raiseIRQ(h)

	txBase := e.State.TXBase()
	if txBase == 0 {
		// Zero TX base means IRQ only, no DMA reads at all.
		return
	}

	descAddr := wire.DescriptorAddr(txBase, idx)
	descBuf := make([]byte, wire.DescriptorSize)
	n, err := e.DMA.DMARead(h, descAddr, descBuf)
	if err != nil || n < wire.DescriptorSize {
		e.State.Stats.TXErrors.Add(1)
		log.Printf("device: tx: short/failed descriptor read at %#x: n=%d err=%v", descAddr, n, err)
		return
	}
	desc := wire.GetDescriptor(descBuf)

	if desc.Length > wire.MaxTXPacket {
		e.State.Stats.TXErrors.Add(1)
		log.Printf("device: tx: descriptor length %d exceeds max packet size %d", desc.Length, wire.MaxTXPacket)
		return
	}

	payload := make([]byte, desc.Length)
	n, err = e.DMA.DMARead(h, desc.Addr, payload)
	if err != nil || uint64(n) < desc.Length {
		e.State.Stats.TXErrors.Add(1)
		log.Printf("device: tx: short/failed payload read at %#x: n=%d err=%v", desc.Addr, n, err)
		return
	}

	n, err = e.Tap.Write(payload)
	if err != nil || uint64(n) < desc.Length {
		e.State.Stats.TXErrors.Add(1)
		log.Printf("device: tx: tap write failed: n=%d err=%v", n, err)
		return
	}

	e.State.Stats.TotalTX.Add(1)
}

func (e *TXEngine) raiseIRQ(h transport.Handle) {
	irq := e.State.TXIRQ()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], irq.Data)
	if _, err := e.DMA.DMAWrite(h, irq.Addr, buf[:]); err != nil {
		log.Printf("device: tx: IRQ DMA write failed: %v", err)
		return
	}
	e.State.Stats.IRQsTX.Add(1)
}
