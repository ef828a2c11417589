package device

import (
	"encoding/binary"
	"log"

	"snic/internal/transport"
	"snic/internal/wire"
)

// Dispatch is the MWr dispatcher (C4): it classifies a host memory write by
// its BAR4-relative offset and routes it to the TX or RX engine. It always
// returns nil — the dispatcher never fails the transport's callback loop,
// whatever happens downstream.
func Dispatch(s *State, tx *TXEngine, rx *RXEngine, h transport.Handle, hdr transport.MWrHeader, payload []byte) error {
	offset := hdr.Addr - s.BAR4Base()

	switch {
	case offset == wire.OffsetTXDescBase && len(payload) >= 8:
		s.SetTXBase(binary.LittleEndian.Uint64(payload[:8]))

	case offset == wire.OffsetRXDescBase && len(payload) >= 8:
		s.SetRXBase(binary.LittleEndian.Uint64(payload[:8]))

	case offset == wire.OffsetTXIndex && len(payload) >= 4:
		idx := binary.LittleEndian.Uint32(payload[:4])
		tx.Doorbell(h, idx)

	case offset == wire.OffsetRXIndex && len(payload) >= 4:
		idx := binary.LittleEndian.Uint32(payload[:4])
		rx.Doorbell(h, idx)

	default:
		log.Printf("device: ignoring MWr at unrecognized offset %d (len %d)", offset, len(payload))
	}

	return nil
}
