// Package wire encodes and decodes the packed, little-endian wire structures
// the SNIC device shares with the host: the BAR4 register map, descriptors,
// MSI-X vector entries, and the BAR0 identity block. Nothing here does I/O;
// callers own the bytes.
package wire

import "encoding/binary"

// BAR4 register offsets. A write to one of the *Base offsets is a rebase
// event; a write to one of the *Index offsets is a doorbell event.
const (
	OffsetTXDescBase = 0
	OffsetRXDescBase = 8
	OffsetTXIndex    = 16
	OffsetRXIndex    = 20
)

// DescriptorSize is the packed size of a Descriptor on the wire.
const DescriptorSize = 16

// MSIXEntrySize is the packed size of an MSIXEntry on the wire.
const MSIXEntrySize = 12

// MaxMSIXVectors is the number of MSI-X table entries the OOB service always
// returns; fewer is a startup-fatal malformed reply.
const MaxMSIXVectors = 16

// MaxTXPacket and MaxRXPacket bound the transient packet buffers the TX and
// RX engines use; they are never retained across events.
const (
	MaxTXPacket = 4096
	MaxRXPacket = 2048
)

// Descriptor names a packet buffer in host memory.
type Descriptor struct {
	Addr   uint64
	Length uint64
}

// PutDescriptor encodes d into buf[:16].
func PutDescriptor(buf []byte, d Descriptor) {
	binary.LittleEndian.PutUint64(buf[0:8], d.Addr)
	binary.LittleEndian.PutUint64(buf[8:16], d.Length)
}

// GetDescriptor decodes a Descriptor from buf[:16].
func GetDescriptor(buf []byte) Descriptor {
	return Descriptor{
		Addr:   binary.LittleEndian.Uint64(buf[0:8]),
		Length: binary.LittleEndian.Uint64(buf[8:16]),
	}
}

// DescriptorAddr returns the host address of descriptor slot i in a ring
// based at base.
func DescriptorAddr(base uint64, i uint32) uint64 {
	return base + uint64(i)*DescriptorSize
}

// MSIXEntry is a message-signaled interrupt target: raising it means
// DMA-writing Data to Addr.
type MSIXEntry struct {
	Addr uint64
	Data uint32
}

// PutMSIXEntry encodes e into buf[:12].
func PutMSIXEntry(buf []byte, e MSIXEntry) {
	binary.LittleEndian.PutUint64(buf[0:8], e.Addr)
	binary.LittleEndian.PutUint32(buf[8:12], e.Data)
}

// GetMSIXEntry decodes an MSIXEntry from buf[:12].
func GetMSIXEntry(buf []byte) MSIXEntry {
	return MSIXEntry{
		Addr: binary.LittleEndian.Uint64(buf[0:8]),
		Data: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

// GetMSIXTable decodes n packed MSIXEntry records from buf.
func GetMSIXTable(buf []byte, n int) []MSIXEntry {
	out := make([]MSIXEntry, n)
	for i := 0; i < n; i++ {
		out[i] = GetMSIXEntry(buf[i*MSIXEntrySize : (i+1)*MSIXEntrySize])
	}
	return out
}

// IsRebase reports whether offset is a descriptor-ring-base register.
func IsRebase(offset uint64) bool {
	return offset == OffsetTXDescBase || offset == OffsetRXDescBase
}

// IsDoorbell reports whether offset is a doorbell (index) register.
func IsDoorbell(offset uint64) bool {
	return offset == OffsetTXIndex || offset == OffsetRXIndex
}

// BAR0Magic is the fixed identity magic the original device exposes on BAR0.
const BAR0Magic = 0x01234567

// BAR0 is the device's read-only configuration/identity block.
type BAR0 struct {
	Magic  uint32
	DstMAC [6]byte
	SrcMAC [6]byte
	SrcIP  uint32 // big-endian network order, as captured
	DstIP  uint32
}

// ReverseMAC performs the byte-reversing 6-byte copy the original device used
// symmetrically in both directions when crossing the BAR0 boundary. Whether
// this reflects wire endianness or a latent bug in the source is unclear;
// the behavior is preserved literally rather than "corrected".
func ReverseMAC(src [6]byte) [6]byte {
	var out [6]byte
	for i := 0; i < 6; i++ {
		out[i] = src[5-i]
	}
	return out
}

// BAR0Size is the packed size of a BAR0 block (magic, two MACs with two
// reserved halfwords, two IPv4 addresses).
const BAR0Size = 4 + 6 + 2 + 6 + 2 + 4 + 4

// PutBAR0 encodes b into buf[:BAR0Size].
func PutBAR0(buf []byte, b BAR0) {
	binary.LittleEndian.PutUint32(buf[0:4], b.Magic)
	copy(buf[4:10], b.DstMAC[:])
	copy(buf[12:18], b.SrcMAC[:])
	binary.BigEndian.PutUint32(buf[20:24], b.SrcIP)
	binary.BigEndian.PutUint32(buf[24:28], b.DstIP)
}

// GetBAR0 decodes a BAR0 block from buf[:BAR0Size].
func GetBAR0(buf []byte) BAR0 {
	var b BAR0
	b.Magic = binary.LittleEndian.Uint32(buf[0:4])
	copy(b.DstMAC[:], buf[4:10])
	copy(b.SrcMAC[:], buf[12:18])
	b.SrcIP = binary.BigEndian.Uint32(buf[20:24])
	b.DstIP = binary.BigEndian.Uint32(buf[24:28])
	return b
}
