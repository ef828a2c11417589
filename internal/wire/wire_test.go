package wire

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptorRoundTrip(t *testing.T) {
	d := Descriptor{Addr: 0x1000, Length: 14}
	buf := make([]byte, DescriptorSize)
	PutDescriptor(buf, d)
	require.Equal(t, d, GetDescriptor(buf))
}

func TestDescriptorAddr(t *testing.T) {
	require.Equal(t, uint64(0x2030), DescriptorAddr(0x2000, 3))
}

func TestMSIXEntryRoundTrip(t *testing.T) {
	e := MSIXEntry{Addr: 0xdeadbeefcafebabe, Data: 0x12345678}
	buf := make([]byte, MSIXEntrySize)
	PutMSIXEntry(buf, e)
	require.Equal(t, e, GetMSIXEntry(buf))
}

func TestGetMSIXTable(t *testing.T) {
	buf := make([]byte, MSIXEntrySize*2)
	PutMSIXEntry(buf[0:MSIXEntrySize], MSIXEntry{Addr: 1, Data: 2})
	PutMSIXEntry(buf[MSIXEntrySize:], MSIXEntry{Addr: 3, Data: 4})

	entries := GetMSIXTable(buf, 2)
	require.Len(t, entries, 2)
	require.Equal(t, MSIXEntry{Addr: 1, Data: 2}, entries[0])
	require.Equal(t, MSIXEntry{Addr: 3, Data: 4}, entries[1])
}

func TestIsRebaseIsDoorbell(t *testing.T) {
	require.True(t, IsRebase(OffsetTXDescBase))
	require.True(t, IsRebase(OffsetRXDescBase))
	require.False(t, IsRebase(OffsetTXIndex))

	require.True(t, IsDoorbell(OffsetTXIndex))
	require.True(t, IsDoorbell(OffsetRXIndex))
	require.False(t, IsDoorbell(OffsetTXDescBase))
}

func TestBAR4BaseFromOOBSample(t *testing.T) {
	// 8 B reply as delivered over the OOB selector-1 (BAR4 base) query.
	raw, err := hex.DecodeString("bebafecaefbeadde")
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeefcafebabe), binary.LittleEndian.Uint64(raw))
}

func TestReverseMACIsInvolution(t *testing.T) {
	mac := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	require.Equal(t, mac, ReverseMAC(ReverseMAC(mac)))
}

func TestBAR0RoundTrip(t *testing.T) {
	b := BAR0{
		Magic:  BAR0Magic,
		DstMAC: [6]byte{1, 2, 3, 4, 5, 6},
		SrcMAC: [6]byte{6, 5, 4, 3, 2, 1},
		SrcIP:  0xc0a80101,
		DstIP:  0xc0a80102,
	}
	buf := make([]byte, BAR0Size)
	PutBAR0(buf, b)
	require.Equal(t, b, GetBAR0(buf))
}
