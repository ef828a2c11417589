package device

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"snic/internal/transport"
	"snic/internal/transport/faketransport"
	"snic/internal/wire"
)

func TestDispatchRebaseTX(t *testing.T) {
	s := newTestState()
	host := faketransport.NewHost()
	tx := NewTXEngine(s, host, &fakeTap{})
	rx := NewRXEngine(s, host, newFakeTapReader())

	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], 0x7000)

	err := Dispatch(s, tx, rx, faketransport.Tag(0), transport.MWrHeader{Addr: wire.OffsetTXDescBase}, payload[:])
	require.NoError(t, err)
	require.Equal(t, uint64(0x7000), s.TXBase())
}

func TestDispatchRebaseRX(t *testing.T) {
	s := newTestState()
	host := faketransport.NewHost()
	tx := NewTXEngine(s, host, &fakeTap{})
	rx := NewRXEngine(s, host, newFakeTapReader())

	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], 0x8000)

	err := Dispatch(s, tx, rx, faketransport.Tag(0), transport.MWrHeader{Addr: wire.OffsetRXDescBase}, payload[:])
	require.NoError(t, err)
	require.Equal(t, uint64(0x8000), s.RXBase())
}

func TestDispatchTXDoorbellRoutesToEngine(t *testing.T) {
	s := newTestState()
	s.SetTXBase(0x5000)
	host := faketransport.NewHost()
	tx := NewTXEngine(s, host, &fakeTap{})
	rx := NewRXEngine(s, host, newFakeTapReader())

	var payload [4]byte
	binary.LittleEndian.PutUint32(payload[:], 0)

	err := Dispatch(s, tx, rx, faketransport.Tag(0), transport.MWrHeader{Addr: wire.OffsetTXIndex}, payload[:])
	require.NoError(t, err)
	// TX base is 0x5000 but no descriptor is placed, so the fake host returns
	// a zero-filled descriptor (a zero-length frame); the TX IRQ still fires
	// exactly once, which is enough to show the doorbell was routed to TX.
	require.Len(t, host.WritesTo(0x9000), 1)
}

func TestDispatchUnknownOffsetIsIgnored(t *testing.T) {
	s := newTestState()
	host := faketransport.NewHost()
	tx := NewTXEngine(s, host, &fakeTap{})
	rx := NewRXEngine(s, host, newFakeTapReader())

	err := Dispatch(s, tx, rx, faketransport.Tag(0), transport.MWrHeader{Addr: 0xFF}, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Empty(t, host.Writes())
}

// Once BAR4 base is bound from OOB, an MWr addressed to base+16 must route
// to TX.
func TestDispatchRoutesRelativeToBAR4Base(t *testing.T) {
	s := newTestState()
	s.SetBAR4Base(0xdeadbeefcafebabe)
	s.SetTXBase(0x5000)
	host := faketransport.NewHost()
	tx := NewTXEngine(s, host, &fakeTap{})
	rx := NewRXEngine(s, host, newFakeTapReader())

	var payload [4]byte
	binary.LittleEndian.PutUint32(payload[:], 0)

	err := Dispatch(s, tx, rx, faketransport.Tag(0),
		transport.MWrHeader{Addr: 0xdeadbeefcafebabe + wire.OffsetTXIndex}, payload[:])
	require.NoError(t, err)
	require.Len(t, host.WritesTo(0x9000), 1)
}
