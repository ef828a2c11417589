package device

import (
	"testing"

	"github.com/stretchr/testify/require"

	"snic/internal/wire"
)

func TestStateBAR4BasePublish(t *testing.T) {
	s := NewState()
	require.Zero(t, s.BAR4Base())
	s.SetBAR4Base(0x1234)
	require.Equal(t, uint64(0x1234), s.BAR4Base())
}

func TestStateIRQEntries(t *testing.T) {
	s := NewState()
	s.SetTXIRQ(wire.MSIXEntry{Addr: 1, Data: 2})
	s.SetRXIRQ(wire.MSIXEntry{Addr: 3, Data: 4})
	require.Equal(t, wire.MSIXEntry{Addr: 1, Data: 2}, s.TXIRQ())
	require.Equal(t, wire.MSIXEntry{Addr: 3, Data: 4}, s.RXIRQ())
}

func TestStateBAR0Publish(t *testing.T) {
	s := NewState()
	require.Zero(t, s.BAR0())
	s.SetBAR0(wire.BAR0{Magic: wire.BAR0Magic, SrcIP: 0x0a000001})
	require.Equal(t, wire.BAR0{Magic: wire.BAR0Magic, SrcIP: 0x0a000001}, s.BAR0())
}

func TestStatsSnapshotIsIndependentCopy(t *testing.T) {
	st := &Stats{}
	st.TotalTX.Add(5)
	snap := st.Snapshot()
	require.Equal(t, uint64(5), snap.TotalTX)

	st.TotalTX.Add(1)
	require.Equal(t, uint64(5), snap.TotalTX, "snapshot must not observe later mutation")
}
