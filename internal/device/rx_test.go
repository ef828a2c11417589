package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"snic/internal/transport/faketransport"
	"snic/internal/wire"
)

// fakeTapReader hands out its queued frames one per PollRead call; once they
// are used up, each call waits out the poll timeout and reports no data, or
// returns ctx.Err() if ctx is cancelled first.
type fakeTapReader struct {
	mu     sync.Mutex
	frames [][]byte
	done   chan struct{}
}

func newFakeTapReader(frames ...[]byte) *fakeTapReader {
	return &fakeTapReader{frames: frames, done: make(chan struct{})}
}

func (f *fakeTapReader) PollRead(ctx context.Context, timeoutMillis int, buf []byte) (int, error) {
	f.mu.Lock()
	if len(f.frames) > 0 {
		frame := f.frames[0]
		f.frames = f.frames[1:]
		f.mu.Unlock()
		n := copy(buf, frame)
		return n, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(time.Duration(timeoutMillis) * time.Millisecond):
		return 0, nil
	}
}

// Happy-path RX: doorbell marks the slot READY, the tap reader claims it.
func TestRXHappyPath(t *testing.T) {
	s := newTestState()
	s.SetRXBase(0x2000)

	host := faketransport.NewHost()
	desc := wire.Descriptor{Addr: 0x3000, Length: 0}
	descBuf := make([]byte, wire.DescriptorSize)
	wire.PutDescriptor(descBuf, desc)
	host.Place(wire.DescriptorAddr(0x2000, 3), descBuf)

	frame := make([]byte, 60)
	for i := range frame {
		frame[i] = byte(i)
	}

	rxEngine := NewRXEngine(s, host, newFakeTapReader(frame))
	rxEngine.PollTimeoutMillis = 20

	rxEngine.Doorbell(faketransport.Tag(0), 3)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		rxEngine.Pump(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(host.WritesTo(0x3000)) == 1
	}, time.Second, 5*time.Millisecond)

	payloadWrites := host.WritesTo(0x3000)
	require.Equal(t, frame, payloadWrites[0].Data)

	descWrites := host.WritesTo(wire.DescriptorAddr(0x2000, 3))
	require.Len(t, descWrites, 1)
	gotDesc := wire.GetDescriptor(descWrites[0].Data)
	require.Equal(t, wire.Descriptor{Addr: 0x3000, Length: 60}, gotDesc)

	require.Len(t, host.WritesTo(0x9010), 1)
	require.Equal(t, uint64(1), s.Stats.Snapshot().TotalRX)

	cancel()
	<-done
}

// RX drop: a frame arrives with no doorbell
// outstanding.
func TestRXDropWithNoSlotReady(t *testing.T) {
	s := newTestState()
	s.SetRXBase(0x2000)

	host := faketransport.NewHost()
	frame := make([]byte, 60)

	rxEngine := NewRXEngine(s, host, newFakeTapReader(frame))
	rxEngine.PollTimeoutMillis = 20

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		rxEngine.Pump(ctx)
		close(done)
	}()
	<-done

	require.Empty(t, host.Writes())
	require.Equal(t, uint64(1), s.Stats.Snapshot().RXDrops)
}

func TestRXDoorbellWithZeroBaseIsDropped(t *testing.T) {
	s := newTestState()
	host := faketransport.NewHost()
	rxEngine := NewRXEngine(s, host, newFakeTapReader())

	rxEngine.Doorbell(faketransport.Tag(0), 0)

	_, _, _, ok := s.RX.ClaimForTap()
	require.False(t, ok)
}

func TestRXSlotStateMachine(t *testing.T) {
	slot := newRXSlot()
	slot.BeginDoorbell(faketransport.Tag(1), 0x2030, wire.Descriptor{Addr: 0x3000, Length: 0})

	addr, desc, h, ok := slot.ClaimForTap()
	require.True(t, ok)
	require.Equal(t, uint64(0x2030), addr)
	require.Equal(t, wire.Descriptor{Addr: 0x3000, Length: 0}, desc)
	require.Equal(t, faketransport.Tag(1), h)

	_, _, _, ok = slot.ClaimForTap()
	require.False(t, ok, "a second claim while BUSY must fail")

	slot.Complete()

	done := make(chan struct{})
	go func() {
		slot.BeginDoorbell(faketransport.Tag(2), 0x2040, wire.Descriptor{Addr: 0x3100, Length: 0})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BeginDoorbell did not proceed after Complete")
	}
}
