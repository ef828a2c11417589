// Package coordinator implements the SNIC coordinator (C7): it owns the
// shared device state, performs the OOB handshake, wires the MWr dispatcher
// to the transport's callback loop, spawns the tap-reader goroutine, and
// drives shutdown on SIGINT. Startup-order and shutdown-join shape is
// grounded on cmd/driver/hasher-server/main.go's signal-to-goroutine
// wiring (signal.Notify -> a context cancel -> sync.WaitGroup join).
package coordinator

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"snic/internal/config"
	"snic/internal/device"
	"snic/internal/status"
	"snic/internal/trace"
	"snic/internal/transport"
	"snic/internal/wire"
)

// NumTags is the number of concurrent PCIe transaction tags the transport
// supports.
const NumTags = 16

// TapDevice is the subset of *tapdev.Tap the coordinator needs.
type TapDevice interface {
	Write(b []byte) (int, error)
	PollRead(ctx context.Context, timeoutMillis int, buf []byte) (int, error)
	Name() string
	Close() error
}

// OOBClient is the subset of *oobmsg.Client the coordinator needs.
type OOBClient interface {
	BAR4Base() (uint64, error)
	DeviceID() (uint16, error)
	MSIXTable() ([]wire.MSIXEntry, error)
	Close() error
}

// CaughtSignal is the one process-wide mutable global this daemon allows: it
// flips once, on SIGINT/SIGTERM, for status.Source implementations that want
// to report a draining state. It plays no role in the shutdown logic itself,
// which is entirely context-based.
var CaughtSignal atomic.Bool

// Coordinator wires C4 (dispatch), C5 (TX), C6 (RX + pump), and the optional
// status/trace ambient services around one device.State.
type Coordinator struct {
	State *State

	tap     TapDevice
	session transport.Session
	tx      *device.TXEngine
	rx      *device.RXEngine

	statusSrv *status.Server
	tracer    *trace.Tracer
}

// State adapts device.State to satisfy status.Source, adding the bookkeeping
// (device id, tap name, start time) that isn't part of the core device
// state.
type State struct {
	*device.State
	deviceID uint16
	tapName  string
	bound    bool
	started  time.Time
}

// Bound reports whether BAR4Base/DeviceID have been established, whether
// from the OOB handshake or the -a/-b legacy CLI override.
func (s *State) Bound() bool                 { return s.bound }
func (s *State) DeviceID() uint16            { return s.deviceID }
func (s *State) TapName() string             { return s.tapName }
func (s *State) Uptime() time.Duration       { return time.Since(s.started) }
func (s *State) Stats() device.StatsSnapshot { return s.State.Stats.Snapshot() }
func (s *State) BAR0() wire.BAR0             { return s.State.BAR0() }

// hostIPToBE32 resolves the host portion of a "host:port" address to its
// big-endian uint32 IPv4 form, the same representation wire.BAR0 stores
// srcip/dstip in. Unresolvable or non-IPv4 addresses yield zero rather than
// an error: BAR0 is informational only.
func hostIPToBE32(hostport string) uint32 {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return 0
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

// Run performs the full C7 startup sequence against injected dependencies,
// blocks servicing the transport's callback loop, and on ctx cancellation
// (SIGINT having been translated upstream, or a test cancelling directly)
// shuts down: stops the transport session, joins the tap-reader goroutine,
// and returns.
//
// oob may be nil: when cfg.OOBAddr is empty, the caller has no OOB
// connection to offer, and BAR4Base/DeviceID must instead come from the
// legacy -a/-b CLI flags (cfg.LegacyBAR4/cfg.LegacyDeviceID). That path has
// no way to learn the MSI-X table, so TXIRQ/RXIRQ are left at their zero
// value and completions raise no interrupt, same as running against a
// revision that never populated the table.
func Run(ctx context.Context, cfg config.Config, tap TapDevice, oob OOBClient, session transport.Session) error {
	st := &State{State: device.NewState(), tapName: tap.Name(), started: time.Now()}

	if oob == nil {
		if cfg.LegacyBAR4 == 0 {
			return fmt.Errorf("coordinator: no OOB client and no -a legacy BAR4 base given")
		}
		st.State.SetBAR4Base(cfg.LegacyBAR4)
	} else {
		bar4, err := oob.BAR4Base()
		if err != nil {
			return fmt.Errorf("coordinator: OOB BAR4 base query failed: %w", err)
		}
		st.State.SetBAR4Base(bar4)
	}

	switch {
	case oob != nil && !cfg.LegacyMSIX:
		id, err := oob.DeviceID()
		if err != nil {
			return fmt.Errorf("coordinator: OOB device id query failed: %w", err)
		}
		st.deviceID = id
	case cfg.LegacyBDF != "":
		st.deviceID = cfg.LegacyDeviceID
	case !cfg.LegacyMSIX:
		return fmt.Errorf("coordinator: no OOB client and no -b legacy device id given")
	}

	if oob != nil {
		table, err := oob.MSIXTable()
		if err != nil {
			return fmt.Errorf("coordinator: OOB MSI-X table query failed: %w", err)
		}
		if len(table) < wire.MaxMSIXVectors {
			return fmt.Errorf("coordinator: MSI-X table has %d entries, want %d", len(table), wire.MaxMSIXVectors)
		}
		// Convention: vector 0 signals TX completions, vector 1 signals RX
		// completions, matching the one-TX-queue/one-RX-queue "simple NIC" model.
		st.State.SetTXIRQ(table[0])
		st.State.SetRXIRQ(table[1])
	}
	st.bound = true

	// BAR0 is read-only identity, not control plane; the MAC fields have no
	// source without a real TLP transport wired in, so they stay zero and
	// only the IPs learned from cfg are populated.
	st.State.SetBAR0(wire.BAR0{
		Magic: wire.BAR0Magic,
		SrcIP: hostIPToBE32(cfg.LocalAddr),
		DstIP: hostIPToBE32(cfg.RemoteAddr),
	})

	c := &Coordinator{State: st, tap: tap, session: session}
	c.tx = device.NewTXEngine(st.State, session, tap)
	c.rx = device.NewRXEngine(st.State, session, tap)

	if cfg.StatusAddr != "" {
		c.statusSrv = status.New(st)
		go func() {
			if err := c.statusSrv.Run(ctx, cfg.StatusAddr); err != nil {
				log.Printf("coordinator: status server stopped: %v", err)
			}
		}()
	}

	if cfg.Trace {
		c.tracer = trace.AttachBestEffort(tap.Name())
		if c.tracer != nil {
			go c.tracer.Run()
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.rx.Pump(ctx)
	}()

	go func() {
		<-ctx.Done()
		session.Stop()
		if c.tracer != nil {
			c.tracer.Close()
		}
	}()

	runErr := session.Run(func(h transport.Handle, hdr transport.MWrHeader, payload []byte) error {
		return device.Dispatch(st.State, c.tx, c.rx, h, hdr, payload)
	})

	wg.Wait()

	return runErr
}

// RunUntilSignal is the production entrypoint: it installs a SIGINT/SIGTERM
// handler that flips CaughtSignal and cancels ctx, then calls Run.
func RunUntilSignal(cfg config.Config, tap TapDevice, oob OOBClient, session transport.Session) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		CaughtSignal.Store(true)
		log.Printf("coordinator: caught signal, shutting down")
		cancel()
	}()

	return Run(ctx, cfg, tap, oob, session)
}
