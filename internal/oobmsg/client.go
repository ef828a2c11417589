// Package oobmsg implements the out-of-band message client (C2): the fixed
// UDP request/reply protocol the device uses to learn its BAR4 base, device
// id, and MSI-X vector table from the host driver before it can do anything
// else. Shape (dial, write request, read-with-timeout reply) is grounded on
// internal/driver/device/cgminer_client.go's SendCommand, generalized from a
// TCP/JSON exchange to a fixed UDP/binary one.
package oobmsg

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"snic/internal/wire"
)

// Port is the fixed UDP port the host driver's message endpoint listens on.
const Port = 12287

// Selector values. SelectorDeviceID exists only in the latest revision; an
// implementation running against an older driver sets Client.LegacyMSIX to
// reroute selector 2 to the MSI-X table instead, and supplies the device id
// some other way (e.g. the -b CLI flag).
const (
	SelectorBAR4Base = 1
	SelectorDeviceID = 2
	SelectorMSIX     = 3

	// SelectorLegacyMSIX is what older driver revisions answer on selector 2.
	SelectorLegacyMSIX = 2
)

// DefaultTimeout bounds a single request/reply round trip. There are no
// retries: one request, one reply, or a startup-fatal error.
const DefaultTimeout = 3 * time.Second

// Client queries the host's OOB message endpoint.
type Client struct {
	conn *net.UDPConn

	// LegacyMSIX, when true, treats a selector-2 reply as the MSI-X table
	// (older driver numbering) rather than the device id.
	LegacyMSIX bool

	Timeout time.Duration
}

// Dial opens the UDP socket used for OOB queries against the host message
// endpoint at hostAddr (no port; Port is fixed).
func Dial(hostAddr string) (*Client, error) {
	raddr := &net.UDPAddr{IP: net.ParseIP(hostAddr), Port: Port}
	if raddr.IP == nil {
		return nil, fmt.Errorf("oobmsg: invalid host address %q", hostAddr)
	}

	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("oobmsg: dial %s:%d: %w", hostAddr, Port, err)
	}

	return &Client{conn: conn, Timeout: DefaultTimeout}, nil
}

// Close releases the underlying socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Query sends selector and returns the raw reply payload. One datagram out,
// one datagram in; any failure (dial already happened, so this is read/write
// failure or timeout) is returned verbatim for the caller to treat as
// startup-fatal.
func (c *Client) Query(selector int32) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var req [4]byte
	binary.LittleEndian.PutUint32(req[:], uint32(selector))

	if _, err := c.conn.Write(req[:]); err != nil {
		return nil, fmt.Errorf("oobmsg: send selector %d: %w", selector, err)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("oobmsg: set read deadline: %w", err)
	}

	buf := make([]byte, 4096)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("oobmsg: read reply for selector %d: %w", selector, err)
	}

	return buf[:n], nil
}

// BAR4Base queries selector 1: the host-physical BAR4 base address.
func (c *Client) BAR4Base() (uint64, error) {
	reply, err := c.Query(SelectorBAR4Base)
	if err != nil {
		return 0, err
	}
	if len(reply) < 8 {
		return 0, fmt.Errorf("oobmsg: BAR4 base reply too short: %d bytes", len(reply))
	}
	return binary.LittleEndian.Uint64(reply[:8]), nil
}

// DeviceID queries selector 2 for the 16-bit PCI device id (bus<<8|devfn).
// Only meaningful when LegacyMSIX is false; the legacy scheme has no
// selector for this and expects the id from elsewhere (CLI flag).
func (c *Client) DeviceID() (uint16, error) {
	if c.LegacyMSIX {
		return 0, fmt.Errorf("oobmsg: device id is not queryable under the legacy MSI-X numbering")
	}
	reply, err := c.Query(SelectorDeviceID)
	if err != nil {
		return 0, err
	}
	if len(reply) < 2 {
		return 0, fmt.Errorf("oobmsg: device id reply too short: %d bytes", len(reply))
	}
	return binary.LittleEndian.Uint16(reply[:2]), nil
}

// MSIXTable queries the MSI-X vector table (selector 3 under the latest
// numbering, selector 2 under the legacy one per LegacyMSIX). A reply with
// fewer than wire.MaxMSIXVectors entries is malformed and startup-fatal.
func (c *Client) MSIXTable() ([]wire.MSIXEntry, error) {
	selector := int32(SelectorMSIX)
	if c.LegacyMSIX {
		selector = SelectorLegacyMSIX
	}

	reply, err := c.Query(selector)
	if err != nil {
		return nil, err
	}

	want := wire.MaxMSIXVectors * wire.MSIXEntrySize
	if len(reply) < want {
		return nil, fmt.Errorf("oobmsg: MSI-X table reply has %d entries, want %d",
			len(reply)/wire.MSIXEntrySize, wire.MaxMSIXVectors)
	}

	return wire.GetMSIXTable(reply, wire.MaxMSIXVectors), nil
}
