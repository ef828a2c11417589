// Package mgmtclient is a thin HTTP client for internal/status's endpoints,
// used by cmd/snic-monitor. Connect-and-verify shape (dial, then immediately
// call the device-info endpoint to confirm it's really a snic-device) is
// adapted from internal/driver/host/bridge.go's NewASICDeviceWithAddress +
// connectHasher, generalized from gRPC to HTTP/JSON.
package mgmtclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultAddress is the status server's default bind address.
const DefaultAddress = "127.0.0.1:8900"

// DeviceInfo mirrors internal/status's GET /device response.
type DeviceInfo struct {
	BAR4Base uint64   `json:"bar4_base"`
	DeviceID uint16   `json:"device_id"`
	TapName  string   `json:"tap_name"`
	Bound    bool     `json:"bound"`
	Uptime   string   `json:"uptime"`
	BAR0     BAR0Info `json:"bar0"`
}

// BAR0Info mirrors the formatted BAR0 identity block nested in /device.
type BAR0Info struct {
	Magic  string `json:"magic"`
	SrcMAC string `json:"src_mac"`
	DstMAC string `json:"dst_mac"`
	SrcIP  string `json:"src_ip"`
	DstIP  string `json:"dst_ip"`
}

// Metrics mirrors internal/status's GET /metrics response
// (device.StatsSnapshot).
type Metrics struct {
	TotalTX  uint64 `json:"TotalTX"`
	TotalRX  uint64 `json:"TotalRX"`
	TXErrors uint64 `json:"TXErrors"`
	RXDrops  uint64 `json:"RXDrops"`
	IRQsTX   uint64 `json:"IRQsTX"`
	IRQsRX   uint64 `json:"IRQsRX"`
}

// Client talks to one snic-device's status server.
type Client struct {
	addr string
	http *http.Client
}

// Connect builds a client against addr and immediately verifies it's
// reachable by fetching /device, mirroring bridge.go's connectHasher
// check-on-construct behavior.
func Connect(ctx context.Context, addr string) (*Client, error) {
	c := &Client{addr: addr, http: &http.Client{Timeout: 5 * time.Second}}
	if _, err := c.DeviceInfo(ctx); err != nil {
		return nil, fmt.Errorf("mgmtclient: connect to %s: %w", addr, err)
	}
	return c, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addr+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mgmtclient: %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// DeviceInfo fetches GET /device.
func (c *Client) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	var info DeviceInfo
	err := c.get(ctx, "/device", &info)
	return info, err
}

// Metrics fetches GET /metrics.
func (c *Client) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := c.get(ctx, "/metrics", &m)
	return m, err
}

// Healthy reports whether GET /healthz returns 200.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addr+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
