package status

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"snic/internal/device"
	"snic/internal/wire"
)

type fakeSource struct {
	bound    bool
	bar4     uint64
	deviceID uint16
	tap      string
	stats    device.StatsSnapshot
	uptime   time.Duration
	bar0     wire.BAR0
}

func (f fakeSource) Bound() bool                 { return f.bound }
func (f fakeSource) BAR4Base() uint64            { return f.bar4 }
func (f fakeSource) DeviceID() uint16            { return f.deviceID }
func (f fakeSource) TapName() string             { return f.tap }
func (f fakeSource) Stats() device.StatsSnapshot { return f.stats }
func (f fakeSource) Uptime() time.Duration       { return f.uptime }
func (f fakeSource) BAR0() wire.BAR0             { return f.bar0 }

func TestHealthzUnbound(t *testing.T) {
	srv := New(fakeSource{bound: false})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthzBound(t *testing.T) {
	srv := New(fakeSource{bound: true, uptime: time.Second})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeviceEndpoint(t *testing.T) {
	srv := New(fakeSource{bound: true, bar4: 0xdeadbeef, deviceID: 7, tap: "tap0"})
	req := httptest.NewRequest(http.MethodGet, "/device", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "3735928559")
}

func TestDeviceEndpointIncludesBAR0(t *testing.T) {
	srv := New(fakeSource{bound: true, bar0: wire.BAR0{Magic: wire.BAR0Magic, SrcIP: 0x0a000001}})
	req := httptest.NewRequest(http.MethodGet, "/device", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "0x01234567")
	require.Contains(t, rec.Body.String(), "10.0.0.1")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := New(fakeSource{bound: true, stats: device.StatsSnapshot{TotalTX: 3}})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "\"TotalTX\":3")
}
